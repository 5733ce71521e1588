package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ausmap/geocat-cli/internal/catalog"
	"github.com/ausmap/geocat-cli/internal/region"
	"github.com/ausmap/geocat-cli/internal/table"
)

var (
	loadKind      string
	loadVariable  string
	loadOut       string
	loadFromShare string
)

// tabularItem is satisfied by the catalog variants built on the tabular
// pipeline.
type tabularItem interface {
	catalog.Item
	Dataset() *table.Dataset
	RegionMatch() *region.Match
	MapResult() *region.MapResult
}

var loadCmd = &cobra.Command{
	Use:   "load [source]",
	Short: "Load a catalog source and print its dataset summary",
	Long:  "Loads a tabular source from a file, URL, or share document; infers column semantics; resolves region mapping when the table has no coordinates.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "load")
		if err != nil {
			return err
		}
		defer env.Close()

		if loadFromShare != "" {
			return runLoadFromShare(cmd, env)
		}
		if len(args) == 0 {
			return eris.New("load: a source argument or --from-share is required")
		}

		source := args[0]
		state := catalog.ItemState{
			Kind:           catalog.Kind(loadKind),
			Name:           filepath.Base(source),
			SourceURL:      source,
			ActiveVariable: loadVariable,
			Opacity:        1.0,
		}
		if state.Kind == catalog.KindImagery {
			state.SourceURL = ""
			state.URLTemplate = source
		}
		item, err := env.Deps.NewItem(state)
		if err != nil {
			return err
		}
		if err := item.Load(ctx); err != nil {
			return err
		}

		printItemSummary(cmd.OutOrStdout(), item)

		if loadOut != "" {
			if err := writeColorTable(item, loadOut); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", loadOut)
		}
		return nil
	},
}

func runLoadFromShare(cmd *cobra.Command, env *Env) error {
	data, err := os.ReadFile(loadFromShare)
	if err != nil {
		return eris.Wrapf(err, "load: read share document %s", loadFromShare)
	}
	state, err := catalog.DecodeShare(data)
	if err != nil {
		return err
	}
	c, err := env.Deps.RestoreShare(state)
	if err != nil {
		return err
	}
	if err := catalog.LoadAll(cmd.Context(), c); err != nil {
		return err
	}
	for _, item := range c.Items() {
		printItemSummary(cmd.OutOrStdout(), item)
	}
	return nil
}

func printItemSummary(w io.Writer, item catalog.Item) {
	fmt.Fprintf(w, "%s (%s)\n", item.Name(), item.Kind())

	tab, ok := item.(tabularItem)
	if !ok {
		return
	}
	ds := tab.Dataset()

	fmt.Fprintf(w, "  rows: %d\n", ds.RowCount())
	for _, name := range ds.ColumnNames() {
		col := ds.Column(name)
		role := ""
		if name == ds.ActiveVariableName() {
			role = "  [active]"
		}
		fmt.Fprintf(w, "  column %-24s %s%s\n", name, col.Kind, role)
	}

	if b := ds.Extent(); b != nil {
		fmt.Fprintf(w, "  extent: lon %.4f..%.4f lat %.4f..%.4f\n",
			b.Min(0), b.Max(0), b.Min(1), b.Max(1))
	}

	if match := tab.RegionMatch(); match != nil {
		fmt.Fprintf(w, "  region type: %s (column %q)\n", match.Descriptor.Code, match.Column)
	}
	if result := tab.MapResult(); result != nil {
		fmt.Fprintf(w, "  mapped: %d of %d rows\n", result.Mapped, result.Total)
	}
}

// writeColorTable dumps the slot-to-color lookup of a choropleth item, or the
// plotted points of a vector item, as CSV.
func writeColorTable(item catalog.Item, path string) error {
	tab, ok := item.(tabularItem)
	if !ok {
		return eris.Errorf("load: %s items have no color table", item.Kind())
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "load: create %s", path)
	}
	defer f.Close() //nolint:errcheck
	w := csv.NewWriter(f)

	if result := tab.MapResult(); result != nil {
		_ = w.Write([]string{"slot", "region_id", "r", "g", "b", "a"})
		lookup := result.ColorFunc()
		for slot, id := range result.IDs() {
			c, ok := lookup(slot)
			if !ok {
				continue
			}
			_ = w.Write([]string{
				strconv.Itoa(slot),
				strconv.Itoa(id),
				strconv.Itoa(int(c.R)),
				strconv.Itoa(int(c.G)),
				strconv.Itoa(int(c.B)),
				strconv.Itoa(int(c.A)),
			})
		}
		w.Flush()
		return eris.Wrap(w.Error(), "load: write color table")
	}

	ds := tab.Dataset()
	_ = w.Write([]string{"row", "lon", "lat", "value"})
	lon := ds.Column(ds.LongitudeColumn())
	lat := ds.Column(ds.LatitudeColumn())
	active := ds.ActiveVariable()
	for row := 0; row < ds.RowCount(); row++ {
		if lon == nil || lat == nil {
			break
		}
		value := ""
		if active != nil && active.Values[row] != table.NoDataSentinel {
			value = strconv.FormatFloat(active.Values[row], 'g', -1, 64)
		}
		_ = w.Write([]string{
			strconv.Itoa(row),
			strconv.FormatFloat(lon.Values[row], 'f', -1, 64),
			strconv.FormatFloat(lat.Values[row], 'f', -1, 64),
			value,
		})
	}
	w.Flush()
	return eris.Wrap(w.Error(), "load: write point table")
}

func init() {
	loadCmd.Flags().StringVar(&loadKind, "kind", "csv", "source kind: csv, geojson, shapefile, imagery")
	loadCmd.Flags().StringVar(&loadVariable, "var", "", "column preferred as the active variable")
	loadCmd.Flags().StringVar(&loadOut, "out", "", "write the slot/color or point table to this file")
	loadCmd.Flags().StringVar(&loadFromShare, "from-share", "", "restore items from a share document instead of a source")
	rootCmd.AddCommand(loadCmd)
}
