package catalog

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"github.com/ausmap/geocat-cli/internal/fetcher"
)

// ShapefileItem is a vector catalog entry backed by a zipped shapefile. The
// archive is downloaded and extracted, each record's attributes are read
// alongside its shape, and the result is fed through the tabular pipeline as
// delimited text with synthesized Longitude/Latitude columns. Point shapes
// contribute their own coordinate; lines and polygons contribute their
// bounding box center.
type ShapefileItem struct {
	*CSVItem
}

// NewShapefileItem creates a shapefile catalog item. The source URL must
// point at a .zip archive containing the .shp and its sidecars.
func NewShapefileItem(name string, opts ...CSVOption) *ShapefileItem {
	return &ShapefileItem{CSVItem: NewCSVItem(name, opts...)}
}

func (it *ShapefileItem) Kind() Kind { return KindShapefile }

// Load fetches the archive, flattens the shapefile into delimited text, and
// runs the tabular pipeline over it.
func (it *ShapefileItem) Load(ctx context.Context) error {
	if it.sourceURL == "" {
		return eris.New("catalog: shapefile item has no source url")
	}
	if it.fetch == nil {
		return eris.New("catalog: shapefile item has no fetcher")
	}

	tmpDir, err := os.MkdirTemp("", "geocat-shp-*")
	if err != nil {
		return eris.Wrap(err, "catalog: create temp dir")
	}
	defer os.RemoveAll(tmpDir)

	zipPath := filepath.Join(tmpDir, "source.zip")
	if _, err := it.fetch.DownloadToFile(ctx, it.sourceURL, zipPath); err != nil {
		return err
	}

	extractDir := filepath.Join(tmpDir, "extracted")
	paths, err := fetcher.ExtractZIP(zipPath, extractDir)
	if err != nil {
		return err
	}
	shpPath, err := fetcher.FindByExtension(paths, ".shp")
	if err != nil {
		return err
	}

	text, err := flattenShapefile(shpPath)
	if err != nil {
		return err
	}

	it.rawText = text
	return it.CSVItem.Load(ctx)
}

// State captures the item for a share document.
func (it *ShapefileItem) State() ItemState {
	state := it.CSVItem.State()
	state.Kind = it.Kind()
	// The archive is always reloaded from its URL; the flattened text is a
	// derived artifact and never embedded.
	state.Data = ""
	return state
}

// flattenShapefile reads every record of a shapefile into delimited text:
// one representative coordinate pair followed by the attribute fields.
func flattenShapefile(shpPath string) (string, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return "", eris.Wrapf(err, "catalog: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	header := make([]string, 0, len(fields)+2)
	header = append(header, "Longitude", "Latitude")
	for _, f := range fields {
		header = append(header, strings.TrimRight(f.String(), "\x00"))
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(header); err != nil {
		return "", eris.Wrap(err, "catalog: write shapefile header")
	}

	for reader.Next() {
		_, shape := reader.Shape()
		if shape == nil {
			continue
		}
		lon, lat := shapeCenter(shape)

		row := make([]string, 0, len(fields)+2)
		row = append(row,
			strconv.FormatFloat(lon, 'f', -1, 64),
			strconv.FormatFloat(lat, 'f', -1, 64),
		)
		for i := range fields {
			val := strings.TrimRight(reader.Attribute(i), "\x00")
			row = append(row, strings.TrimSpace(val))
		}
		if err := w.Write(row); err != nil {
			return "", eris.Wrap(err, "catalog: write shapefile row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", eris.Wrap(err, "catalog: flush shapefile rows")
	}
	return sb.String(), nil
}

// shapeCenter returns a representative coordinate: the point itself for
// point shapes, the bounding box center otherwise.
func shapeCenter(s shp.Shape) (lon, lat float64) {
	if p, ok := s.(*shp.Point); ok {
		return p.X, p.Y
	}
	box := s.BBox()
	return (box.MinX + box.MaxX) / 2, (box.MinY + box.MaxY) / 2
}
