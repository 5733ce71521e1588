package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ausmap/geocat-cli/internal/abs"
)

var (
	absSelects    []string
	absRegionType string
	absOut        string
)

var absCmd = &cobra.Command{
	Use:   "abs <dataset-id>",
	Short: "Run a statistical aggregation pass over an ABS dataset",
	Long:  "Builds the dataset's concept tree, applies --select overrides, runs the cross-product of active codes concurrently, and prints or writes the merged table.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "abs")
		if err != nil {
			return err
		}
		defer env.Close()

		regionType := absRegionType
		if regionType == "" {
			regionType = cfg.ABS.RegionType
		}

		agg := abs.NewAggregator(env.ABS, args[0], regionType,
			abs.WithConcurrency(cfg.ABS.Concurrency))
		if err := agg.LoadConceptTree(ctx); err != nil {
			return err
		}

		selections, err := parseSelects(absSelects)
		if err != nil {
			return err
		}
		if err := applySelects(agg, selections); err != nil {
			return err
		}

		printConceptTree(cmd, agg.Tree())

		res, err := agg.Aggregate(ctx)
		if err != nil {
			return err
		}
		if !res.HasData {
			fmt.Fprintln(cmd.OutOrStdout(), "no active selection; nothing to aggregate")
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d queries, %d fetched\n", res.Queries, res.Fetched)
		if absOut != "" {
			if err := os.WriteFile(absOut, []byte(res.CSV), 0o644); err != nil {
				return eris.Wrapf(err, "abs: write %s", absOut)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", absOut)
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), res.CSV)
		return nil
	},
}

// parseSelects splits repeated CONCEPT=code[,code...] flags into a selection
// map.
func parseSelects(selects []string) (map[string][]string, error) {
	selections := make(map[string][]string)
	for _, s := range selects {
		concept, codes, ok := strings.Cut(s, "=")
		if !ok {
			return nil, eris.Errorf("abs: malformed --select %q, expected CONCEPT=code[,code...]", s)
		}
		concept = strings.ToUpper(strings.TrimSpace(concept))
		for _, code := range strings.Split(codes, ",") {
			code = strings.TrimSpace(code)
			if code != "" {
				selections[concept] = append(selections[concept], code)
			}
		}
	}
	return selections, nil
}

// applySelects replaces the default selection of every concept named in the
// map; unnamed concepts keep their default first-root activation.
func applySelects(agg *abs.Aggregator, selections map[string][]string) error {
	tree := agg.Tree()
	for concept, codes := range selections {
		c := tree.Concept(concept)
		if c == nil {
			return eris.Errorf("abs: dataset has no concept %s", concept)
		}
		deactivateAll(c.Codes)
		for _, code := range codes {
			if err := agg.SetCodeActive(concept, code, true); err != nil {
				return err
			}
		}
	}
	return nil
}

func deactivateAll(codes []*abs.Code) {
	for _, code := range codes {
		code.Active = false
		deactivateAll(code.Children)
	}
}

func printConceptTree(cmd *cobra.Command, tree *abs.ConceptTree) {
	w := cmd.OutOrStdout()
	for i, codes := range abs.CollectActive(tree) {
		concept := tree.Concepts[i]
		names := make([]string, 0, len(codes))
		for _, code := range codes {
			names = append(names, code.ID)
		}
		fmt.Fprintf(w, "concept %-16s active: %s\n", concept.Code, strings.Join(names, ","))
	}
}

func init() {
	absCmd.Flags().StringArrayVar(&absSelects, "select", nil, "activate codes, e.g. --select AGE=A04,A59")
	absCmd.Flags().StringVar(&absRegionType, "region-type", "", "region type for query filters (default from config)")
	absCmd.Flags().StringVar(&absOut, "out", "", "write the merged table to this file")
	rootCmd.AddCommand(absCmd)
}
