package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ausmap/geocat-cli/internal/region"
)

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "Inspect the region type registry",
}

var regionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known region types in resolution order",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-6s %-36s %-8s %s\n", "CODE", "DATASET", "DIGITS", "ALIASES")
		for _, d := range region.DefaultRegistry().Descriptors() {
			fmt.Fprintf(w, "%-6s %-36s %-8d %s\n",
				d.Code, d.ServerDataset, d.Digits, strings.Join(d.Aliases, ","))
		}
		return nil
	},
}

var regionsFetchCmd = &cobra.Command{
	Use:   "fetch <code>",
	Short: "Prefetch the identifier table for a region type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "regions")
		if err != nil {
			return err
		}
		defer env.Close()

		code := strings.ToUpper(args[0])
		d, ok := env.Mapper.Registry().ByCode(code)
		if !ok {
			return eris.Errorf("regions: unknown region type %s", code)
		}

		ids, err := env.IDs.IDs(ctx, d)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d identifiers\n", code, len(ids))
		return nil
	},
}

func init() {
	regionsCmd.AddCommand(regionsListCmd, regionsFetchCmd)
	rootCmd.AddCommand(regionsCmd)
}
