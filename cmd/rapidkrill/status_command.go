package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rapidkrill/internal/ledger"
	"rapidkrill/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show environment checks and pipeline state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			results := preflight.RunAll(cmd.Context(), cfg)
			printPreflight(out, results)

			store, err := ledger.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			pending, err := store.PendingReports(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Platform:        %s\n", cfg.Report.Platform)
			fmt.Fprintf(out, "Watch directory: %s\n", cfg.Paths.WatchDir)
			fmt.Fprintf(out, "Processed files: %d (%d succeeded, %d failed)\n",
				stats.Total, stats.Succeeded, stats.Failed)
			fmt.Fprintf(out, "Pending reports: %d\n", len(pending))
			return nil
		},
	}
}
