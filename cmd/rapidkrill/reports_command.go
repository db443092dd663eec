package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"rapidkrill/internal/ledger"
)

func newReportsCommand(ctx *commandContext) *cobra.Command {
	reportsCmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect and retry outbound window reports",
	}
	reportsCmd.AddCommand(newReportsListCommand(ctx))
	reportsCmd.AddCommand(newReportsRetryCommand(ctx))
	return reportsCmd
}

func newReportsListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List window reports, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ledger.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			reports, err := store.ListReports(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(reports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No reports yet")
				return nil
			}

			rows := make([][]string, 0, len(reports))
			for _, r := range reports {
				detail := r.LastError
				if len(detail) > 60 {
					detail = detail[:57] + "..."
				}
				rows = append(rows, []string{
					r.ID,
					formatTimestamp(r.WindowStart),
					formatTimestamp(r.WindowEnd),
					string(r.Status),
					strconv.Itoa(r.Attempts),
					strings.Join(r.Recipients, ", "),
					detail,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Window Start", "Window End", "Status", "Attempts", "Recipients", "Last Error"},
				rows, 5,
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum reports to show (0 for all)")
	return cmd
}

func newReportsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <report-id>",
		Short: "Reset a failed report so the next listen run resends it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ledger.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			id := strings.TrimSpace(args[0])
			retried, err := store.RetryReport(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !retried {
				fmt.Fprintf(out, "Report %s is not in a failed state; nothing to do\n", id)
				return nil
			}
			fmt.Fprintf(out, "Report %s reset to pending\n", id)
			return nil
		},
	}
}
