package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rapidkrill/internal/aggregator"
	"rapidkrill/internal/ledger"
	"rapidkrill/internal/mailer"
	"rapidkrill/internal/pipeline"
	"rapidkrill/internal/preflight"
	"rapidkrill/internal/report"
)

func newDesktopCommand(ctx *commandContext) *cobra.Command {
	var noMail bool

	cmd := &cobra.Command{
		Use:   "desktop [dir]",
		Short: "Process a directory of RAW files once and report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir := cfg.Paths.WatchDir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return fmt.Errorf("no directory given and watch_dir not configured")
			}

			logger, err := ctx.newLogger(false)
			if err != nil {
				return err
			}

			if r := preflight.CheckTransformBinary(cfg.Processing.TransformBin); !r.Passed {
				return fmt.Errorf("transform binary: %s", r.Detail)
			}

			store, err := ledger.Open(cfg)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()

			mailCfg := cfg
			if noMail {
				muted := *cfg
				muted.Mail.APIKey = ""
				mailCfg = &muted
			}
			mail := mailer.NewService(mailCfg, logger)

			mgr, err := pipeline.New(cfg, store, mail, nil, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			mgr.SetWindowHook(func(summary *aggregator.Summary) {
				fmt.Fprintln(out, report.Table(summary))
			})

			return mgr.RunBatch(signalCtx, dir)
		},
	}

	cmd.Flags().BoolVar(&noMail, "no-mail", false, "Process and print without emailing the report")
	return cmd
}
