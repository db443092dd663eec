package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rapidkrill/internal/daemon"
	"rapidkrill/internal/ledger"
	"rapidkrill/internal/mailer"
	"rapidkrill/internal/metrics"
	"rapidkrill/internal/pipeline"
	"rapidkrill/internal/preflight"
)

func newListenCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Watch the echosounder share and report continuously",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateListen(); err != nil {
				return err
			}

			logger, err := ctx.newLogger(true)
			if err != nil {
				return err
			}

			results := preflight.RunAll(signalCtx, cfg)
			printPreflight(cmd.OutOrStdout(), results)
			if preflight.Failed(results) {
				return fmt.Errorf("preflight checks failed")
			}

			store, err := ledger.Open(cfg)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()

			var m *metrics.Metrics
			if cfg.Metrics.Enabled {
				m = metrics.New()
			}

			mail := mailer.NewService(cfg, logger)
			mgr, err := pipeline.New(cfg, store, mail, m, logger)
			if err != nil {
				return err
			}

			d, err := daemon.New(cfg, store, mgr, m, logger)
			if err != nil {
				return err
			}
			defer d.Stop()

			if err := d.Start(signalCtx); err != nil {
				return err
			}
			return d.Wait()
		},
	}
}
