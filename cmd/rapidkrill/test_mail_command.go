package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"rapidkrill/internal/mailer"
)

func newTestMailCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-mail",
		Short: "Send a test report to the configured recipients",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Mail.APIKey == "" {
				return fmt.Errorf("mail api_key is not configured")
			}
			if len(cfg.Report.Recipients) == 0 {
				return fmt.Errorf("no recipients configured")
			}

			logger, err := ctx.newLogger(false)
			if err != nil {
				return err
			}

			msg := mailer.Message{
				Subject: fmt.Sprintf("RapidKrill report: %s_test_%s",
					cfg.Report.Platform, time.Now().UTC().Format(time.RFC3339)),
				Body:       "RapidKrill mail relay test. If you can read this, reports will reach you.",
				Recipients: cfg.Report.Recipients,
			}
			if err := mailer.NewService(cfg, logger).Send(cmd.Context(), msg); err != nil {
				return fmt.Errorf("test mail failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Test mail accepted for %d recipient(s)\n", len(cfg.Report.Recipients))
			return nil
		},
	}
}
