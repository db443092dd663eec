// Package dispatcher drains the outbound report queue. Every attempt is
// counted in the ledger before the send happens, so a crash mid-send costs
// one attempt rather than producing an uncounted duplicate; after a restart
// the dispatcher resumes exactly where the persisted count left off.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rapidkrill/internal/config"
	"rapidkrill/internal/ledger"
	"rapidkrill/internal/logging"
	"rapidkrill/internal/mailer"
	"rapidkrill/internal/metrics"
	"rapidkrill/internal/report"
	"rapidkrill/internal/services"
)

// Dispatcher sends pending reports with bounded retries.
type Dispatcher struct {
	store    *ledger.Store
	mail     mailer.Service
	platform string
	logger   *slog.Logger
	metrics  *metrics.Metrics

	maxAttempts    int
	backoffInitial time.Duration
	backoffCeiling time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a dispatcher from the mail retry settings.
func New(store *ledger.Store, mail mailer.Service, cfg *config.Config, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		store:          store,
		mail:           mail,
		platform:       cfg.Report.Platform,
		logger:         logging.NewComponentLogger(logger, "dispatcher"),
		maxAttempts:    cfg.Mail.MaxAttempts,
		backoffInitial: time.Duration(cfg.Mail.BackoffInitial) * time.Second,
		backoffCeiling: time.Duration(cfg.Mail.BackoffCeiling) * time.Second,
		sleep:          sleepCtx,
	}
	if d.maxAttempts < 1 {
		d.maxAttempts = 1
	}
	if d.backoffInitial <= 0 {
		d.backoffInitial = 30 * time.Second
	}
	if d.backoffCeiling < d.backoffInitial {
		d.backoffCeiling = d.backoffInitial
	}
	return d
}

// SetMetrics attaches pipeline metrics. A nil set disables instrumentation.
func (d *Dispatcher) SetMetrics(m *metrics.Metrics) {
	d.metrics = m
}

// DispatchPending sends every pending report in queue order. Per-report
// failures are recorded and do not stop the drain; only a context or storage
// error aborts it.
func (d *Dispatcher) DispatchPending(ctx context.Context) error {
	pending, err := d.store.PendingReports(ctx)
	if err != nil {
		return err
	}
	for _, rep := range pending {
		if err := d.Dispatch(ctx, rep); err != nil {
			return err
		}
	}
	return nil
}

// Dispatch drives one report to a terminal state: delivered, failed on a
// permanent relay answer, or failed after the attempt budget runs out.
func (d *Dispatcher) Dispatch(ctx context.Context, rep *ledger.Report) error {
	if rep.Terminal() {
		return nil
	}

	msg := mailer.Message{
		Subject:        rep.Subject,
		Body:           rep.Body,
		Recipients:     rep.Recipients,
		AttachmentName: report.AttachmentNameFor(d.platform, rep.WindowEnd),
		Attachment:     rep.Attachment,
	}

	for {
		attempts, err := d.store.BumpReportAttempt(ctx, rep.ID)
		if err != nil {
			return err
		}
		d.metrics.ReportAttempt()

		sendErr := d.mail.Send(ctx, msg)
		if sendErr == nil {
			d.logger.Info("report delivered",
				logging.String("report_id", rep.ID),
				logging.Int("attempts", attempts))
			d.metrics.ReportDelivered()
			return d.store.SetReportStatus(ctx, rep.ID, ledger.ReportDelivered, "")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if services.IsPermanent(sendErr) {
			d.logger.Error("report rejected, giving up",
				logging.String("report_id", rep.ID),
				logging.Error(sendErr))
			d.metrics.ReportFailed()
			return d.store.SetReportStatus(ctx, rep.ID, ledger.ReportFailed, sendErr.Error())
		}

		if attempts >= d.maxAttempts {
			d.logger.Error("report attempts exhausted",
				logging.String("report_id", rep.ID),
				logging.Int("attempts", attempts),
				logging.Error(sendErr))
			reason := fmt.Sprintf("attempts exhausted after %d: %s", attempts, sendErr.Error())
			d.metrics.ReportFailed()
			return d.store.SetReportStatus(ctx, rep.ID, ledger.ReportFailed, reason)
		}

		wait := d.backoffFor(attempts)
		d.logger.Warn("report send failed, will retry",
			logging.String("report_id", rep.ID),
			logging.Int("attempts", attempts),
			logging.Duration("backoff", wait),
			logging.Error(sendErr))
		if err := d.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// backoffFor doubles the initial delay per completed attempt, capped at the
// ceiling.
func (d *Dispatcher) backoffFor(attempts int) time.Duration {
	wait := d.backoffInitial
	for i := 1; i < attempts; i++ {
		wait *= 2
		if wait >= d.backoffCeiling {
			return d.backoffCeiling
		}
	}
	if wait > d.backoffCeiling {
		return d.backoffCeiling
	}
	return wait
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
