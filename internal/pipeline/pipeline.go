// Package pipeline wires the detector, processor, aggregator, and dispatcher
// into the two run modes: the unattended listen loop and the one-shot batch
// run. Ordering across the seams is strict: a file's ledger row is written
// before its sample is folded, and a window's report row is written before
// any send attempt.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"rapidkrill/internal/aggregator"
	"rapidkrill/internal/calibration"
	"rapidkrill/internal/config"
	"rapidkrill/internal/detector"
	"rapidkrill/internal/dispatcher"
	"rapidkrill/internal/ledger"
	"rapidkrill/internal/logging"
	"rapidkrill/internal/mailer"
	"rapidkrill/internal/metrics"
	"rapidkrill/internal/processor"
	"rapidkrill/internal/report"
	"rapidkrill/internal/transform"
)

// Manager owns one pipeline instance from poll to report.
type Manager struct {
	cfg     *config.Config
	store   *ledger.Store
	det     *detector.Detector
	proc    *processor.Processor
	agg     *aggregator.Aggregator
	builder *report.Builder
	disp    *dispatcher.Dispatcher
	metrics *metrics.Metrics
	logger  *slog.Logger

	// onWindow runs after each sealed window, before dispatch. Batch mode
	// uses it to print the console table.
	onWindow func(*aggregator.Summary)

	// asyncDispatch moves report sends off the listen loop so relay backoff
	// cannot stall polling. Batch mode stays synchronous.
	asyncDispatch bool
	dispatches    sync.WaitGroup
}

// New assembles a manager. The detector skip set is seeded from the ledger
// so files processed by earlier runs are never re-emitted.
func New(cfg *config.Config, store *ledger.Store, mail mailer.Service, m *metrics.Metrics, logger *slog.Logger) (*Manager, error) {
	cal, err := calibration.Resolve(cfg.Processing.CalibrationFile, calibration.Calibration{
		Gain:       cfg.Processing.Gain,
		SoundSpeed: cfg.Processing.SoundSpeed,
		Absorption: cfg.Processing.Absorption,
	})
	if err != nil {
		return nil, err
	}

	seed, err := store.ProcessedPaths(context.Background())
	if err != nil {
		return nil, fmt.Errorf("seed detector from ledger: %w", err)
	}

	reader := transform.NewExecReader(cfg.Processing.TransformBin,
		time.Duration(cfg.Processing.TransformTimeout)*time.Second)
	disp := dispatcher.New(store, mail, cfg, logger)
	disp.SetMetrics(m)

	mgr := &Manager{
		cfg:     cfg,
		store:   store,
		det:     detector.New(detector.FromConfig(cfg), seed, logger),
		proc:    processor.New(reader, store, cal, logger),
		agg:     aggregator.New(logger),
		builder: report.NewBuilder(cfg.Report.Platform),
		disp:    disp,
		metrics: m,
		logger:  logging.NewComponentLogger(logger, "pipeline"),
	}
	if !cal.IsZero() {
		mgr.logger.Info("calibration active", logging.String("calibration", cal.String()))
	}
	return mgr, nil
}

// SetReader overrides the transform reader.
func (m *Manager) SetReader(reader transform.Reader) {
	cal := calibration.Calibration{
		Gain:       m.cfg.Processing.Gain,
		SoundSpeed: m.cfg.Processing.SoundSpeed,
		Absorption: m.cfg.Processing.Absorption,
	}
	m.proc = processor.New(reader, m.store, cal, m.logger)
}

// SetWindowHook installs a callback invoked with each sealed window summary.
func (m *Manager) SetWindowHook(hook func(*aggregator.Summary)) {
	m.onWindow = hook
}

// RunListen runs the unattended loop until the context is cancelled. Pending
// reports from earlier runs are resumed in the background, then the loop
// alternates between directory polls and window seals. A failed poll widens
// the wait with exponential backoff up to the configured ceiling; the next
// successful poll snaps it back. Dispatch runs off the loop so relay retries
// never block polling; cancelled sends stay pending for the next start.
func (m *Manager) RunListen(ctx context.Context) error {
	m.asyncDispatch = true
	defer m.dispatches.Wait()

	m.dispatches.Add(1)
	go func() {
		defer m.dispatches.Done()
		if err := m.disp.DispatchPending(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("resuming pending reports failed", logging.Error(err))
		}
	}()

	pollInterval := time.Duration(m.cfg.Watch.PollInterval) * time.Second
	backoffInitial := time.Duration(m.cfg.Watch.BackoffInitial) * time.Second
	backoffCeiling := time.Duration(m.cfg.Watch.BackoffCeiling) * time.Second
	windowDuration := time.Duration(m.cfg.Report.WindowMinutes) * time.Minute

	pollTimer := time.NewTimer(0)
	defer pollTimer.Stop()
	windowTimer := time.NewTimer(windowDuration)
	defer windowTimer.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("listen loop stopping")
			return ctx.Err()

		case <-windowTimer.C:
			if err := m.sealWindow(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				m.logger.Error("window seal failed", logging.Error(err))
			}
			windowTimer.Reset(windowDuration)

		case <-pollTimer.C:
			ready, err := m.det.Poll(ctx)
			m.metrics.SetTrackedFiles(m.det.TrackedCount())

			// A partial scan can still surface ready files; process them
			// before deciding how long to wait.
			if len(ready) > 0 {
				if derr := m.drain(ctx, ready); derr != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					m.logger.Error("drain failed", logging.Error(derr))
				}
			}

			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failures++
				wait := backoffWait(backoffInitial, backoffCeiling, failures)
				m.metrics.PollError()
				m.logger.Warn("poll failed, backing off",
					logging.Int("consecutive_failures", failures),
					logging.Duration("backoff", wait),
					logging.Error(err))
				pollTimer.Reset(wait)
				continue
			}
			failures = 0
			pollTimer.Reset(pollInterval)
		}
	}
}

// RunBatch processes every matching file already in the directory, seals the
// single window, and dispatches its report. Files are complete by
// definition, so readiness polling is skipped.
func (m *Manager) RunBatch(ctx context.Context, dir string) error {
	timeout := time.Duration(m.cfg.Watch.StatTimeout) * time.Second
	paths, err := listBatchFiles(ctx, dir, m.cfg.Watch.IncludeExtensions, timeout)
	if err != nil {
		return err
	}
	m.logger.Info("batch run starting",
		logging.String("dir", dir),
		logging.Int("files", len(paths)))

	ready := make([]detector.Ready, 0, len(paths))
	for _, p := range paths {
		ready = append(ready, detector.Ready{Path: p})
	}
	if err := m.drain(ctx, ready); err != nil {
		return err
	}
	return m.sealWindow(ctx)
}

// drain processes ready files through the configured worker count. Per-file
// failures are absorbed into the window; only context and storage errors
// propagate.
func (m *Manager) drain(ctx context.Context, ready []detector.Ready) error {
	if len(ready) == 0 {
		return nil
	}

	workers := m.cfg.Processing.Workers
	if workers <= 1 || len(ready) == 1 {
		for _, r := range ready {
			if err := m.processOne(ctx, r.Path); err != nil {
				return err
			}
		}
		return nil
	}

	if workers > len(ready) {
		workers = len(ready)
	}

	// Workers cancel the pool on their first error so the feed loop cannot
	// block on a channel nobody reads anymore.
	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan string)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				if err := m.processOne(poolCtx, path); err != nil {
					select {
					case errs <- err:
					default:
					}
					cancel()
					return
				}
			}
		}()
	}

feed:
	for _, r := range ready {
		select {
		case jobs <- r.Path:
		case <-poolCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return err
	}
	return ctx.Err()
}

func (m *Manager) processOne(ctx context.Context, path string) error {
	started := time.Now()
	entry, sample, err := m.proc.Process(ctx, path)
	if err != nil {
		return err
	}
	switch {
	case sample != nil:
		m.agg.Fold(sample)
		m.metrics.FileProcessed(time.Since(started))
	case entry == nil:
		// Already recorded by an earlier run; nothing to fold.
	case entry.Outcome == ledger.OutcomeFailed:
		m.agg.NoteFailure()
		m.metrics.FileFailed()
	default:
		m.agg.NoteSkipped()
		m.metrics.FileSkipped()
	}

	// The ledger row exists in every branch above; the detector may stop
	// offering the file.
	m.det.MarkProcessed(path)
	return nil
}

// sealWindow closes the current aggregation window and, when it produced
// anything, persists the report row and its CSV artifact before dispatching.
func (m *Manager) sealWindow(ctx context.Context) error {
	summary := m.agg.CloseWindow()
	if summary == nil {
		return nil
	}
	m.metrics.WindowSealed()

	if m.onWindow != nil {
		m.onWindow(summary)
	}
	if err := m.writeArtifact(summary); err != nil {
		m.logger.Warn("result artifact not written", logging.Error(err))
	}

	rep := m.builder.Build(summary, m.cfg.Report.Recipients)
	if err := m.store.SaveReport(ctx, rep); err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	if m.asyncDispatch {
		m.dispatches.Add(1)
		go func() {
			defer m.dispatches.Done()
			if err := m.disp.Dispatch(ctx, rep); err != nil && ctx.Err() == nil {
				m.logger.Error("report dispatch failed", logging.Error(err))
			}
		}()
		return nil
	}
	return m.disp.Dispatch(ctx, rep)
}

// writeArtifact keeps a local copy of the window CSV so shore data is
// recoverable even when every send fails.
func (m *Manager) writeArtifact(summary *aggregator.Summary) error {
	if m.cfg.Paths.ResultsDir == "" {
		return nil
	}
	name := m.builder.AttachmentName(summary)
	path := filepath.Join(m.cfg.Paths.ResultsDir, name)
	if err := os.WriteFile(path, []byte(m.builder.CSV(summary)), 0o644); err != nil {
		return err
	}
	m.logger.Info("window artifact written", logging.String(logging.FieldFile, path))
	return nil
}

func backoffWait(initial, ceiling time.Duration, failures int) time.Duration {
	if initial <= 0 {
		initial = 10 * time.Second
	}
	if ceiling < initial {
		ceiling = initial
	}
	wait := initial
	for i := 1; i < failures; i++ {
		wait *= 2
		if wait >= ceiling {
			return ceiling
		}
	}
	return wait
}
