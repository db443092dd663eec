// Package daemon runs the listen pipeline as a single-instance background
// service: one flock-guarded loop per state directory, with the optional
// metrics endpoint tied to its lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"rapidkrill/internal/config"
	"rapidkrill/internal/ledger"
	"rapidkrill/internal/logging"
	"rapidkrill/internal/metrics"
	"rapidkrill/internal/pipeline"
)

// Daemon coordinates the listen loop and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *ledger.Store
	mgr    *pipeline.Manager

	lockPath string
	lock     *flock.Flock

	metricsSrv *metrics.Server

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan error
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *ledger.Store, mgr *pipeline.Manager, m *metrics.Metrics, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || mgr == nil {
		return nil, errors.New("daemon requires config, store, and pipeline manager")
	}

	lockPath := filepath.Join(cfg.Paths.StateDir, "rapidkrill.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		mgr:      mgr,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	if cfg.Metrics.Enabled {
		d.metricsSrv = metrics.NewServer(cfg.Metrics.Bind, m, logger)
	}
	return d, nil
}

// Start acquires the instance lock and launches the listen loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another rapidkrill instance is already running")
	}

	if d.metricsSrv != nil {
		if err := d.metricsSrv.Start(); err != nil {
			_ = d.lock.Unlock()
			return fmt.Errorf("start metrics endpoint: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan error, 1)
	go func() {
		d.done <- d.mgr.RunListen(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Wait blocks until the listen loop exits and returns its error. Context
// cancellation is the normal shutdown path and is reported as nil.
func (d *Daemon) Wait() error {
	if d.done == nil {
		return nil
	}
	err := <-d.done
	d.done = nil
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Stop cancels the loop, waits for it to exit, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	_ = d.Wait()

	if d.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsSrv.Stop(shutdownCtx); err != nil {
			d.logger.Warn("metrics endpoint shutdown failed", logging.Error(err))
		}
		cancel()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release instance lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes the ledger.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// LockPath returns the instance lock file location.
func (d *Daemon) LockPath() string {
	return d.lockPath
}

// Running reports whether the listen loop is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}
