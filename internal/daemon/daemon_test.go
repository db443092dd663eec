package daemon_test

import (
	"context"
	"os"
	"testing"
	"time"

	"rapidkrill/internal/config"
	"rapidkrill/internal/daemon"
	"rapidkrill/internal/logging"
	"rapidkrill/internal/mailer"
	"rapidkrill/internal/pipeline"
	"rapidkrill/internal/testsupport"
)

type dropMailer struct{}

func (dropMailer) Send(ctx context.Context, msg mailer.Message) error { return nil }

func newDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.WatchDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return newDaemonWithConfig(t, cfg)
}

func newDaemonWithConfig(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	mgr, err := pipeline.New(cfg, store, dropMailer{}, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	d, err := daemon.New(cfg, store, mgr, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestStartStopLifecycle(t *testing.T) {
	d := newDaemon(t)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !d.Running() {
		t.Fatal("daemon should report running")
	}
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("second Start must fail")
	}

	d.Stop()
	if d.Running() {
		t.Fatal("daemon should report stopped")
	}
}

func TestSecondInstanceRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.WatchDir, 0o755); err != nil {
		t.Fatal(err)
	}

	first := newDaemonWithConfig(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer first.Stop()

	second := newDaemonWithConfig(t, cfg)
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance over the same state dir must be rejected")
	}
}

func TestWaitReturnsNilOnCancellation(t *testing.T) {
	d := newDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	if err := d.Wait(); err != nil {
		t.Fatalf("cancelled shutdown must be clean, got %v", err)
	}
	d.Stop()
}
