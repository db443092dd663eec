package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"rapidkrill/internal/aggregator"
	"rapidkrill/internal/calibration"
	"rapidkrill/internal/config"
	"rapidkrill/internal/detector"
	"rapidkrill/internal/ledger"
	"rapidkrill/internal/logging"
	"rapidkrill/internal/mailer"
	"rapidkrill/internal/services"
	"rapidkrill/internal/testsupport"
	"rapidkrill/internal/transform"
)

type stubReader struct {
	mu    sync.Mutex
	nasc  float64
	fail  map[string]bool
	calls int
}

func (r *stubReader) Read(ctx context.Context, path string, cal calibration.Calibration) (*transform.Sample, error) {
	r.mu.Lock()
	r.calls++
	failed := r.fail[filepath.Base(path)]
	r.mu.Unlock()
	if failed {
		return nil, errors.New("unreadable datagram")
	}
	return &transform.Sample{
		File:  path,
		Time:  time.Now().UTC(),
		NASC:  r.nasc,
		Miles: 1.0,
	}, nil
}

type captureMailer struct {
	sent []mailer.Message
}

func (m *captureMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

func newManager(t *testing.T, cfg *config.Config, mail mailer.Service, reader transform.Reader) (*Manager, *ledger.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	mgr, err := New(cfg, store, mail, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	mgr.SetReader(reader)
	return mgr, store
}

func TestRunBatchProcessesDirectoryAndReports(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	for _, name := range []string{"a.raw", "b.raw", "c.raw", "notes.txt"} {
		testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, name), 64)
	}

	mail := &captureMailer{}
	reader := &stubReader{nasc: 100, fail: map[string]bool{"c.raw": true}}
	mgr, store := newManager(t, cfg, mail, reader)

	var sealed *aggregator.Summary
	mgr.SetWindowHook(func(s *aggregator.Summary) { sealed = s })

	if err := mgr.RunBatch(context.Background(), cfg.Paths.WatchDir); err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.Succeeded != 2 || stats.Failed != 1 {
		t.Fatalf("unexpected ledger stats: %+v", stats)
	}

	if sealed == nil || sealed.Files != 2 || sealed.Failures != 1 {
		t.Fatalf("unexpected window summary: %+v", sealed)
	}
	if len(mail.sent) != 1 {
		t.Fatalf("expected one report sent, got %d", len(mail.sent))
	}
	if mail.sent[0].Attachment == "" {
		t.Fatal("report must carry the CSV attachment")
	}

	// The artifact lands in the results directory regardless of delivery.
	artifacts, err := os.ReadDir(cfg.Paths.ResultsDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("expected one artifact, got %d", len(artifacts))
	}
}

func TestRunBatchIsIdempotentAcrossRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, "a.raw"), 64)

	mail := &captureMailer{}
	reader := &stubReader{nasc: 50}
	mgr, _ := newManager(t, cfg, mail, reader)

	if err := mgr.RunBatch(context.Background(), cfg.Paths.WatchDir); err != nil {
		t.Fatal(err)
	}
	if err := mgr.RunBatch(context.Background(), cfg.Paths.WatchDir); err != nil {
		t.Fatal(err)
	}

	if reader.calls != 1 {
		t.Fatalf("recorded file reprocessed: %d transform calls", reader.calls)
	}
	if len(mail.sent) != 1 {
		t.Fatalf("empty second window must not report, got %d sends", len(mail.sent))
	}
}

func TestRunListenProcessesArrivingFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Watch.PollInterval = 0
	cfg.Watch.StablePolls = 2
	cfg.Watch.MinStableSeconds = 0
	cfg.Report.WindowMinutes = 60
	if err := os.MkdirAll(cfg.Paths.WatchDir, 0o755); err != nil {
		t.Fatal(err)
	}
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, "live.raw"), 64)

	mail := &captureMailer{}
	reader := &stubReader{nasc: 10}
	mgr, store := newManager(t, cfg, mail, reader)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := mgr.RunListen(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	entry, err := store.Get(context.Background(), filepath.Join(cfg.Paths.WatchDir, "live.raw"))
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || entry.Outcome != ledger.OutcomeSucceeded {
		t.Fatalf("file not processed by listen loop: %+v", entry)
	}
	if reader.calls != 1 {
		t.Fatalf("file must be processed exactly once, got %d calls", reader.calls)
	}
}

func TestRunListenResumesPendingReports(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.WatchDir, 0o755); err != nil {
		t.Fatal(err)
	}

	mail := &captureMailer{}
	mgr, store := newManager(t, cfg, mail, &stubReader{})

	// A report left pending by a crashed run.
	pending := &ledger.Report{
		ID:          "stale-1",
		WindowStart: time.Now().UTC().Add(-2 * time.Hour),
		WindowEnd:   time.Now().UTC().Add(-time.Hour),
		Subject:     "RapidKrill report: RRS Test_old",
		Body:        "body",
		Recipients:  []string{"shore@example.org"},
	}
	if err := store.SaveReport(context.Background(), pending); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = mgr.RunListen(ctx)

	got, err := store.GetReport(context.Background(), "stale-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != ledger.ReportDelivered {
		t.Fatalf("pending report not resumed: %+v", got)
	}
	if len(mail.sent) != 1 {
		t.Fatalf("expected one resumed send, got %d", len(mail.sent))
	}
}

func TestDrainWithWorkerPool(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(4))
	for _, name := range []string{"a.raw", "b.raw", "c.raw", "d.raw", "e.raw", "f.raw"} {
		testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, name), 64)
	}

	mail := &captureMailer{}
	reader := &stubReader{nasc: 20}
	mgr, store := newManager(t, cfg, mail, reader)

	if err := mgr.RunBatch(context.Background(), cfg.Paths.WatchDir); err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Succeeded != 6 {
		t.Fatalf("worker pool lost files: %+v", stats)
	}
}

func TestDrainReturnsWhenWorkersHitStorageErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(2))
	mgr, store := newManager(t, cfg, &captureMailer{}, &stubReader{})
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	ready := make([]detector.Ready, 10)
	for i := range ready {
		ready[i] = detector.Ready{Path: filepath.Join(cfg.Paths.WatchDir, fmt.Sprintf("f%d.raw", i))}
	}

	done := make(chan error, 1)
	go func() { done <- mgr.drain(context.Background(), ready) }()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected a storage error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("drain did not return after every worker failed")
	}
}

type outageMailer struct {
	mu    sync.Mutex
	calls int
}

func (m *outageMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return services.Wrap(services.ErrTransient, "mailer", "send", "relay outage", nil)
}

func TestListenShutdownNotDelayedByDispatchBackoff(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Watch.PollInterval = 0
	cfg.Watch.StablePolls = 2
	cfg.Watch.MinStableSeconds = 0
	cfg.Report.WindowMinutes = 0
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, "live.raw"), 64)

	mail := &outageMailer{}
	mgr, store := newManager(t, cfg, mail, &stubReader{nasc: 10})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	err := mgr.RunListen(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("shutdown waited out the relay backoff: %v", elapsed)
	}

	// The report stays pending with its attempt count persisted; the next
	// run resumes it.
	pending, err := store.PendingReports(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one pending report, got %d", len(pending))
	}
	if pending[0].Attempts < 1 {
		t.Fatalf("send attempt not persisted: %+v", pending[0])
	}
}

func TestBackoffWaitWidensToCeiling(t *testing.T) {
	initial := 10 * time.Second
	ceiling := 300 * time.Second
	expect := map[int]time.Duration{
		1: 10 * time.Second,
		2: 20 * time.Second,
		3: 40 * time.Second,
		6: 300 * time.Second,
		9: 300 * time.Second,
	}
	for failures, want := range expect {
		if got := backoffWait(initial, ceiling, failures); got != want {
			t.Fatalf("backoffWait(%d) = %v, want %v", failures, got, want)
		}
	}
}
