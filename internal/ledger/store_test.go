package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"rapidkrill/internal/ledger"
	"rapidkrill/internal/testsupport"
)

func floatPtr(v float64) *float64 { return &v }

func TestRecordIsAppendOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	entry := &ledger.Entry{
		Path:    "/mnt/ek60/D20190812-T101433.raw",
		Outcome: ledger.OutcomeSucceeded,
		NASC:    floatPtr(152.4),
		Miles:   1.4,
	}
	if err := store.Record(ctx, entry); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	dup := &ledger.Entry{
		Path:    entry.Path,
		Outcome: ledger.OutcomeFailed,
		Reason:  "should never replace the original row",
	}
	if err := store.Record(ctx, dup); !errors.Is(err, ledger.ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}

	got, err := store.Get(ctx, entry.Path)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || got.Outcome != ledger.OutcomeSucceeded {
		t.Fatalf("original row must survive duplicate insert: %+v", got)
	}
	if got.NASC == nil || *got.NASC != 152.4 {
		t.Fatalf("NASC not round-tripped: %+v", got.NASC)
	}
}

func TestRecordFailedEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	err := store.Record(ctx, &ledger.Entry{
		Path:    "/mnt/ek60/bad.raw",
		Outcome: ledger.OutcomeFailed,
		Reason:  "unreadable datagram at offset 512",
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := store.Get(ctx, "/mnt/ek60/bad.raw")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Reason != "unreadable datagram at offset 512" {
		t.Fatalf("reason not persisted: %q", got.Reason)
	}
	if got.NASC != nil {
		t.Fatalf("failed entry should carry no index, got %v", *got.NASC)
	}
}

func TestProcessedPathsSeedsSkipSet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	paths := []string{"/w/a.raw", "/w/b.raw", "/w/c.raw"}
	for i, p := range paths {
		outcome := ledger.OutcomeSucceeded
		if i == 2 {
			outcome = ledger.OutcomeFailed
		}
		if err := store.Record(ctx, &ledger.Entry{Path: p, Outcome: outcome}); err != nil {
			t.Fatalf("Record %s: %v", p, err)
		}
	}

	seen, err := store.ProcessedPaths(ctx)
	if err != nil {
		t.Fatalf("ProcessedPaths failed: %v", err)
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 paths, got %d", len(seen))
	}
	for _, p := range paths {
		if _, ok := seen[p]; !ok {
			t.Fatalf("missing path %s", p)
		}
	}
}

func TestStatsCountsPerOutcome(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for i, outcome := range []ledger.Outcome{
		ledger.OutcomeSucceeded, ledger.OutcomeSucceeded, ledger.OutcomeFailed,
	} {
		entry := &ledger.Entry{Path: string(rune('a'+i)) + ".raw", Outcome: outcome}
		if err := store.Record(ctx, entry); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 3 || stats.Succeeded != 2 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestReportLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	start := time.Date(2019, 8, 12, 10, 0, 0, 0, time.UTC)
	report := &ledger.Report{
		ID:          "r-1",
		WindowStart: start,
		WindowEnd:   start.Add(time.Hour),
		Subject:     "RapidKrill report: RRS Test_2019-08-12T11:00:00Z",
		Body:        "body",
		Attachment:  "Time,NASC\n",
		Recipients:  []string{"shore@example.org", "backup@example.org"},
	}
	if err := store.SaveReport(ctx, report); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}

	pending, err := store.PendingReports(ctx)
	if err != nil {
		t.Fatalf("PendingReports failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "r-1" {
		t.Fatalf("unexpected pending set: %+v", pending)
	}
	if len(pending[0].Recipients) != 2 {
		t.Fatalf("recipients not round-tripped: %v", pending[0].Recipients)
	}

	for want := 1; want <= 2; want++ {
		attempts, err := store.BumpReportAttempt(ctx, "r-1")
		if err != nil {
			t.Fatalf("BumpReportAttempt failed: %v", err)
		}
		if attempts != want {
			t.Fatalf("expected %d attempts, got %d", want, attempts)
		}
	}

	if err := store.SetReportStatus(ctx, "r-1", ledger.ReportDelivered, ""); err != nil {
		t.Fatalf("SetReportStatus failed: %v", err)
	}

	got, err := store.GetReport(ctx, "r-1")
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if got.Status != ledger.ReportDelivered || got.Attempts != 2 {
		t.Fatalf("unexpected report: %+v", got)
	}

	// Terminal rows must not transition again.
	if err := store.SetReportStatus(ctx, "r-1", ledger.ReportFailed, "late failure"); err != nil {
		t.Fatalf("SetReportStatus failed: %v", err)
	}
	got, _ = store.GetReport(ctx, "r-1")
	if got.Status != ledger.ReportDelivered {
		t.Fatalf("delivered report must stay delivered, got %s", got.Status)
	}
}

func TestReportRecipientsWithCommasSurviveRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	recipients := []string{
		`"Krill Lab, BAS" <krill@bas.example>`,
		"shore@example.org",
	}
	report := &ledger.Report{
		ID:          "r-commas",
		WindowStart: time.Now().UTC().Add(-time.Hour),
		WindowEnd:   time.Now().UTC(),
		Subject:     "s",
		Body:        "b",
		Recipients:  recipients,
	}
	if err := store.SaveReport(ctx, report); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetReport(ctx, "r-commas")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Recipients) != 2 {
		t.Fatalf("display-name comma split the list: %v", got.Recipients)
	}
	if got.Recipients[0] != recipients[0] || got.Recipients[1] != recipients[1] {
		t.Fatalf("recipients corrupted: %v", got.Recipients)
	}
}

func TestRetryReportResetsFailedOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	report := &ledger.Report{
		ID:          "r-2",
		WindowStart: time.Now().UTC().Add(-time.Hour),
		WindowEnd:   time.Now().UTC(),
		Subject:     "s",
		Body:        "b",
		Recipients:  []string{"shore@example.org"},
	}
	if err := store.SaveReport(ctx, report); err != nil {
		t.Fatal(err)
	}

	retried, err := store.RetryReport(ctx, "r-2")
	if err != nil {
		t.Fatalf("RetryReport failed: %v", err)
	}
	if retried {
		t.Fatal("pending report should not be retryable")
	}

	if _, err := store.BumpReportAttempt(ctx, "r-2"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetReportStatus(ctx, "r-2", ledger.ReportFailed, "relay rejected recipient"); err != nil {
		t.Fatal(err)
	}

	retried, err = store.RetryReport(ctx, "r-2")
	if err != nil {
		t.Fatalf("RetryReport failed: %v", err)
	}
	if !retried {
		t.Fatal("failed report should be retryable")
	}
	got, _ := store.GetReport(ctx, "r-2")
	if got.Status != ledger.ReportPending || got.Attempts != 0 {
		t.Fatalf("retry should reset state: %+v", got)
	}
}

func TestReopenExistingDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	path := store.Path()
	store.Close()

	reopened, err := ledger.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	reopened.Close()
}
