package fileutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rapidkrill/internal/services"
)

func TestStatTimeoutReturnsInfo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.raw")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := StatTimeout(context.Background(), path, time.Second)
	if err != nil {
		t.Fatalf("StatTimeout failed: %v", err)
	}
	if info.Size() != 4 {
		t.Fatalf("unexpected size %d", info.Size())
	}
}

func TestStatTimeoutPropagatesNotExist(t *testing.T) {
	_, err := StatTimeout(context.Background(), filepath.Join(t.TempDir(), "missing"), time.Second)
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestListDirTimeoutLists(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.raw", "b.raw"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := ListDirTimeout(context.Background(), dir, time.Second)
	if err != nil {
		t.Fatalf("ListDirTimeout failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestListDirTimeoutCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ListDirTimeout(ctx, t.TempDir(), time.Minute)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if services.IsTransient(err) {
		t.Fatalf("cancellation should not classify as transient: %v", err)
	}
}
