package services

import (
	"errors"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("connection reset")
	err := Wrap(ErrTransient, "mailer", "send", "relay unreachable", base)

	if !IsTransient(err) {
		t.Fatal("expected transient classification")
	}
	if IsPermanent(err) {
		t.Fatal("did not expect permanent classification")
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped cause to survive")
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := Wrap(nil, "detector", "poll", "", nil)
	if !IsTransient(err) {
		t.Fatalf("nil marker should default to transient, got %v", err)
	}
}

func TestWrapDetailComposition(t *testing.T) {
	err := Wrap(ErrFile, "processor", "read raw", "truncated header", nil)
	want := "file failure: processor: read raw: truncated header"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestClassifiersRejectUnrelatedErrors(t *testing.T) {
	err := errors.New("plain")
	if IsTransient(err) || IsPermanent(err) || IsFileFailure(err) {
		t.Fatal("plain error should not classify")
	}
}
