package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestConsoleHandlerPromotesComponent(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger = NewComponentLogger(logger, "detector")
	logger.Info("file ready", String(FieldFile, "a.raw"), Int("stable_polls", 3))

	line := buf.String()
	if !strings.Contains(line, "[detector]") {
		t.Fatalf("expected component subject, got %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should not appear in key/value tail: %q", line)
	}
	if !strings.Contains(line, "file=a.raw") || !strings.Contains(line, "stable_polls=3") {
		t.Fatalf("missing attrs in %q", line)
	}
}

func TestConsoleHandlerFlattensGroups(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.WithGroup("window").Info("sealed", Int("count", 7))

	if !strings.Contains(buf.String(), "window.count=7") {
		t.Fatalf("expected flattened group key, got %q", buf.String())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger should never be enabled")
	}
}
