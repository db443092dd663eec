package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rapidkrill/internal/services"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, path, exists, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if path == "" {
		t.Fatal("expected resolved path")
	}
	if cfg.Watch.PollInterval != 10 || cfg.Watch.StablePolls != 3 {
		t.Fatalf("defaults not applied: %+v", cfg.Watch)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
watch_dir = "` + dir + `"

[watch]
include_extensions = ["RAW", ".Idx"]

[report]
recipients = [" science@shore.example ", ""]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if got := cfg.Watch.IncludeExtensions; len(got) != 2 || got[0] != ".raw" || got[1] != ".idx" {
		t.Fatalf("extensions not normalized: %v", got)
	}
	if len(cfg.Report.Recipients) != 1 || cfg.Report.Recipients[0] != "science@shore.example" {
		t.Fatalf("recipients not normalized: %v", cfg.Report.Recipients)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		expect string
	}{
		{"poll interval", func(c *Config) { c.Watch.PollInterval = 0 }, "poll_interval"},
		{"stable polls", func(c *Config) { c.Watch.StablePolls = 1 }, "stable_polls"},
		{"workers", func(c *Config) { c.Processing.Workers = 0 }, "workers"},
		{"transform bin", func(c *Config) { c.Processing.TransformBin = " " }, "transform_bin"},
		{"window", func(c *Config) { c.Report.WindowMinutes = 0 }, "window_minutes"},
		{"attempts", func(c *Config) { c.Mail.MaxAttempts = 0 }, "max_attempts"},
		{"backoff order", func(c *Config) { c.Mail.BackoffCeiling = 1; c.Mail.BackoffInitial = 10 }, "backoff"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.expect) {
				t.Fatalf("error %q does not mention %q", err.Error(), tc.expect)
			}
		})
	}
}

func TestValidateListenRequiresRecipient(t *testing.T) {
	cfg := Default()
	cfg.Paths.WatchDir = t.TempDir()
	cfg.Report.Recipients = nil

	err := cfg.ValidateListen()
	if err == nil {
		t.Fatal("expected listen validation to fail without recipients")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	cfg.Report.Recipients = []string{"shore@example.org"}
	if err := cfg.ValidateListen(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load of sample failed: %v", err)
	}
	if !exists {
		t.Fatal("sample file should exist")
	}
	if cfg.Mail.MaxAttempts != 5 {
		t.Fatalf("sample values not applied: %+v", cfg.Mail)
	}
}
