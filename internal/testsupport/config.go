// Package testsupport provides shared helpers for package tests: temp-dir
// configs, ledger stores, and watched-file fixtures.
package testsupport

import (
	"path/filepath"
	"testing"

	"rapidkrill/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WatchDir = filepath.Join(base, "watch")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.ResultsDir = filepath.Join(base, "results")
	cfg.Report.Platform = "RRS Test"
	cfg.Report.Recipients = []string{"shore@example.org"}

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithRecipients overrides the report recipient list.
func WithRecipients(addrs ...string) ConfigOption {
	return func(c *config.Config) {
		c.Report.Recipients = addrs
	}
}

// WithWorkers sets the processing worker count.
func WithWorkers(n int) ConfigOption {
	return func(c *config.Config) {
		c.Processing.Workers = n
	}
}
