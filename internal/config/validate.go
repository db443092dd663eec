package config

import (
	"fmt"
	"strings"

	"rapidkrill/internal/services"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.WatchDir, err = expandPath(c.Paths.WatchDir); err != nil {
		return err
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.ResultsDir, err = expandPath(c.Paths.ResultsDir); err != nil {
		return err
	}
	if c.Processing.CalibrationFile, err = expandPath(c.Processing.CalibrationFile); err != nil {
		return err
	}

	exts := make([]string, 0, len(c.Watch.IncludeExtensions))
	for _, ext := range c.Watch.IncludeExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		exts = []string{".raw"}
	}
	c.Watch.IncludeExtensions = exts

	recipients := make([]string, 0, len(c.Report.Recipients))
	for _, addr := range c.Report.Recipients {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	c.Report.Recipients = recipients
	c.Report.Platform = strings.TrimSpace(c.Report.Platform)
	c.Mail.APIKey = strings.TrimSpace(c.Mail.APIKey)
	c.Mail.BaseURL = strings.TrimRight(strings.TrimSpace(c.Mail.BaseURL), "/")
	return nil
}

// Validate checks invariants that make the pipeline unrunnable. Any failure
// here is a startup abort, not a recoverable condition.
func (c *Config) Validate() error {
	var problems []string

	if c.Watch.PollInterval <= 0 {
		problems = append(problems, "watch.poll_interval must be positive")
	}
	if c.Watch.StablePolls < 2 {
		problems = append(problems, "watch.stable_polls must be at least 2")
	}
	if c.Watch.MinStableSeconds < 0 {
		problems = append(problems, "watch.min_stable_seconds must not be negative")
	}
	if c.Watch.StatTimeout <= 0 {
		problems = append(problems, "watch.stat_timeout must be positive")
	}
	if c.Watch.BackoffInitial <= 0 || c.Watch.BackoffCeiling < c.Watch.BackoffInitial {
		problems = append(problems, "watch backoff must satisfy 0 < backoff_initial <= backoff_ceiling")
	}
	if c.Processing.Workers < 1 {
		problems = append(problems, "processing.workers must be at least 1")
	}
	if strings.TrimSpace(c.Processing.TransformBin) == "" {
		problems = append(problems, "processing.transform_bin is required")
	}
	if c.Processing.TransformTimeout <= 0 {
		problems = append(problems, "processing.transform_timeout must be positive")
	}
	if c.Processing.Gain < 0 {
		problems = append(problems, "processing.gain must not be negative")
	}
	if c.Processing.SoundSpeed < 0 {
		problems = append(problems, "processing.sound_speed must not be negative")
	}
	if c.Processing.Absorption < 0 {
		problems = append(problems, "processing.absorption must not be negative")
	}
	if c.Report.WindowMinutes <= 0 {
		problems = append(problems, "report.window_minutes must be positive")
	}
	if strings.TrimSpace(c.Report.Sender) == "" {
		problems = append(problems, "report.sender is required")
	}
	if c.Mail.MaxAttempts < 1 {
		problems = append(problems, "mail.max_attempts must be at least 1")
	}
	if c.Mail.BackoffInitial <= 0 || c.Mail.BackoffCeiling < c.Mail.BackoffInitial {
		problems = append(problems, "mail backoff must satisfy 0 < backoff_initial <= backoff_ceiling")
	}
	if c.Mail.RequestTimeout <= 0 {
		problems = append(problems, "mail.request_timeout must be positive")
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Bind) == "" {
		problems = append(problems, "metrics.bind is required when metrics are enabled")
	}

	if len(problems) > 0 {
		return services.Wrap(services.ErrConfiguration, "config", "validate",
			fmt.Sprintf("%d problem(s): %s", len(problems), strings.Join(problems, "; ")), nil)
	}
	return nil
}

// ValidateListen checks the additional requirements of listen mode: a watch
// directory and at least one report recipient, matching the original
// behavior of refusing to listen without a shore contact.
func (c *Config) ValidateListen() error {
	var problems []string
	if strings.TrimSpace(c.Paths.WatchDir) == "" {
		problems = append(problems, "paths.watch_dir is required for listen mode")
	}
	if len(c.Report.Recipients) == 0 {
		problems = append(problems, "report.recipients must name at least one address for listen mode")
	}
	if len(problems) > 0 {
		return services.Wrap(services.ErrConfiguration, "config", "validate listen",
			strings.Join(problems, "; "), nil)
	}
	return nil
}
