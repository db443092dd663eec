package config

// Default returns the baseline configuration before any file is applied.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchDir:   "",
			StateDir:   "~/.local/share/rapidkrill",
			LogDir:     "~/.local/share/rapidkrill/logs",
			ResultsDir: "~/.local/share/rapidkrill/results",
		},
		Watch: Watch{
			PollInterval:      10,
			StablePolls:       3,
			MinStableSeconds:  20,
			StatTimeout:       15,
			BackoffInitial:    10,
			BackoffCeiling:    300,
			MinFreeSpaceMiB:   64,
			IncludeExtensions: []string{".raw"},
		},
		Processing: Processing{
			TransformBin:     "rapidkrill-dsp",
			TransformTimeout: 600,
			Workers:          1,
		},
		Report: Report{
			Platform:      "Unknown",
			Sender:        "rapidkrill@bas.ac.uk",
			WindowMinutes: 60,
		},
		Mail: Mail{
			BaseURL:        "https://api.sendgrid.com",
			RequestTimeout: 30,
			MaxAttempts:    5,
			BackoffInitial: 30,
			BackoffCeiling: 900,
		},
		Metrics: Metrics{
			Enabled: false,
			Bind:    "127.0.0.1:9464",
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
