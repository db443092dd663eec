package preflight

import (
	"context"

	"rapidkrill/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckWatchDirAccess(ctx, cfg),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Results directory", cfg.Paths.ResultsDir),
		CheckFreeSpace(cfg.Paths.StateDir, cfg.Watch.MinFreeSpaceMiB),
		CheckTransformBinary(cfg.Processing.TransformBin),
	}

	if cfg.Processing.CalibrationFile != "" {
		results = append(results, CheckCalibrationFile(cfg.Processing.CalibrationFile))
	}
	results = append(results, CheckMailRelay(cfg))

	return results
}

// Failed reports whether any check in the set did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
