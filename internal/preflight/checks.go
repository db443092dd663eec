package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"

	"rapidkrill/internal/calibration"
	"rapidkrill/internal/config"
	"rapidkrill/internal/fileutil"
)

// CheckWatchDirAccess verifies the watched share is mounted and readable.
// The stat is bounded: a hung CIFS mount must fail the check, not wedge it.
func CheckWatchDirAccess(ctx context.Context, cfg *config.Config) Result {
	const name = "Watch directory"
	path := cfg.Paths.WatchDir
	if path == "" {
		return Result{Name: name, Detail: "watch_dir not configured"}
	}

	timeout := time.Duration(cfg.Watch.StatTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	info, err := fileutil.StatTimeout(ctx, path, timeout)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist, is the share mounted?)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	// Read-only is enough: files are never modified on the share.
	if err := unix.Access(path, unix.R_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read ok)", path)}
}

// CheckDirectoryAccess verifies that a local directory exists and is
// readable and writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies the state filesystem has headroom for the ledger
// and result artifacts.
func CheckFreeSpace(path string, minMiB int) Result {
	const name = "Free disk space"
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	freeMiB := stat.Bavail * uint64(stat.Bsize) / (1024 * 1024)
	if minMiB > 0 && freeMiB < uint64(minMiB) {
		return Result{Name: name, Detail: fmt.Sprintf("%d MiB free, need %d MiB", freeMiB, minMiB)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d MiB free", freeMiB)}
}

// CheckTransformBinary verifies the DSP tool is on PATH or at the configured
// location.
func CheckTransformBinary(binary string) Result {
	const name = "Transform binary"
	if binary == "" {
		return Result{Name: name, Detail: "transform_bin not configured"}
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", binary, err)}
	}
	return Result{Name: name, Passed: true, Detail: resolved}
}

// CheckCalibrationFile verifies a configured calibration file parses.
func CheckCalibrationFile(path string) Result {
	const name = "Calibration file"
	cal, err := calibration.LoadFile(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: cal.String()}
}

// CheckMailRelay reports how reports will leave the ship. No key is not a
// failure: interactive runs work without credentials.
func CheckMailRelay(cfg *config.Config) Result {
	const name = "Mail relay"
	if cfg.Mail.APIKey == "" {
		return Result{Name: name, Passed: true, Detail: "not configured (reports stay local)"}
	}
	if len(cfg.Report.Recipients) == 0 {
		return Result{Name: name, Detail: "api key set but no recipients configured"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d recipient(s) via %s", len(cfg.Report.Recipients), cfg.Mail.BaseURL)}
}
