package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"rapidkrill/internal/calibration"
	"rapidkrill/internal/services"
)

// commandRunner abstracts process execution so tests can substitute output.
type commandRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execCommandRunner struct{}

func (execCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if tail := tailLines(stderr.String(), 5); tail != "" {
			return nil, fmt.Errorf("%w: %s", err, tail)
		}
		return nil, err
	}
	return out, nil
}

// ExecReader invokes the external DSP tool and decodes its JSON stdout.
type ExecReader struct {
	binary  string
	timeout time.Duration
	runner  commandRunner
}

// NewExecReader builds a Reader around the named binary. Each Read is
// bounded by timeout.
func NewExecReader(binary string, timeout time.Duration) *ExecReader {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &ExecReader{binary: binary, timeout: timeout, runner: execCommandRunner{}}
}

// Read runs the tool for one RAW file. Calibration parameters are passed on
// the command line; zero values are omitted so the tool falls back to the
// values embedded in the file.
func (r *ExecReader) Read(ctx context.Context, path string, cal calibration.Calibration) (*Sample, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := []string{"--json", "--file", path}
	if cal.Gain != 0 {
		args = append(args, "--gain", formatFloat(cal.Gain))
	}
	if cal.SoundSpeed != 0 {
		args = append(args, "--sound-speed", formatFloat(cal.SoundSpeed))
	}
	if cal.Absorption != 0 {
		args = append(args, "--absorption", formatFloat(cal.Absorption))
	}

	out, err := r.runner.Output(runCtx, r.binary, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrFile, "transform", "read", path, err)
	}

	var sample Sample
	if err := json.Unmarshal(bytes.TrimSpace(out), &sample); err != nil {
		return nil, services.Wrap(services.ErrFile, "transform", "decode output", path, err)
	}
	if sample.File == "" {
		sample.File = path
	}
	if sample.Time.IsZero() {
		sample.Time = time.Now().UTC()
	}
	return &sample, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func tailLines(text string, n int) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
