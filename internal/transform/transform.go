// Package transform wraps the external DSP capability that converts a RAW
// echosounder file into a krill abundance estimate. The numerical work
// (calibration, de-noising, swarm detection) lives in a separate tool; this
// package only runs it and decodes its output.
package transform

import (
	"context"
	"time"

	"rapidkrill/internal/calibration"
)

// Sample is the decoded output of the transform for one RAW file.
type Sample struct {
	File      string    `json:"file"`
	Time      time.Time `json:"time"`
	NASC      float64   `json:"nasc"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Miles     float64   `json:"miles"`
	SeabedM   *float64  `json:"seabed_m,omitempty"`
	// Skipped is set when the tool declines to process (platform not in
	// transit, transect shorter than one nautical mile). Not an error.
	Skipped    bool   `json:"skipped"`
	SkipReason string `json:"skip_reason,omitempty"`
}

// HasPosition reports whether the sample carries a GPS fix.
func (s *Sample) HasPosition() bool {
	return s != nil && s.Latitude != nil && s.Longitude != nil
}

// Reader is the external read(path, calibration) capability. Any error it
// returns is a failure for that file only, never for the pipeline.
type Reader interface {
	Read(ctx context.Context, path string, cal calibration.Calibration) (*Sample, error)
}
