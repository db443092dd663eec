// Package aggregator folds per-file krill samples into fixed reporting
// windows. A window accumulates in memory only; durability for individual
// files lives in the ledger, so a crash costs at most the current window's
// roll-up, never a processed file.
package aggregator

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"rapidkrill/internal/logging"
	"rapidkrill/internal/transform"
)

// Row is one folded sample retained for the window report.
type Row struct {
	File      string
	Time      time.Time
	NASC      float64
	Latitude  *float64
	Longitude *float64
	Miles     float64
	SeabedM   *float64
}

// Fix is a GPS position on the window's track.
type Fix struct {
	Latitude  float64
	Longitude float64
	Time      time.Time
}

// Summary is a sealed window ready for reporting.
type Summary struct {
	WindowStart time.Time
	WindowEnd   time.Time
	Files       int
	Failures    int
	Skipped     int
	MeanNASC    float64
	StdDevNASC  float64
	TotalMiles  float64
	FirstFix    *Fix
	LastFix     *Fix
	Rows        []Row
}

// Aggregator accumulates one open window at a time. Safe for concurrent use.
type Aggregator struct {
	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time

	windowStart time.Time
	rows        []Row
	count       int
	mean        float64
	m2          float64
	miles       float64
	failures    int
	skipped     int
	firstFix    *Fix
	lastFix     *Fix
}

// New opens the first window immediately.
func New(logger *slog.Logger) *Aggregator {
	a := &Aggregator{
		logger: logging.NewComponentLogger(logger, "aggregator"),
		now:    time.Now,
	}
	a.windowStart = a.now().UTC()
	return a
}

// Fold adds one successful sample to the open window. The running mean uses
// Welford's update so long windows stay numerically stable.
func (a *Aggregator) Fold(sample *transform.Sample) {
	if sample == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.count++
	delta := sample.NASC - a.mean
	a.mean += delta / float64(a.count)
	a.m2 += delta * (sample.NASC - a.mean)
	a.miles += sample.Miles

	a.rows = append(a.rows, Row{
		File:      sample.File,
		Time:      sample.Time,
		NASC:      sample.NASC,
		Latitude:  sample.Latitude,
		Longitude: sample.Longitude,
		Miles:     sample.Miles,
		SeabedM:   sample.SeabedM,
	})

	if sample.HasPosition() {
		// Fold order is not arrival order under the worker pool, so the
		// track endpoints are chosen by sample time, not call order.
		fix := &Fix{Latitude: *sample.Latitude, Longitude: *sample.Longitude, Time: sample.Time}
		if a.firstFix == nil || fix.Time.Before(a.firstFix.Time) {
			a.firstFix = fix
		}
		if a.lastFix == nil || fix.Time.After(a.lastFix.Time) {
			a.lastFix = fix
		}
	}

	a.logger.Debug("sample folded into window",
		logging.String(logging.FieldFile, sample.File),
		logging.Float64("nasc", sample.NASC),
		logging.Int("window_files", a.count))
}

// NoteFailure counts a per-file failure against the open window.
func (a *Aggregator) NoteFailure() {
	a.mu.Lock()
	a.failures++
	a.mu.Unlock()
}

// NoteSkipped counts a file the transform declined to process.
func (a *Aggregator) NoteSkipped() {
	a.mu.Lock()
	a.skipped++
	a.mu.Unlock()
}

// Count returns the number of samples folded into the open window.
func (a *Aggregator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// CloseWindow seals the open window and opens the next one. It returns nil
// when nothing happened during the window, so quiet hours do not produce
// empty reports.
func (a *Aggregator) CloseWindow() *Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	end := a.now().UTC()
	if a.count == 0 && a.failures == 0 && a.skipped == 0 {
		a.logger.Debug("window closed with no activity",
			logging.Time(logging.FieldWindow, a.windowStart))
		a.windowStart = end
		return nil
	}

	sort.Slice(a.rows, func(i, j int) bool {
		if !a.rows[i].Time.Equal(a.rows[j].Time) {
			return a.rows[i].Time.Before(a.rows[j].Time)
		}
		return a.rows[i].File < a.rows[j].File
	})

	summary := &Summary{
		WindowStart: a.windowStart,
		WindowEnd:   end,
		Files:       a.count,
		Failures:    a.failures,
		Skipped:     a.skipped,
		MeanNASC:    a.mean,
		TotalMiles:  a.miles,
		FirstFix:    a.firstFix,
		LastFix:     a.lastFix,
		Rows:        a.rows,
	}
	if a.count > 1 {
		summary.StdDevNASC = math.Sqrt(a.m2 / float64(a.count-1))
	}

	a.logger.Info("window sealed",
		logging.Time(logging.FieldWindow, a.windowStart),
		logging.Int("files", a.count),
		logging.Int("failures", a.failures),
		logging.Float64("mean_nasc", a.mean))

	a.windowStart = end
	a.rows = nil
	a.count = 0
	a.mean = 0
	a.m2 = 0
	a.miles = 0
	a.failures = 0
	a.skipped = 0
	a.firstFix = nil
	a.lastFix = nil

	return summary
}
