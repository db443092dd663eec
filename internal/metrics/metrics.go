// Package metrics exposes pipeline counters over an optional Prometheus
// endpoint. A nil *Metrics is a valid no-op receiver so interactive runs can
// skip the endpoint entirely.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the instrument set for one pipeline instance. Instruments
// register on a private registry so tests and repeated constructions never
// collide on the process-global default.
type Metrics struct {
	registry *prometheus.Registry

	filesProcessed  prometheus.Counter
	filesFailed     prometheus.Counter
	filesSkipped    prometheus.Counter
	pollErrors      prometheus.Counter
	trackedFiles    prometheus.Gauge
	processDuration prometheus.Histogram

	windowsSealed    prometheus.Counter
	reportsDelivered prometheus.Counter
	reportsFailed    prometheus.Counter
	reportAttempts   prometheus.Counter
}

// New builds a metric set on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.filesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rapidkrill_files_processed_total",
		Help: "RAW files processed successfully.",
	})
	m.filesFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rapidkrill_files_failed_total",
		Help: "RAW files that failed to process.",
	})
	m.filesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rapidkrill_files_skipped_total",
		Help: "RAW files the transform declined to process.",
	})
	m.pollErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rapidkrill_poll_errors_total",
		Help: "Watch directory polls that failed.",
	})
	m.trackedFiles = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rapidkrill_tracked_files",
		Help: "Files currently under stability observation.",
	})
	m.processDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rapidkrill_process_duration_seconds",
		Help:    "Wall time to process one RAW file.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
	m.windowsSealed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rapidkrill_windows_sealed_total",
		Help: "Aggregation windows sealed into reports.",
	})
	m.reportsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rapidkrill_reports_delivered_total",
		Help: "Reports accepted by the mail relay.",
	})
	m.reportsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rapidkrill_reports_failed_total",
		Help: "Reports that reached a terminal failed state.",
	})
	m.reportAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rapidkrill_report_attempts_total",
		Help: "Individual report send attempts.",
	})

	m.registry.MustRegister(
		m.filesProcessed, m.filesFailed, m.filesSkipped,
		m.pollErrors, m.trackedFiles, m.processDuration,
		m.windowsSealed, m.reportsDelivered, m.reportsFailed, m.reportAttempts,
	)
	return m
}

// Registry exposes the underlying registry for the HTTP endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) FileProcessed(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.filesProcessed.Inc()
	m.processDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) FileFailed() {
	if m == nil {
		return
	}
	m.filesFailed.Inc()
}

func (m *Metrics) FileSkipped() {
	if m == nil {
		return
	}
	m.filesSkipped.Inc()
}

func (m *Metrics) PollError() {
	if m == nil {
		return
	}
	m.pollErrors.Inc()
}

func (m *Metrics) SetTrackedFiles(n int) {
	if m == nil {
		return
	}
	m.trackedFiles.Set(float64(n))
}

func (m *Metrics) WindowSealed() {
	if m == nil {
		return
	}
	m.windowsSealed.Inc()
}

func (m *Metrics) ReportDelivered() {
	if m == nil {
		return
	}
	m.reportsDelivered.Inc()
}

func (m *Metrics) ReportFailed() {
	if m == nil {
		return
	}
	m.reportsFailed.Inc()
}

func (m *Metrics) ReportAttempt() {
	if m == nil {
		return
	}
	m.reportAttempts.Inc()
}
