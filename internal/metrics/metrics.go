// Package metrics provides Prometheus metrics for the batch run.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the batch engine.
type Metrics struct {
	// Row outcome metrics
	RowsSucceeded *prometheus.CounterVec
	RowsFailed    *prometheus.CounterVec
	RowsSkipped   *prometheus.CounterVec

	// Timing metrics
	SynthesisDuration *prometheus.HistogramVec
	UploadDuration    *prometheus.HistogramVec
	CellWriteDuration *prometheus.HistogramVec

	// Size metrics
	AudioBytes *prometheus.HistogramVec

	// Concurrency metrics
	InFlightSynthesis prometheus.Gauge
	InFlightUploads   prometheus.Gauge
	QueueDepth        prometheus.Gauge

	// Error metrics
	RetryAttempts *prometheus.CounterVec
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics.
// Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "sheetvox"
	}

	m := &Metrics{
		RowsSucceeded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_succeeded_total",
				Help:      "Total number of rows fully processed",
			},
			[]string{"sheet"},
		),
		RowsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_failed_total",
				Help:      "Total number of rows that reached a failed terminal state",
			},
			[]string{"sheet"},
		),
		RowsSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_skipped_total",
				Help:      "Total number of rows skipped via checkpoint",
			},
			[]string{"sheet"},
		),
		SynthesisDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "synthesis_duration_seconds",
				Help:      "Time to synthesize one row's audio",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
			},
			[]string{"sheet"},
		),
		UploadDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upload_duration_seconds",
				Help:      "Time to upload one row's audio to storage",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"sheet"},
		),
		CellWriteDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cell_write_duration_seconds",
				Help:      "Time to write the result link back to the sheet",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"sheet"},
		),
		AudioBytes: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "audio_bytes",
				Help:      "Size of synthesized audio payloads in bytes",
				Buckets:   prometheus.ExponentialBuckets(1024, 2, 15), // 1KB to ~32MB
			},
			[]string{"sheet"},
		),
		InFlightSynthesis: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_synthesis",
				Help:      "Current number of outstanding TTS calls",
			},
		),
		InFlightUploads: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_uploads",
				Help:      "Current number of outstanding storage uploads",
			},
		),
		QueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Current number of rows waiting for a worker",
			},
		),
		RetryAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of retried external calls",
			},
			[]string{"sheet", "operation"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// IncRowsSucceeded increments the succeeded rows counter.
func (m *Metrics) IncRowsSucceeded(sheet string) {
	m.RowsSucceeded.WithLabelValues(sheet).Inc()
}

// IncRowsFailed increments the failed rows counter.
func (m *Metrics) IncRowsFailed(sheet string) {
	m.RowsFailed.WithLabelValues(sheet).Inc()
}

// IncRowsSkipped increments the skipped rows counter.
func (m *Metrics) IncRowsSkipped(sheet string) {
	m.RowsSkipped.WithLabelValues(sheet).Inc()
}

// ObserveSynthesisDuration records one synthesis call's duration.
func (m *Metrics) ObserveSynthesisDuration(sheet string, seconds float64) {
	m.SynthesisDuration.WithLabelValues(sheet).Observe(seconds)
}

// ObserveUploadDuration records one upload's duration.
func (m *Metrics) ObserveUploadDuration(sheet string, seconds float64) {
	m.UploadDuration.WithLabelValues(sheet).Observe(seconds)
}

// ObserveCellWriteDuration records one cell write's duration.
func (m *Metrics) ObserveCellWriteDuration(sheet string, seconds float64) {
	m.CellWriteDuration.WithLabelValues(sheet).Observe(seconds)
}

// ObserveAudioBytes records one audio payload's size.
func (m *Metrics) ObserveAudioBytes(sheet string, bytes float64) {
	m.AudioBytes.WithLabelValues(sheet).Observe(bytes)
}

// IncRetryAttempts increments the retried calls counter.
func (m *Metrics) IncRetryAttempts(sheet, operation string) {
	m.RetryAttempts.WithLabelValues(sheet, operation).Inc()
}
