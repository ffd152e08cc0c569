// Package metrics exposes Prometheus collectors for the conversion server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels recorded for each conversion.
const (
	OutcomeSuccess     = "success"
	OutcomeUnavailable = "tool_unavailable"
	OutcomeToolMissing = "tool_not_found"
	OutcomeTimeout     = "timeout"
	OutcomeMalformed   = "malformed_input"
	OutcomeNoOutput    = "no_output"
	OutcomeReadError   = "read_error"
	OutcomeBusy        = "busy"
	OutcomeFailed      = "failed"
)

// Metrics groups the collectors used across the server.
type Metrics struct {
	conversions     *prometheus.CounterVec
	duration        prometheus.Histogram
	inFlight        prometheus.Gauge
	uploadBytes     prometheus.Histogram
	rejectedUploads *prometheus.CounterVec
	janitorRemovals prometheus.Counter
	janitorSweeps   prometheus.Counter
}

// New registers the collectors with reg. Tests should pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "musescore",
			Name:      "conversions_total",
			Help:      "MIDI to MusicXML conversions by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "musescore",
			Name:      "conversion_duration_seconds",
			Help:      "Wall-clock time spent inside the MuseScore process.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "musescore",
			Name:      "conversions_in_flight",
			Help:      "Conversions currently holding a worker slot.",
		}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "musescore",
			Name:      "upload_size_bytes",
			Help:      "Size of accepted MIDI uploads.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		rejectedUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "musescore",
			Name:      "uploads_rejected_total",
			Help:      "Uploads rejected before conversion, by reason.",
		}, []string{"reason"}),
		janitorRemovals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "musescore",
			Subsystem: "janitor",
			Name:      "files_removed_total",
			Help:      "Stale scratch files removed by the janitor.",
		}),
		janitorSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "musescore",
			Subsystem: "janitor",
			Name:      "sweeps_total",
			Help:      "Completed janitor sweeps.",
		}),
	}

	reg.MustRegister(
		m.conversions,
		m.duration,
		m.inFlight,
		m.uploadBytes,
		m.rejectedUploads,
		m.janitorRemovals,
		m.janitorSweeps,
	)
	return m
}

// Nil-safe recorders: a nil *Metrics records nothing.

func (m *Metrics) ObserveConversion(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(outcome).Inc()
	if seconds > 0 {
		m.duration.Observe(seconds)
	}
}

func (m *Metrics) SlotAcquired() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) SlotReleased() {
	if m != nil {
		m.inFlight.Dec()
	}
}

func (m *Metrics) ObserveUpload(size int64) {
	if m != nil {
		m.uploadBytes.Observe(float64(size))
	}
}

func (m *Metrics) RejectUpload(reason string) {
	if m != nil {
		m.rejectedUploads.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) ObserveSweep(removed int) {
	if m == nil {
		return
	}
	m.janitorSweeps.Inc()
	m.janitorRemovals.Add(float64(removed))
}
