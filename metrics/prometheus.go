// Package metrics exposes Prometheus instrumentation of audio sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voiceorb client.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Session metrics
	SessionsStarted  *prometheus.CounterVec
	SessionsFinished *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	Fallbacks        *prometheus.CounterVec
	AutoplayBlocks   prometheus.Counter
	Preemptions      prometheus.Counter

	// Stream metrics
	ChunksAppended  prometheus.Counter
	BytesAppended   prometheus.Counter
	AppendDuration  prometheus.Histogram
	PartialStreams  prometheus.Counter
	TimeToFirstByte prometheus.Histogram

	// Backend metrics
	BackendRequests *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceorb_sessions_started_total",
			Help: "Total number of audio sessions started, by origin",
		}, []string{"origin"}),
		SessionsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceorb_sessions_finished_total",
			Help: "Total number of audio sessions reaching a terminal status",
		}, []string{"status", "kind"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "voiceorb_active_sessions",
			Help: "Current number of non-terminal audio sessions",
		}),
		Fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceorb_fallbacks_total",
			Help: "Total number of whole-payload fallbacks, by cause",
		}, []string{"cause"}),
		AutoplayBlocks: f.NewCounter(prometheus.CounterOpts{
			Name: "voiceorb_autoplay_blocked_total",
			Help: "Total number of sessions waiting for a user gesture",
		}),
		Preemptions: f.NewCounter(prometheus.CounterOpts{
			Name: "voiceorb_preemptions_total",
			Help: "Total number of times a session lost the output to a newer one",
		}),

		ChunksAppended: f.NewCounter(prometheus.CounterOpts{
			Name: "voiceorb_chunks_appended_total",
			Help: "Total number of chunks appended to playable buffers",
		}),
		BytesAppended: f.NewCounter(prometheus.CounterOpts{
			Name: "voiceorb_bytes_appended_total",
			Help: "Total number of encoded audio bytes appended",
		}),
		AppendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceorb_append_duration_seconds",
			Help:    "Time from issuing an append to its completion",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100µs to ~200ms
		}),
		PartialStreams: f.NewCounter(prometheus.CounterOpts{
			Name: "voiceorb_partial_streams_total",
			Help: "Total number of streams that ended early after some audio",
		}),
		TimeToFirstByte: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceorb_time_to_first_append_seconds",
			Help:    "Time from session start to the first appended chunk",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),

		BackendRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceorb_backend_requests_total",
			Help: "Total number of backend requests, by endpoint and status code",
		}, []string{"endpoint", "code"}),
	}
}

// RecordSessionStarted increments sessions started for origin.
func (m *Metrics) RecordSessionStarted(origin string) {
	if m == nil {
		return
	}
	m.SessionsStarted.WithLabelValues(origin).Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionFinished records a terminal status.
func (m *Metrics) RecordSessionFinished(status, kind string) {
	if m == nil {
		return
	}
	m.SessionsFinished.WithLabelValues(status, kind).Inc()
	m.ActiveSessions.Dec()
}

func (m *Metrics) RecordFallback(cause string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(cause).Inc()
}

func (m *Metrics) RecordAutoplayBlocked() {
	if m == nil {
		return
	}
	m.AutoplayBlocks.Inc()
}

func (m *Metrics) RecordPreemption() {
	if m == nil {
		return
	}
	m.Preemptions.Inc()
}

// RecordAppend records one completed append.
func (m *Metrics) RecordAppend(sizeBytes int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ChunksAppended.Inc()
	m.BytesAppended.Add(float64(sizeBytes))
	m.AppendDuration.Observe(durationSeconds)
}

func (m *Metrics) RecordPartialStream() {
	if m == nil {
		return
	}
	m.PartialStreams.Inc()
}

func (m *Metrics) RecordFirstAppend(sinceStartSeconds float64) {
	if m == nil {
		return
	}
	m.TimeToFirstByte.Observe(sinceStartSeconds)
}

// RecordBackendRequest counts a request to endpoint answered with code.
func (m *Metrics) RecordBackendRequest(endpoint, code string) {
	if m == nil {
		return
	}
	m.BackendRequests.WithLabelValues(endpoint, code).Inc()
}
