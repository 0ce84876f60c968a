// Package metrics defines the Prometheus instrumentation for the STT
// audio service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the STT audio service.
type Metrics struct {
	// Utterance pipeline metrics
	UtterancesStarted   prometheus.Counter
	UtterancesCompleted *prometheus.CounterVec // label: state
	PipelineFailures    *prometheus.CounterVec // label: kind
	ActiveUtterances    prometheus.Gauge
	UtteranceBytes      prometheus.Histogram
	UtteranceDuration   prometheus.Histogram

	// Silence gate metrics
	GateDecisions *prometheus.CounterVec // label: decision

	// Codec metrics
	CodecConversions prometheus.Counter
	CodecFailures    prometheus.Counter
	CodecDuration    prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	UploadRequests         prometheus.Counter
	UploadFailures         prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all metrics on the given registerer. Tests pass
// a fresh registry to avoid duplicate registration panics.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		UtterancesStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_utterances_started_total",
			Help: "Total number of utterance pipeline invocations",
		}),
		UtterancesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_utterances_completed_total",
			Help: "Total number of completed utterances by terminal state",
		}, []string{"state"}),
		PipelineFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_pipeline_failures_total",
			Help: "Total number of pipeline failures by failure kind",
		}, []string{"kind"}),
		ActiveUtterances: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stt_active_utterances",
			Help: "Number of utterances currently in flight",
		}),
		UtteranceBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_utterance_bytes",
			Help:    "Accumulated audio bytes per utterance",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		UtteranceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_utterance_duration_seconds",
			Help:    "End-to-end utterance processing duration",
			Buckets: prometheus.DefBuckets,
		}),
		GateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_silence_gate_decisions_total",
			Help: "Silence gate classifications by decision",
		}, []string{"decision"}),
		CodecConversions: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_codec_conversions_total",
			Help: "Total number of successful MP3 conversions",
		}),
		CodecFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_codec_failures_total",
			Help: "Total number of failed MP3 conversions",
		}),
		CodecDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_codec_duration_seconds",
			Help:    "MP3 conversion duration",
			Buckets: prometheus.DefBuckets,
		}),
		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_transcription_requests_total",
			Help: "Total number of recognition requests sent",
		}),
		TranscriptionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_transcription_successes_total",
			Help: "Total number of successful recognition requests",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_transcription_failures_total",
			Help: "Total number of failed recognition requests",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_transcription_duration_seconds",
			Help:    "Recognition request duration",
			Buckets: prometheus.DefBuckets,
		}),
		UploadRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_upload_requests_total",
			Help: "Total number of audio routing uploads sent",
		}),
		UploadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_upload_failures_total",
			Help: "Total number of failed audio routing uploads",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_http_requests_total",
			Help: "Total number of HTTP API requests",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stt_http_request_duration_seconds",
			Help:    "HTTP API request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_http_errors_total",
			Help: "Total number of HTTP API errors",
		}, []string{"method", "endpoint", "type"}),
	}
}

// RecordHTTPRequest records a completed HTTP API request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, status string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP API error by type.
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
