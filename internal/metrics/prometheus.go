package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the recording service
type Metrics struct {
	// Connection metrics
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	FramesReceived    prometheus.Counter
	FramesSent        prometheus.Counter
	ParseErrors       prometheus.Counter

	// Session metrics
	SessionsActive    prometheus.Gauge
	SessionsStarted   prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsFailed    prometheus.Counter
	SessionDuration   prometheus.Histogram
	SessionReattaches prometheus.Counter

	// Chunk metrics
	ChunksReceived prometheus.Counter
	ChunksRejected prometheus.Counter
	ChunkSize      prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// Summarization metrics
	SummariesGenerated prometheus.Counter
	SummaryFailures    prometheus.Counter

	// Persistence metrics
	StoreErrors prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Connection metrics
		ConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_connections_active",
			Help: "Current number of open WebSocket connections",
		}),
		ConnectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_connections_total",
			Help: "Total number of WebSocket connections accepted",
		}),
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_frames_received_total",
			Help: "Total number of frames received over WebSocket",
		}),
		FramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_frames_sent_total",
			Help: "Total number of frames sent over WebSocket",
		}),
		ParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_parse_errors_total",
			Help: "Total number of frame parsing errors",
		}),

		// Session metrics
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_sessions_active",
			Help: "Current number of active recording sessions",
		}),
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_sessions_started_total",
			Help: "Total number of recording sessions started",
		}),
		SessionsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_sessions_completed_total",
			Help: "Total number of recording sessions completed",
		}),
		SessionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_sessions_failed_total",
			Help: "Total number of recording sessions marked failed",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_session_duration_seconds",
			Help:    "Duration of recording sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10s to ~3 hours
		}),
		SessionReattaches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_session_reattaches_total",
			Help: "Total number of sessions re-bound to a connection after recovery",
		}),

		// Chunk metrics
		ChunksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_chunks_received_total",
			Help: "Total number of audio chunks received",
		}),
		ChunksRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_chunks_rejected_total",
			Help: "Total number of audio chunks rejected by validation",
		}),
		ChunkSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_chunk_size_bytes",
			Help:    "Size of received audio chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcription_successes_total",
			Help: "Total number of successful transcriptions",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcription_failures_total",
			Help: "Total number of failed transcriptions (degraded to empty fragments)",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_transcription_duration_seconds",
			Help:    "Time spent on transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		}),

		// Summarization metrics
		SummariesGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_summaries_generated_total",
			Help: "Total number of summaries generated",
		}),
		SummaryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_summary_failures_total",
			Help: "Total number of summarization failures (session still completes)",
		}),

		// Persistence metrics
		StoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_store_errors_total",
			Help: "Total number of persistence errors (logged, never blocking the stream)",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_http_requests_total",
			Help: "Total number of HTTP API requests",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scribe_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_http_errors_total",
			Help: "Total number of HTTP API errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordHTTPRequest records metrics for one HTTP API request
func (m *Metrics) RecordHTTPRequest(method, endpoint, status string, duration float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordHTTPError records an HTTP API error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
