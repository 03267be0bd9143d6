// Package metrics defines prometheus metrics to expose
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TimeToFirstChunk = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_api_time_to_first_chunk_seconds",
			Help:    "Time from request start to the first chunk written to the caller",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
		},
	)

	StreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_api_stream_duration_seconds",
			Help:    "Total time spent streaming a chat response",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 15, 20, 30, 60, 120, 300},
		},
	)

	ChunksStreamed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_api_chunks_streamed_total",
			Help: "Total number of text chunks written to callers",
		},
	)

	StreamOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_api_stream_outcome_total",
			Help: "Chat stream terminations by outcome",
		},
		[]string{"outcome"},
	)

	UpstreamStatus = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_api_upstream_status_total",
			Help: "Upstream response status codes",
		},
		[]string{"status_code"},
	)

	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_api_rate_limit_decisions_total",
			Help: "Rate limit decisions by scope",
		},
		[]string{"scope", "decision"},
	)

	LimiterBackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_api_rate_limit_backend_errors_total",
			Help: "Durable rate limit backend failures answered by the local fallback",
		},
		[]string{"scope"},
	)

	WebVitals = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_api_web_vital_value",
			Help:    "Reported web vital values (CLS unitless, others in milliseconds)",
			Buckets: []float64{.01, .05, .1, .25, 50, 100, 200, 500, 1000, 1800, 2500, 4000, 8000},
		},
		[]string{"name", "rating"},
	)

	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_api_error_count",
			Help: "Error count",
		},
		[]string{"endpoint", "from"},
	)

	ResponseCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_api_status_code",
			Help: "Status Codes",
		},
		[]string{"path", "status_code"},
	)
)
