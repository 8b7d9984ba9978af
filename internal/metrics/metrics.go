// Package metrics registers the Prometheus collectors exposed on /metrics.
//
// Collectors are registered with the default registry at init through promauto.
// Callers record through the helpers below rather than touching the vectors directly.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP surface
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodmix_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moodmix_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route"},
	)

	HTTPRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodmix_http_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"route"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "moodmix_active_sessions",
			Help: "Current number of live login sessions",
		},
	)

	// Upstream calls
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodmix_upstream_requests_total",
			Help: "Total number of requests sent to upstream APIs",
		},
		[]string{"service", "operation", "status_code"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moodmix_upstream_request_duration_seconds",
			Help:    "Upstream request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"service", "operation"},
	)

	// Track resolution
	TrackResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodmix_track_resolutions_total",
			Help: "Track resolution outcomes",
		},
		[]string{"outcome"}, // resolved, cached, or a failure reason
	)

	PlaylistsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moodmix_playlists_generated_total",
			Help: "Total number of recommendation replies parsed into playlists",
		},
	)

	PlaylistsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moodmix_playlists_created_total",
			Help: "Total number of playlists created on Spotify",
		},
	)

	// Circuit breakers
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "moodmix_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodmix_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodmix_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordHTTPRequest records a served request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordUpstreamRequest records a call to an upstream API. A status of 0 means the request never got a response.
func RecordUpstreamRequest(service, operation string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	if status == 0 {
		code = "error"
	}
	UpstreamRequestsTotal.WithLabelValues(service, operation, code).Inc()
	UpstreamRequestDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordResolution counts one track resolution outcome.
func RecordResolution(outcome string) {
	TrackResolutions.WithLabelValues(outcome).Inc()
}
