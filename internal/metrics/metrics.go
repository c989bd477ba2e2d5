// Package metrics provides Prometheus instrumentation for the resilience
// primitives. All metric collectors are registered via the Init function and
// exposed through the Handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BreakerState tracks the current state of each circuit breaker
	// (0=closed, 1=open, 2=half-open, 3=disabled, 4=forced-open).
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "resilience_circuitbreaker_state",
			Help: "Current circuit breaker state (0=closed 1=open 2=half-open 3=disabled 4=forced-open)",
		},
		[]string{"name"},
	)

	// BreakerTransitions counts state transitions by instance and edge.
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_circuitbreaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// BreakerCalls counts recorded call outcomes by instance and outcome
	// (success, failure, ignored).
	BreakerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_circuitbreaker_calls_total",
			Help: "Total recorded circuit breaker call outcomes",
		},
		[]string{"name", "outcome"},
	)

	// BreakerSlowCalls counts calls that met the slow-call threshold.
	BreakerSlowCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_circuitbreaker_slow_calls_total",
			Help: "Total calls meeting the slow call duration threshold",
		},
		[]string{"name"},
	)

	// BreakerNotPermitted counts denied permission acquisitions.
	BreakerNotPermitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_circuitbreaker_not_permitted_total",
			Help: "Total calls denied by an open, forced-open, or exhausted half-open circuit breaker",
		},
		[]string{"name"},
	)

	// RetryAttempts counts retry attempts (not first attempts) by instance.
	RetryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_retry_attempts_total",
			Help: "Total retry attempts after a failed call",
		},
		[]string{"name"},
	)

	// BulkheadInFlight tracks the concurrent calls holding a bulkhead permit.
	BulkheadInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "resilience_bulkhead_in_flight",
			Help: "Concurrent calls currently holding a bulkhead permit",
		},
		[]string{"name"},
	)

	// BulkheadRejections counts acquisitions rejected at the concurrency limit.
	BulkheadRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_bulkhead_rejections_total",
			Help: "Total bulkhead acquisitions rejected at the concurrency limit",
		},
		[]string{"name"},
	)

	// RateLimitRejections counts permission requests rejected by a rate limiter.
	RateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_ratelimiter_rejections_total",
			Help: "Total rate limiter permission rejections",
		},
		[]string{"name"},
	)
)

// Init registers all metric collectors with the default Prometheus registry.
// Must be called once at startup before serving metrics.
func Init() {
	prometheus.MustRegister(
		BreakerState,
		BreakerTransitions,
		BreakerCalls,
		BreakerSlowCalls,
		BreakerNotPermitted,
		RetryAttempts,
		BulkheadInFlight,
		BulkheadRejections,
		RateLimitRejections,
	)
}

// Handler returns an http.Handler that serves the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
