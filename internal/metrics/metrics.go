// Package metrics registers the Prometheus collectors exported on the
// metrics listener. Collectors are package globals registered through
// promauto, so importing the package is enough to expose them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moviematch_sessions_created_total",
			Help: "Total number of swipe sessions created",
		},
	)

	SessionJoins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moviematch_session_joins_total",
			Help: "Join attempts by outcome",
		},
		[]string{"result"}, // joined, rejoined, full, not_found
	)

	Swipes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moviematch_swipes_total",
			Help: "Recorded swipes by direction",
		},
		[]string{"direction"}, // like, dislike
	)

	Matches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moviematch_matches_total",
			Help: "Movies liked by both members of a session",
		},
	)

	WriteConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moviematch_session_write_conflicts_total",
			Help: "Optimistic concurrency conflicts on session documents",
		},
		[]string{"result"}, // retried, exhausted
	)

	SubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "moviematch_session_subscribers",
			Help: "Currently registered session subscriptions",
		},
	)

	// Recommendation metrics
	RecommendationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moviematch_recommendation_duration_seconds",
			Help:    "Time to produce a recommendation batch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	FeedFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moviematch_feed_fallbacks_total",
			Help: "Batches served from the random catalog instead of the engine",
		},
		[]string{"reason"}, // timeout, unavailable, insufficient, error, disabled, pending
	)

	FeedbackEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moviematch_feedback_total",
			Help: "Feedback events applied to preference models",
		},
		[]string{"type"}, // like, dislike, skip
	)

	PreferenceRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moviematch_preference_refreshes_total",
			Help: "Preference models committed after feedback",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "moviematch_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moviematch_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moviematch_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
