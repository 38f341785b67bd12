// Package metrics defines the Prometheus instrumentation of the workflow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors the controller reports into.
type Metrics struct {
	// TurnsTotal counts processed turns by outcome
	// (advanced, clarify, escalated, replayed, failed).
	TurnsTotal *prometheus.CounterVec

	// BreakerTrips counts fired circuit breakers by reason code.
	BreakerTrips *prometheus.CounterVec

	// EvaluatorDuration observes evaluator round-trips by evaluator name.
	EvaluatorDuration *prometheus.HistogramVec
}

// New registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rxflow_turns_total",
			Help: "Total processed conversational turns",
		}, []string{"outcome"}),
		BreakerTrips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rxflow_breaker_trips_total",
			Help: "Circuit breaker activations by reason code",
		}, []string{"reason"}),
		EvaluatorDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rxflow_evaluator_duration_seconds",
			Help:    "Duration of safety evaluator and backend calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"evaluator"}),
	}
}

// NewNop returns collectors bound to a throwaway registry. Used where
// instrumentation is optional, e.g. in tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
