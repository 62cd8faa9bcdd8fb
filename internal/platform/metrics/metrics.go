// Package metrics provides Prometheus metrics for the matching engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector the engine records to
type Metrics struct {
	// CandidatesEvaluated counts candidates that survived scoring, by method
	CandidatesEvaluated *prometheus.CounterVec

	// CandidatesDropped counts candidates removed before persistence, by reason
	CandidatesDropped *prometheus.CounterVec

	// MatchesUpserted counts persisted match writes by marketplace and method
	MatchesUpserted *prometheus.CounterVec

	// Transitions counts lifecycle events by event and outcome
	Transitions *prometheus.CounterVec

	// CatalogRequests counts catalog gateway calls by marketplace and outcome
	CatalogRequests *prometheus.CounterVec

	// CatalogRetries counts retried catalog calls by marketplace
	CatalogRetries *prometheus.CounterVec

	// RateLimitWait tracks time spent waiting on the shared rate budget
	RateLimitWait *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CandidatesEvaluated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "creatorpulse",
				Subsystem: "matching",
				Name:      "candidates_evaluated_total",
				Help:      "Total number of candidates scored by match method",
			},
			[]string{"method"},
		),
		CandidatesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "creatorpulse",
				Subsystem: "matching",
				Name:      "candidates_dropped_total",
				Help:      "Total number of candidates dropped before persistence by reason",
			},
			[]string{"reason"},
		),
		MatchesUpserted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "creatorpulse",
				Subsystem: "matching",
				Name:      "matches_upserted_total",
				Help:      "Total number of match rows written",
			},
			[]string{"marketplace", "method"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "creatorpulse",
				Subsystem: "lifecycle",
				Name:      "transitions_total",
				Help:      "Total number of match status transitions by event and outcome",
			},
			[]string{"event", "outcome"},
		),
		CatalogRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "creatorpulse",
				Subsystem: "catalog",
				Name:      "requests_total",
				Help:      "Total number of catalog gateway requests",
			},
			[]string{"marketplace", "outcome"},
		),
		CatalogRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "creatorpulse",
				Subsystem: "catalog",
				Name:      "retries_total",
				Help:      "Total number of retried catalog requests",
			},
			[]string{"marketplace"},
		),
		RateLimitWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "creatorpulse",
				Subsystem: "catalog",
				Name:      "rate_limit_wait_seconds",
				Help:      "Time spent waiting for the marketplace rate budget",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"marketplace"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.CandidatesEvaluated,
			m.CandidatesDropped,
			m.MatchesUpserted,
			m.Transitions,
			m.CatalogRequests,
			m.CatalogRetries,
			m.RateLimitWait,
		)
	}
	return m
}

// NewNop returns unregistered collectors, handy in tests
func NewNop() *Metrics {
	return New(nil)
}
