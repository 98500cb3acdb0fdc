// Package metrics holds the engine's Prometheus collectors. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	transitions     *prometheus.CounterVec
	conflicts       *prometheus.CounterVec
	ratingDelta     prometheus.Histogram
	bracketAdvances *prometheus.CounterVec
	rewardCredits   *prometheus.CounterVec
	rewardSyncRuns  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rackladder",
			Name:      "challenge_transitions_total",
			Help:      "Challenge state transitions by resulting status.",
		}, []string{"status"}),
		conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rackladder",
			Name:      "concurrent_modifications_total",
			Help:      "Optimistic lock conflicts by operation.",
		}, []string{"operation"}),
		ratingDelta: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rackladder",
			Name:      "rating_delta_points",
			Help:      "Absolute rating change applied per completed challenge.",
			Buckets:   []float64{1, 2, 4, 8, 16, 24, 32, 48, 64},
		}),
		bracketAdvances: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rackladder",
			Name:      "bracket_advances_total",
			Help:      "Bracket advance attempts by outcome.",
		}, []string{"outcome"}),
		rewardCredits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rackladder",
			Name:      "reward_credits_total",
			Help:      "Reward ledger credit calls by outcome.",
		}, []string{"outcome"}),
		rewardSyncRuns: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rackladder",
			Name:      "reward_sync_runs_total",
			Help:      "Completed reward reconciliation passes.",
		}),
	}
}

func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) Conflict(operation string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) RatingDelta(delta int) {
	if m == nil {
		return
	}
	if delta < 0 {
		delta = -delta
	}
	m.ratingDelta.Observe(float64(delta))
}

func (m *Metrics) BracketAdvance(outcome string) {
	if m == nil {
		return
	}
	m.bracketAdvances.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RewardCredit(outcome string) {
	if m == nil {
		return
	}
	m.rewardCredits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RewardSyncRun() {
	if m == nil {
		return
	}
	m.rewardSyncRuns.Inc()
}
