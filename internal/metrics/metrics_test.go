package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Transition("completed")
	m.Transition("completed")
	m.Conflict("report_rack")
	m.RewardCredit("failed")
	m.RatingDelta(-16)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflicts.WithLabelValues("report_rack")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rewardCredits.WithLabelValues("failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ratingDelta))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Transition("completed")
		m.Conflict("confirm_result")
		m.RatingDelta(5)
		m.BracketAdvance("advanced")
		m.RewardCredit("credited")
		m.RewardSyncRun()
	})
}
