package metrics

import (
	"testing"

	"github.com/awion/cryon-risk/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordScoreMutations(SourceDrift, 4)
	m.RecordScoreMutations(SourceDrift, 4)
	m.RecordScoreMutations(SourceOverride, 1)
	m.RecordAlert(model.Alert{Type: model.AlertThreshold, Severity: model.SeverityMedium})
	m.SetTierCounts(map[model.Severity]int{model.SeverityHigh: 2, model.SeverityLow: 1})
	m.DriftDuration.Observe(0.001)

	assert.Equal(t, 8.0, testutil.ToFloat64(m.ScoreMutations.WithLabelValues(SourceDrift)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScoreMutations.WithLabelValues(SourceOverride)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsGenerated.WithLabelValues("threshold", "medium")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EntitiesByTier.WithLabelValues("high")))

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.Len(t, families, 4)
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
