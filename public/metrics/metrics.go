package metrics

import (
	"github.com/awion/cryon-risk/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Score mutation sources
const (
	SourceCreate   = "create"
	SourceDrift    = "drift"
	SourceOverride = "override"
	SourcePattern  = "pattern"
)

// Metrics holds the engine collectors
type Metrics struct {
	ScoreMutations  *prometheus.CounterVec
	AlertsGenerated *prometheus.CounterVec
	EntitiesByTier  *prometheus.GaugeVec
	DriftDuration   prometheus.Histogram
}

// New registers the engine collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ScoreMutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryon_risk_score_mutations_total",
				Help: "Total number of entity risk score writes",
			},
			[]string{"source"},
		),
		AlertsGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryon_risk_alerts_total",
				Help: "Total number of alerts inserted",
			},
			[]string{"type", "severity"},
		),
		EntitiesByTier: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cryon_risk_entities",
				Help: "Current number of entities per risk tier",
			},
			[]string{"tier"},
		),
		DriftDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cryon_risk_drift_tick_duration_seconds",
				Help:    "Time spent applying one drift tick to all entities",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8), // 100us to ~1.6s
			},
		),
	}
}

// RecordScoreMutations adds n score writes from source
func (m *Metrics) RecordScoreMutations(source string, n int) {
	m.ScoreMutations.WithLabelValues(source).Add(float64(n))
}

// RecordAlert counts an inserted alert
func (m *Metrics) RecordAlert(alert model.Alert) {
	m.AlertsGenerated.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
}

// SetTierCounts replaces the per-tier entity gauges
func (m *Metrics) SetTierCounts(counts map[model.Severity]int) {
	for tier, n := range counts {
		m.EntitiesByTier.WithLabelValues(string(tier)).Set(float64(n))
	}
}
