package engine

import (
	"time"

	"github.com/awion/cryon-risk/model"
	"github.com/awion/cryon-risk/public/metrics"
	"github.com/awion/cryon-risk/public/scorer"
	"go.uber.org/zap"
)

// runDrift applies a drift tick every DriftInterval until stop is closed
func (e *Engine) runDrift(stop <-chan struct{}) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.DriftInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.DriftTick()
		case <-stop:
			return
		}
	}
}

// runAlertSpawn attempts an alert every AlertInterval until stop is closed
func (e *Engine) runAlertSpawn(stop <-chan struct{}) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.AlertInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.SpawnAlertTick()
		case <-stop:
			return
		}
	}
}

// DriftTick moves every entity's score by a uniform delta in [-1, +1] and
// stamps all of them with the same tick time. It returns the number of
// entities updated.
func (e *Engine) DriftTick() int {
	start := time.Now()
	tick := e.now()

	n := e.store.ApplyAllEntities(func(ent *model.Entity) {
		delta := (e.rng.Float64() - 0.5) * 2
		ent.RiskScore = scorer.Clamp(float64(ent.RiskScore) + delta)
		ent.LastActivity = tick
	})
	if n == 0 {
		return 0
	}

	e.metrics.DriftDuration.Observe(time.Since(start).Seconds())
	e.metrics.RecordScoreMutations(metrics.SourceDrift, n)
	e.refreshTierGauge()

	e.logger.Debug("Applied drift tick", zap.Int("entities", n), zap.Time("tick", tick))
	return n
}

// SpawnAlertTick raises a random alert against a random live entity with
// probability AlertProbability. It reports whether an alert was inserted.
func (e *Engine) SpawnAlertTick() (model.Alert, bool) {
	if e.rng.Float64() >= e.config.AlertProbability {
		return model.Alert{}, false
	}

	ids := e.store.EntityIDs()
	if len(ids) == 0 {
		return model.Alert{}, false
	}

	alert := model.Alert{
		ID:        e.newID("A"),
		EntityID:  ids[e.rng.Intn(len(ids))],
		Type:      model.AlertTypes[e.rng.Intn(len(model.AlertTypes))],
		Severity:  model.Severities[e.rng.Intn(len(model.Severities))],
		Message:   e.config.Messages[e.rng.Intn(len(e.config.Messages))],
		Timestamp: e.now(),
	}
	e.store.InsertAlert(alert)
	e.publish(alert)

	e.logger.Info("Spawned alert",
		zap.String("alert_id", alert.ID),
		zap.String("entity_id", alert.EntityID),
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)))
	return alert, true
}
