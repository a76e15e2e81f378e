package engine

import (
	"fmt"

	"github.com/awion/cryon-risk/model"
	"github.com/awion/cryon-risk/public/metrics"
	"github.com/awion/cryon-risk/public/scorer"
	"go.uber.org/zap"
)

var estimatedTimeByPriority = map[model.Severity]string{
	model.SeverityCritical: "5 minutes",
	model.SeverityHigh:     "10 minutes",
	model.SeverityMedium:   "15 minutes",
	model.SeverityLow:      "30 minutes",
}

// AddEntity creates an entity from form and returns its id
func (e *Engine) AddEntity(form model.EntityForm) (string, error) {
	if err := form.Validate(); err != nil {
		return "", err
	}

	score := scorer.DefaultInitialScore
	if form.InitialRiskScore != nil {
		score = *form.InitialRiskScore
	}
	score = scorer.Clamp(float64(score))

	entity := model.Entity{
		ID:           e.newID("E"),
		Name:         form.Name,
		Type:         form.Type,
		Department:   form.Department,
		RiskScore:    score,
		Status:       scorer.TierOf(score),
		LastActivity: e.now(),
		Patterns:     []model.Pattern{},
		Recommendations: []model.Recommendation{{
			ID:            e.newID("R"),
			Type:          model.RecommendMonitoring,
			Priority:      model.SeverityMedium,
			Title:         "Enable Baseline Monitoring",
			Description:   "Establish baseline behavior patterns for this entity",
			Impact:        "Improves anomaly detection accuracy",
			EstimatedTime: "5 minutes",
		}},
	}
	if err := e.store.InsertEntity(entity); err != nil {
		return "", fmt.Errorf("failed to insert entity: %w", err)
	}

	e.metrics.RecordScoreMutations(metrics.SourceCreate, 1)
	e.refreshTierGauge()
	e.logger.Info("Added entity",
		zap.String("entity_id", entity.ID),
		zap.String("type", string(entity.Type)),
		zap.Int("risk_score", score))
	return entity.ID, nil
}

// AddPattern attaches a detected pattern and its recommendation to an entity
// and raises the entity's score by half the pattern severity. It returns the
// new pattern id, or "" when the entity does not exist.
func (e *Engine) AddPattern(entityID string, form model.PatternForm) (string, error) {
	if err := form.Validate(); err != nil {
		return "", err
	}

	now := e.now()
	priority := scorer.PriorityFor(form.Severity)
	pattern := model.Pattern{
		ID:           e.newID("P"),
		Name:         form.Name,
		Description:  form.Description,
		Severity:     form.Severity,
		Frequency:    e.rng.Intn(10) + 1,
		Impact:       scorer.PatternImpact(form.Severity, e.rng.Intn(3)),
		LastDetected: now,
	}
	rec := model.Recommendation{
		ID:            e.newID("R"),
		Type:          scorer.RecommendationTypeFor(form.Category),
		Priority:      priority,
		Title:         fmt.Sprintf("Mitigate %s", form.Name),
		Description:   fmt.Sprintf("Review and contain activity matching: %s", form.Description),
		Impact:        fmt.Sprintf("Reduces %s risk exposure", form.Category),
		EstimatedTime: estimatedTimeByPriority[priority],
	}

	updated, ok := e.store.ApplyEntityMutation(entityID, func(ent *model.Entity) {
		ent.Patterns = append(ent.Patterns, pattern)
		ent.Recommendations = append(ent.Recommendations, rec)
		ent.RiskScore = scorer.Clamp(float64(ent.RiskScore + scorer.PatternIncrement(form.Severity)))
		ent.LastActivity = now
	})
	if !ok {
		e.logger.Debug("Ignoring pattern for unknown entity", zap.String("entity_id", entityID))
		return "", nil
	}

	e.metrics.RecordScoreMutations(metrics.SourcePattern, 1)
	e.refreshTierGauge()
	e.logger.Info("Added pattern",
		zap.String("entity_id", entityID),
		zap.String("pattern_id", pattern.ID),
		zap.Int("severity", form.Severity),
		zap.Int("risk_score", updated.RiskScore))
	return pattern.ID, nil
}

// UpdateRiskScore overrides an entity's score and records a threshold alert
// carrying reason. The alert is raised even when the score does not change.
// It reports false when the entity does not exist.
func (e *Engine) UpdateRiskScore(entityID string, newScore float64, reason string) (bool, error) {
	if err := model.ValidateReason(reason); err != nil {
		return false, err
	}

	now := e.now()
	score := scorer.Clamp(newScore)
	alert, ok := e.store.ApplyEntityMutationWithAlert(entityID, func(ent *model.Entity) model.Alert {
		previous := ent.RiskScore
		ent.RiskScore = score
		ent.LastActivity = now
		return model.Alert{
			ID:        e.newID("A"),
			EntityID:  ent.ID,
			Type:      model.AlertThreshold,
			Severity:  model.SeverityMedium,
			Message:   fmt.Sprintf("Risk score for %s manually adjusted from %d to %d: %s", ent.Name, previous, score, reason),
			Timestamp: now,
		}
	})
	if !ok {
		e.logger.Debug("Ignoring score override for unknown entity", zap.String("entity_id", entityID))
		return false, nil
	}

	e.metrics.RecordScoreMutations(metrics.SourceOverride, 1)
	e.refreshTierGauge()
	e.publish(alert)
	e.logger.Info("Risk score overridden",
		zap.String("entity_id", entityID),
		zap.Int("risk_score", score),
		zap.String("reason", reason))
	return true, nil
}

// AcknowledgeAlert marks an alert acknowledged. It reports false when the
// alert is unknown or already acknowledged.
func (e *Engine) AcknowledgeAlert(alertID string) bool {
	ok := e.store.AcknowledgeAlert(alertID)
	if ok {
		e.logger.Info("Alert acknowledged", zap.String("alert_id", alertID))
	}
	return ok
}

// AddRule stores a new rule under a fresh id and returns the id
func (e *Engine) AddRule(rule model.RiskRule) (string, error) {
	if err := rule.Validate(); err != nil {
		return "", err
	}

	rule.ID = e.newID("RR")
	if err := e.store.InsertRule(rule); err != nil {
		return "", fmt.Errorf("failed to insert rule: %w", err)
	}

	e.logger.Info("Added rule", zap.String("rule_id", rule.ID), zap.String("name", rule.Name))
	return rule.ID, nil
}

// UpdateRule replaces the full record of an existing rule. It reports false
// when no rule has that id.
func (e *Engine) UpdateRule(rule model.RiskRule) (bool, error) {
	if err := rule.Validate(); err != nil {
		return false, err
	}

	ok := e.store.ReplaceRule(rule)
	if ok {
		e.logger.Info("Updated rule", zap.String("rule_id", rule.ID), zap.Bool("enabled", rule.Enabled))
	}
	return ok, nil
}

// ToggleRule flips the enabled flag of a rule
func (e *Engine) ToggleRule(ruleID string) bool {
	rule, ok := e.store.Rule(ruleID)
	if !ok {
		return false
	}
	rule.Enabled = !rule.Enabled
	ok, err := e.UpdateRule(rule)
	return ok && err == nil
}

// DeleteRule removes a rule. It reports false when no rule has that id.
func (e *Engine) DeleteRule(ruleID string) bool {
	ok := e.store.DeleteRule(ruleID)
	if ok {
		e.logger.Info("Deleted rule", zap.String("rule_id", ruleID))
	}
	return ok
}

// Entities returns a snapshot of all entities
func (e *Engine) Entities() []model.Entity {
	return e.store.Entities()
}

// Entity returns a snapshot of one entity
func (e *Engine) Entity(id string) (model.Entity, bool) {
	return e.store.Entity(id)
}

// Alerts returns a snapshot of all alerts, newest first
func (e *Engine) Alerts() []model.Alert {
	return e.store.Alerts()
}

// Rules returns a snapshot of all rules
func (e *Engine) Rules() []model.RiskRule {
	return e.store.Rules()
}

// Trends returns the recorded score history of an entity
func (e *Engine) Trends(entityID string) []model.RiskTrend {
	return e.store.Trends(entityID)
}

// Summary returns the dashboard figures
func (e *Engine) Summary() model.Summary {
	return e.store.Summary()
}
