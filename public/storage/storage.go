package storage

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/awion/cryon-risk/model"
	"github.com/awion/cryon-risk/public/scorer"
	"go.uber.org/zap"
)

// DefaultTrendCapacity is the number of score samples kept per entity
const DefaultTrendCapacity = 50

// ErrDuplicateID is returned when inserting a record whose id already exists
var ErrDuplicateID = errors.New("duplicate id")

// StorageConfig represents storage configuration options
type StorageConfig struct {
	Type          string `yaml:"type"`
	Path          string `yaml:"path"`
	TrendCapacity int    `yaml:"trendCapacity"`
}

// Storage is the single source of truth for entities, alerts and rules.
// Every method is atomic with respect to every other; readers only ever
// receive copies.
type Storage struct {
	config StorageConfig
	logger *zap.Logger

	entities    map[string]*model.Entity
	entityOrder []string
	alerts      []model.Alert // newest first
	rules       map[string]model.RiskRule
	ruleOrder   []string
	trends      map[string][]model.RiskTrend

	mutex sync.RWMutex
}

// NewStorage initializes a new storage system based on configuration
func NewStorage(config StorageConfig, logger *zap.Logger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TrendCapacity <= 0 {
		config.TrendCapacity = DefaultTrendCapacity
	}

	storage := &Storage{
		config:   config,
		logger:   logger,
		entities: make(map[string]*model.Entity),
		rules:    make(map[string]model.RiskRule),
		trends:   make(map[string][]model.RiskTrend),
	}

	switch config.Type {
	case "memory":
	case "file":
		if config.Path == "" {
			return nil, fmt.Errorf("file storage requires a path")
		}
		if err := storage.load(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown storage type: %s", config.Type)
	}

	logger.Info("Initialized storage", zap.String("type", config.Type))
	return storage, nil
}

// Close cleans up storage resources, writing a final snapshot for file storage
func (s *Storage) Close() error {
	s.logger.Debug("Closing storage")
	return s.Save()
}

// InsertEntity adds a new entity. Its status is recomputed from its score.
func (s *Storage) InsertEntity(entity model.Entity) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.entities[entity.ID]; exists {
		return fmt.Errorf("entity %s: %w", entity.ID, ErrDuplicateID)
	}

	e := entity.Clone()
	scorer.Settle(&e)
	scorer.MustConsistent(&e)

	s.entities[e.ID] = &e
	s.entityOrder = append(s.entityOrder, e.ID)
	s.recordTrend(&e)
	return nil
}

// Entity retrieves a copy of an entity by ID
func (s *Storage) Entity(id string) (model.Entity, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	e, exists := s.entities[id]
	if !exists {
		return model.Entity{}, false
	}
	return e.Clone(), true
}

// Entities returns a point-in-time copy of all entities in insertion order
func (s *Storage) Entities() []model.Entity {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entities := make([]model.Entity, 0, len(s.entityOrder))
	for _, id := range s.entityOrder {
		entities = append(entities, s.entities[id].Clone())
	}
	return entities
}

// EntityIDs returns the ids of all entities in insertion order
func (s *Storage) EntityIDs() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return append([]string(nil), s.entityOrder...)
}

// ApplyEntityMutation runs fn against the entity with the given id under
// exclusive access and returns the resulting copy. An unknown id is a no-op.
func (s *Storage) ApplyEntityMutation(id string, fn func(*model.Entity)) (model.Entity, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, exists := s.entities[id]
	if !exists {
		return model.Entity{}, false
	}
	s.mutateLocked(e, fn)
	return e.Clone(), true
}

// ApplyEntityMutationWithAlert is ApplyEntityMutation where fn also produces
// an alert that is inserted in the same critical section.
func (s *Storage) ApplyEntityMutationWithAlert(id string, fn func(*model.Entity) model.Alert) (model.Alert, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, exists := s.entities[id]
	if !exists {
		return model.Alert{}, false
	}

	var alert model.Alert
	s.mutateLocked(e, func(e *model.Entity) {
		alert = fn(e)
	})
	s.alerts = prepend(s.alerts, alert)
	return alert, true
}

// ApplyAllEntities runs fn against every entity in one critical section and
// returns the number of entities mutated
func (s *Storage) ApplyAllEntities(fn func(*model.Entity)) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, id := range s.entityOrder {
		s.mutateLocked(s.entities[id], fn)
	}
	return len(s.entityOrder)
}

func (s *Storage) mutateLocked(e *model.Entity, fn func(*model.Entity)) {
	id := e.ID
	fn(e)
	e.ID = id
	scorer.Settle(e)
	scorer.MustConsistent(e)
	s.recordTrend(e)
}

func (s *Storage) recordTrend(e *model.Entity) {
	samples := append(s.trends[e.ID], model.RiskTrend{
		EntityID:  e.ID,
		Score:     e.RiskScore,
		Timestamp: e.LastActivity,
	})
	if over := len(samples) - s.config.TrendCapacity; over > 0 {
		samples = append(samples[:0:0], samples[over:]...)
	}
	s.trends[e.ID] = samples
}

// Trends returns the recorded score samples of an entity, oldest first
func (s *Storage) Trends(entityID string) []model.RiskTrend {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	trends := make([]model.RiskTrend, len(s.trends[entityID]))
	copy(trends, s.trends[entityID])
	return trends
}

// TierCounts returns how many entities sit in each tier
func (s *Storage) TierCounts() map[model.Severity]int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	counts := make(map[model.Severity]int, len(model.Severities))
	for _, tier := range model.Severities {
		counts[tier] = 0
	}
	for _, e := range s.entities {
		counts[e.Status]++
	}
	return counts
}

// Summary computes the dashboard figures from one consistent view
func (s *Storage) Summary() model.Summary {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	summary := model.Summary{TotalEntities: len(s.entities)}
	total := 0
	for _, e := range s.entities {
		total += e.RiskScore
		if e.Status == model.SeverityHigh || e.Status == model.SeverityCritical {
			summary.HighRiskEntities++
		}
	}
	if len(s.entities) > 0 {
		summary.AverageRiskScore = int(math.Round(float64(total) / float64(len(s.entities))))
	}
	for _, a := range s.alerts {
		if !a.Acknowledged {
			summary.ActiveAlerts++
		}
	}
	return summary
}

// InsertAlert prepends an alert so the newest alert is always first
func (s *Storage) InsertAlert(alert model.Alert) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.alerts = prepend(s.alerts, alert)
}

// Alerts returns a copy of all alerts, newest first
func (s *Storage) Alerts() []model.Alert {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	alerts := make([]model.Alert, len(s.alerts))
	copy(alerts, s.alerts)
	return alerts
}

// AcknowledgeAlert marks an alert acknowledged. It reports false when the id
// is unknown or the alert was already acknowledged.
func (s *Storage) AcknowledgeAlert(id string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i := range s.alerts {
		if s.alerts[i].ID != id {
			continue
		}
		if s.alerts[i].Acknowledged {
			return false
		}
		s.alerts[i].Acknowledged = true
		return true
	}
	return false
}

func prepend(alerts []model.Alert, alert model.Alert) []model.Alert {
	alerts = append(alerts, model.Alert{})
	copy(alerts[1:], alerts)
	alerts[0] = alert
	return alerts
}

// InsertRule adds a new rule
func (s *Storage) InsertRule(rule model.RiskRule) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrDuplicateID)
	}
	s.rules[rule.ID] = rule
	s.ruleOrder = append(s.ruleOrder, rule.ID)
	return nil
}

// UpsertRule inserts the rule or replaces the record with the same id
func (s *Storage) UpsertRule(rule model.RiskRule) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.rules[rule.ID]; !exists {
		s.ruleOrder = append(s.ruleOrder, rule.ID)
	}
	s.rules[rule.ID] = rule
}

// ReplaceRule replaces an existing rule. An unknown id is a no-op.
func (s *Storage) ReplaceRule(rule model.RiskRule) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.rules[rule.ID]; !exists {
		return false
	}
	s.rules[rule.ID] = rule
	return true
}

// DeleteRule removes a rule. An unknown id is a no-op.
func (s *Storage) DeleteRule(id string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.rules[id]; !exists {
		return false
	}
	delete(s.rules, id)
	for i, ruleID := range s.ruleOrder {
		if ruleID == id {
			s.ruleOrder = append(s.ruleOrder[:i], s.ruleOrder[i+1:]...)
			break
		}
	}
	return true
}

// Rule retrieves a rule by ID
func (s *Storage) Rule(id string) (model.RiskRule, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rule, exists := s.rules[id]
	return rule, exists
}

// Rules returns a copy of all rules in insertion order
func (s *Storage) Rules() []model.RiskRule {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rules := make([]model.RiskRule, 0, len(s.ruleOrder))
	for _, id := range s.ruleOrder {
		rules = append(rules, s.rules[id])
	}
	return rules
}
