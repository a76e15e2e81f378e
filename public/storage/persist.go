package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/awion/cryon-risk/model"
	"github.com/awion/cryon-risk/public/scorer"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// snapshot is the on-disk layout of file storage
type snapshot struct {
	Entities []model.Entity   `yaml:"entities"`
	Alerts   []model.Alert    `yaml:"alerts"`
	Rules    []model.RiskRule `yaml:"rules"`
}

// Save writes the current state to the configured file. It is a no-op for
// memory storage.
func (s *Storage) Save() error {
	if s.config.Type != "file" {
		return nil
	}

	s.mutex.RLock()
	snap := snapshot{
		Entities: make([]model.Entity, 0, len(s.entityOrder)),
		Alerts:   append([]model.Alert(nil), s.alerts...),
		Rules:    make([]model.RiskRule, 0, len(s.ruleOrder)),
	}
	for _, id := range s.entityOrder {
		snap.Entities = append(snap.Entities, s.entities[id].Clone())
	}
	for _, id := range s.ruleOrder {
		snap.Rules = append(snap.Rules, s.rules[id])
	}
	s.mutex.RUnlock()

	data, err := yaml.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Write beside the target and rename into place
	tmp, err := os.CreateTemp(filepath.Dir(s.config.Path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.config.Path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	s.logger.Info("Saved snapshot",
		zap.String("path", s.config.Path),
		zap.Int("entities", len(snap.Entities)),
		zap.Int("alerts", len(snap.Alerts)),
		zap.Int("rules", len(snap.Rules)))
	return nil
}

// load reads the configured file if it exists. Entity scores are clamped and
// statuses recomputed so a hand-edited file cannot break the invariants.
func (s *Storage) load() error {
	data, err := os.ReadFile(s.config.Path)
	if os.IsNotExist(err) {
		s.logger.Info("No snapshot found, starting empty", zap.String("path", s.config.Path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse snapshot: %w", err)
	}

	for _, e := range snap.Entities {
		if _, exists := s.entities[e.ID]; exists {
			return fmt.Errorf("snapshot entity %s: %w", e.ID, ErrDuplicateID)
		}
		e = e.Clone()
		e.RiskScore = scorer.Clamp(float64(e.RiskScore))
		scorer.Settle(&e)
		s.entities[e.ID] = &e
		s.entityOrder = append(s.entityOrder, e.ID)
		s.recordTrend(&e)
	}
	s.alerts = snap.Alerts
	for _, r := range snap.Rules {
		if _, exists := s.rules[r.ID]; exists {
			return fmt.Errorf("snapshot rule %s: %w", r.ID, ErrDuplicateID)
		}
		s.rules[r.ID] = r
		s.ruleOrder = append(s.ruleOrder, r.ID)
	}

	s.logger.Info("Loaded snapshot",
		zap.String("path", s.config.Path),
		zap.Int("entities", len(s.entityOrder)),
		zap.Int("alerts", len(s.alerts)),
		zap.Int("rules", len(s.ruleOrder)))
	return nil
}
