package engine

import (
	"fmt"

	"github.com/awion/cryon-risk/model"
	"go.uber.org/zap"
)

// Seed loads initial rules and entities. Rules are only seeded into an empty
// rule set and entities into an empty entity set, so a restored snapshot is
// never overwritten. Seed rules keep their configured ids.
func (e *Engine) Seed(rules []model.RiskRule, entities []model.EntityForm) error {
	if len(e.store.Rules()) == 0 {
		for i, rule := range rules {
			if err := rule.Validate(); err != nil {
				return fmt.Errorf("seed rule #%d: %w", i+1, err)
			}
			if rule.ID == "" {
				rule.ID = e.newID("RR")
			}
			if err := e.store.InsertRule(rule); err != nil {
				return fmt.Errorf("seed rule #%d: %w", i+1, err)
			}
		}
	}

	if len(e.store.EntityIDs()) == 0 {
		for i, form := range entities {
			if _, err := e.AddEntity(form); err != nil {
				return fmt.Errorf("seed entity #%d: %w", i+1, err)
			}
		}
	}

	e.logger.Info("Seeded engine",
		zap.Int("rules", len(e.store.Rules())),
		zap.Int("entities", len(e.store.EntityIDs())))
	return nil
}
