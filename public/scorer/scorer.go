// Package scorer holds the pure scoring rules shared by every mutation path:
// clamping a raw score into the valid range, mapping a score to its tier and
// deriving recommendation attributes from a detected pattern.
package scorer

import (
	"fmt"
	"math"

	"github.com/awion/cryon-risk/model"
)

// Score bounds, inclusive
const (
	MinScore = 5
	MaxScore = 50
)

// Tier lower bounds, inclusive
const (
	criticalFrom = 40
	highFrom     = 25
	mediumFrom   = 15
)

// DefaultInitialScore is used when an entity is created without a score
const DefaultInitialScore = 10

// TierOf maps a score to its risk tier
func TierOf(score int) model.Severity {
	switch {
	case score >= criticalFrom:
		return model.SeverityCritical
	case score >= highFrom:
		return model.SeverityHigh
	case score >= mediumFrom:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// Clamp rounds score half away from zero and bounds it to [MinScore, MaxScore].
// NaN maps to MinScore.
func Clamp(score float64) int {
	if math.IsNaN(score) {
		return MinScore
	}
	rounded := math.Round(score)
	if rounded < MinScore {
		return MinScore
	}
	if rounded > MaxScore {
		return MaxScore
	}
	return int(rounded)
}

// Settle recomputes the derived status of e from its score
func Settle(e *model.Entity) {
	e.Status = TierOf(e.RiskScore)
}

// MustConsistent panics if e breaks the score range or tier invariant
func MustConsistent(e *model.Entity) {
	if e.RiskScore < MinScore || e.RiskScore > MaxScore {
		panic(fmt.Sprintf("scorer: entity %s has score %d outside [%d,%d]", e.ID, e.RiskScore, MinScore, MaxScore))
	}
	if want := TierOf(e.RiskScore); e.Status != want {
		panic(fmt.Sprintf("scorer: entity %s has status %q, score %d maps to %q", e.ID, e.Status, e.RiskScore, want))
	}
}

// RecommendationTypeFor maps a pattern category to the remediation area
func RecommendationTypeFor(category model.Category) model.RecommendationType {
	switch category {
	case model.CategoryAccess:
		return model.RecommendAccess
	case model.CategoryNetwork:
		return model.RecommendFirewall
	case model.CategoryAuthentication:
		return model.RecommendConfiguration
	default:
		return model.RecommendMonitoring
	}
}

// PriorityFor maps a pattern severity (1-10) to a recommendation priority
func PriorityFor(severity int) model.Severity {
	switch {
	case severity >= 8:
		return model.SeverityCritical
	case severity >= 6:
		return model.SeverityHigh
	case severity >= 4:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// PatternIncrement is the score added to an entity when a pattern is attached
func PatternIncrement(severity int) int {
	return severity / 2
}

// PatternImpact is floor(severity*0.8) plus a jitter in [0,2]
func PatternImpact(severity, jitter int) int {
	return int(math.Floor(float64(severity)*0.8)) + jitter
}
