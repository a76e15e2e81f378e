package model

import (
	"errors"
	"time"
)

// ErrValidation is wrapped by every error caused by malformed command input
var ErrValidation = errors.New("validation failed")

// Severity represents a risk level. It is used for entity status tiers,
// alert severities and recommendation priorities.
type Severity string

// Severity levels
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists every level from lowest to highest
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// ParseSeverity converts a string to a Severity type
func ParseSeverity(s string) (Severity, bool) {
	switch s {
	case "CRITICAL", "critical":
		return SeverityCritical, true
	case "HIGH", "high":
		return SeverityHigh, true
	case "MEDIUM", "medium":
		return SeverityMedium, true
	case "LOW", "low":
		return SeverityLow, true
	default:
		return "", false
	}
}

// EntityType is the kind of monitored entity
type EntityType string

// Entity types
const (
	EntityUser        EntityType = "user"
	EntityDevice      EntityType = "device"
	EntityApplication EntityType = "application"
)

// AlertType classifies how an alert was raised
type AlertType string

// Alert types
const (
	AlertAnomaly   AlertType = "anomaly"
	AlertThreshold AlertType = "threshold"
	AlertPattern   AlertType = "pattern"
)

// AlertTypes lists every alert type
var AlertTypes = []AlertType{AlertAnomaly, AlertThreshold, AlertPattern}

// RecommendationType is the remediation area of a recommendation
type RecommendationType string

// Recommendation types
const (
	RecommendConfiguration RecommendationType = "configuration"
	RecommendFirewall      RecommendationType = "firewall"
	RecommendAccess        RecommendationType = "access"
	RecommendMonitoring    RecommendationType = "monitoring"
)

// Category groups patterns and rules by the signal they watch
type Category string

// Categories
const (
	CategoryAccess         Category = "access"
	CategoryBehavior       Category = "behavior"
	CategoryNetwork        Category = "network"
	CategoryAuthentication Category = "authentication"
)

// Entity is a user, device or application under risk assessment.
// Status is a cache of the tier of RiskScore and is recomputed by the store
// on every mutation.
type Entity struct {
	ID              string           `json:"id" yaml:"id"`
	Name            string           `json:"name" yaml:"name"`
	Type            EntityType       `json:"type" yaml:"type"`
	Department      string           `json:"department" yaml:"department"`
	RiskScore       int              `json:"riskScore" yaml:"riskScore"`
	Status          Severity         `json:"status" yaml:"status"`
	LastActivity    time.Time        `json:"lastActivity" yaml:"lastActivity"`
	Patterns        []Pattern        `json:"patterns" yaml:"patterns"`
	Recommendations []Recommendation `json:"recommendations" yaml:"recommendations"`
}

// Clone returns a copy that shares no slices with e
func (e Entity) Clone() Entity {
	c := e
	c.Patterns = make([]Pattern, len(e.Patterns))
	copy(c.Patterns, e.Patterns)
	c.Recommendations = make([]Recommendation, len(e.Recommendations))
	copy(c.Recommendations, e.Recommendations)
	return c
}

// Pattern is a detected behavioural signal owned by one entity
type Pattern struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Description  string    `json:"description" yaml:"description"`
	Severity     int       `json:"severity" yaml:"severity"`
	Frequency    int       `json:"frequency" yaml:"frequency"`
	Impact       int       `json:"impact" yaml:"impact"`
	LastDetected time.Time `json:"lastDetected" yaml:"lastDetected"`
}

// Recommendation is a suggested remediation for one entity
type Recommendation struct {
	ID            string             `json:"id" yaml:"id"`
	Type          RecommendationType `json:"type" yaml:"type"`
	Priority      Severity           `json:"priority" yaml:"priority"`
	Title         string             `json:"title" yaml:"title"`
	Description   string             `json:"description" yaml:"description"`
	Impact        string             `json:"impact" yaml:"impact"`
	EstimatedTime string             `json:"estimatedTime" yaml:"estimatedTime"`
}

// Alert is a time-stamped event referencing an entity. EntityID is a weak
// reference; the alert outlives any change to the entity set.
type Alert struct {
	ID           string    `json:"id" yaml:"id"`
	EntityID     string    `json:"entityId" yaml:"entityId"`
	Type         AlertType `json:"type" yaml:"type"`
	Severity     Severity  `json:"severity" yaml:"severity"`
	Message      string    `json:"message" yaml:"message"`
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
	Acknowledged bool      `json:"acknowledged" yaml:"acknowledged"`
}

// RiskRule is an operator-tunable detection rule. Rules are configuration
// only; no score is derived from them.
type RiskRule struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name" validate:"required"`
	Description string   `json:"description" yaml:"description" validate:"required"`
	Weight      int      `json:"weight" yaml:"weight" validate:"min=1,max=10"`
	Threshold   int      `json:"threshold" yaml:"threshold" validate:"min=1"`
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Category    Category `json:"category" yaml:"category" validate:"required,oneof=access behavior network authentication"`
}

// RiskTrend is one recorded score sample of an entity
type RiskTrend struct {
	EntityID  string    `json:"entityId" yaml:"entityId"`
	Score     int       `json:"score" yaml:"score"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Summary holds the dashboard figures over the current entity and alert sets
type Summary struct {
	TotalEntities    int `json:"totalEntities"`
	HighRiskEntities int `json:"highRiskEntities"`
	ActiveAlerts     int `json:"activeAlerts"`
	AverageRiskScore int `json:"averageRiskScore"`
}
