package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/awion/cryon-risk/model"
	"github.com/awion/cryon-risk/public/api"
	"github.com/awion/cryon-risk/public/engine"
	"github.com/awion/cryon-risk/public/logging"
	"github.com/awion/cryon-risk/public/notifier"
	"github.com/awion/cryon-risk/public/storage"
	"gopkg.in/yaml.v2"
)

// Config represents the application configuration
type Config struct {
	General struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Version     string `yaml:"version"`
	} `yaml:"general"`

	Logging    logging.Config          `yaml:"logging"`
	Storage    storage.StorageConfig   `yaml:"storage"`
	Simulation engine.SimulationConfig `yaml:"simulation"`
	API        api.Config              `yaml:"api"`
	Notify     notifier.Config         `yaml:"notify"`

	Departments      []string            `yaml:"departments"`
	PatternTemplates []model.PatternForm `yaml:"patternTemplates"`
	Rules            []model.RiskRule    `yaml:"rules"`
	Entities         []model.EntityForm  `yaml:"entities"`
}

// LoadConfig loads configuration from a file
func LoadConfig(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file does not exist: %s", absPath)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	// Set defaults for missing values
	setDefaults(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults fills in default values for missing configuration
func setDefaults(config *Config) {
	// General defaults
	if config.General.Name == "" {
		config.General.Name = "Cryon Risk"
	}
	if config.General.Version == "" {
		config.General.Version = "0.1.0"
	}

	// Logging defaults
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	// Storage defaults
	if config.Storage.Type == "" {
		config.Storage.Type = "memory"
	}
	if config.Storage.TrendCapacity == 0 {
		config.Storage.TrendCapacity = storage.DefaultTrendCapacity
	}

	// Simulation defaults
	defaults := engine.DefaultSimulationConfig()
	if config.Simulation.DriftInterval == 0 {
		config.Simulation.DriftInterval = defaults.DriftInterval
	}
	if config.Simulation.AlertInterval == 0 {
		config.Simulation.AlertInterval = defaults.AlertInterval
	}
	if len(config.Simulation.Messages) == 0 {
		config.Simulation.Messages = defaults.Messages
	}

	// API defaults
	if config.API.Address == "" {
		config.API.Address = ":8080"
	}

	// Notify defaults
	if config.Notify.Enabled() && config.Notify.Subject == "" {
		config.Notify.Subject = notifier.DefaultSubject
	}

	if len(config.Departments) == 0 {
		config.Departments = DefaultDepartments()
	}
	if len(config.PatternTemplates) == 0 {
		config.PatternTemplates = DefaultPatternTemplates()
	}
}

// validateConfig checks if the configuration is valid
func validateConfig(config *Config) error {
	switch config.Storage.Type {
	case "memory":
		// No additional validation needed
	case "file":
		if config.Storage.Path == "" {
			return fmt.Errorf("file storage requires a path")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", config.Storage.Type)
	}
	if config.Storage.TrendCapacity < 0 {
		return fmt.Errorf("storage trend capacity must not be negative")
	}

	if config.Simulation.DriftInterval < 0 || config.Simulation.AlertInterval < 0 {
		return fmt.Errorf("simulation intervals must be positive")
	}
	if p := config.Simulation.AlertProbability; p < 0 || p > 1 {
		return fmt.Errorf("alert probability must be between 0 and 1, got %v", p)
	}

	for i := range config.PatternTemplates {
		if err := config.PatternTemplates[i].Validate(); err != nil {
			return fmt.Errorf("pattern template #%d: %w", i+1, err)
		}
	}

	seen := make(map[string]bool, len(config.Rules))
	for i := range config.Rules {
		rule := &config.Rules[i]
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rule #%d: %w", i+1, err)
		}
		if rule.ID != "" {
			if seen[rule.ID] {
				return fmt.Errorf("rule #%d has duplicate id %s", i+1, rule.ID)
			}
			seen[rule.ID] = true
		}
	}

	for i := range config.Entities {
		if err := config.Entities[i].Validate(); err != nil {
			return fmt.Errorf("entity #%d: %w", i+1, err)
		}
	}

	return nil
}

// SaveConfig writes the configuration to a file
func SaveConfig(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	return nil
}

// Default returns the configuration written by CreateDefaultConfig
func Default() *Config {
	config := &Config{}

	// General section
	config.General.Name = "Cryon Risk"
	config.General.Description = "Entity Risk Scoring Engine"
	config.General.Version = "0.1.0"

	// Logging section
	config.Logging.Level = "info"
	config.Logging.File = "cryon-risk.log"
	config.Logging.MaxSizeMB = 100
	config.Logging.MaxBackups = 3
	config.Logging.MaxAgeDays = 28

	// Storage section
	config.Storage.Type = "memory"
	config.Storage.TrendCapacity = storage.DefaultTrendCapacity

	config.Simulation = engine.DefaultSimulationConfig()

	// API section
	config.API.Enabled = false
	config.API.Address = ":8080"

	config.Departments = DefaultDepartments()
	config.PatternTemplates = DefaultPatternTemplates()
	config.Rules = DefaultRules()
	config.Entities = DefaultEntities()
	return config
}

// CreateDefaultConfig generates a default configuration file
func CreateDefaultConfig(path string) error {
	return SaveConfig(Default(), path)
}

// DefaultDepartments lists the departments offered when adding an entity
func DefaultDepartments() []string {
	return []string{
		"Engineering", "Finance", "HR", "Sales", "Marketing",
		"IT Infrastructure", "Security", "Operations", "Legal",
	}
}

// DefaultPatternTemplates returns the pattern presets offered to operators
func DefaultPatternTemplates() []model.PatternForm {
	return []model.PatternForm{
		{
			Name:        "Unusual Login Hours",
			Description: "Login attempts outside normal business hours",
			Severity:    6,
			Category:    model.CategoryAuthentication,
			Threshold:   2,
		},
		{
			Name:        "Excessive File Access",
			Description: "Accessing unusually large number of files",
			Severity:    7,
			Category:    model.CategoryAccess,
			Threshold:   10,
		},
		{
			Name:        "Privilege Escalation",
			Description: "Attempts to gain higher system privileges",
			Severity:    9,
			Category:    model.CategoryAccess,
			Threshold:   1,
		},
		{
			Name:        "Data Exfiltration Pattern",
			Description: "Large data transfers to external locations",
			Severity:    8,
			Category:    model.CategoryNetwork,
			Threshold:   5,
		},
	}
}

// DefaultRules returns the initial detection rules
func DefaultRules() []model.RiskRule {
	return []model.RiskRule{
		{
			ID:          "RR001",
			Name:        "Failed Login Attempts",
			Description: "Detects multiple failed authentication attempts",
			Weight:      8,
			Threshold:   5,
			Enabled:     true,
			Category:    model.CategoryAuthentication,
		},
		{
			ID:          "RR002",
			Name:        "Off-Hours Access",
			Description: "Monitors access attempts outside business hours",
			Weight:      6,
			Threshold:   3,
			Enabled:     true,
			Category:    model.CategoryBehavior,
		},
		{
			ID:          "RR003",
			Name:        "Privilege Escalation",
			Description: "Detects attempts to gain elevated privileges",
			Weight:      10,
			Threshold:   1,
			Enabled:     true,
			Category:    model.CategoryAccess,
		},
		{
			ID:          "RR004",
			Name:        "Unusual Data Transfer",
			Description: "Monitors large or unusual data transfers",
			Weight:      7,
			Threshold:   10,
			Enabled:     true,
			Category:    model.CategoryNetwork,
		},
		{
			ID:          "RR005",
			Name:        "Suspicious File Access",
			Description: "Detects access to sensitive files",
			Weight:      9,
			Threshold:   2,
			Enabled:     false,
			Category:    model.CategoryAccess,
		},
	}
}

// DefaultEntities returns the entities registered on first start
func DefaultEntities() []model.EntityForm {
	score := func(v int) *int { return &v }
	return []model.EntityForm{
		{Name: "John Smith", Type: model.EntityUser, Department: "Engineering", InitialRiskScore: score(42)},
		{Name: "Sarah Johnson", Type: model.EntityUser, Department: "Finance", InitialRiskScore: score(15)},
		{Name: "Dev-Server-01", Type: model.EntityDevice, Department: "IT Infrastructure", InitialRiskScore: score(28)},
		{Name: "CRM-Application", Type: model.EntityApplication, Department: "Sales", InitialRiskScore: score(35)},
	}
}
