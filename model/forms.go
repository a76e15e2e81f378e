package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// EntityForm is the input for creating an entity
type EntityForm struct {
	Name             string     `json:"name" yaml:"name" validate:"required"`
	Type             EntityType `json:"type" yaml:"type" validate:"required,oneof=user device application"`
	Department       string     `json:"department" yaml:"department" validate:"required"`
	InitialRiskScore *int       `json:"initialRiskScore,omitempty" yaml:"initialRiskScore,omitempty" validate:"omitempty,min=5,max=50"`
}

// Validate trims text fields and checks the form
func (f *EntityForm) Validate() error {
	f.Name = strings.TrimSpace(f.Name)
	f.Department = strings.TrimSpace(f.Department)
	return check(f)
}

// PatternForm is the input for attaching a detected pattern to an entity.
// Threshold is only carried for the operator's reference.
type PatternForm struct {
	Name        string   `json:"name" yaml:"name" validate:"required"`
	Description string   `json:"description" yaml:"description" validate:"required"`
	Severity    int      `json:"severity" yaml:"severity" validate:"min=1,max=10"`
	Category    Category `json:"category" yaml:"category" validate:"required,oneof=access behavior network authentication"`
	Threshold   int      `json:"threshold" yaml:"threshold" validate:"min=1"`
}

// Validate trims text fields and checks the form
func (f *PatternForm) Validate() error {
	f.Name = strings.TrimSpace(f.Name)
	f.Description = strings.TrimSpace(f.Description)
	return check(f)
}

// Validate trims text fields and checks the rule. The ID is not checked since
// it is assigned by the engine on creation.
func (r *RiskRule) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
	return check(r)
}

// ValidateReason checks the justification given for a manual score override
func ValidateReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%w: reason is required", ErrValidation)
	}
	return nil
}

func check(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}
