package models

import (
	"github.com/google/uuid"
)

// Template is a named, reusable ordered list of step definitions
type Template struct {
	Base
	Name        string           `gorm:"not null" json:"name"`
	Description string           `json:"description"`
	IsDefault   bool             `gorm:"not null;index" json:"is_default"`
	IsActive    bool             `gorm:"not null" json:"is_active"`
	Steps       []StepDefinition `gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE" json:"steps,omitempty"`
	StepCount   int              `gorm:"-" json:"step_count"`
}

// ActiveSteps returns the active step definitions in template order.
// Steps are expected to be loaded ordered by step_order.
func (t *Template) ActiveSteps() []StepDefinition {
	active := make([]StepDefinition, 0, len(t.Steps))
	for _, s := range t.Steps {
		if s.IsActive {
			active = append(active, s)
		}
	}
	return active
}

// StepDefinition is one named stage within a template
type StepDefinition struct {
	Base
	TemplateID uuid.UUID `gorm:"type:uuid;not null;index" json:"template_id"`
	Name       string    `gorm:"not null" json:"name"`
	Order      int       `gorm:"column:step_order;not null" json:"order"`
	IsActive   bool      `gorm:"not null" json:"is_active"`
}
