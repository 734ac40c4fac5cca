package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further status transitions are permitted
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// StepStatus is the status of a single job step
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusSkipped    StepStatus = "skipped"
)

// Job is one unit of production work tracked through steps.
//
// PendingTemplateStepID points at a StepDefinition and is only set while the job is
// pending. ActiveJobStepID points at a JobStep and is only set once the job has started.
type Job struct {
	Base
	OrderID               string     `gorm:"column:order_id;index" json:"order_id,omitempty"`
	OrderNumber           string     `gorm:"column:order_number;not null;uniqueIndex" json:"order_number"`
	CustomerName          string     `gorm:"not null" json:"customer_name"`
	ProductName           string     `gorm:"not null" json:"product_name"`
	Quantity              int        `gorm:"not null" json:"quantity"`
	Notes                 string     `json:"notes,omitempty"`
	DueDate               *time.Time `json:"due_date,omitempty"`
	TemplateID            *uuid.UUID `gorm:"type:uuid;index" json:"template_id,omitempty"`
	Status                JobStatus  `gorm:"type:varchar(20);not null;index" json:"status"`
	PendingTemplateStepID *uuid.UUID `gorm:"type:uuid;index" json:"pending_template_step_id,omitempty"`
	ActiveJobStepID       *uuid.UUID `gorm:"type:uuid" json:"active_job_step_id,omitempty"`
	CancelReason          string     `json:"cancel_reason,omitempty"`
	StartedAt             *time.Time `json:"started_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	CancelledAt           *time.Time `json:"cancelled_at,omitempty"`
	Version               int        `gorm:"not null" json:"version"`
	Steps                 []JobStep  `gorm:"foreignKey:JobID" json:"steps,omitempty"`
}

// JobStep is a per-job clone of a step definition
type JobStep struct {
	Base
	JobID          uuid.UUID  `gorm:"type:uuid;not null;index" json:"job_id"`
	StepTemplateID *uuid.UUID `gorm:"type:uuid" json:"step_template_id,omitempty"`
	Name           string     `gorm:"not null" json:"name"`
	Order          int        `gorm:"column:step_order;not null" json:"order"`
	Status         StepStatus `gorm:"type:varchar(20);not null" json:"status"`
	OperatorName   string     `json:"operator_name,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}
