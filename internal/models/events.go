package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Aggregate types recorded on change events
const (
	AggregateJob = "job"
)

// Change event types
const (
	EventJobCreated        = "job.created"
	EventJobUpdated        = "job.updated"
	EventJobStarted        = "job.started"
	EventJobAdvanced       = "job.advanced"
	EventJobCompleted      = "job.completed"
	EventJobCancelled      = "job.cancelled"
	EventJobDeleted        = "job.deleted"
	EventJobStepAdded      = "job.step_added"
	EventJobStepRenamed    = "job.step_renamed"
	EventJobStepDeleted    = "job.step_deleted"
	EventJobStepSkipped    = "job.step_skipped"
	EventJobStepsReordered = "job.steps_reordered"
)

// ChangeEvent is an outbox row written in the same transaction as the change it describes
type ChangeEvent struct {
	Sequence      uint64          `gorm:"primaryKey;autoIncrement" json:"sequence"`
	EventID       uuid.UUID       `gorm:"type:uuid;uniqueIndex" json:"event_id"`
	AggregateID   uuid.UUID       `gorm:"type:uuid;index" json:"aggregate_id"`
	AggregateType string          `gorm:"not null" json:"aggregate_type"`
	EventType     string          `gorm:"not null;index" json:"event_type"`
	Data          json.RawMessage `gorm:"type:jsonb" json:"data"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `gorm:"index" json:"occurred_at"`
	Processed     bool            `gorm:"index" json:"-"`
	ProcessedAt   *time.Time      `json:"-"`
	Attempts      int             `json:"-"`
	LastError     *string         `json:"-"`
}

// JobEventData is the payload of job change events
type JobEventData struct {
	JobID          uuid.UUID  `json:"job_id"`
	OrderNumber    string     `json:"order_number"`
	CustomerName   string     `json:"customer_name"`
	ProductName    string     `json:"product_name"`
	Quantity       int        `json:"quantity"`
	Status         JobStatus  `json:"status"`
	ActiveStepID   *uuid.UUID `json:"active_step_id,omitempty"`
	ActiveStepName string     `json:"active_step_name,omitempty"`
	StepID         *uuid.UUID `json:"step_id,omitempty"`
	StepName       string     `json:"step_name,omitempty"`
	PreviousName   string     `json:"previous_name,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	Actor          string     `json:"actor,omitempty"`
}
