package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind classifies an in-app notification
type NotificationKind string

const (
	NotificationJobCreated   NotificationKind = "job_created"
	NotificationJobStarted   NotificationKind = "job_started"
	NotificationJobAdvanced  NotificationKind = "job_advanced"
	NotificationJobCompleted NotificationKind = "job_completed"
	NotificationJobCancelled NotificationKind = "job_cancelled"
)

// Notification is an in-app notification addressed to one staff member
type Notification struct {
	Base
	RecipientID uuid.UUID        `gorm:"type:uuid;not null;index" json:"recipient_id"`
	Kind        NotificationKind `gorm:"type:varchar(32);not null" json:"kind"`
	Title       string           `gorm:"not null" json:"title"`
	Message     string           `json:"message"`
	JobID       *uuid.UUID       `gorm:"type:uuid;index" json:"job_id,omitempty"`
	Read        bool             `gorm:"not null;index" json:"read"`
	ReadAt      *time.Time       `json:"read_at,omitempty"`
}

// NotificationSetting holds the delivery channel toggles of one staff member
type NotificationSetting struct {
	RecipientID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"recipient_id"`
	LineEnabled    bool      `gorm:"not null" json:"line_enabled"`
	LineUserID     string    `json:"line_user_id,omitempty"`
	WebPushEnabled bool      `gorm:"not null" json:"web_push_enabled"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PushToken is a web push subscription token of one staff member
type PushToken struct {
	Base
	RecipientID uuid.UUID `gorm:"type:uuid;not null;index" json:"recipient_id"`
	Token       string    `gorm:"not null;uniqueIndex" json:"token"`
	Platform    string    `gorm:"type:varchar(20);not null" json:"platform"`
}
