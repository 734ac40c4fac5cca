package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base holds the identity and timestamps shared by every entity
type Base struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns an id when the caller did not
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// All returns every persisted entity in migration order
func All() []interface{} {
	return []interface{}{
		&Template{},
		&StepDefinition{},
		&Job{},
		&JobStep{},
		&StepDetail{},
		&StepAttachment{},
		&ChangeEvent{},
		&APIKey{},
		&Notification{},
		&NotificationSetting{},
		&PushToken{},
	}
}
