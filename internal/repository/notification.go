package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/premeepro/production/internal/models"
)

// NotificationRepository stores in-app notifications, channel settings and push tokens
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, recipientID uuid.UUID, limit int, unreadOnly bool) ([]models.Notification, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, recipientID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
	Delete(ctx context.Context, recipientID, id uuid.UUID) error
	DeleteAll(ctx context.Context, recipientID uuid.UUID) (int64, error)
	Trim(ctx context.Context, recipientID uuid.UUID, keep int) error
	PruneRead(ctx context.Context, before time.Time) (int64, error)

	GetSetting(ctx context.Context, recipientID uuid.UUID) (*models.NotificationSetting, error)
	SaveSetting(ctx context.Context, s *models.NotificationSetting) error

	SavePushToken(ctx context.Context, t *models.PushToken) error
	DeletePushToken(ctx context.Context, recipientID uuid.UUID, token string) error
	ListPushTokens(ctx context.Context, recipientID uuid.UUID) ([]models.PushToken, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// Create inserts a notification
func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return translate(r.db.WithContext(ctx).Create(n).Error, ErrCreateFailed, "create notification")
}

// List returns the newest notifications of a recipient
func (r *notificationRepository) List(ctx context.Context, recipientID uuid.UUID, limit int, unreadOnly bool) ([]models.Notification, error) {
	q := r.db.WithContext(ctx).Where("recipient_id = ?", recipientID)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	var out []models.Notification
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, translate(err, nil, "list notifications")
	}
	return out, nil
}

// CountUnread returns the number of unread notifications of a recipient
func (r *notificationRepository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Count(&n).Error
	return n, translate(err, nil, "count unread notifications")
}

// MarkRead marks one notification of a recipient as read
func (r *notificationRepository) MarkRead(ctx context.Context, recipientID, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Updates(map[string]interface{}{"read": true, "read_at": time.Now().UTC()})
	if res.Error != nil {
		return translate(res.Error, ErrUpdateFailed, "mark notification read")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification of a recipient as read
func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Updates(map[string]interface{}{"read": true, "read_at": time.Now().UTC()})
	return res.RowsAffected, translate(res.Error, ErrUpdateFailed, "mark all notifications read")
}

// Delete removes one notification of a recipient
func (r *notificationRepository) Delete(ctx context.Context, recipientID, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Delete(&models.Notification{})
	if res.Error != nil {
		return translate(res.Error, ErrDeleteFailed, "delete notification")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll removes every notification of a recipient
func (r *notificationRepository) DeleteAll(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("recipient_id = ?", recipientID).Delete(&models.Notification{})
	return res.RowsAffected, translate(res.Error, ErrDeleteFailed, "delete notifications")
}

// Trim keeps only the newest keep notifications of a recipient
func (r *notificationRepository) Trim(ctx context.Context, recipientID uuid.UUID, keep int) error {
	newest := r.db.Model(&models.Notification{}).
		Select("id").
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Limit(keep)
	err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND id NOT IN (?)", recipientID, newest).
		Delete(&models.Notification{}).Error
	return translate(err, ErrDeleteFailed, "trim notifications")
}

// PruneRead deletes read notifications created before the given time
func (r *notificationRepository) PruneRead(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("read = ? AND created_at < ?", true, before).
		Delete(&models.Notification{})
	return res.RowsAffected, translate(res.Error, ErrDeleteFailed, "prune notifications")
}

// GetSetting returns the channel settings of a recipient, all channels off when none are stored
func (r *notificationRepository) GetSetting(ctx context.Context, recipientID uuid.UUID) (*models.NotificationSetting, error) {
	var s models.NotificationSetting
	err := r.db.WithContext(ctx).Where("recipient_id = ?", recipientID).First(&s).Error
	if err != nil {
		if err = translate(err, nil, "get notification setting"); err == ErrNotFound {
			return &models.NotificationSetting{RecipientID: recipientID}, nil
		}
		return nil, err
	}
	return &s, nil
}

// SaveSetting inserts or replaces the channel settings of a recipient
func (r *notificationRepository) SaveSetting(ctx context.Context, s *models.NotificationSetting) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "recipient_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"line_enabled", "line_user_id", "web_push_enabled", "updated_at"}),
		}).
		Create(s).Error
	return translate(err, ErrUpdateFailed, "save notification setting")
}

// SavePushToken registers a push token, moving it to the recipient if it already exists
func (r *notificationRepository) SavePushToken(ctx context.Context, t *models.PushToken) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoUpdates: clause.AssignmentColumns([]string{"recipient_id", "platform", "updated_at"}),
		}).
		Create(t).Error
	return translate(err, ErrCreateFailed, "save push token")
}

// DeletePushToken removes a push token of a recipient
func (r *notificationRepository) DeletePushToken(ctx context.Context, recipientID uuid.UUID, token string) error {
	res := r.db.WithContext(ctx).
		Where("recipient_id = ? AND token = ?", recipientID, token).
		Delete(&models.PushToken{})
	if res.Error != nil {
		return translate(res.Error, ErrDeleteFailed, "delete push token")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPushTokens returns the push tokens of a recipient
func (r *notificationRepository) ListPushTokens(ctx context.Context, recipientID uuid.UUID) ([]models.PushToken, error) {
	var tokens []models.PushToken
	if err := r.db.WithContext(ctx).Where("recipient_id = ?", recipientID).Find(&tokens).Error; err != nil {
		return nil, translate(err, nil, "list push tokens")
	}
	return tokens, nil
}
