package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/repository"
	"example.com/premeepro/production/internal/validation"
)

// Setting types accepted by UpdateSetting
const (
	SettingLine    = "line"
	SettingWebPush = "webPush"
)

// ChannelSetting is the state of one delivery channel
type ChannelSetting struct {
	Enabled   bool  `json:"enabled"`
	Connected *bool `json:"connected,omitempty"`
	HasTokens *bool `json:"hasTokens,omitempty"`
}

// NotificationSettings is the channel overview of one recipient
type NotificationSettings struct {
	Line    ChannelSetting `json:"line"`
	WebPush ChannelSetting `json:"webPush"`
}

// UpdateSettingInput toggles one channel
type UpdateSettingInput struct {
	Type    string `json:"type" validate:"required,oneof=line webPush"`
	Enabled bool   `json:"enabled"`
}

// PushTokenInput registers a web push token
type PushTokenInput struct {
	Token    string `json:"token" validate:"required,max=4096"`
	Platform string `json:"platform" validate:"omitempty,oneof=web android ios"`
}

// NotificationService manages the in-app notifications and channel settings of a recipient
type NotificationService struct {
	repos *repository.Repositories
	now   func() time.Time
}

// NewNotificationService creates a notification service
func NewNotificationService(repos *repository.Repositories) *NotificationService {
	return &NotificationService{
		repos: repos,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// List returns the newest notifications of a recipient
func (s *NotificationService) List(ctx context.Context, recipientID uuid.UUID, n int, unreadOnly bool) ([]models.Notification, error) {
	return s.repos.Notifications.List(ctx, recipientID, limit(n, 50, 50), unreadOnly)
}

// UnreadCount counts the unread notifications of a recipient
func (s *NotificationService) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	return s.repos.Notifications.CountUnread(ctx, recipientID)
}

// MarkRead marks one notification read
func (s *NotificationService) MarkRead(ctx context.Context, recipientID, id uuid.UUID) error {
	return s.repos.Notifications.MarkRead(ctx, recipientID, id)
}

// MarkAllRead marks every notification of a recipient read
func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	return s.repos.Notifications.MarkAllRead(ctx, recipientID)
}

// Delete removes one notification
func (s *NotificationService) Delete(ctx context.Context, recipientID, id uuid.UUID) error {
	return s.repos.Notifications.Delete(ctx, recipientID, id)
}

// DeleteAll removes every notification of a recipient
func (s *NotificationService) DeleteAll(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	return s.repos.Notifications.DeleteAll(ctx, recipientID)
}

// GetSettings reports which channels are enabled and usable
func (s *NotificationService) GetSettings(ctx context.Context, recipientID uuid.UUID) (*NotificationSettings, error) {
	setting, err := s.repos.Notifications.GetSetting(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	tokens, err := s.repos.Notifications.ListPushTokens(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	connected := setting.LineUserID != ""
	hasTokens := len(tokens) > 0
	return &NotificationSettings{
		Line:    ChannelSetting{Enabled: setting.LineEnabled, Connected: &connected},
		WebPush: ChannelSetting{Enabled: setting.WebPushEnabled, HasTokens: &hasTokens},
	}, nil
}

// UpdateSetting turns one channel on or off
func (s *NotificationService) UpdateSetting(ctx context.Context, recipientID uuid.UUID, in UpdateSettingInput) (*NotificationSettings, error) {
	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}

	setting, err := s.repos.Notifications.GetSetting(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	switch in.Type {
	case SettingLine:
		setting.LineEnabled = in.Enabled
	case SettingWebPush:
		setting.WebPushEnabled = in.Enabled
	}
	setting.UpdatedAt = s.now()
	if err := s.repos.Notifications.SaveSetting(ctx, setting); err != nil {
		return nil, err
	}

	log.Debug().Str("recipient_id", recipientID.String()).Str("type", in.Type).Bool("enabled", in.Enabled).Msg("notification setting updated")
	return s.GetSettings(ctx, recipientID)
}

// SetLineUser links a LINE account to a recipient; an empty id unlinks it and disables LINE
func (s *NotificationService) SetLineUser(ctx context.Context, recipientID uuid.UUID, lineUserID string) error {
	setting, err := s.repos.Notifications.GetSetting(ctx, recipientID)
	if err != nil {
		return err
	}
	setting.LineUserID = strings.TrimSpace(lineUserID)
	if setting.LineUserID == "" {
		setting.LineEnabled = false
	}
	setting.UpdatedAt = s.now()
	return s.repos.Notifications.SaveSetting(ctx, setting)
}

// SavePushToken registers a web push token; a token seen before moves to this recipient
func (s *NotificationService) SavePushToken(ctx context.Context, recipientID uuid.UUID, in PushTokenInput) (*models.PushToken, error) {
	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}

	platform := in.Platform
	if platform == "" {
		platform = "web"
	}
	token := &models.PushToken{
		Base:        models.Base{ID: uuid.New()},
		RecipientID: recipientID,
		Token:       strings.TrimSpace(in.Token),
		Platform:    platform,
	}
	if err := s.repos.Notifications.SavePushToken(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// RemovePushToken unregisters a web push token
func (s *NotificationService) RemovePushToken(ctx context.Context, recipientID uuid.UUID, token string) error {
	if strings.TrimSpace(token) == "" {
		return &validation.Error{Fields: map[string]string{"token": "is required"}}
	}
	return s.repos.Notifications.DeletePushToken(ctx, recipientID, strings.TrimSpace(token))
}

// PruneRead deletes read notifications older than the retention window
func (s *NotificationService) PruneRead(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, errors.New("retention must be positive")
	}
	n, err := s.repos.Notifications.PruneRead(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Dur("retention", retention).Msg("pruned read notifications")
	}
	return n, nil
}
