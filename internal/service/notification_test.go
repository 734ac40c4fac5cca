package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/repository/mocks"
	"example.com/premeepro/production/internal/validation"
)

func TestNotificationSettings(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	svc := NewNotificationService(store.Repositories())
	recipient := uuid.New()

	setting := &models.NotificationSetting{RecipientID: recipient, LineUserID: "U123"}
	store.Notifications.On("GetSetting", ctx, recipient).Return(setting, nil)
	store.Notifications.On("ListPushTokens", ctx, recipient).Return([]models.PushToken{}, nil)
	store.Notifications.On("SaveSetting", ctx, mock.MatchedBy(func(s *models.NotificationSetting) bool {
		return s.RecipientID == recipient && s.LineEnabled
	})).Return(nil)

	out, err := svc.UpdateSetting(ctx, recipient, UpdateSettingInput{Type: SettingLine, Enabled: true})
	require.NoError(t, err)
	assert.True(t, out.Line.Enabled)
	assert.True(t, *out.Line.Connected)
	assert.False(t, out.WebPush.Enabled)
	assert.False(t, *out.WebPush.HasTokens)
	store.AssertExpectations(t)
}

func TestNotificationUpdateSettingRejectsUnknownType(t *testing.T) {
	store := mocks.NewStore()
	svc := NewNotificationService(store.Repositories())

	_, err := svc.UpdateSetting(context.Background(), uuid.New(), UpdateSettingInput{Type: "email", Enabled: true})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "type")
}

func TestUnlinkingLineDisablesIt(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	svc := NewNotificationService(store.Repositories())
	recipient := uuid.New()

	store.Notifications.On("GetSetting", ctx, recipient).
		Return(&models.NotificationSetting{RecipientID: recipient, LineEnabled: true, LineUserID: "U123"}, nil)
	store.Notifications.On("SaveSetting", ctx, mock.MatchedBy(func(s *models.NotificationSetting) bool {
		return s.LineUserID == "" && !s.LineEnabled
	})).Return(nil)

	require.NoError(t, svc.SetLineUser(ctx, recipient, "  "))
	store.AssertExpectations(t)
}

func TestSavePushTokenDefaultsToWeb(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	svc := NewNotificationService(store.Repositories())
	recipient := uuid.New()

	store.Notifications.On("SavePushToken", ctx, mock.MatchedBy(func(tok *models.PushToken) bool {
		return tok.RecipientID == recipient && tok.Platform == "web" && tok.Token == "tok-1"
	})).Return(nil)

	tok, err := svc.SavePushToken(ctx, recipient, PushTokenInput{Token: "tok-1"})
	require.NoError(t, err)
	assert.Equal(t, "web", tok.Platform)

	err = svc.RemovePushToken(ctx, recipient, "")
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	store.AssertExpectations(t)
}

func TestNotificationListCapsLimit(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	svc := NewNotificationService(store.Repositories())
	recipient := uuid.New()

	store.Notifications.On("List", ctx, recipient, 50, true).Return([]models.Notification{}, nil).Twice()

	_, err := svc.List(ctx, recipient, 500, true)
	require.NoError(t, err)
	_, err = svc.List(ctx, recipient, 0, true)
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestPruneRead(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	svc := NewNotificationService(store.Repositories())
	now := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	store.Notifications.On("PruneRead", ctx, now.Add(-30*24*time.Hour)).Return(int64(7), nil)

	n, err := svc.PruneRead(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	_, err = svc.PruneRead(ctx, 0)
	assert.Error(t, err)
	store.AssertExpectations(t)
}
