package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"example.com/premeepro/production/internal/auth"
	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/service"
)

// NotificationHandler serves the caller's own notifications and settings
type NotificationHandler struct {
	notifications *service.NotificationService
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// SettingRequest toggles a channel. LineUserID, when present, links or unlinks a LINE
// account before the toggle is applied.
type SettingRequest struct {
	service.UpdateSettingInput
	LineUserID *string `json:"line_user_id"`
}

// PushTokenRequest names the token to remove
type PushTokenRequest struct {
	Token string `json:"token"`
}

// RegisterRoutes registers the handler's routes
func (h *NotificationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	own := RequireCapability(auth.NotificationsOwn)

	rg.GET("/notifications", own, h.List)
	rg.GET("/notifications/count", own, h.UnreadCount)
	rg.PUT("/notifications/read-all", own, h.MarkAllRead)
	rg.PUT("/notifications/:id/read", own, h.MarkRead)
	rg.DELETE("/notifications", own, h.DeleteAll)
	rg.DELETE("/notifications/:id", own, h.Delete)
	rg.GET("/notifications/settings", own, h.GetSettings)
	rg.PUT("/notifications/settings", own, h.UpdateSettings)
	rg.POST("/push-tokens", own, h.SavePushToken)
	rg.DELETE("/push-tokens", own, h.RemovePushToken)
}

// List returns the newest notifications of the caller
func (h *NotificationHandler) List(c *gin.Context) {
	p, _ := principalFrom(c)
	n, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	unreadOnly, _ := strconv.ParseBool(c.Query("unread_only"))

	items, err := h.notifications.List(c.Request.Context(), p.ID, n, unreadOnly)
	if err != nil {
		WriteError(c, err)
		return
	}
	if items == nil {
		items = []models.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// UnreadCount returns the number of unread notifications
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	p, _ := principalFrom(c)
	n, err := h.notifications.UnreadCount(c.Request.Context(), p.ID)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

// MarkRead marks one notification read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	p, _ := principalFrom(c)
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), p.ID, id); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkAllRead marks every notification read
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	p, _ := principalFrom(c)
	n, err := h.notifications.MarkAllRead(c.Request.Context(), p.ID)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// Delete removes one notification
func (h *NotificationHandler) Delete(c *gin.Context) {
	p, _ := principalFrom(c)
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.Delete(c.Request.Context(), p.ID, id); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteAll removes every notification of the caller
func (h *NotificationHandler) DeleteAll(c *gin.Context) {
	p, _ := principalFrom(c)
	n, err := h.notifications.DeleteAll(c.Request.Context(), p.ID)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// GetSettings returns the caller's channel settings
func (h *NotificationHandler) GetSettings(c *gin.Context) {
	p, _ := principalFrom(c)
	settings, err := h.notifications.GetSettings(c.Request.Context(), p.ID)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings links LINE and toggles a channel
func (h *NotificationHandler) UpdateSettings(c *gin.Context) {
	p, _ := principalFrom(c)
	var req SettingRequest
	if !bindJSON(c, &req, false) {
		return
	}

	ctx := c.Request.Context()
	if req.LineUserID != nil {
		if err := h.notifications.SetLineUser(ctx, p.ID, *req.LineUserID); err != nil {
			WriteError(c, err)
			return
		}
	}

	var (
		settings *service.NotificationSettings
		err      error
	)
	if req.Type == "" && req.LineUserID != nil {
		settings, err = h.notifications.GetSettings(ctx, p.ID)
	} else {
		settings, err = h.notifications.UpdateSetting(ctx, p.ID, req.UpdateSettingInput)
	}
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// SavePushToken registers a push token for the caller
func (h *NotificationHandler) SavePushToken(c *gin.Context) {
	p, _ := principalFrom(c)
	var in service.PushTokenInput
	if !bindJSON(c, &in, false) {
		return
	}
	token, err := h.notifications.SavePushToken(c.Request.Context(), p.ID, in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, token)
}

// RemovePushToken unregisters a push token, read from the body or the token query parameter
func (h *NotificationHandler) RemovePushToken(c *gin.Context) {
	p, _ := principalFrom(c)
	req := PushTokenRequest{Token: c.Query("token")}
	if req.Token == "" && !bindJSON(c, &req, true) {
		return
	}
	if err := h.notifications.RemovePushToken(c.Request.Context(), p.ID, req.Token); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
