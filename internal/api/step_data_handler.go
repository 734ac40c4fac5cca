package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/premeepro/production/internal/auth"
	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/service"
)

// StepDataHandler handles step detail and attachment requests
type StepDataHandler struct {
	data *service.StepDataService
}

// NewStepDataHandler creates a new step data handler
func NewStepDataHandler(data *service.StepDataService) *StepDataHandler {
	return &StepDataHandler{data: data}
}

// RegisterRoutes registers the handler's routes
func (h *StepDataHandler) RegisterRoutes(rg *gin.RouterGroup) {
	read := RequireCapability(auth.JobsRead)
	progress := RequireCapability(auth.JobsProgress)

	rg.GET("/jobs/:id/steps-data", read, h.GetAll)
	rg.GET("/jobs/:id/steps/:stepId/details", read, h.GetDetail)
	rg.PUT("/jobs/:id/steps/:stepId/details", progress, h.SaveDetail)
	rg.GET("/jobs/:id/steps/:stepId/attachments", read, h.ListAttachments)
	rg.POST("/jobs/:id/steps/:stepId/attachments", progress, h.AddAttachment)
	rg.DELETE("/attachments/:id", progress, h.DeleteAttachment)
}

// GetAll returns the details and attachments of every step of a job
func (h *StepDataHandler) GetAll(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	data, err := h.data.GetAll(c.Request.Context(), id)
	if err != nil {
		WriteError(c, err)
		return
	}
	if data == nil {
		data = []models.StepData{}
	}
	c.JSON(http.StatusOK, gin.H{"steps": data})
}

// GetDetail returns the detail of one step
func (h *StepDataHandler) GetDetail(c *gin.Context) {
	jobID, stepID, ok := stepParams(c)
	if !ok {
		return
	}
	detail, err := h.data.GetDetail(c.Request.Context(), jobID, stepID)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// SaveDetail creates or replaces the detail of one step
func (h *StepDataHandler) SaveDetail(c *gin.Context) {
	jobID, stepID, ok := stepParams(c)
	if !ok {
		return
	}
	var in service.StepDetailInput
	if !bindJSON(c, &in, false) {
		return
	}
	detail, err := h.data.SaveDetail(c.Request.Context(), jobID, stepID, in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ListAttachments returns the attachments of one step
func (h *StepDataHandler) ListAttachments(c *gin.Context) {
	jobID, stepID, ok := stepParams(c)
	if !ok {
		return
	}
	attachments, err := h.data.ListAttachments(c.Request.Context(), jobID, stepID)
	if err != nil {
		WriteError(c, err)
		return
	}
	if attachments == nil {
		attachments = []models.StepAttachment{}
	}
	c.JSON(http.StatusOK, gin.H{"attachments": attachments})
}

// AddAttachment adds an attachment to a step
func (h *StepDataHandler) AddAttachment(c *gin.Context) {
	jobID, stepID, ok := stepParams(c)
	if !ok {
		return
	}
	var in service.AttachmentInput
	if !bindJSON(c, &in, false) {
		return
	}
	attachment, err := h.data.AddAttachment(c.Request.Context(), jobID, stepID, in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, attachment)
}

// DeleteAttachment removes an attachment
func (h *StepDataHandler) DeleteAttachment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.data.DeleteAttachment(c.Request.Context(), id); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
