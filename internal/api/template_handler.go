package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/premeepro/production/internal/auth"
	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/service"
)

// TemplateHandler handles template requests
type TemplateHandler struct {
	templates *service.TemplateService
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(templates *service.TemplateService) *TemplateHandler {
	return &TemplateHandler{templates: templates}
}

// DuplicateRequest names the copy; empty derives a name from the source
type DuplicateRequest struct {
	Name string `json:"name"`
}

// RegisterRoutes registers the handler's routes
func (h *TemplateHandler) RegisterRoutes(rg *gin.RouterGroup) {
	read := RequireCapability(auth.TemplatesRead)
	manage := RequireCapability(auth.TemplatesManage)

	rg.GET("/templates", read, h.List)
	rg.GET("/templates/:id", read, h.Get)
	rg.POST("/templates", manage, h.Create)
	rg.POST("/templates/create-default", manage, h.CreateDefault)
	rg.PUT("/templates/:id", manage, h.Update)
	rg.DELETE("/templates/:id", manage, h.Delete)
	rg.POST("/templates/:id/duplicate", manage, h.Duplicate)
	rg.POST("/templates/:id/default", manage, h.SetDefault)

	rg.POST("/templates/:id/steps", manage, h.AddStep)
	rg.PUT("/templates/:id/steps/:stepId", manage, h.UpdateStep)
	rg.DELETE("/templates/:id/steps/:stepId", manage, h.DeleteStep)
}

// List returns every template
func (h *TemplateHandler) List(c *gin.Context) {
	templates, err := h.templates.List(c.Request.Context())
	if err != nil {
		WriteError(c, err)
		return
	}
	if templates == nil {
		templates = []models.Template{}
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

// Get returns a template with its steps
func (h *TemplateHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	tmpl, err := h.templates.Get(c.Request.Context(), id)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

// Create adds a template
func (h *TemplateHandler) Create(c *gin.Context) {
	var in service.CreateTemplateInput
	if !bindJSON(c, &in, false) {
		return
	}
	tmpl, err := h.templates.Create(c.Request.Context(), in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tmpl)
}

// CreateDefault adds the starter template
func (h *TemplateHandler) CreateDefault(c *gin.Context) {
	tmpl, err := h.templates.CreateDefault(c.Request.Context())
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tmpl)
}

// Update changes a template
func (h *TemplateHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in service.UpdateTemplateInput
	if !bindJSON(c, &in, false) {
		return
	}
	tmpl, err := h.templates.Update(c.Request.Context(), id, in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

// Delete removes a template
func (h *TemplateHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.templates.Delete(c.Request.Context(), id); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Duplicate copies a template and its steps
func (h *TemplateHandler) Duplicate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req DuplicateRequest
	if !bindJSON(c, &req, true) {
		return
	}
	tmpl, err := h.templates.Duplicate(c.Request.Context(), id, req.Name)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tmpl)
}

// SetDefault makes a template the default
func (h *TemplateHandler) SetDefault(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	tmpl, err := h.templates.SetDefault(c.Request.Context(), id)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

// AddStep adds a step definition
func (h *TemplateHandler) AddStep(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in service.StepDefinitionInput
	if !bindJSON(c, &in, false) {
		return
	}
	step, err := h.templates.AddStep(c.Request.Context(), id, in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, step)
}

// UpdateStep renames, moves or toggles a step definition
func (h *TemplateHandler) UpdateStep(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	stepID, ok := idParam(c, "stepId")
	if !ok {
		return
	}
	var in service.StepDefinitionInput
	if !bindJSON(c, &in, false) {
		return
	}
	step, err := h.templates.UpdateStep(c.Request.Context(), id, stepID, in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, step)
}

// DeleteStep removes a step definition
func (h *TemplateHandler) DeleteStep(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	stepID, ok := idParam(c, "stepId")
	if !ok {
		return
	}
	if err := h.templates.DeleteStep(c.Request.Context(), id, stepID); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
