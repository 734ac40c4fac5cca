package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"example.com/premeepro/production/internal/auth"
	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/repository"
	"example.com/premeepro/production/internal/search"
	"example.com/premeepro/production/internal/service"
	"example.com/premeepro/production/internal/validation"
)

// JobHandler handles job lifecycle requests
type JobHandler struct {
	jobs *service.JobService
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs *service.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// CancelRequest is the body of a cancel request
type CancelRequest struct {
	Reason string `json:"reason"`
}

// RenameStepRequest is the body of a step rename
type RenameStepRequest struct {
	Name string `json:"name"`
}

// ReorderStepsRequest lists the remaining steps in their new order
type ReorderStepsRequest struct {
	StepIDs []uuid.UUID `json:"step_ids"`
}

// JobListResponse is one page of jobs
type JobListResponse struct {
	Jobs  []models.Job `json:"jobs"`
	Total int64        `json:"total"`
}

// RegisterRoutes registers the handler's routes
func (h *JobHandler) RegisterRoutes(rg *gin.RouterGroup) {
	read := RequireCapability(auth.JobsRead)
	progress := RequireCapability(auth.JobsProgress)
	manage := RequireCapability(auth.JobsManage)

	rg.GET("/jobs", read, h.List)
	rg.GET("/jobs/search", read, h.Search)
	rg.GET("/jobs/:id", read, h.Get)
	rg.POST("/jobs", manage, h.Create)
	rg.PUT("/jobs/:id", manage, h.Update)
	// the deletion policy checks the capability together with the job status
	rg.DELETE("/jobs/:id", h.Delete)

	rg.POST("/jobs/:id/start", manage, h.Start)
	rg.POST("/jobs/:id/advance", progress, h.Advance)
	rg.POST("/jobs/:id/complete", progress, h.Complete)
	rg.POST("/jobs/:id/cancel", manage, h.Cancel)
	rg.GET("/jobs/:id/history", read, h.History)

	rg.GET("/jobs/:id/steps", read, h.ListSteps)
	rg.POST("/jobs/:id/steps", manage, h.AddStep)
	rg.POST("/jobs/:id/steps/reorder", manage, h.ReorderSteps)
	rg.PATCH("/jobs/:id/steps/:stepId", manage, h.RenameStep)
	rg.DELETE("/jobs/:id/steps/:stepId", manage, h.DeleteStep)
	rg.POST("/jobs/:id/steps/:stepId/skip", manage, h.SkipStep)
}

// List returns jobs filtered by status, template and step
func (h *JobHandler) List(c *gin.Context) {
	filter := repository.JobFilter{Query: c.Query("q")}
	for _, s := range queryList(c, "status") {
		if !validation.IsValidJobStatus(s) {
			WriteError(c, NewValidationError("unknown status "+s))
			return
		}
		filter.Statuses = append(filter.Statuses, models.JobStatus(s))
	}

	var ok bool
	if filter.TemplateID, ok = queryUUID(c, "template_id"); !ok {
		return
	}
	if filter.StepID, ok = queryUUID(c, "step_id"); !ok {
		return
	}
	if filter.Limit, ok = queryInt(c, "limit", 0); !ok {
		return
	}
	if filter.Offset, ok = queryInt(c, "offset", 0); !ok {
		return
	}

	jobs, total, err := h.jobs.List(c.Request.Context(), filter)
	if err != nil {
		WriteError(c, err)
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	c.JSON(http.StatusOK, JobListResponse{Jobs: jobs, Total: total})
}

// Search runs a full text search over the job index
func (h *JobHandler) Search(c *gin.Context) {
	q := search.JobQuery{Text: c.Query("q")}
	for _, s := range queryList(c, "status") {
		if !validation.IsValidJobStatus(s) {
			WriteError(c, NewValidationError("unknown status "+s))
			return
		}
		q.Statuses = append(q.Statuses, models.JobStatus(s))
	}

	var ok bool
	if q.From, ok = queryInt(c, "from", 0); !ok {
		return
	}
	if q.From < 0 {
		WriteError(c, NewValidationError("from must not be negative"))
		return
	}
	if q.Size, ok = queryInt(c, "size", 0); !ok {
		return
	}

	res, err := h.jobs.Search(c.Request.Context(), q)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Get returns a job with its steps
func (h *JobHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	job, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// Create adds a pending job
func (h *JobHandler) Create(c *gin.Context) {
	var in service.CreateJobInput
	if !bindJSON(c, &in, false) {
		return
	}
	job, err := h.jobs.Create(c.Request.Context(), in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// Update changes job metadata
func (h *JobHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in service.UpdateJobInput
	if !bindJSON(c, &in, false) {
		return
	}
	job, err := h.jobs.Update(c.Request.Context(), id, in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// Delete removes a completed or cancelled job
func (h *JobHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	p, ok := principalFrom(c)
	if !ok {
		WriteError(c, ErrUnauthorized)
		return
	}
	if err := h.jobs.Delete(c.Request.Context(), p, id); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Start clones the template into the job and activates the first step
func (h *JobHandler) Start(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	job, err := h.jobs.Start(c.Request.Context(), id)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// Advance moves the job to its next step
func (h *JobHandler) Advance(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in service.AdvanceInput
	if !bindJSON(c, &in, false) {
		return
	}
	job, err := h.jobs.Advance(c.Request.Context(), id, in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// Complete finishes a job at its last step
func (h *JobHandler) Complete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in service.CompleteInput
	if !bindJSON(c, &in, true) {
		return
	}
	job, err := h.jobs.Complete(c.Request.Context(), id, in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// Cancel stops a job
func (h *JobHandler) Cancel(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req CancelRequest
	if !bindJSON(c, &req, true) {
		return
	}
	job, err := h.jobs.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// History returns the change events of a job
func (h *JobHandler) History(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	events, err := h.jobs.History(c.Request.Context(), id)
	if err != nil {
		WriteError(c, err)
		return
	}
	if events == nil {
		events = []models.ChangeEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// ListSteps returns the steps of a job in order
func (h *JobHandler) ListSteps(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	steps, err := h.jobs.ListSteps(c.Request.Context(), id)
	if err != nil {
		WriteError(c, err)
		return
	}
	if steps == nil {
		steps = []models.JobStep{}
	}
	c.JSON(http.StatusOK, gin.H{"steps": steps})
}

// AddStep appends or inserts a step
func (h *JobHandler) AddStep(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in service.AddStepInput
	if !bindJSON(c, &in, false) {
		return
	}
	step, err := h.jobs.AddStep(c.Request.Context(), id, in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, step)
}

// RenameStep renames a step
func (h *JobHandler) RenameStep(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	stepID, ok := idParam(c, "stepId")
	if !ok {
		return
	}
	var req RenameStepRequest
	if !bindJSON(c, &req, false) {
		return
	}
	step, err := h.jobs.RenameStep(c.Request.Context(), id, stepID, req.Name)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, step)
}

// DeleteStep removes a pending or skipped step
func (h *JobHandler) DeleteStep(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	stepID, ok := idParam(c, "stepId")
	if !ok {
		return
	}
	if err := h.jobs.DeleteStep(c.Request.Context(), id, stepID); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SkipStep marks a pending step skipped
func (h *JobHandler) SkipStep(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	stepID, ok := idParam(c, "stepId")
	if !ok {
		return
	}
	step, err := h.jobs.SkipStep(c.Request.Context(), id, stepID)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, step)
}

// ReorderSteps reorders the steps after the active one
func (h *JobHandler) ReorderSteps(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req ReorderStepsRequest
	if !bindJSON(c, &req, false) {
		return
	}
	steps, err := h.jobs.ReorderSteps(c.Request.Context(), id, req.StepIDs)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"steps": steps})
}
