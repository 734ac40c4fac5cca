package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/premeepro/production/internal/models"
)

// JobFilter narrows a job listing
type JobFilter struct {
	Statuses   []models.JobStatus
	TemplateID *uuid.UUID
	// StepID matches pending jobs waiting at this step definition and started jobs whose
	// active step was cloned from it
	StepID *uuid.UUID
	Query  string
	Limit  int
	Offset int
}

// JobRepository defines the interface for job storage
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	Update(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Job, error)
	List(ctx context.Context, filter JobFilter) ([]models.Job, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DetachTemplate(ctx context.Context, templateID uuid.UUID) error
	SetPendingStep(ctx context.Context, templateID *uuid.UUID, stepID *uuid.UUID) error
	ForEachBatch(ctx context.Context, size int, fn func(jobs []models.Job) error) error
}

type jobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db}
}

// Create inserts a job
func (r *jobRepository) Create(ctx context.Context, job *models.Job) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(job).Error
	return translate(err, ErrCreateFailed, "create job")
}

// Update saves every column of the job, nil pointers included
func (r *jobRepository) Update(ctx context.Context, job *models.Job) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Save(job).Error
	return translate(err, ErrUpdateFailed, "update job")
}

// Get returns a job without its steps
func (r *jobRepository) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, translate(err, nil, "get job")
	}
	return &job, nil
}

// GetForUpdate returns a job and holds a row lock on it until the transaction ends
func (r *jobRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&job).Error
	if err != nil {
		return nil, translate(err, nil, "lock job")
	}
	return &job, nil
}

// GetByOrderNumber returns the job created for an order
func (r *jobRepository) GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).Where("order_number = ?", orderNumber).First(&job).Error; err != nil {
		return nil, translate(err, nil, "get job by order number")
	}
	return &job, nil
}

// List returns one page of jobs matching filter and the total match count
func (r *jobRepository) List(ctx context.Context, filter JobFilter) ([]models.Job, int64, error) {
	where := func(q *gorm.DB) *gorm.DB {
		if len(filter.Statuses) > 0 {
			q = q.Where("status IN ?", filter.Statuses)
		}
		if filter.TemplateID != nil {
			q = q.Where("template_id = ?", *filter.TemplateID)
		}
		if filter.StepID != nil {
			active := r.db.Model(&models.JobStep{}).Select("id").Where("step_template_id = ?", *filter.StepID)
			q = q.Where("pending_template_step_id = ? OR active_job_step_id IN (?)", *filter.StepID, active)
		}
		if s := strings.TrimSpace(filter.Query); s != "" {
			like := "%" + s + "%"
			q = q.Where("order_number ILIKE ? OR customer_name ILIKE ? OR product_name ILIKE ?", like, like, like)
		}
		return q
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Job{}).Scopes(where).Count(&total).Error; err != nil {
		return nil, 0, translate(err, nil, "count jobs")
	}

	q := r.db.WithContext(ctx).Scopes(where).Order("created_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var jobs []models.Job
	if err := q.Find(&jobs).Error; err != nil {
		return nil, 0, translate(err, nil, "list jobs")
	}
	return jobs, total, nil
}

// Delete removes a job together with its steps, details and attachments
func (r *jobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	for _, dep := range []interface{}{&models.StepAttachment{}, &models.StepDetail{}, &models.JobStep{}} {
		if err := db.Where("job_id = ?", id).Delete(dep).Error; err != nil {
			return translate(err, ErrDeleteFailed, "delete job dependents")
		}
	}
	res := db.Where("id = ?", id).Delete(&models.Job{})
	if res.Error != nil {
		return translate(res.Error, ErrDeleteFailed, "delete job")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DetachTemplate clears the template of pending jobs that reference templateID
func (r *jobRepository) DetachTemplate(ctx context.Context, templateID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("template_id = ? AND status = ?", templateID, models.JobStatusPending).
		Updates(map[string]interface{}{
			"template_id":              nil,
			"pending_template_step_id": nil,
		}).Error
	return translate(err, ErrUpdateFailed, "detach template from jobs")
}

// SetPendingStep points every pending job of a template at stepID. A nil templateID
// targets pending jobs without a template of their own.
func (r *jobRepository) SetPendingStep(ctx context.Context, templateID *uuid.UUID, stepID *uuid.UUID) error {
	q := r.db.WithContext(ctx).Model(&models.Job{}).Where("status = ?", models.JobStatusPending)
	if templateID != nil {
		q = q.Where("template_id = ?", *templateID)
	} else {
		q = q.Where("template_id IS NULL")
	}
	err := q.Update("pending_template_step_id", stepID).Error
	return translate(err, ErrUpdateFailed, "set pending step")
}

// ForEachBatch walks every job in batches of size
func (r *jobRepository) ForEachBatch(ctx context.Context, size int, fn func(jobs []models.Job) error) error {
	var batch []models.Job
	res := r.db.WithContext(ctx).
		Preload("Steps", orderedSteps).
		FindInBatches(&batch, size, func(tx *gorm.DB, _ int) error {
			return fn(batch)
		})
	return translate(res.Error, nil, "iterate jobs")
}
