package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/premeepro/production/internal/engine"
	"example.com/premeepro/production/internal/models"
)

// JobStepRepository defines the interface for job step storage
type JobStepRepository interface {
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.JobStep, error)
	Get(ctx context.Context, jobID, stepID uuid.UUID) (*models.JobStep, error)
	Apply(ctx context.Context, changes engine.Changes) error
}

type jobStepRepository struct {
	db *gorm.DB
}

// NewJobStepRepository creates a new job step repository
func NewJobStepRepository(db *gorm.DB) JobStepRepository {
	return &jobStepRepository{db: db}
}

// ListByJob returns the steps of a job ordered by position
func (r *jobStepRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.JobStep, error) {
	var steps []models.JobStep
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("step_order ASC").
		Find(&steps).Error
	if err != nil {
		return nil, translate(err, nil, "list job steps")
	}
	return steps, nil
}

// Get returns one step of a job
func (r *jobStepRepository) Get(ctx context.Context, jobID, stepID uuid.UUID) (*models.JobStep, error) {
	var step models.JobStep
	err := r.db.WithContext(ctx).
		Where("id = ? AND job_id = ?", stepID, jobID).
		First(&step).Error
	if err != nil {
		return nil, translate(err, nil, "get job step")
	}
	return &step, nil
}

// Apply persists the step rows a lifecycle operation touched. Deleted steps take their
// details and attachments with them.
func (r *jobStepRepository) Apply(ctx context.Context, changes engine.Changes) error {
	db := r.db.WithContext(ctx)

	if len(changes.Deleted) > 0 {
		for _, dep := range []interface{}{&models.StepAttachment{}, &models.StepDetail{}} {
			if err := db.Where("job_step_id IN ?", changes.Deleted).Delete(dep).Error; err != nil {
				return translate(err, ErrDeleteFailed, "delete step data")
			}
		}
		if err := db.Where("id IN ?", changes.Deleted).Delete(&models.JobStep{}).Error; err != nil {
			return translate(err, ErrDeleteFailed, "delete job steps")
		}
	}

	if len(changes.Created) > 0 {
		if err := db.Create(changes.Created).Error; err != nil {
			return translate(err, ErrCreateFailed, "create job steps")
		}
	}

	for _, step := range changes.Updated {
		if err := db.Save(step).Error; err != nil {
			return translate(err, ErrUpdateFailed, "update job step")
		}
	}
	return nil
}
