package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/premeepro/production/internal/models"
)

// StepDataRepository defines the interface for step details and attachments
type StepDataRepository interface {
	GetDetail(ctx context.Context, stepID uuid.UUID) (*models.StepDetail, error)
	SaveDetail(ctx context.Context, detail *models.StepDetail) error
	ListDetailsByJob(ctx context.Context, jobID uuid.UUID) ([]models.StepDetail, error)
	ListAttachmentsByJob(ctx context.Context, jobID uuid.UUID) ([]models.StepAttachment, error)
	ListAttachmentsByStep(ctx context.Context, stepID uuid.UUID) ([]models.StepAttachment, error)
	GetAttachment(ctx context.Context, id uuid.UUID) (*models.StepAttachment, error)
	CreateAttachment(ctx context.Context, a *models.StepAttachment) error
	DeleteAttachment(ctx context.Context, id uuid.UUID) error
}

type stepDataRepository struct {
	db *gorm.DB
}

// NewStepDataRepository creates a new step data repository
func NewStepDataRepository(db *gorm.DB) StepDataRepository {
	return &stepDataRepository{db: db}
}

// GetDetail returns the detail row of a step
func (r *stepDataRepository) GetDetail(ctx context.Context, stepID uuid.UUID) (*models.StepDetail, error) {
	var detail models.StepDetail
	if err := r.db.WithContext(ctx).Where("job_step_id = ?", stepID).First(&detail).Error; err != nil {
		return nil, translate(err, nil, "get step detail")
	}
	return &detail, nil
}

// SaveDetail inserts or replaces the detail row of a step
func (r *stepDataRepository) SaveDetail(ctx context.Context, detail *models.StepDetail) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "job_step_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"details",
				"operator_name",
				"shipping_tracking_number",
				"shipping_carrier",
				"shipping_barcode_image",
				"shipping_pack_image",
				"shipping_notes",
				"updated_at",
			}),
		}).
		Create(detail).Error
	return translate(err, ErrUpdateFailed, "save step detail")
}

// ListDetailsByJob returns the detail rows of every step of a job
func (r *stepDataRepository) ListDetailsByJob(ctx context.Context, jobID uuid.UUID) ([]models.StepDetail, error) {
	var details []models.StepDetail
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).Find(&details).Error; err != nil {
		return nil, translate(err, nil, "list step details")
	}
	return details, nil
}

// ListAttachmentsByJob returns every attachment of a job, oldest first
func (r *stepDataRepository) ListAttachmentsByJob(ctx context.Context, jobID uuid.UUID) ([]models.StepAttachment, error) {
	var attachments []models.StepAttachment
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&attachments).Error
	if err != nil {
		return nil, translate(err, nil, "list job attachments")
	}
	return attachments, nil
}

// ListAttachmentsByStep returns the attachments of a step, oldest first
func (r *stepDataRepository) ListAttachmentsByStep(ctx context.Context, stepID uuid.UUID) ([]models.StepAttachment, error) {
	var attachments []models.StepAttachment
	err := r.db.WithContext(ctx).
		Where("job_step_id = ?", stepID).
		Order("created_at ASC").
		Find(&attachments).Error
	if err != nil {
		return nil, translate(err, nil, "list step attachments")
	}
	return attachments, nil
}

// GetAttachment returns one attachment
func (r *stepDataRepository) GetAttachment(ctx context.Context, id uuid.UUID) (*models.StepAttachment, error) {
	var a models.StepAttachment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, translate(err, nil, "get attachment")
	}
	return &a, nil
}

// CreateAttachment inserts an attachment
func (r *stepDataRepository) CreateAttachment(ctx context.Context, a *models.StepAttachment) error {
	return translate(r.db.WithContext(ctx).Create(a).Error, ErrCreateFailed, "create attachment")
}

// DeleteAttachment removes an attachment
func (r *stepDataRepository) DeleteAttachment(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.StepAttachment{})
	if res.Error != nil {
		return translate(res.Error, ErrDeleteFailed, "delete attachment")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
