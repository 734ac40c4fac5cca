package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/premeepro/production/internal/models"
)

// TemplateRepository defines the interface for template and step definition storage
type TemplateRepository interface {
	List(ctx context.Context) ([]models.Template, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Template, error)
	GetDefaults(ctx context.Context) ([]models.Template, error)
	Create(ctx context.Context, t *models.Template) error
	Update(ctx context.Context, t *models.Template) error
	Delete(ctx context.Context, id uuid.UUID) error
	ClearDefault(ctx context.Context, exceptID uuid.UUID) error

	GetStep(ctx context.Context, templateID, stepID uuid.UUID) (*models.StepDefinition, error)
	CreateStep(ctx context.Context, step *models.StepDefinition) error
	UpdateStep(ctx context.Context, step *models.StepDefinition) error
	DeleteStep(ctx context.Context, templateID, stepID uuid.UUID) error
	ShiftSteps(ctx context.Context, templateID uuid.UUID, fromOrder, delta int) error
	MaxStepOrder(ctx context.Context, templateID uuid.UUID) (int, error)
}

type templateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

func orderedSteps(db *gorm.DB) *gorm.DB {
	return db.Order("step_order ASC")
}

// List returns every template with its number of active steps
func (r *templateRepository) List(ctx context.Context) ([]models.Template, error) {
	var templates []models.Template
	if err := r.db.WithContext(ctx).Order("is_default DESC, name ASC").Find(&templates).Error; err != nil {
		return nil, translate(err, nil, "list templates")
	}

	var counts []struct {
		TemplateID uuid.UUID
		Count      int
	}
	err := r.db.WithContext(ctx).
		Model(&models.StepDefinition{}).
		Select("template_id, count(*) AS count").
		Where("is_active = ?", true).
		Group("template_id").
		Scan(&counts).Error
	if err != nil {
		return nil, translate(err, nil, "count template steps")
	}

	byTemplate := make(map[uuid.UUID]int, len(counts))
	for _, c := range counts {
		byTemplate[c.TemplateID] = c.Count
	}
	for i := range templates {
		templates[i].StepCount = byTemplate[templates[i].ID]
	}
	return templates, nil
}

// Get returns a template with its steps ordered
func (r *templateRepository) Get(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	var t models.Template
	err := r.db.WithContext(ctx).
		Preload("Steps", orderedSteps).
		Where("id = ?", id).
		First(&t).Error
	if err != nil {
		return nil, translate(err, nil, "get template")
	}
	t.StepCount = len(t.ActiveSteps())
	return &t, nil
}

// GetDefaults returns every template flagged as default, with ordered steps
func (r *templateRepository) GetDefaults(ctx context.Context) ([]models.Template, error) {
	var templates []models.Template
	err := r.db.WithContext(ctx).
		Preload("Steps", orderedSteps).
		Where("is_default = ?", true).
		Find(&templates).Error
	if err != nil {
		return nil, translate(err, nil, "get default templates")
	}
	return templates, nil
}

// Create inserts a template together with its steps
func (r *templateRepository) Create(ctx context.Context, t *models.Template) error {
	return translate(r.db.WithContext(ctx).Create(t).Error, ErrCreateFailed, "create template")
}

// Update saves the template row; steps are managed separately
func (r *templateRepository) Update(ctx context.Context, t *models.Template) error {
	res := r.db.WithContext(ctx).Omit(clause.Associations).Save(t)
	return translate(res.Error, ErrUpdateFailed, "update template")
}

// Delete removes a template and its step definitions
func (r *templateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("template_id = ?", id).Delete(&models.StepDefinition{}).Error; err != nil {
		return translate(err, ErrDeleteFailed, "delete template steps")
	}
	res := db.Where("id = ?", id).Delete(&models.Template{})
	if res.Error != nil {
		return translate(res.Error, ErrDeleteFailed, "delete template")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearDefault unsets the default flag on every template except exceptID
func (r *templateRepository) ClearDefault(ctx context.Context, exceptID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Model(&models.Template{}).
		Where("is_default = ? AND id <> ?", true, exceptID).
		Update("is_default", false).Error
	return translate(err, ErrUpdateFailed, "clear default template")
}

// GetStep returns one step definition of a template
func (r *templateRepository) GetStep(ctx context.Context, templateID, stepID uuid.UUID) (*models.StepDefinition, error) {
	var step models.StepDefinition
	err := r.db.WithContext(ctx).
		Where("id = ? AND template_id = ?", stepID, templateID).
		First(&step).Error
	if err != nil {
		return nil, translate(err, nil, "get template step")
	}
	return &step, nil
}

// CreateStep inserts a step definition
func (r *templateRepository) CreateStep(ctx context.Context, step *models.StepDefinition) error {
	return translate(r.db.WithContext(ctx).Create(step).Error, ErrCreateFailed, "create template step")
}

// UpdateStep saves a step definition
func (r *templateRepository) UpdateStep(ctx context.Context, step *models.StepDefinition) error {
	return translate(r.db.WithContext(ctx).Save(step).Error, ErrUpdateFailed, "update template step")
}

// DeleteStep removes a step definition
func (r *templateRepository) DeleteStep(ctx context.Context, templateID, stepID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND template_id = ?", stepID, templateID).
		Delete(&models.StepDefinition{})
	if res.Error != nil {
		return translate(res.Error, ErrDeleteFailed, "delete template step")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ShiftSteps adds delta to the order of every step at or after fromOrder
func (r *templateRepository) ShiftSteps(ctx context.Context, templateID uuid.UUID, fromOrder, delta int) error {
	err := r.db.WithContext(ctx).
		Model(&models.StepDefinition{}).
		Where("template_id = ? AND step_order >= ?", templateID, fromOrder).
		Update("step_order", gorm.Expr("step_order + ?", delta)).Error
	return translate(err, ErrUpdateFailed, "shift template steps")
}

// MaxStepOrder returns the highest step order of a template, 0 when it has none
func (r *templateRepository) MaxStepOrder(ctx context.Context, templateID uuid.UUID) (int, error) {
	var max int
	err := r.db.WithContext(ctx).
		Model(&models.StepDefinition{}).
		Select("COALESCE(MAX(step_order), 0)").
		Where("template_id = ?", templateID).
		Scan(&max).Error
	if err != nil {
		return 0, translate(err, nil, "max template step order")
	}
	return max, nil
}
