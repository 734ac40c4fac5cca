package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"example.com/premeepro/production/internal/engine"
	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/repository"
	"example.com/premeepro/production/internal/tracing"
	"example.com/premeepro/production/internal/validation"
)

// StarterSteps are the steps of the template created by CreateDefault
var StarterSteps = []string{"Cut", "Sew", "QC", "Pack"}

// CreateTemplateInput is the payload of a new template
type CreateTemplateInput struct {
	Name        string   `json:"name" yaml:"name" validate:"required,max=100"`
	Description string   `json:"description" yaml:"description" validate:"max=500"`
	IsActive    *bool    `json:"is_active" yaml:"active"`
	IsDefault   bool     `json:"is_default" yaml:"default"`
	Steps       []string `json:"steps" yaml:"steps" validate:"dive,step_name"`
}

// UpdateTemplateInput changes a template; nil fields are left alone
type UpdateTemplateInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	IsActive    *bool   `json:"is_active"`
	IsDefault   *bool   `json:"is_default"`
}

// StepDefinitionInput adds or changes a template step. Order is 1-based; a missing order
// appends.
type StepDefinitionInput struct {
	Name     *string `json:"name" validate:"omitempty,step_name"`
	Order    *int    `json:"order" validate:"omitempty,min=1"`
	IsActive *bool   `json:"is_active"`
}

// TemplateFile is the YAML document read by Import
type TemplateFile struct {
	Templates []CreateTemplateInput `yaml:"templates"`
}

// TemplateService manages templates and their step definitions
type TemplateService struct {
	tx    repository.Transactor
	repos *repository.Repositories
}

// NewTemplateService creates a template service
func NewTemplateService(tx repository.Transactor, repos *repository.Repositories) *TemplateService {
	return &TemplateService{tx: tx, repos: repos}
}

// List returns every template with its active step count
func (s *TemplateService) List(ctx context.Context) ([]models.Template, error) {
	return s.repos.Templates.List(ctx)
}

// Get returns a template with its ordered steps
func (s *TemplateService) Get(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	return s.repos.Templates.Get(ctx, id)
}

// Create adds a template with its steps in the given order
func (s *TemplateService) Create(ctx context.Context, in CreateTemplateInput) (*models.Template, error) {
	defer tracing.Segment(ctx, "TemplateService.Create")()

	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}

	t := newTemplate(in)
	err := s.tx.Transaction(ctx, func(repos *repository.Repositories) error {
		if err := repos.Templates.Create(ctx, t); err != nil {
			return err
		}
		if t.IsDefault {
			if err := repos.Templates.ClearDefault(ctx, t.ID); err != nil {
				return err
			}
			return refreshDefaultPending(ctx, repos)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.StepCount = len(t.ActiveSteps())
	log.Info().Str("template_id", t.ID.String()).Str("name", t.Name).Msg("template created")
	return t, nil
}

// Update changes the template row. Turning on the default flag clears it everywhere else.
func (s *TemplateService) Update(ctx context.Context, id uuid.UUID, in UpdateTemplateInput) (*models.Template, error) {
	defer tracing.Segment(ctx, "TemplateService.Update")()

	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}

	var t *models.Template
	err := s.tx.Transaction(ctx, func(repos *repository.Repositories) error {
		var err error
		if t, err = repos.Templates.Get(ctx, id); err != nil {
			return err
		}
		wasDefault := t.IsDefault

		if in.Name != nil {
			t.Name = strings.TrimSpace(*in.Name)
		}
		if in.Description != nil {
			t.Description = strings.TrimSpace(*in.Description)
		}
		if in.IsActive != nil {
			t.IsActive = *in.IsActive
		}
		if in.IsDefault != nil {
			t.IsDefault = *in.IsDefault
		}

		if t.IsDefault && !wasDefault {
			if err := repos.Templates.ClearDefault(ctx, t.ID); err != nil {
				return err
			}
		}
		if err := repos.Templates.Update(ctx, t); err != nil {
			return err
		}
		if err := refreshPending(ctx, repos, t); err != nil {
			return err
		}
		if t.IsDefault || wasDefault {
			return refreshDefaultPending(ctx, repos)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a template. Pending jobs that used it fall back to the default template;
// started jobs keep their cloned steps.
func (s *TemplateService) Delete(ctx context.Context, id uuid.UUID) error {
	defer tracing.Segment(ctx, "TemplateService.Delete")()

	return s.tx.Transaction(ctx, func(repos *repository.Repositories) error {
		if err := repos.Jobs.DetachTemplate(ctx, id); err != nil {
			return err
		}
		if err := repos.Templates.Delete(ctx, id); err != nil {
			return err
		}
		return refreshDefaultPending(ctx, repos)
	})
}

// AddStep adds a step definition; inserting at an order shifts the later steps down
func (s *TemplateService) AddStep(ctx context.Context, templateID uuid.UUID, in StepDefinitionInput) (*models.StepDefinition, error) {
	defer tracing.Segment(ctx, "TemplateService.AddStep")()

	if in.Name == nil {
		return nil, &validation.Error{Fields: map[string]string{"name": "is required"}}
	}
	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}

	step := &models.StepDefinition{
		Base:       models.Base{ID: uuid.New()},
		TemplateID: templateID,
		Name:       strings.TrimSpace(*in.Name),
		IsActive:   in.IsActive == nil || *in.IsActive,
	}
	err := s.tx.Transaction(ctx, func(repos *repository.Repositories) error {
		if _, err := repos.Templates.Get(ctx, templateID); err != nil {
			return err
		}
		max, err := repos.Templates.MaxStepOrder(ctx, templateID)
		if err != nil {
			return err
		}

		step.Order = max + 1
		if in.Order != nil && *in.Order <= max {
			step.Order = *in.Order
			if err := repos.Templates.ShiftSteps(ctx, templateID, step.Order, 1); err != nil {
				return err
			}
		}
		if err := repos.Templates.CreateStep(ctx, step); err != nil {
			return err
		}
		return refreshTemplatePending(ctx, repos, templateID)
	})
	if err != nil {
		return nil, err
	}
	return step, nil
}

// UpdateStep renames, moves or toggles a step definition
func (s *TemplateService) UpdateStep(ctx context.Context, templateID, stepID uuid.UUID, in StepDefinitionInput) (*models.StepDefinition, error) {
	defer tracing.Segment(ctx, "TemplateService.UpdateStep")()

	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}

	var step *models.StepDefinition
	err := s.tx.Transaction(ctx, func(repos *repository.Repositories) error {
		var err error
		if step, err = repos.Templates.GetStep(ctx, templateID, stepID); err != nil {
			return err
		}

		if in.Order != nil && *in.Order != step.Order {
			max, err := repos.Templates.MaxStepOrder(ctx, templateID)
			if err != nil {
				return err
			}
			to := *in.Order
			if to > max {
				to = max
			}
			if err := repos.Templates.ShiftSteps(ctx, templateID, step.Order+1, -1); err != nil {
				return err
			}
			if err := repos.Templates.ShiftSteps(ctx, templateID, to, 1); err != nil {
				return err
			}
			step.Order = to
		}
		if in.Name != nil {
			step.Name = strings.TrimSpace(*in.Name)
		}
		if in.IsActive != nil {
			step.IsActive = *in.IsActive
		}

		if err := repos.Templates.UpdateStep(ctx, step); err != nil {
			return err
		}
		return refreshTemplatePending(ctx, repos, templateID)
	})
	if err != nil {
		return nil, err
	}
	return step, nil
}

// DeleteStep removes a step definition and closes the gap it leaves. Jobs already started
// keep their clone of it.
func (s *TemplateService) DeleteStep(ctx context.Context, templateID, stepID uuid.UUID) error {
	defer tracing.Segment(ctx, "TemplateService.DeleteStep")()

	return s.tx.Transaction(ctx, func(repos *repository.Repositories) error {
		step, err := repos.Templates.GetStep(ctx, templateID, stepID)
		if err != nil {
			return err
		}
		if err := repos.Templates.DeleteStep(ctx, templateID, stepID); err != nil {
			return err
		}
		if err := repos.Templates.ShiftSteps(ctx, templateID, step.Order+1, -1); err != nil {
			return err
		}
		return refreshTemplatePending(ctx, repos, templateID)
	})
}

// Duplicate copies a template and its steps under a new name. The copy is never the default.
func (s *TemplateService) Duplicate(ctx context.Context, id uuid.UUID, name string) (*models.Template, error) {
	defer tracing.Segment(ctx, "TemplateService.Duplicate")()

	src, err := s.repos.Templates.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = src.Name + " (copy)"
	}
	dup := &models.Template{
		Base:        models.Base{ID: uuid.New()},
		Name:        name,
		Description: src.Description,
		IsActive:    src.IsActive,
	}
	for _, step := range src.Steps {
		dup.Steps = append(dup.Steps, models.StepDefinition{
			Base:       models.Base{ID: uuid.New()},
			TemplateID: dup.ID,
			Name:       step.Name,
			Order:      step.Order,
			IsActive:   step.IsActive,
		})
	}

	if err := s.repos.Templates.Create(ctx, dup); err != nil {
		return nil, err
	}
	dup.StepCount = len(dup.ActiveSteps())
	return dup, nil
}

// CreateDefault creates the starter template. It becomes the default when none exists.
func (s *TemplateService) CreateDefault(ctx context.Context) (*models.Template, error) {
	defaults, err := s.repos.Templates.GetDefaults(ctx)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, CreateTemplateInput{
		Name:        "Standard Production",
		Description: "Starter template",
		IsDefault:   len(defaults) == 0,
		Steps:       StarterSteps,
	})
}

// SetDefault makes a template the only default
func (s *TemplateService) SetDefault(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	isDefault := true
	return s.Update(ctx, id, UpdateTemplateInput{IsDefault: &isDefault})
}

// Import creates every template of a YAML template file
func (s *TemplateService) Import(ctx context.Context, data []byte) ([]models.Template, error) {
	var file TemplateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "failed to parse template file")
	}
	if len(file.Templates) == 0 {
		return nil, errors.New("template file has no templates")
	}

	out := make([]models.Template, 0, len(file.Templates))
	for _, in := range file.Templates {
		t, err := s.Create(ctx, in)
		if err != nil {
			return out, errors.Wrapf(err, "failed to import template %q", in.Name)
		}
		out = append(out, *t)
	}
	return out, nil
}

// Export renders templates as a YAML template file
func (s *TemplateService) Export(ctx context.Context) ([]byte, error) {
	list, err := s.repos.Templates.List(ctx)
	if err != nil {
		return nil, err
	}

	var file TemplateFile
	for _, summary := range list {
		t, err := s.repos.Templates.Get(ctx, summary.ID)
		if err != nil {
			return nil, err
		}
		active := t.IsActive
		in := CreateTemplateInput{
			Name:        t.Name,
			Description: t.Description,
			IsActive:    &active,
			IsDefault:   t.IsDefault,
		}
		for _, step := range t.ActiveSteps() {
			in.Steps = append(in.Steps, step.Name)
		}
		file.Templates = append(file.Templates, in)
	}
	return yaml.Marshal(file)
}

func newTemplate(in CreateTemplateInput) *models.Template {
	t := &models.Template{
		Base:        models.Base{ID: uuid.New()},
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		IsActive:    in.IsActive == nil || *in.IsActive,
		IsDefault:   in.IsDefault,
	}
	for i, name := range in.Steps {
		t.Steps = append(t.Steps, models.StepDefinition{
			Base:       models.Base{ID: uuid.New()},
			TemplateID: t.ID,
			Name:       strings.TrimSpace(name),
			Order:      i + 1,
			IsActive:   true,
		})
	}
	return t
}

// refreshTemplatePending reloads a template and repoints the pending jobs that wait on it
func refreshTemplatePending(ctx context.Context, repos *repository.Repositories, templateID uuid.UUID) error {
	t, err := repos.Templates.Get(ctx, templateID)
	if err != nil {
		return err
	}
	if err := refreshPending(ctx, repos, t); err != nil {
		return err
	}
	if t.IsDefault {
		return refreshDefaultPending(ctx, repos)
	}
	return nil
}

// refreshPending points pending jobs of t at its first active step
func refreshPending(ctx context.Context, repos *repository.Repositories, t *models.Template) error {
	var first *uuid.UUID
	if t.IsActive {
		first = stepID(engine.FirstActiveStep(t))
	}
	id := t.ID
	return repos.Jobs.SetPendingStep(ctx, &id, first)
}

// refreshDefaultPending points pending jobs without a template at the default's first step
func refreshDefaultPending(ctx context.Context, repos *repository.Repositories) error {
	first, err := defaultFirstStep(ctx, repos)
	if err != nil {
		return err
	}
	return repos.Jobs.SetPendingStep(ctx, nil, first)
}
