package engine

import (
	"sort"

	"github.com/google/uuid"

	"example.com/premeepro/production/internal/models"
)

// ResolveTemplate picks the template a job starts from.
//
// The job's own template wins when it is active and has at least one active step.
// Otherwise the single default template is used under the same conditions. When more than
// one template claims to be the default none of them is used. An unusable but existing
// template is reported as EmptyTemplateError, a missing one as NoTemplateError.
func ResolveTemplate(jobID uuid.UUID, own *models.Template, defaults []models.Template) (*models.Template, error) {
	var emptyErr error

	if own != nil && own.IsActive {
		if len(own.ActiveSteps()) > 0 {
			return own, nil
		}
		emptyErr = &EmptyTemplateError{TemplateID: own.ID}
	}

	if len(defaults) == 1 && defaults[0].IsActive {
		def := defaults[0]
		if len(def.ActiveSteps()) > 0 {
			return &def, nil
		}
		if emptyErr == nil {
			emptyErr = &EmptyTemplateError{TemplateID: def.ID}
		}
	}

	if emptyErr != nil {
		return nil, emptyErr
	}
	return nil, &NoTemplateError{JobID: jobID}
}

// FirstActiveStep returns the first active step definition of a template, or nil
func FirstActiveStep(t *models.Template) *models.StepDefinition {
	if t == nil {
		return nil
	}
	steps := orderedDefinitions(t)
	if len(steps) == 0 {
		return nil
	}
	return &steps[0]
}

func orderedDefinitions(t *models.Template) []models.StepDefinition {
	steps := t.ActiveSteps()
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Order < steps[j].Order
	})
	return steps
}
