package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/premeepro/production/internal/models"
)

func TestResolveTemplate(t *testing.T) {
	jobID := uuid.New()
	own := newTemplate("Cut", "Sew")
	def := newTemplate("Cut", "Sew", "QC", "Pack")
	def.IsDefault = true
	otherDef := newTemplate("Pack")
	otherDef.IsDefault = true

	emptyOwn := newTemplate()
	inactiveOwn := newTemplate("Cut")
	inactiveOwn.IsActive = false
	allInactiveSteps := newTemplate("Cut")
	allInactiveSteps.Steps[0].IsActive = false

	tests := []struct {
		name     string
		own      *models.Template
		defaults []models.Template
		wantID   uuid.UUID
		wantCode string
	}{
		{name: "own template wins", own: own, defaults: []models.Template{*def}, wantID: own.ID},
		{name: "falls back to default", own: nil, defaults: []models.Template{*def}, wantID: def.ID},
		{name: "inactive own falls back", own: inactiveOwn, defaults: []models.Template{*def}, wantID: def.ID},
		{name: "empty own falls back", own: emptyOwn, defaults: []models.Template{*def}, wantID: def.ID},
		{name: "own with only inactive steps falls back", own: allInactiveSteps, defaults: []models.Template{*def}, wantID: def.ID},
		{name: "nothing at all", wantCode: CodeNoTemplate},
		{name: "two defaults count as none", defaults: []models.Template{*def, *otherDef}, wantCode: CodeNoTemplate},
		{name: "empty own and no default", own: emptyOwn, wantCode: CodeEmptyTemplate},
		{name: "empty default", defaults: []models.Template{*emptyOwn}, wantCode: CodeEmptyTemplate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveTemplate(jobID, tt.own, tt.defaults)
			if tt.wantCode != "" {
				var lerr Error
				require.ErrorAs(t, err, &lerr)
				assert.Equal(t, tt.wantCode, lerr.Code())
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestFirstActiveStep(t *testing.T) {
	tmpl := newTemplate("Cut", "Sew", "QC")
	tmpl.Steps[0].IsActive = false
	tmpl.Steps[1], tmpl.Steps[2] = tmpl.Steps[2], tmpl.Steps[1]

	first := FirstActiveStep(tmpl)
	require.NotNil(t, first)
	assert.Equal(t, "Sew", first.Name)

	assert.Nil(t, FirstActiveStep(nil))
	assert.Nil(t, FirstActiveStep(newTemplate()))
}

func TestErrorsCarryCodes(t *testing.T) {
	id := uuid.New()
	errs := map[string]Error{
		CodeNoTemplate:       &NoTemplateError{JobID: id},
		CodeEmptyTemplate:    &EmptyTemplateError{TemplateID: id},
		CodeInvalidStep:      &InvalidStepError{JobID: id, StepID: id, Reason: "x"},
		CodeNotNextStep:      &NotNextStepError{JobID: id, StepID: id},
		CodeNotLastStep:      &NotLastStepError{JobID: id, StepID: id, Remaining: 1},
		CodeStepCompleted:    &StepCompletedError{StepID: id},
		CodeStepNotDeletable: &StepNotDeletableError{StepID: id, Status: models.StepStatusCompleted},
		CodeJobNotTerminal:   &JobNotTerminalError{JobID: id, Status: models.JobStatusPending},
		CodeJobNotInProgress: &JobNotInProgressError{JobID: id, Status: models.JobStatusPending},
		CodeAlreadyStarted:   &AlreadyStartedError{JobID: id},
		CodeAlreadyTerminal:  &AlreadyTerminalError{JobID: id, Status: models.JobStatusCancelled},
	}
	for code, err := range errs {
		assert.Equal(t, code, err.Code())
		assert.NotEmpty(t, err.Error())
	}
}
