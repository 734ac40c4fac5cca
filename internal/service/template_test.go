package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/repository"
	"example.com/premeepro/production/internal/repository/mocks"
	"example.com/premeepro/production/internal/validation"
)

var noID = (*uuid.UUID)(nil)

func newTemplateService() (*TemplateService, *mocks.Store) {
	store := mocks.NewStore()
	return NewTemplateService(store, store.Repositories()), store
}

func TestCreateTemplate(t *testing.T) {
	ctx := context.Background()
	svc, store := newTemplateService()

	store.Templates.On("Create", ctx, mock.AnythingOfType("*models.Template")).Return(nil)
	store.Templates.On("ClearDefault", ctx, mock.AnythingOfType("uuid.UUID")).Return(nil)
	store.Templates.On("GetDefaults", ctx).Return([]models.Template{}, nil)
	store.Jobs.On("SetPendingStep", ctx, noID, noID).Return(nil)

	tmpl, err := svc.Create(ctx, CreateTemplateInput{
		Name:      " Garment ",
		IsDefault: true,
		Steps:     []string{"Cut", "Sew", "QC", "Pack"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Garment", tmpl.Name)
	assert.True(t, tmpl.IsActive)
	assert.True(t, tmpl.IsDefault)
	assert.Equal(t, 4, tmpl.StepCount)
	for i, step := range tmpl.Steps {
		assert.Equal(t, i+1, step.Order)
		assert.Equal(t, tmpl.ID, step.TemplateID)
	}
	store.Templates.AssertCalled(t, "ClearDefault", ctx, tmpl.ID)
	store.AssertExpectations(t)
}

func TestCreateTemplateValidation(t *testing.T) {
	svc, store := newTemplateService()

	_, err := svc.Create(context.Background(), CreateTemplateInput{Name: "Garment", Steps: []string{"Cut", "  "}})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)

	_, err = svc.Create(context.Background(), CreateTemplateInput{})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")
	store.Templates.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestTemplateAddStep(t *testing.T) {
	ctx := context.Background()
	tmpl := garment()
	id := tmpl.ID

	tests := []struct {
		name      string
		order     *int
		wantOrder int
		shift     bool
	}{
		{name: "append", wantOrder: 5},
		{name: "insert shifts later steps", order: intPtr(2), wantOrder: 2, shift: true},
		{name: "order past the end appends", order: intPtr(9), wantOrder: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTemplateService()
			store.Templates.On("Get", ctx, id).Return(tmpl, nil)
			store.Templates.On("MaxStepOrder", ctx, id).Return(4, nil)
			if tt.shift {
				store.Templates.On("ShiftSteps", ctx, id, tt.wantOrder, 1).Return(nil).Once()
			}
			store.Templates.On("CreateStep", ctx, mock.AnythingOfType("*models.StepDefinition")).Return(nil)
			store.Jobs.On("SetPendingStep", ctx, &id, &tmpl.Steps[0].ID).Return(nil)

			name := "Embroider"
			step, err := svc.AddStep(ctx, id, StepDefinitionInput{Name: &name, Order: tt.order})
			require.NoError(t, err)
			assert.Equal(t, tt.wantOrder, step.Order)
			assert.True(t, step.IsActive)
			if !tt.shift {
				store.Templates.AssertNotCalled(t, "ShiftSteps", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
			store.AssertExpectations(t)
		})
	}
}

func TestTemplateAddStepRequiresName(t *testing.T) {
	svc, _ := newTemplateService()
	_, err := svc.AddStep(context.Background(), uuid.New(), StepDefinitionInput{})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")
}

func TestTemplateUpdateStepMovesIt(t *testing.T) {
	ctx := context.Background()
	tmpl := garment()
	id := tmpl.ID
	pack := tmpl.Steps[3]

	svc, store := newTemplateService()
	store.Templates.On("GetStep", ctx, id, pack.ID).Return(&pack, nil)
	store.Templates.On("MaxStepOrder", ctx, id).Return(4, nil)
	store.Templates.On("ShiftSteps", ctx, id, 5, -1).Return(nil).Once()
	store.Templates.On("ShiftSteps", ctx, id, 1, 1).Return(nil).Once()
	store.Templates.On("UpdateStep", ctx, mock.MatchedBy(func(s *models.StepDefinition) bool {
		return s.ID == pack.ID && s.Order == 1 && s.Name == "Packing"
	})).Return(nil)
	store.Templates.On("Get", ctx, id).Return(tmpl, nil)
	store.Jobs.On("SetPendingStep", ctx, &id, &tmpl.Steps[0].ID).Return(nil)

	name := "Packing"
	step, err := svc.UpdateStep(ctx, id, pack.ID, StepDefinitionInput{Name: &name, Order: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, 1, step.Order)
	store.AssertExpectations(t)
}

func TestTemplateDeleteStepClosesGap(t *testing.T) {
	ctx := context.Background()
	tmpl := garment()
	id := tmpl.ID
	sew := tmpl.Steps[1]

	svc, store := newTemplateService()
	store.Templates.On("GetStep", ctx, id, sew.ID).Return(&sew, nil)
	store.Templates.On("DeleteStep", ctx, id, sew.ID).Return(nil)
	store.Templates.On("ShiftSteps", ctx, id, 3, -1).Return(nil)
	store.Templates.On("Get", ctx, id).Return(tmpl, nil)
	store.Jobs.On("SetPendingStep", ctx, &id, &tmpl.Steps[0].ID).Return(nil)

	require.NoError(t, svc.DeleteStep(ctx, id, sew.ID))
	store.AssertExpectations(t)
}

func TestTemplateDeleteStepUnknown(t *testing.T) {
	ctx := context.Background()
	id, stepID := uuid.New(), uuid.New()

	svc, store := newTemplateService()
	store.Templates.On("GetStep", ctx, id, stepID).Return(nil, repository.ErrNotFound)

	err := svc.DeleteStep(ctx, id, stepID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	store.Templates.AssertNotCalled(t, "DeleteStep", mock.Anything, mock.Anything, mock.Anything)
}

func TestSetDefault(t *testing.T) {
	ctx := context.Background()
	tmpl := garment()
	id := tmpl.ID

	svc, store := newTemplateService()
	store.Templates.On("Get", ctx, id).Return(tmpl, nil)
	store.Templates.On("ClearDefault", ctx, id).Return(nil)
	store.Templates.On("Update", ctx, mock.MatchedBy(func(tpl *models.Template) bool { return tpl.IsDefault })).Return(nil)
	store.Jobs.On("SetPendingStep", ctx, &id, &tmpl.Steps[0].ID).Return(nil)
	store.Templates.On("GetDefaults", ctx).Return([]models.Template{*tmpl}, nil)
	store.Jobs.On("SetPendingStep", ctx, noID, &tmpl.Steps[0].ID).Return(nil)

	updated, err := svc.SetDefault(ctx, id)
	require.NoError(t, err)
	assert.True(t, updated.IsDefault)
	store.AssertExpectations(t)
}

func TestDeleteTemplateDetachesPendingJobs(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	svc, store := newTemplateService()
	store.Jobs.On("DetachTemplate", ctx, id).Return(nil)
	store.Templates.On("Delete", ctx, id).Return(nil)
	store.Templates.On("GetDefaults", ctx).Return([]models.Template{}, nil)
	store.Jobs.On("SetPendingStep", ctx, noID, noID).Return(nil)

	require.NoError(t, svc.Delete(ctx, id))
	store.AssertExpectations(t)
}

func TestDuplicateIsNeverDefault(t *testing.T) {
	ctx := context.Background()
	src := garment()
	src.IsDefault = true

	svc, store := newTemplateService()
	store.Templates.On("Get", ctx, src.ID).Return(src, nil)
	store.Templates.On("Create", ctx, mock.AnythingOfType("*models.Template")).Return(nil)

	dup, err := svc.Duplicate(ctx, src.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Garment (copy)", dup.Name)
	assert.False(t, dup.IsDefault)
	assert.NotEqual(t, src.ID, dup.ID)
	require.Len(t, dup.Steps, 4)
	for i, step := range dup.Steps {
		assert.Equal(t, src.Steps[i].Name, step.Name)
		assert.Equal(t, dup.ID, step.TemplateID)
		assert.NotEqual(t, src.Steps[i].ID, step.ID)
	}
}

func TestCreateDefaultOnlyTakesDefaultWhenFree(t *testing.T) {
	ctx := context.Background()
	existing := garment()
	existing.IsDefault = true

	svc, store := newTemplateService()
	store.Templates.On("GetDefaults", ctx).Return([]models.Template{*existing}, nil)
	store.Templates.On("Create", ctx, mock.AnythingOfType("*models.Template")).Return(nil)

	tmpl, err := svc.CreateDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Standard Production", tmpl.Name)
	assert.False(t, tmpl.IsDefault)
	names := make([]string, len(tmpl.Steps))
	for i, s := range tmpl.Steps {
		names[i] = s.Name
	}
	assert.Equal(t, StarterSteps, names)
	store.Templates.AssertNotCalled(t, "ClearDefault", mock.Anything, mock.Anything)
}

func TestImportTemplates(t *testing.T) {
	ctx := context.Background()
	svc, store := newTemplateService()

	var names []string
	store.Templates.On("Create", ctx, mock.AnythingOfType("*models.Template")).
		Run(func(args mock.Arguments) { names = append(names, args.Get(1).(*models.Template).Name) }).
		Return(nil)

	doc := []byte(`
templates:
  - name: Garment
    description: Cut and sew
    steps: [Cut, Sew, QC, Pack]
  - name: Print
    active: false
    steps: [Print, Dry]
`)
	out, err := svc.Import(ctx, doc)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"Garment", "Print"}, names)
	assert.True(t, out[0].IsActive)
	assert.False(t, out[1].IsActive)
	assert.Len(t, out[0].Steps, 4)

	_, err = svc.Import(ctx, []byte("templates: []"))
	assert.Error(t, err)
}

func TestExportTemplates(t *testing.T) {
	ctx := context.Background()
	tmpl := garment()
	tmpl.Steps[2].IsActive = false

	svc, store := newTemplateService()
	store.Templates.On("List", ctx).Return([]models.Template{{Base: tmpl.Base, Name: tmpl.Name}}, nil)
	store.Templates.On("Get", ctx, tmpl.ID).Return(tmpl, nil)

	data, err := svc.Export(ctx)
	require.NoError(t, err)

	var file TemplateFile
	require.NoError(t, yaml.Unmarshal(data, &file))
	require.Len(t, file.Templates, 1)
	assert.Equal(t, "Garment", file.Templates[0].Name)
	assert.Equal(t, []string{"Cut", "Sew", "Pack"}, file.Templates[0].Steps)
}

func intPtr(n int) *int {
	return &n
}
