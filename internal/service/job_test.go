package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/premeepro/production/internal/auth"
	"example.com/premeepro/production/internal/cache"
	"example.com/premeepro/production/internal/engine"
	"example.com/premeepro/production/internal/metrics"
	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/repository"
	"example.com/premeepro/production/internal/search"
	"example.com/premeepro/production/internal/validation"
)

func TestGarmentLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(t)
	tmpl := garment()
	f.withTemplate(tmpl)
	f.withDefaults()

	job := f.createJob(t, "ORD-1001", &tmpl.ID)
	assert.Equal(t, models.JobStatusPending, job.Status)
	require.NotNil(t, job.PendingTemplateStepID)
	assert.Equal(t, tmpl.Steps[0].ID, *job.PendingTemplateStepID)

	started, err := f.service.Start(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInProgress, started.Status)
	assert.Nil(t, started.PendingTemplateStepID)
	assert.Empty(t, cmp.Diff([]stepState{
		{"Cut", models.StepStatusInProgress},
		{"Sew", models.StepStatusPending},
		{"QC", models.StepStatusPending},
		{"Pack", models.StepStatusPending},
	}, states(started.Steps)))
	cut := stepNamed(t, started.Steps, "Cut")
	assert.Equal(t, cut.ID, *started.ActiveJobStepID)

	sew := stepNamed(t, started.Steps, "Sew")
	advanced, err := f.service.Advance(ctx, job.ID, AdvanceInput{StepID: sew.ID, OperatorName: "Somchai"})
	require.NoError(t, err)
	assert.Equal(t, sew.ID, *advanced.ActiveJobStepID)
	assert.Equal(t, "Somchai", stepNamed(t, advanced.Steps, "Cut").OperatorName)

	pack := stepNamed(t, started.Steps, "Pack")
	_, err = f.service.Advance(ctx, job.ID, AdvanceInput{StepID: pack.ID})
	var notNext *engine.NotNextStepError
	require.ErrorAs(t, err, &notNext)

	_, err = f.service.Complete(ctx, job.ID, CompleteInput{})
	var notLast *engine.NotLastStepError
	require.ErrorAs(t, err, &notLast)

	qc := stepNamed(t, started.Steps, "QC")
	_, err = f.service.Advance(ctx, job.ID, AdvanceInput{StepID: qc.ID})
	require.NoError(t, err)
	_, err = f.service.Advance(ctx, job.ID, AdvanceInput{StepID: pack.ID})
	require.NoError(t, err)

	done, err := f.service.Complete(ctx, job.ID, CompleteInput{OperatorName: "Malee"})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Nil(t, done.ActiveJobStepID)
	assert.NotNil(t, done.CompletedAt)
	for _, s := range done.Steps {
		assert.Equal(t, models.StepStatusCompleted, s.Status, s.Name)
	}

	steps, err := f.service.ListSteps(ctx, job.ID)
	require.NoError(t, err)
	again, err := f.service.ListSteps(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(steps, again))

	assert.Equal(t, []string{
		models.EventJobCreated,
		models.EventJobStarted,
		models.EventJobAdvanced,
		models.EventJobAdvanced,
		models.EventJobAdvanced,
		models.EventJobCompleted,
	}, f.events.types())
	assert.Equal(t, 6, f.waker.count)

	counters := f.metrics.GetCounters()
	assert.Equal(t, int64(1), counters[metrics.CounterJobsCreated])
	assert.Equal(t, int64(3), counters[metrics.CounterStepsAdvanced])
	assert.Equal(t, int64(1), counters[metrics.CounterJobsCompleted])
}

func TestEventVersionsFollowTheJob(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(t)
	tmpl := garment()
	f.withTemplate(tmpl)
	f.withDefaults()

	job := f.createJob(t, "ORD-1002", &tmpl.ID)
	started, err := f.service.Start(ctx, job.ID)
	require.NoError(t, err)

	require.Len(t, f.events.events, 2)
	assert.Equal(t, 1, f.events.events[0].Version)
	assert.Equal(t, started.Version, f.events.events[1].Version)

	var data models.JobEventData
	require.NoError(t, json.Unmarshal(f.events.events[1].Data, &data))
	assert.Equal(t, "ORD-1002", data.OrderNumber)
	assert.Equal(t, "Cut", data.ActiveStepName)
	assert.Equal(t, models.JobStatusInProgress, data.Status)
}

func TestStartFallsBackToDefaultTemplate(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(t)
	def := garment()
	def.IsDefault = true
	f.withDefaults(*def)

	job := f.createJob(t, "ORD-2001", nil)
	require.NotNil(t, job.PendingTemplateStepID)
	assert.Equal(t, def.Steps[0].ID, *job.PendingTemplateStepID)

	started, err := f.service.Start(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, started.TemplateID)
	assert.Equal(t, def.ID, *started.TemplateID)
	assert.Len(t, started.Steps, 4)
}

func TestStartWithoutUsableTemplate(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(t)
	f.withDefaults()

	job := f.createJob(t, "ORD-2002", nil)
	assert.Nil(t, job.PendingTemplateStepID)

	_, err := f.service.Start(ctx, job.ID)
	var noTemplate *engine.NoTemplateError
	require.ErrorAs(t, err, &noTemplate)

	stored, err := f.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, stored.Status)
	assert.Equal(t, []string{models.EventJobCreated}, f.events.types())
}

func TestStartTwice(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(t)
	tmpl := garment()
	f.withTemplate(tmpl)
	f.withDefaults()

	job := f.createJob(t, "ORD-2003", &tmpl.ID)
	_, err := f.service.Start(ctx, job.ID)
	require.NoError(t, err)

	_, err = f.service.Start(ctx, job.ID)
	var started *engine.AlreadyStartedError
	require.ErrorAs(t, err, &started)
}

func TestCreateRejectsInvalidAndDuplicateJobs(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(t)
	f.withDefaults()

	_, err := f.service.Create(ctx, CreateJobInput{OrderNumber: "ORD-3001", CustomerName: "Acme"})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "product_name")
	assert.Contains(t, verr.Fields, "quantity")

	f.createJob(t, "ORD-3001", nil)
	_, err = f.service.Create(ctx, CreateJobInput{
		OrderNumber:  "ORD-3001",
		CustomerName: "Acme",
		ProductName:  "Shirt",
		Quantity:     1,
	})
	assert.ErrorIs(t, err, repository.ErrDuplicateKey)
}

func TestCreateWithUnknownTemplate(t *testing.T) {
	f := newJobFixture(t)
	missing := uuid.New()
	f.store.Templates.On("Get", mock.Anything, missing).Return(nil, repository.ErrNotFound)

	_, err := f.service.Create(context.Background(), CreateJobInput{
		OrderNumber:  "ORD-3002",
		CustomerName: "Acme",
		ProductName:  "Shirt",
		Quantity:     1,
		TemplateID:   &missing,
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCancelFreezesTheActiveStep(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(t)
	tmpl := garment()
	f.withTemplate(tmpl)
	f.withDefaults()

	job := f.createJob(t, "ORD-4001", &tmpl.ID)
	started, err := f.service.Start(ctx, job.ID)
	require.NoError(t, err)
	sew := stepNamed(t, started.Steps, "Sew")
	_, err = f.service.Advance(ctx, job.ID, AdvanceInput{StepID: sew.ID})
	require.NoError(t, err)

	cancelled, err := f.service.Cancel(ctx, job.ID, "  fabric shortage ")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, cancelled.Status)
	assert.Equal(t, "fabric shortage", cancelled.CancelReason)
	assert.Equal(t, sew.ID, *cancelled.ActiveJobStepID)
	assert.Equal(t, models.StepStatusInProgress, stepNamed(t, cancelled.Steps, "Sew").Status)

	qc := stepNamed(t, started.Steps, "QC")
	_, err = f.service.Advance(ctx, job.ID, AdvanceInput{StepID: qc.ID})
	var notInProgress *engine.JobNotInProgressError
	require.ErrorAs(t, err, &notInProgress)

	_, err = f.service.Cancel(ctx, job.ID, "")
	var terminal *engine.AlreadyTerminalError
	require.ErrorAs(t, err, &terminal)

	_, err = f.service.Start(ctx, job.ID)
	require.ErrorAs(t, err, &terminal)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(t)
	tmpl := garment()
	other := garment()
	f.withTemplate(tmpl)
	f.withTemplate(other)
	f.withDefaults()

	job := f.createJob(t, "ORD-5001", &tmpl.ID)

	qty := 25
	updated, err := f.service.Update(ctx, job.ID, UpdateJobInput{Quantity: &qty, TemplateID: &other.ID})
	require.NoError(t, err)
	assert.Equal(t, 25, updated.Quantity)
	assert.Equal(t, other.ID, *updated.TemplateID)
	assert.Equal(t, other.Steps[0].ID, *updated.PendingTemplateStepID)

	updated, err = f.service.Update(ctx, job.ID, UpdateJobInput{ClearTemplate: true})
	require.NoError(t, err)
	assert.Nil(t, updated.TemplateID)
	assert.Nil(t, updated.PendingTemplateStepID)

	_, err = f.service.Update(ctx, job.ID, UpdateJobInput{TemplateID: &tmpl.ID})
	require.NoError(t, err)
	_, err = f.service.Start(ctx, job.ID)
	require.NoError(t, err)

	_, err = f.service.Update(ctx, job.ID, UpdateJobInput{TemplateID: &other.ID})
	var started *engine.AlreadyStartedError
	require.ErrorAs(t, err, &started)

	notes := "rush order"
	updated, err = f.service.Update(ctx, job.ID, UpdateJobInput{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "rush order", updated.Notes)
}

func TestDeletePolicy(t *testing.T) {
	admin := auth.Principal{ID: uuid.New(), Name: "admin", Role: models.RoleAdmin}
	staff := auth.Principal{ID: uuid.New(), Name: "staff", Role: models.RoleStaff}

	tests := []struct {
		name      string
		principal auth.Principal
		cancel    bool
		check     func(t *testing.T, err error)
	}{
		{
			name:      "admin deletes cancelled job",
			principal: admin,
			cancel:    true,
			check:     func(t *testing.T, err error) { require.NoError(t, err) },
		},
		{
			name:      "admin cannot delete pending job",
			principal: admin,
			check: func(t *testing.T, err error) {
				var notTerminal *engine.JobNotTerminalError
				require.ErrorAs(t, err, &notTerminal)
			},
		},
		{
			name:      "staff cannot delete",
			principal: staff,
			cancel:    true,
			check: func(t *testing.T, err error) {
				var forbidden *auth.ForbiddenError
				require.ErrorAs(t, err, &forbidden)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newJobFixture(t)
			f.withDefaults()

			job := f.createJob(t, "ORD-6001", nil)
			if tt.cancel {
				_, err := f.service.Cancel(ctx, job.ID, "")
				require.NoError(t, err)
			}

			err := f.service.Delete(ctx, tt.principal, job.ID)
			tt.check(t, err)

			_, getErr := f.jobs.Get(ctx, job.ID)
			if err == nil {
				assert.ErrorIs(t, getErr, repository.ErrNotFound)
				types := f.events.types()
				assert.Equal(t, models.EventJobDeleted, types[len(types)-1])
			} else {
				assert.NoError(t, getErr)
			}
		})
	}
}

func TestStepEditing(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(t)
	tmpl := garment()
	f.withTemplate(tmpl)
	f.withDefaults()

	job := f.createJob(t, "ORD-7001", &tmpl.ID)

	_, err := f.service.AddStep(ctx, job.ID, AddStepInput{Name: "Embroider"})
	var notInProgress *engine.JobNotInProgressError
	require.ErrorAs(t, err, &notInProgress)

	started, err := f.service.Start(ctx, job.ID)
	require.NoError(t, err)
	cut := stepNamed(t, started.Steps, "Cut")
	sew := stepNamed(t, started.Steps, "Sew")
	qc := stepNamed(t, started.Steps, "QC")
	pack := stepNamed(t, started.Steps, "Pack")

	embroider, err := f.service.AddStep(ctx, job.ID, AddStepInput{Name: "Embroider", AfterStepID: &sew.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, embroider.Order)

	_, err = f.service.AddStep(ctx, job.ID, AddStepInput{Name: "  "})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)

	renamed, err := f.service.RenameStep(ctx, job.ID, qc.ID, "Quality Check")
	require.NoError(t, err)
	assert.Equal(t, "Quality Check", renamed.Name)

	err = f.service.DeleteStep(ctx, job.ID, cut.ID)
	var notDeletable *engine.StepNotDeletableError
	require.ErrorAs(t, err, &notDeletable)

	_, err = f.service.SkipStep(ctx, job.ID, embroider.ID)
	require.NoError(t, err)

	reordered, err := f.service.ReorderSteps(ctx, job.ID, []uuid.UUID{pack.ID, sew.ID, embroider.ID, qc.ID})
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff([]stepState{
		{"Cut", models.StepStatusInProgress},
		{"Pack", models.StepStatusPending},
		{"Sew", models.StepStatusPending},
		{"Embroider", models.StepStatusSkipped},
		{"Quality Check", models.StepStatusPending},
	}, states(reordered)))

	require.NoError(t, f.service.DeleteStep(ctx, job.ID, embroider.ID))
	steps, err := f.service.ListSteps(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, steps, 4)
	for i, s := range steps {
		assert.Equal(t, i+1, s.Order)
	}

	_, err = f.service.Advance(ctx, job.ID, AdvanceInput{StepID: pack.ID})
	require.NoError(t, err)
	_, err = f.service.RenameStep(ctx, job.ID, cut.ID, "Cutting")
	var completed *engine.StepCompletedError
	require.ErrorAs(t, err, &completed)

	assert.Equal(t, []string{
		models.EventJobCreated,
		models.EventJobStarted,
		models.EventJobStepAdded,
		models.EventJobStepRenamed,
		models.EventJobStepSkipped,
		models.EventJobStepsReordered,
		models.EventJobStepDeleted,
		models.EventJobAdvanced,
	}, f.events.types())

	var data models.JobEventData
	require.NoError(t, json.Unmarshal(f.events.events[3].Data, &data))
	assert.Equal(t, "QC", data.PreviousName)
	assert.Equal(t, "Quality Check", data.StepName)
}

func TestGetReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(t)
	f.withDefaults()
	job := f.createJob(t, "ORD-8001", nil)

	f.cache.ExpectedCalls = nil
	f.cache.On("Get", mock.Anything, cache.JobKey(job.ID), mock.Anything).Return(cache.ErrCacheMiss).Once()
	f.cache.On("Set", mock.Anything, cache.JobKey(job.ID), mock.Anything).Return(nil).Once()

	got, err := f.service.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "ORD-8001", got.OrderNumber)

	f.cache.On("Get", mock.Anything, cache.JobKey(job.ID), mock.Anything).
		Run(func(args mock.Arguments) {
			cached := args.Get(2).(*models.Job)
			*cached = models.Job{OrderNumber: "FROM-CACHE"}
		}).
		Return(nil).Once()

	got, err = f.service.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "FROM-CACHE", got.OrderNumber)
	f.cache.AssertExpectations(t)

	counters := f.metrics.GetCounters()
	assert.Equal(t, int64(1), counters[metrics.CounterCacheHits])
	assert.Equal(t, int64(1), counters[metrics.CounterCacheMisses])
}

func TestListStepsIsStableAcrossCacheMissAndHit(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(t)
	tmpl := garment()
	f.withTemplate(tmpl)
	f.withDefaults()
	job := f.createJob(t, "ORD-8003", &tmpl.ID)
	started, err := f.service.Start(ctx, job.ID)
	require.NoError(t, err)
	_, err = f.service.Advance(ctx, job.ID, AdvanceInput{StepID: stepNamed(t, started.Steps, "Sew").ID})
	require.NoError(t, err)

	var stored []byte
	key := cache.JobStepsKey(job.ID)
	f.cache.ExpectedCalls = nil
	f.cache.On("Get", mock.Anything, key, mock.Anything).Return(cache.ErrCacheMiss).Once()
	f.cache.On("Set", mock.Anything, key, mock.Anything).
		Run(func(args mock.Arguments) {
			var err error
			stored, err = json.Marshal(args.Get(2))
			require.NoError(t, err)
		}).
		Return(nil).Once()
	f.cache.On("Get", mock.Anything, key, mock.Anything).
		Run(func(args mock.Arguments) {
			require.NoError(t, json.Unmarshal(stored, args.Get(2)))
		}).
		Return(nil).Once()

	first, err := f.service.ListSteps(ctx, job.ID)
	require.NoError(t, err)
	second, err := f.service.ListSteps(ctx, job.ID)
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(first, second))
	assert.Equal(t, []stepState{
		{"Cut", models.StepStatusCompleted},
		{"Sew", models.StepStatusInProgress},
		{"QC", models.StepStatusPending},
		{"Pack", models.StepStatusPending},
	}, states(second))
	f.cache.AssertExpectations(t)
}

func TestSearchClampsPaging(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(t)
	want := &search.JobSearchResult{Total: 0, Jobs: []search.JobDocument{}}
	f.index.On("SearchJobs", ctx, search.JobQuery{Text: "shirt", From: 0, Size: 20}).Return(want, nil).Once()

	got, err := f.service.Search(ctx, search.JobQuery{Text: "shirt", From: -5})
	require.NoError(t, err)
	assert.Same(t, want, got)
	f.index.AssertExpectations(t)
}

func TestMutationsInvalidateCache(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(t)
	f.withDefaults()
	job := f.createJob(t, "ORD-8002", nil)

	f.cache.ExpectedCalls = nil
	f.cache.On("Delete", mock.Anything, cache.JobKeys(job.ID)).Return(nil).Once()

	_, err := f.service.Cancel(ctx, job.ID, "")
	require.NoError(t, err)
	f.cache.AssertExpectations(t)
}

func TestGetUnknownJob(t *testing.T) {
	f := newJobFixture(t)
	_, err := f.service.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
