package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/premeepro/production/internal/cache"
	"example.com/premeepro/production/internal/engine"
	"example.com/premeepro/production/internal/metrics"
	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/repository"
	"example.com/premeepro/production/internal/repository/mocks"
)

// memoryJobs keeps jobs in a map; calls it does not override fall through to the mock
type memoryJobs struct {
	*mocks.JobRepository

	mu   sync.Mutex
	jobs map[uuid.UUID]models.Job
}

func (r *memoryJobs) Create(ctx context.Context, job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.OrderNumber == job.OrderNumber {
			return repository.ErrDuplicateKey
		}
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *memoryJobs) Update(ctx context.Context, job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return repository.ErrNotFound
	}
	stored := *job
	stored.Steps = nil
	r.jobs[job.ID] = stored
	return nil
}

func (r *memoryJobs) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &job, nil
}

func (r *memoryJobs) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return r.Get(ctx, id)
}

func (r *memoryJobs) GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.OrderNumber == orderNumber {
			job := j
			return &job, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memoryJobs) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.jobs, id)
	return nil
}

// memorySteps keeps job steps per job
type memorySteps struct {
	*mocks.JobStepRepository

	mu    sync.Mutex
	steps map[uuid.UUID]map[uuid.UUID]models.JobStep
}

func (r *memorySteps) ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.JobStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.JobStep, 0, len(r.steps[jobID]))
	for _, s := range r.steps[jobID] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (r *memorySteps) Get(ctx context.Context, jobID, stepID uuid.UUID) (*models.JobStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.steps[jobID][stepID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (r *memorySteps) Apply(ctx context.Context, changes engine.Changes) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	put := func(s *models.JobStep) {
		if r.steps[s.JobID] == nil {
			r.steps[s.JobID] = make(map[uuid.UUID]models.JobStep)
		}
		r.steps[s.JobID][s.ID] = *s
	}
	for _, s := range changes.Created {
		put(s)
	}
	for _, s := range changes.Updated {
		put(s)
	}
	for _, id := range changes.Deleted {
		for _, steps := range r.steps {
			delete(steps, id)
		}
	}
	return nil
}

// memoryEvents records appended change events
type memoryEvents struct {
	*mocks.EventRepository

	mu     sync.Mutex
	events []models.ChangeEvent
}

func (r *memoryEvents) Append(ctx context.Context, ev *models.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.Sequence = uint64(len(r.events) + 1)
	r.events = append(r.events, *ev)
	return nil
}

func (r *memoryEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.EventType
	}
	return out
}

// memoryTx runs fn against the fixture repositories; a failing fn leaves earlier writes
// in place, which the tests never depend on
type memoryTx struct {
	repos *repository.Repositories
}

func (tx memoryTx) Transaction(ctx context.Context, fn func(repos *repository.Repositories) error) error {
	return fn(tx.repos)
}

type waker struct {
	mu    sync.Mutex
	count int
}

func (w *waker) Wake() {
	w.mu.Lock()
	w.count++
	w.mu.Unlock()
}

type jobFixture struct {
	store   *mocks.Store
	jobs    *memoryJobs
	steps   *memorySteps
	events  *memoryEvents
	cache   *mocks.Cache
	index   *mocks.JobIndex
	waker   *waker
	metrics *metrics.Metrics
	service *JobService
	clock   time.Time
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()

	store := mocks.NewStore()
	f := &jobFixture{
		store:   store,
		jobs:    &memoryJobs{JobRepository: store.Jobs, jobs: make(map[uuid.UUID]models.Job)},
		steps:   &memorySteps{JobStepRepository: store.JobSteps, steps: make(map[uuid.UUID]map[uuid.UUID]models.JobStep)},
		events:  &memoryEvents{EventRepository: store.Events},
		cache:   new(mocks.Cache),
		index:   new(mocks.JobIndex),
		waker:   &waker{},
		metrics: metrics.NewMetrics(),
		clock:   time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}

	repos := store.Repositories()
	repos.Jobs = f.jobs
	repos.JobSteps = f.steps
	repos.Events = f.events

	eng := engine.New(engine.WithClock(func() time.Time { return f.clock }))
	f.service = NewJobService(memoryTx{repos: repos}, repos, eng, f.cache, f.index, f.metrics)
	f.service.now = func() time.Time { return f.clock }
	f.service.SetWaker(f.waker)

	f.cache.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(cache.ErrCacheMiss).Maybe()
	f.cache.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.cache.On("Delete", mock.Anything, mock.Anything).Return(nil).Maybe()
	return f
}

// garment is a template with the steps Cut, Sew, QC and Pack
func garment() *models.Template {
	tmpl := &models.Template{
		Base:     models.Base{ID: uuid.New()},
		Name:     "Garment",
		IsActive: true,
	}
	for i, name := range []string{"Cut", "Sew", "QC", "Pack"} {
		tmpl.Steps = append(tmpl.Steps, models.StepDefinition{
			Base:       models.Base{ID: uuid.New()},
			TemplateID: tmpl.ID,
			Name:       name,
			Order:      i + 1,
			IsActive:   true,
		})
	}
	return tmpl
}

func (f *jobFixture) withTemplate(tmpl *models.Template) {
	f.store.Templates.On("Get", mock.Anything, tmpl.ID).Return(tmpl, nil)
}

func (f *jobFixture) withDefaults(defaults ...models.Template) {
	if defaults == nil {
		defaults = []models.Template{}
	}
	f.store.Templates.On("GetDefaults", mock.Anything).Return(defaults, nil)
}

func (f *jobFixture) createJob(t *testing.T, orderNumber string, templateID *uuid.UUID) *models.Job {
	t.Helper()
	job, err := f.service.Create(context.Background(), CreateJobInput{
		OrderNumber:  orderNumber,
		CustomerName: "Acme Apparel",
		ProductName:  "Shirt",
		Quantity:     10,
		TemplateID:   templateID,
	})
	require.NoError(t, err)
	return job
}

type stepState struct {
	Name   string
	Status models.StepStatus
}

func states(steps []models.JobStep) []stepState {
	out := make([]stepState, len(steps))
	for i, s := range steps {
		out[i] = stepState{Name: s.Name, Status: s.Status}
	}
	return out
}

func stepNamed(t *testing.T, steps []models.JobStep, name string) models.JobStep {
	t.Helper()
	for _, s := range steps {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("no step named %q", name)
	return models.JobStep{}
}
