package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/premeepro/production/internal/auth"
	"example.com/premeepro/production/internal/cache"
	"example.com/premeepro/production/internal/engine"
	"example.com/premeepro/production/internal/metrics"
	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/repository"
	"example.com/premeepro/production/internal/search"
	"example.com/premeepro/production/internal/tracing"
	"example.com/premeepro/production/internal/validation"
)

// CreateJobInput is the payload of a new job
type CreateJobInput struct {
	OrderID      string     `json:"order_id" validate:"omitempty,max=64"`
	OrderNumber  string     `json:"order_number" validate:"required,order_number"`
	CustomerName string     `json:"customer_name" validate:"required,max=200"`
	ProductName  string     `json:"product_name" validate:"required,max=200"`
	Quantity     int        `json:"quantity" validate:"min=1"`
	Notes        string     `json:"notes" validate:"max=2000"`
	DueDate      *time.Time `json:"due_date"`
	TemplateID   *uuid.UUID `json:"template_id"`
}

// UpdateJobInput changes job metadata; nil fields are left alone. The template can only
// change while the job is pending.
type UpdateJobInput struct {
	CustomerName  *string    `json:"customer_name" validate:"omitempty,min=1,max=200"`
	ProductName   *string    `json:"product_name" validate:"omitempty,min=1,max=200"`
	Quantity      *int       `json:"quantity" validate:"omitempty,min=1"`
	Notes         *string    `json:"notes" validate:"omitempty,max=2000"`
	DueDate       *time.Time `json:"due_date"`
	TemplateID    *uuid.UUID `json:"template_id"`
	ClearTemplate bool       `json:"clear_template"`
}

// AdvanceInput moves a job to its next step
type AdvanceInput struct {
	StepID       uuid.UUID `json:"step_id" validate:"required"`
	OperatorName string    `json:"operator_name" validate:"max=100"`
	Notes        string    `json:"notes" validate:"max=2000"`
}

// CompleteInput finishes a job
type CompleteInput struct {
	OperatorName string `json:"operator_name" validate:"max=100"`
	Notes        string `json:"notes" validate:"max=2000"`
}

// AddStepInput appends or inserts a job step
type AddStepInput struct {
	Name        string     `json:"name" validate:"required,step_name"`
	AfterStepID *uuid.UUID `json:"after_step_id"`
}

// JobService runs the job lifecycle
type JobService struct {
	tx      repository.Transactor
	repos   *repository.Repositories
	engine  *engine.Engine
	cache   cache.Cache
	index   search.JobIndex
	metrics *metrics.Metrics
	waker   Waker
	now     func() time.Time
}

// NewJobService creates a job service
func NewJobService(
	tx repository.Transactor,
	repos *repository.Repositories,
	eng *engine.Engine,
	c cache.Cache,
	idx search.JobIndex,
	m *metrics.Metrics,
) *JobService {
	return &JobService{
		tx:      tx,
		repos:   repos,
		engine:  eng,
		cache:   c,
		index:   idx,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetWaker registers the change feed to wake after each commit
func (s *JobService) SetWaker(w Waker) {
	s.waker = w
}

// Create adds a pending job. A taken order number yields repository.ErrDuplicateKey.
func (s *JobService) Create(ctx context.Context, in CreateJobInput) (*models.Job, error) {
	defer tracing.Segment(ctx, "JobService.Create")()

	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}

	job := &models.Job{
		Base:         models.Base{ID: uuid.New()},
		OrderID:      strings.TrimSpace(in.OrderID),
		OrderNumber:  strings.TrimSpace(in.OrderNumber),
		CustomerName: strings.TrimSpace(in.CustomerName),
		ProductName:  strings.TrimSpace(in.ProductName),
		Quantity:     in.Quantity,
		Notes:        strings.TrimSpace(in.Notes),
		DueDate:      in.DueDate,
		TemplateID:   in.TemplateID,
		Status:       models.JobStatusPending,
		Version:      1,
	}

	err := s.tx.Transaction(ctx, func(repos *repository.Repositories) error {
		pending, err := s.pendingStep(ctx, repos, job.TemplateID)
		if err != nil {
			return err
		}
		job.PendingTemplateStepID = pending

		if err := repos.Jobs.Create(ctx, job); err != nil {
			return err
		}
		return s.appendEvent(ctx, repos, models.EventJobCreated, engine.NewRun(job, nil), nil)
	})
	s.record("create", err)
	if err != nil {
		return nil, err
	}

	count(s.metrics, metrics.CounterJobsCreated)
	log.Info().Str("job_id", job.ID.String()).Str("order_number", job.OrderNumber).Msg("job created")
	s.afterCommit(ctx, job.ID)
	return job, nil
}

// Update changes the metadata of a job that is not terminal
func (s *JobService) Update(ctx context.Context, id uuid.UUID, in UpdateJobInput) (*models.Job, error) {
	defer tracing.Segment(ctx, "JobService.Update")()

	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}

	run, err := s.mutate(ctx, id, "update", func(repos *repository.Repositories, run *engine.Run) (string, func(*models.JobEventData), error) {
		job := run.Job
		if job.Status.IsTerminal() {
			return "", nil, &engine.AlreadyTerminalError{JobID: job.ID, Status: job.Status}
		}

		if in.TemplateID != nil || in.ClearTemplate {
			if job.Status != models.JobStatusPending {
				return "", nil, &engine.AlreadyStartedError{JobID: job.ID}
			}
			job.TemplateID = in.TemplateID
			if in.ClearTemplate {
				job.TemplateID = nil
			}
			pending, err := s.pendingStep(ctx, repos, job.TemplateID)
			if err != nil {
				return "", nil, err
			}
			job.PendingTemplateStepID = pending
		}

		if in.CustomerName != nil {
			job.CustomerName = strings.TrimSpace(*in.CustomerName)
		}
		if in.ProductName != nil {
			job.ProductName = strings.TrimSpace(*in.ProductName)
		}
		if in.Quantity != nil {
			job.Quantity = *in.Quantity
		}
		if in.Notes != nil {
			job.Notes = strings.TrimSpace(*in.Notes)
		}
		if in.DueDate != nil {
			job.DueDate = in.DueDate
		}
		job.Version++
		return models.EventJobUpdated, nil, nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(run), nil
}

// Get returns a job with its ordered steps
func (s *JobService) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	defer tracing.Segment(ctx, "JobService.Get")()

	var cached models.Job
	if readCache(ctx, s.cache, s.metrics, cache.JobKey(id), &cached) {
		return &cached, nil
	}

	job, err := s.repos.Jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	steps, err := s.repos.JobSteps.ListByJob(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Steps = steps

	writeCache(ctx, s.cache, cache.JobKey(id), job)
	return job, nil
}

// ListSteps returns the steps of a job in order
func (s *JobService) ListSteps(ctx context.Context, id uuid.UUID) ([]models.JobStep, error) {
	defer tracing.Segment(ctx, "JobService.ListSteps")()

	var cached []models.JobStep
	if readCache(ctx, s.cache, s.metrics, cache.JobStepsKey(id), &cached) {
		return cached, nil
	}

	if _, err := s.repos.Jobs.Get(ctx, id); err != nil {
		return nil, err
	}
	steps, err := s.repos.JobSteps.ListByJob(ctx, id)
	if err != nil {
		return nil, err
	}

	writeCache(ctx, s.cache, cache.JobStepsKey(id), steps)
	return steps, nil
}

// List returns one page of jobs and the total number of matches
func (s *JobService) List(ctx context.Context, filter repository.JobFilter) ([]models.Job, int64, error) {
	defer tracing.Segment(ctx, "JobService.List")()

	filter.Limit = limit(filter.Limit, 50, 200)
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repos.Jobs.List(ctx, filter)
}

// Search runs a full text search on the job index
func (s *JobService) Search(ctx context.Context, q search.JobQuery) (*search.JobSearchResult, error) {
	defer tracing.Segment(ctx, "JobService.Search")()

	q.Size = limit(q.Size, 20, 100)
	if q.From < 0 {
		q.From = 0
	}
	return s.index.SearchJobs(ctx, q)
}

// History returns the change events of a job, oldest first
func (s *JobService) History(ctx context.Context, id uuid.UUID) ([]models.ChangeEvent, error) {
	return s.repos.Events.ListByAggregate(ctx, id)
}

// Start clones the resolved template into the job and activates its first step
func (s *JobService) Start(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	defer tracing.Segment(ctx, "JobService.Start")()

	run, err := s.mutate(ctx, id, "start", func(repos *repository.Repositories, run *engine.Run) (string, func(*models.JobEventData), error) {
		tmpl, resolveErr := s.resolveTemplate(ctx, repos, run.Job)
		if run.Job.Status == models.JobStatusPending && resolveErr != nil {
			return "", nil, resolveErr
		}
		if err := s.engine.Start(run, tmpl); err != nil {
			return "", nil, err
		}
		return models.EventJobStarted, nil, nil
	})
	if err != nil {
		return nil, err
	}
	count(s.metrics, metrics.CounterJobsStarted)
	return s.view(run), nil
}

// Advance completes the active step and activates the one right after it
func (s *JobService) Advance(ctx context.Context, id uuid.UUID, in AdvanceInput) (*models.Job, error) {
	defer tracing.Segment(ctx, "JobService.Advance")()

	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}

	run, err := s.mutate(ctx, id, "advance", func(repos *repository.Repositories, run *engine.Run) (string, func(*models.JobEventData), error) {
		res, err := s.engine.Advance(run, engine.AdvanceInput{
			StepID:       in.StepID,
			OperatorName: in.OperatorName,
			Notes:        in.Notes,
		})
		if err != nil {
			return "", nil, err
		}
		return models.EventJobAdvanced, func(d *models.JobEventData) {
			completed := res.Completed.ID
			d.StepID = &completed
			d.StepName = res.Completed.Name
			d.Actor = res.Completed.OperatorName
		}, nil
	})
	if err != nil {
		return nil, err
	}
	count(s.metrics, metrics.CounterStepsAdvanced)
	return s.view(run), nil
}

// Complete finishes a job whose active step is the last one
func (s *JobService) Complete(ctx context.Context, id uuid.UUID, in CompleteInput) (*models.Job, error) {
	defer tracing.Segment(ctx, "JobService.Complete")()

	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}

	run, err := s.mutate(ctx, id, "complete", func(repos *repository.Repositories, run *engine.Run) (string, func(*models.JobEventData), error) {
		last, err := s.engine.Complete(run, in.OperatorName, in.Notes)
		if err != nil {
			return "", nil, err
		}
		return models.EventJobCompleted, func(d *models.JobEventData) {
			lastID := last.ID
			d.StepID = &lastID
			d.StepName = last.Name
			d.Actor = last.OperatorName
		}, nil
	})
	if err != nil {
		return nil, err
	}
	count(s.metrics, metrics.CounterJobsCompleted)
	return s.view(run), nil
}

// Cancel stops a job where it is; the active step keeps its status
func (s *JobService) Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Job, error) {
	defer tracing.Segment(ctx, "JobService.Cancel")()

	run, err := s.mutate(ctx, id, "cancel", func(repos *repository.Repositories, run *engine.Run) (string, func(*models.JobEventData), error) {
		if err := s.engine.Cancel(run, reason); err != nil {
			return "", nil, err
		}
		return models.EventJobCancelled, func(d *models.JobEventData) {
			d.Reason = run.Job.CancelReason
		}, nil
	})
	if err != nil {
		return nil, err
	}
	count(s.metrics, metrics.CounterJobsCancelled)
	return s.view(run), nil
}

// Delete removes a terminal job and everything it owns. The principal must hold the
// delete capability.
func (s *JobService) Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	defer tracing.Segment(ctx, "JobService.Delete")()

	err := s.tx.Transaction(ctx, func(repos *repository.Repositories) error {
		job, err := repos.Jobs.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := auth.CheckJobDeletion(p, job); err != nil {
			return err
		}
		if err := repos.Jobs.Delete(ctx, id); err != nil {
			return err
		}
		job.Version++
		return s.appendEvent(ctx, repos, models.EventJobDeleted, engine.NewRun(job, nil), func(d *models.JobEventData) {
			d.Actor = p.Name
		})
	})
	s.record("delete", err)
	if err != nil {
		return err
	}

	log.Info().Str("job_id", id.String()).Str("actor", p.Name).Msg("job deleted")
	s.afterCommit(ctx, id)
	return nil
}

// AddStep appends a pending step, or inserts it after another step
func (s *JobService) AddStep(ctx context.Context, id uuid.UUID, in AddStepInput) (*models.JobStep, error) {
	defer tracing.Segment(ctx, "JobService.AddStep")()

	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}

	var added *models.JobStep
	_, err := s.mutate(ctx, id, "add_step", func(repos *repository.Repositories, run *engine.Run) (string, func(*models.JobEventData), error) {
		step, err := s.engine.AddStep(run, in.Name, in.AfterStepID)
		if err != nil {
			return "", nil, err
		}
		added = step
		return models.EventJobStepAdded, stepData(step), nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// RenameStep renames a step that is not completed
func (s *JobService) RenameStep(ctx context.Context, id, stepID uuid.UUID, name string) (*models.JobStep, error) {
	defer tracing.Segment(ctx, "JobService.RenameStep")()

	if !validation.IsValidStepName(name) {
		return nil, &validation.Error{Fields: map[string]string{"name": "must not be blank"}}
	}

	var renamed *models.JobStep
	_, err := s.mutate(ctx, id, "rename_step", func(repos *repository.Repositories, run *engine.Run) (string, func(*models.JobEventData), error) {
		previous := ""
		if step := run.Find(stepID); step != nil {
			previous = step.Name
		}
		step, err := s.engine.RenameStep(run, stepID, name)
		if err != nil {
			return "", nil, err
		}
		renamed = step
		return models.EventJobStepRenamed, func(d *models.JobEventData) {
			stepData(step)(d)
			d.PreviousName = previous
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return renamed, nil
}

// DeleteStep removes a pending or skipped step
func (s *JobService) DeleteStep(ctx context.Context, id, stepID uuid.UUID) error {
	defer tracing.Segment(ctx, "JobService.DeleteStep")()

	_, err := s.mutate(ctx, id, "delete_step", func(repos *repository.Repositories, run *engine.Run) (string, func(*models.JobEventData), error) {
		removed, err := s.engine.DeleteStep(run, stepID)
		if err != nil {
			return "", nil, err
		}
		return models.EventJobStepDeleted, stepData(removed), nil
	})
	return err
}

// SkipStep marks a pending step skipped
func (s *JobService) SkipStep(ctx context.Context, id, stepID uuid.UUID) (*models.JobStep, error) {
	defer tracing.Segment(ctx, "JobService.SkipStep")()

	var skipped *models.JobStep
	_, err := s.mutate(ctx, id, "skip_step", func(repos *repository.Repositories, run *engine.Run) (string, func(*models.JobEventData), error) {
		step, err := s.engine.SkipStep(run, stepID)
		if err != nil {
			return "", nil, err
		}
		skipped = step
		return models.EventJobStepSkipped, stepData(step), nil
	})
	if err != nil {
		return nil, err
	}
	return skipped, nil
}

// ReorderSteps reorders the steps after the active one
func (s *JobService) ReorderSteps(ctx context.Context, id uuid.UUID, stepIDs []uuid.UUID) ([]models.JobStep, error) {
	defer tracing.Segment(ctx, "JobService.ReorderSteps")()

	run, err := s.mutate(ctx, id, "reorder_steps", func(repos *repository.Repositories, run *engine.Run) (string, func(*models.JobEventData), error) {
		if err := s.engine.ReorderSteps(run, stepIDs); err != nil {
			return "", nil, err
		}
		return models.EventJobStepsReordered, nil, nil
	})
	if err != nil {
		return nil, err
	}
	return run.StepValues(), nil
}

type mutation func(repos *repository.Repositories, run *engine.Run) (string, func(*models.JobEventData), error)

// mutate loads the job and its steps under a row lock, applies fn and persists the
// touched rows with the change event, all in one transaction
func (s *JobService) mutate(ctx context.Context, id uuid.UUID, op string, fn mutation) (*engine.Run, error) {
	var run *engine.Run
	err := s.tx.Transaction(ctx, func(repos *repository.Repositories) error {
		job, err := repos.Jobs.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		steps, err := repos.JobSteps.ListByJob(ctx, id)
		if err != nil {
			return err
		}

		run = engine.NewRun(job, steps)
		eventType, extra, err := fn(repos, run)
		if err != nil {
			return err
		}

		if err := repos.JobSteps.Apply(ctx, run.Changes()); err != nil {
			return err
		}
		if err := repos.Jobs.Update(ctx, run.Job); err != nil {
			return err
		}
		return s.appendEvent(ctx, repos, eventType, run, extra)
	})
	s.record(op, err)
	if err != nil {
		var lifecycleErr engine.Error
		if errors.As(err, &lifecycleErr) {
			log.Debug().Str("job_id", id.String()).Str("code", lifecycleErr.Code()).Str("op", op).Msg("job operation rejected")
		}
		return nil, err
	}

	s.afterCommit(ctx, id)
	return run, nil
}

func (s *JobService) appendEvent(ctx context.Context, repos *repository.Repositories, eventType string, run *engine.Run, extra func(*models.JobEventData)) error {
	ev, err := newJobEvent(eventType, run, s.now(), extra)
	if err != nil {
		return err
	}
	return repos.Events.Append(ctx, ev)
}

// afterCommit drops stale cache entries and wakes the change feed
func (s *JobService) afterCommit(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Delete(ctx, cache.JobKeys(id)...); err != nil {
		log.Warn().Err(err).Str("job_id", id.String()).Msg("failed to invalidate job cache")
	}
	if s.waker != nil {
		s.waker.Wake()
	}
}

// resolveTemplate loads the job's own template and the defaults and picks one
func (s *JobService) resolveTemplate(ctx context.Context, repos *repository.Repositories, job *models.Job) (*models.Template, error) {
	var own *models.Template
	if job.TemplateID != nil {
		t, err := repos.Templates.Get(ctx, *job.TemplateID)
		switch {
		case err == nil:
			own = t
		case !errors.Is(err, repository.ErrNotFound):
			return nil, err
		}
	}
	defaults, err := repos.Templates.GetDefaults(ctx)
	if err != nil {
		return nil, err
	}
	return engine.ResolveTemplate(job.ID, own, defaults)
}

// pendingStep returns the step definition a pending job waits at. An unknown template is
// reported as repository.ErrNotFound; a job with nothing to start from waits nowhere.
func (s *JobService) pendingStep(ctx context.Context, repos *repository.Repositories, templateID *uuid.UUID) (*uuid.UUID, error) {
	if templateID == nil {
		return defaultFirstStep(ctx, repos)
	}
	t, err := repos.Templates.Get(ctx, *templateID)
	if err != nil {
		return nil, errors.Wrap(err, "template")
	}
	if !t.IsActive {
		return nil, nil
	}
	return stepID(engine.FirstActiveStep(t)), nil
}

func (s *JobService) view(run *engine.Run) *models.Job {
	job := *run.Job
	job.Steps = run.StepValues()
	return &job
}

func (s *JobService) record(op string, err error) {
	if s.metrics != nil {
		s.metrics.RecordResult("job_"+op, err)
	}
}

func stepData(step *models.JobStep) func(*models.JobEventData) {
	return func(d *models.JobEventData) {
		id := step.ID
		d.StepID = &id
		d.StepName = step.Name
	}
}
