// Package engine implements the job lifecycle state machine.
//
// The engine is a pure transformation over a Run (a job and its ordered steps). It never
// touches storage: callers load a Run inside a transaction, apply one operation, persist
// Run.Changes and commit. Every operation either applies completely or returns a typed
// Error and leaves the Run untouched.
package engine

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/premeepro/production/internal/models"
)

// Engine applies lifecycle operations
type Engine struct {
	now   func() time.Time
	newID func() uuid.UUID
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides the step id generator
func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(e *Engine) { e.newID = newID }
}

// New creates an engine
func New(opts ...Option) *Engine {
	e := &Engine{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.New,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AdvanceInput identifies the step to move to and what to record on the step being left
type AdvanceInput struct {
	StepID       uuid.UUID
	OperatorName string
	Notes        string
}

// AdvanceResult holds the step that was completed and the step that became active
type AdvanceResult struct {
	Completed *models.JobStep
	Started   *models.JobStep
}

// Start clones the active steps of tmpl into the job and activates the first one
func (e *Engine) Start(run *Run, tmpl *models.Template) error {
	job := run.Job
	switch {
	case job.Status.IsTerminal():
		return &AlreadyTerminalError{JobID: job.ID, Status: job.Status}
	case job.Status != models.JobStatusPending, len(run.Steps) > 0:
		return &AlreadyStartedError{JobID: job.ID}
	}
	if tmpl == nil {
		return &NoTemplateError{JobID: job.ID}
	}

	defs := orderedDefinitions(tmpl)
	if len(defs) == 0 {
		return &EmptyTemplateError{TemplateID: tmpl.ID}
	}

	now := e.now()
	for i := range defs {
		def := defs[i]
		step := &models.JobStep{
			Base:           models.Base{ID: e.newID()},
			JobID:          job.ID,
			StepTemplateID: &def.ID,
			Name:           def.Name,
			Order:          i + 1,
			Status:         models.StepStatusPending,
		}
		run.Steps = append(run.Steps, step)
		run.markCreated(step)
	}

	first := run.Steps[0]
	first.Status = models.StepStatusInProgress
	first.StartedAt = &now

	templateID := tmpl.ID
	firstID := first.ID
	job.Status = models.JobStatusInProgress
	job.TemplateID = &templateID
	job.PendingTemplateStepID = nil
	job.ActiveJobStepID = &firstID
	job.StartedAt = &now
	job.Version++
	return nil
}

// Advance completes the active step and activates the step right after it
func (e *Engine) Advance(run *Run, in AdvanceInput) (*AdvanceResult, error) {
	job := run.Job
	current, err := e.activeStep(run)
	if err != nil {
		return nil, err
	}

	target := run.Find(in.StepID)
	if target == nil {
		return nil, &InvalidStepError{JobID: job.ID, StepID: in.StepID, Reason: "step does not belong to this job"}
	}

	next := run.Next(current)
	if next == nil || next.ID != target.ID {
		var expected *uuid.UUID
		if next != nil {
			id := next.ID
			expected = &id
		}
		return nil, &NotNextStepError{JobID: job.ID, StepID: in.StepID, Expected: expected}
	}

	now := e.now()
	e.finish(current, now, in.OperatorName, in.Notes)
	run.markUpdated(current)

	target.Status = models.StepStatusInProgress
	target.StartedAt = &now
	run.markUpdated(target)

	targetID := target.ID
	job.ActiveJobStepID = &targetID
	job.Version++
	return &AdvanceResult{Completed: current, Started: target}, nil
}

// Complete finishes the job; legal only when no pending step follows the active one
func (e *Engine) Complete(run *Run, operatorName, notes string) (*models.JobStep, error) {
	job := run.Job
	current, err := e.activeStep(run)
	if err != nil {
		return nil, err
	}
	if remaining := run.remaining(current); remaining > 0 {
		return nil, &NotLastStepError{JobID: job.ID, StepID: current.ID, Remaining: remaining}
	}

	now := e.now()
	e.finish(current, now, operatorName, notes)
	run.markUpdated(current)

	job.Status = models.JobStatusCompleted
	job.ActiveJobStepID = nil
	job.CompletedAt = &now
	job.Version++
	return current, nil
}

// Cancel moves a non-terminal job to cancelled. The active step is frozen as it is.
func (e *Engine) Cancel(run *Run, reason string) error {
	job := run.Job
	if job.Status.IsTerminal() {
		return &AlreadyTerminalError{JobID: job.ID, Status: job.Status}
	}
	now := e.now()
	job.Status = models.JobStatusCancelled
	job.CancelReason = strings.TrimSpace(reason)
	job.CancelledAt = &now
	job.Version++
	return nil
}

// AddStep appends a pending step, or inserts it right after afterStepID
func (e *Engine) AddStep(run *Run, name string, afterStepID *uuid.UUID) (*models.JobStep, error) {
	job := run.Job
	current, err := e.activeStep(run)
	if err != nil {
		return nil, err
	}

	order := len(run.Steps) + 1
	if afterStepID != nil {
		after := run.Find(*afterStepID)
		if after == nil {
			return nil, &InvalidStepError{JobID: job.ID, StepID: *afterStepID, Reason: "step does not belong to this job"}
		}
		if after.Order < current.Order {
			return nil, &InvalidStepError{JobID: job.ID, StepID: *afterStepID, Reason: "cannot insert before the active step"}
		}
		order = after.Order + 1
		for _, s := range run.Steps {
			if s.Order >= order {
				s.Order++
				run.markUpdated(s)
			}
		}
	}

	step := &models.JobStep{
		Base:   models.Base{ID: e.newID()},
		JobID:  job.ID,
		Name:   strings.TrimSpace(name),
		Order:  order,
		Status: models.StepStatusPending,
	}
	run.Steps = append(run.Steps, step)
	run.markCreated(step)
	run.sort()
	job.Version++
	return step, nil
}

// RenameStep renames any step that is not completed
func (e *Engine) RenameStep(run *Run, stepID uuid.UUID, name string) (*models.JobStep, error) {
	step, err := e.ownedStep(run, stepID)
	if err != nil {
		return nil, err
	}
	if step.Status == models.StepStatusCompleted {
		return nil, &StepCompletedError{StepID: step.ID}
	}
	step.Name = strings.TrimSpace(name)
	run.markUpdated(step)
	run.Job.Version++
	return step, nil
}

// DeleteStep removes a pending or skipped step and closes the gap in the order
func (e *Engine) DeleteStep(run *Run, stepID uuid.UUID) (*models.JobStep, error) {
	step, err := e.ownedStep(run, stepID)
	if err != nil {
		return nil, err
	}
	if step.Status == models.StepStatusInProgress || step.Status == models.StepStatusCompleted {
		return nil, &StepNotDeletableError{StepID: step.ID, Status: step.Status}
	}
	removed := *step
	run.remove(step.ID)
	run.renumber()
	run.Job.Version++
	return &removed, nil
}

// SkipStep marks a pending step as skipped so Advance and Complete pass over it
func (e *Engine) SkipStep(run *Run, stepID uuid.UUID) (*models.JobStep, error) {
	step, err := e.ownedStep(run, stepID)
	if err != nil {
		return nil, err
	}
	switch step.Status {
	case models.StepStatusCompleted:
		return nil, &StepCompletedError{StepID: step.ID}
	case models.StepStatusPending:
	default:
		return nil, &InvalidStepError{JobID: run.Job.ID, StepID: step.ID, Reason: "only pending steps can be skipped"}
	}
	step.Status = models.StepStatusSkipped
	run.markUpdated(step)
	run.Job.Version++
	return step, nil
}

// ReorderSteps reorders the steps after the active one. stepIDs must list every one of
// them exactly once.
func (e *Engine) ReorderSteps(run *Run, stepIDs []uuid.UUID) error {
	job := run.Job
	current, err := e.activeStep(run)
	if err != nil {
		return err
	}

	tail := make(map[uuid.UUID]*models.JobStep)
	for _, s := range run.Steps {
		if s.Order > current.Order {
			tail[s.ID] = s
		}
	}
	if len(stepIDs) != len(tail) {
		return &InvalidStepError{JobID: job.ID, StepID: current.ID, Reason: "reorder must list every remaining step exactly once"}
	}
	seen := make(map[uuid.UUID]bool, len(stepIDs))
	for _, id := range stepIDs {
		if _, ok := tail[id]; !ok || seen[id] {
			return &InvalidStepError{JobID: job.ID, StepID: id, Reason: "reorder must list every remaining step exactly once"}
		}
		seen[id] = true
	}

	for i, id := range stepIDs {
		s := tail[id]
		order := current.Order + 1 + i
		if s.Order != order {
			s.Order = order
			run.markUpdated(s)
		}
	}
	run.sort()
	job.Version++
	return nil
}

// activeStep returns the active step of an in-progress job
func (e *Engine) activeStep(run *Run) (*models.JobStep, error) {
	job := run.Job
	if job.Status != models.JobStatusInProgress {
		return nil, &JobNotInProgressError{JobID: job.ID, Status: job.Status}
	}
	current := run.Active()
	if current == nil {
		id := uuid.Nil
		if job.ActiveJobStepID != nil {
			id = *job.ActiveJobStepID
		}
		return nil, &InvalidStepError{JobID: job.ID, StepID: id, Reason: "job has no active step"}
	}
	return current, nil
}

// ownedStep returns a step of an in-progress job
func (e *Engine) ownedStep(run *Run, stepID uuid.UUID) (*models.JobStep, error) {
	job := run.Job
	if job.Status != models.JobStatusInProgress {
		return nil, &JobNotInProgressError{JobID: job.ID, Status: job.Status}
	}
	step := run.Find(stepID)
	if step == nil {
		return nil, &InvalidStepError{JobID: job.ID, StepID: stepID, Reason: "step does not belong to this job"}
	}
	return step, nil
}

func (e *Engine) finish(step *models.JobStep, now time.Time, operatorName, notes string) {
	step.Status = models.StepStatusCompleted
	step.CompletedAt = &now
	if operatorName = strings.TrimSpace(operatorName); operatorName != "" {
		step.OperatorName = operatorName
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		step.Notes = notes
	}
}
