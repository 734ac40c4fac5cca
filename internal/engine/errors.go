package engine

import (
	"fmt"

	"github.com/google/uuid"

	"example.com/premeepro/production/internal/models"
)

// Error codes carried by lifecycle errors
const (
	CodeNoTemplate       = "NO_TEMPLATE"
	CodeEmptyTemplate    = "EMPTY_TEMPLATE"
	CodeInvalidStep      = "INVALID_STEP"
	CodeNotNextStep      = "NOT_NEXT_STEP"
	CodeNotLastStep      = "NOT_LAST_STEP"
	CodeStepCompleted    = "STEP_COMPLETED"
	CodeStepNotDeletable = "STEP_NOT_DELETABLE"
	CodeJobNotTerminal   = "JOB_NOT_TERMINAL"
	CodeJobNotInProgress = "JOB_NOT_IN_PROGRESS"
	CodeAlreadyStarted   = "ALREADY_STARTED"
	CodeAlreadyTerminal  = "ALREADY_TERMINAL"
)

// Error is implemented by every lifecycle validation error.
// Validation errors are final: the caller must change its input, not retry.
type Error interface {
	error
	Code() string
}

// NoTemplateError is returned when neither the job nor the system has a usable template
type NoTemplateError struct {
	JobID uuid.UUID
}

func (e *NoTemplateError) Error() string {
	return fmt.Sprintf("job %s has no template and no default template is configured", e.JobID)
}

func (e *NoTemplateError) Code() string { return CodeNoTemplate }

// EmptyTemplateError is returned when the resolved template has no active steps
type EmptyTemplateError struct {
	TemplateID uuid.UUID
}

func (e *EmptyTemplateError) Error() string {
	return fmt.Sprintf("template %s has no active steps", e.TemplateID)
}

func (e *EmptyTemplateError) Code() string { return CodeEmptyTemplate }

// InvalidStepError is returned when a step does not belong to the job or cannot be used
// at its position
type InvalidStepError struct {
	JobID  uuid.UUID
	StepID uuid.UUID
	Reason string
}

func (e *InvalidStepError) Error() string {
	return fmt.Sprintf("invalid step %s for job %s: %s", e.StepID, e.JobID, e.Reason)
}

func (e *InvalidStepError) Code() string { return CodeInvalidStep }

// NotNextStepError is returned when advancing to anything but the step right after the
// active one. Expected is nil when no step remains.
type NotNextStepError struct {
	JobID    uuid.UUID
	StepID   uuid.UUID
	Expected *uuid.UUID
}

func (e *NotNextStepError) Error() string {
	if e.Expected == nil {
		return fmt.Sprintf("step %s is not the next step of job %s: no step remains, complete the job instead", e.StepID, e.JobID)
	}
	return fmt.Sprintf("step %s is not the next step of job %s: expected %s, reload and retry", e.StepID, e.JobID, *e.Expected)
}

func (e *NotNextStepError) Code() string { return CodeNotNextStep }

// NotLastStepError is returned when completing a job whose active step is not the last
type NotLastStepError struct {
	JobID     uuid.UUID
	StepID    uuid.UUID
	Remaining int
}

func (e *NotLastStepError) Error() string {
	return fmt.Sprintf("job %s cannot be completed: %d step(s) remain after %s", e.JobID, e.Remaining, e.StepID)
}

func (e *NotLastStepError) Code() string { return CodeNotLastStep }

// StepCompletedError is returned when changing a step that is already completed
type StepCompletedError struct {
	StepID uuid.UUID
}

func (e *StepCompletedError) Error() string {
	return fmt.Sprintf("step %s is already completed", e.StepID)
}

func (e *StepCompletedError) Code() string { return CodeStepCompleted }

// StepNotDeletableError is returned when deleting an in-progress or completed step
type StepNotDeletableError struct {
	StepID uuid.UUID
	Status models.StepStatus
}

func (e *StepNotDeletableError) Error() string {
	return fmt.Sprintf("step %s cannot be deleted while %s", e.StepID, e.Status)
}

func (e *StepNotDeletableError) Code() string { return CodeStepNotDeletable }

// JobNotTerminalError is returned when deleting a job that is neither completed nor cancelled
type JobNotTerminalError struct {
	JobID  uuid.UUID
	Status models.JobStatus
}

func (e *JobNotTerminalError) Error() string {
	return fmt.Sprintf("job %s is %s; only completed or cancelled jobs can be deleted", e.JobID, e.Status)
}

func (e *JobNotTerminalError) Code() string { return CodeJobNotTerminal }

// JobNotInProgressError is returned for step operations on a job that is not in progress
type JobNotInProgressError struct {
	JobID  uuid.UUID
	Status models.JobStatus
}

func (e *JobNotInProgressError) Error() string {
	return fmt.Sprintf("job %s is %s, not in_progress", e.JobID, e.Status)
}

func (e *JobNotInProgressError) Code() string { return CodeJobNotInProgress }

// AlreadyStartedError is returned when starting a job that has already started
type AlreadyStartedError struct {
	JobID uuid.UUID
}

func (e *AlreadyStartedError) Error() string {
	return fmt.Sprintf("job %s has already been started", e.JobID)
}

func (e *AlreadyStartedError) Code() string { return CodeAlreadyStarted }

// AlreadyTerminalError is returned when a terminal job is asked to change status
type AlreadyTerminalError struct {
	JobID  uuid.UUID
	Status models.JobStatus
}

func (e *AlreadyTerminalError) Error() string {
	return fmt.Sprintf("job %s is already %s", e.JobID, e.Status)
}

func (e *AlreadyTerminalError) Code() string { return CodeAlreadyTerminal }
