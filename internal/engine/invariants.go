package engine

import (
	"github.com/pkg/errors"

	"example.com/premeepro/production/internal/models"
)

// CheckInvariants verifies the structural rules every persisted run must satisfy
func CheckInvariants(run *Run) error {
	job := run.Job

	for i, s := range run.Steps {
		if s.Order != i+1 {
			return errors.Errorf("step %s has order %d, want %d", s.ID, s.Order, i+1)
		}
		if s.JobID != job.ID {
			return errors.Errorf("step %s belongs to job %s", s.ID, s.JobID)
		}
	}

	inProgress := 0
	for _, s := range run.Steps {
		if s.Status == models.StepStatusInProgress {
			inProgress++
		}
	}

	switch job.Status {
	case models.JobStatusPending:
		if len(run.Steps) > 0 {
			return errors.New("pending job has steps")
		}
		if job.ActiveJobStepID != nil {
			return errors.New("pending job has an active step")
		}
	case models.JobStatusInProgress:
		if job.PendingTemplateStepID != nil {
			return errors.New("started job still points at a template step")
		}
		active := run.Active()
		if active == nil {
			return errors.New("in-progress job has no active step")
		}
		if inProgress != 1 || active.Status != models.StepStatusInProgress {
			return errors.Errorf("in-progress job has %d in-progress steps", inProgress)
		}
		for _, s := range run.Steps {
			switch {
			case s.Order < active.Order && s.Status != models.StepStatusCompleted && s.Status != models.StepStatusSkipped:
				return errors.Errorf("step %s before the active step is %s", s.ID, s.Status)
			case s.Order > active.Order && s.Status != models.StepStatusPending && s.Status != models.StepStatusSkipped:
				return errors.Errorf("step %s after the active step is %s", s.ID, s.Status)
			}
		}
	case models.JobStatusCompleted:
		if job.ActiveJobStepID != nil {
			return errors.New("completed job has an active step")
		}
		for _, s := range run.Steps {
			if s.Status != models.StepStatusCompleted && s.Status != models.StepStatusSkipped {
				return errors.Errorf("completed job has %s step %s", s.Status, s.ID)
			}
		}
	case models.JobStatusCancelled:
		if inProgress > 1 {
			return errors.Errorf("cancelled job has %d in-progress steps", inProgress)
		}
		if inProgress == 1 {
			active := run.Active()
			if active == nil || active.Status != models.StepStatusInProgress {
				return errors.New("cancelled job's frozen step does not match its active pointer")
			}
		}
	default:
		return errors.Errorf("unknown job status %q", job.Status)
	}
	return nil
}
