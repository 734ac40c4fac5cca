package auth

import (
	"example.com/premeepro/production/internal/engine"
	"example.com/premeepro/production/internal/models"
)

// CheckJobDeletion enforces the deletion policy: the caller needs jobs:delete and the job
// must be completed or cancelled.
func CheckJobDeletion(p Principal, job *models.Job) error {
	if err := p.Require(JobsDelete); err != nil {
		return err
	}
	if !job.Status.IsTerminal() {
		return &engine.JobNotTerminalError{JobID: job.ID, Status: job.Status}
	}
	return nil
}
