package engine

import (
	"sort"

	"github.com/google/uuid"

	"example.com/premeepro/production/internal/models"
)

// Run is a job together with its ordered steps, the unit every lifecycle operation works on.
// It records which steps an operation created, changed or removed so the caller can persist
// exactly those rows.
type Run struct {
	Job   *models.Job
	Steps []*models.JobStep

	created map[uuid.UUID]bool
	updated map[uuid.UUID]bool
	deleted []uuid.UUID
}

// Changes lists the step rows touched since the run was loaded
type Changes struct {
	Created []*models.JobStep
	Updated []*models.JobStep
	Deleted []uuid.UUID
}

// NewRun builds a run from a job and its persisted steps
func NewRun(job *models.Job, steps []models.JobStep) *Run {
	run := &Run{
		Job:     job,
		Steps:   make([]*models.JobStep, 0, len(steps)),
		created: make(map[uuid.UUID]bool),
		updated: make(map[uuid.UUID]bool),
	}
	for i := range steps {
		s := steps[i]
		run.Steps = append(run.Steps, &s)
	}
	run.sort()
	return run
}

// Changes returns the pending writes in step order
func (r *Run) Changes() Changes {
	var c Changes
	for _, s := range r.Steps {
		switch {
		case r.created[s.ID]:
			c.Created = append(c.Created, s)
		case r.updated[s.ID]:
			c.Updated = append(c.Updated, s)
		}
	}
	c.Deleted = append(c.Deleted, r.deleted...)
	return c
}

// StepValues returns a copy of the ordered steps
func (r *Run) StepValues() []models.JobStep {
	out := make([]models.JobStep, len(r.Steps))
	for i, s := range r.Steps {
		out[i] = *s
	}
	return out
}

// Active returns the step the job's active pointer references, or nil
func (r *Run) Active() *models.JobStep {
	if r.Job.ActiveJobStepID == nil {
		return nil
	}
	return r.Find(*r.Job.ActiveJobStepID)
}

// Find returns the step with the given id, or nil when it does not belong to the job
func (r *Run) Find(id uuid.UUID) *models.JobStep {
	for _, s := range r.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Next returns the first pending step after the given one; skipped steps are passed over
func (r *Run) Next(after *models.JobStep) *models.JobStep {
	for _, s := range r.Steps {
		if s.Order > after.Order && s.Status == models.StepStatusPending {
			return s
		}
	}
	return nil
}

func (r *Run) remaining(after *models.JobStep) int {
	n := 0
	for _, s := range r.Steps {
		if s.Order > after.Order && s.Status == models.StepStatusPending {
			n++
		}
	}
	return n
}

func (r *Run) sort() {
	sort.SliceStable(r.Steps, func(i, j int) bool {
		return r.Steps[i].Order < r.Steps[j].Order
	})
}

func (r *Run) markCreated(s *models.JobStep) {
	r.created[s.ID] = true
}

func (r *Run) markUpdated(s *models.JobStep) {
	if !r.created[s.ID] {
		r.updated[s.ID] = true
	}
}

// renumber assigns contiguous orders starting at 1 and marks moved steps
func (r *Run) renumber() {
	r.sort()
	for i, s := range r.Steps {
		if s.Order != i+1 {
			s.Order = i + 1
			r.markUpdated(s)
		}
	}
}

func (r *Run) remove(id uuid.UUID) {
	for i, s := range r.Steps {
		if s.ID == id {
			r.Steps = append(r.Steps[:i], r.Steps[i+1:]...)
			break
		}
	}
	if r.created[id] {
		delete(r.created, id)
		return
	}
	delete(r.updated, id)
	r.deleted = append(r.deleted, id)
}
