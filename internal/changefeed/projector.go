package changefeed

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/premeepro/production/internal/cache"
	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/repository"
	"example.com/premeepro/production/internal/search"
)

// Projector keeps the cached and indexed views of a job in line with the database
type Projector struct {
	jobs  repository.JobRepository
	steps repository.JobStepRepository
	cache cache.Cache
	index search.JobIndex
}

// NewProjector creates a projector
func NewProjector(jobs repository.JobRepository, steps repository.JobStepRepository, c cache.Cache, idx search.JobIndex) *Projector {
	return &Projector{jobs: jobs, steps: steps, cache: c, index: idx}
}

// Invalidate drops the cached job and steps
func (p *Projector) Invalidate(ctx context.Context, jobID uuid.UUID) error {
	if err := p.cache.Delete(ctx, cache.JobKeys(jobID)...); err != nil {
		return errors.Wrapf(err, "failed to invalidate cache of job %s", jobID)
	}
	return nil
}

// Project rebuilds the search document of the job an event belongs to. The current row is
// indexed rather than the event payload, so replaying an event is harmless.
func (p *Projector) Project(ctx context.Context, ev models.ChangeEvent) error {
	if ev.AggregateType != models.AggregateJob {
		return nil
	}
	if ev.EventType == models.EventJobDeleted {
		return p.index.DeleteJob(ctx, ev.AggregateID, ev.Version)
	}

	job, err := p.jobs.Get(ctx, ev.AggregateID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Debug().Str("job_id", ev.AggregateID.String()).Msg("job no longer exists, removing document")
		return p.index.DeleteJob(ctx, ev.AggregateID, ev.Version)
	}
	if err != nil {
		return err
	}

	steps, err := p.steps.ListByJob(ctx, job.ID)
	if err != nil {
		return err
	}
	return p.index.IndexJob(ctx, search.NewJobDocument(job, steps))
}

// Reindex indexes every job again. It repairs documents lost while the index was down.
func (p *Projector) Reindex(ctx context.Context, batchSize int) (int, error) {
	indexed := 0
	err := p.jobs.ForEachBatch(ctx, batchSize, func(jobs []models.Job) error {
		for i := range jobs {
			job := &jobs[i]
			if err := p.index.IndexJob(ctx, search.NewJobDocument(job, job.Steps)); err != nil {
				return errors.Wrapf(err, "failed to index job %s", job.ID)
			}
			indexed++
		}
		return nil
	})
	return indexed, err
}
