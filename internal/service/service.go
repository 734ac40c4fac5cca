// Package service holds the production business operations. Every mutation runs in one
// database transaction that also appends the change event describing it.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/premeepro/production/internal/cache"
	"example.com/premeepro/production/internal/engine"
	"example.com/premeepro/production/internal/metrics"
	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/repository"
)

// Waker is poked after a commit so the change feed relays without waiting for its next poll
type Waker interface {
	Wake()
}

// newJobEvent builds the change event for a job mutation
func newJobEvent(eventType string, run *engine.Run, now time.Time, extra func(d *models.JobEventData)) (*models.ChangeEvent, error) {
	job := run.Job
	data := models.JobEventData{
		JobID:        job.ID,
		OrderNumber:  job.OrderNumber,
		CustomerName: job.CustomerName,
		ProductName:  job.ProductName,
		Quantity:     job.Quantity,
		Status:       job.Status,
		ActiveStepID: job.ActiveJobStepID,
	}
	if active := run.Active(); active != nil {
		data.ActiveStepName = active.Name
	}
	if extra != nil {
		extra(&data)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal event data")
	}
	return &models.ChangeEvent{
		EventID:       uuid.New(),
		AggregateID:   job.ID,
		AggregateType: models.AggregateJob,
		EventType:     eventType,
		Data:          payload,
		Version:       job.Version,
		OccurredAt:    now,
	}, nil
}

// defaultFirstStep returns the first active step of the usable default template, or nil
func defaultFirstStep(ctx context.Context, repos *repository.Repositories) (*uuid.UUID, error) {
	defaults, err := repos.Templates.GetDefaults(ctx)
	if err != nil {
		return nil, err
	}
	tmpl, err := engine.ResolveTemplate(uuid.Nil, nil, defaults)
	if err != nil {
		return nil, nil
	}
	return stepID(engine.FirstActiveStep(tmpl)), nil
}

func stepID(def *models.StepDefinition) *uuid.UUID {
	if def == nil {
		return nil
	}
	id := def.ID
	return &id
}

// readCache reports whether value was filled from the cache
func readCache(ctx context.Context, c cache.Cache, m *metrics.Metrics, key string, value interface{}) bool {
	err := c.Get(ctx, key, value)
	switch {
	case err == nil:
		count(m, metrics.CounterCacheHits)
		return true
	case errors.Is(err, cache.ErrCacheDisabled):
	case errors.Is(err, cache.ErrCacheMiss):
		count(m, metrics.CounterCacheMisses)
	default:
		log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}
	return false
}

func writeCache(ctx context.Context, c cache.Cache, key string, value interface{}) {
	err := c.Set(ctx, key, value)
	if err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func count(m *metrics.Metrics, name string) {
	if m != nil {
		m.IncrementCounter(name)
	}
}

func limit(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
