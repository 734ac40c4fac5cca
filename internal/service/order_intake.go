package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/premeepro/production/internal/messaging"
	"example.com/premeepro/production/internal/metrics"
	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/repository"
	"example.com/premeepro/production/internal/validation"
)

// OrderMessage is a sales order handed over for production
type OrderMessage struct {
	OrderID      string     `json:"order_id"`
	OrderNumber  string     `json:"order_number"`
	CustomerName string     `json:"customer_name"`
	ProductName  string     `json:"product_name"`
	Quantity     int        `json:"quantity"`
	Notes        string     `json:"notes"`
	DueDate      *time.Time `json:"due_date"`
	TemplateID   *uuid.UUID `json:"template_id"`
}

// JobCreator creates pending jobs
type JobCreator interface {
	Create(ctx context.Context, in CreateJobInput) (*models.Job, error)
}

// IntakeResult counts what one poll did with the received orders
type IntakeResult struct {
	Received  int
	Created   int
	Duplicate int
	Rejected  int
	Retried   int
}

// OrderIntakeService turns order messages into pending jobs. An order number that
// already has a job is acknowledged without creating another.
type OrderIntakeService struct {
	bus     messaging.Client
	queue   string
	jobs    repository.JobRepository
	creator JobCreator
	metrics *metrics.Metrics
}

// NewOrderIntakeService creates an order intake service reading from queue
func NewOrderIntakeService(bus messaging.Client, queue string, jobs repository.JobRepository, creator JobCreator, m *metrics.Metrics) *OrderIntakeService {
	return &OrderIntakeService{
		bus:     bus,
		queue:   queue,
		jobs:    jobs,
		creator: creator,
		metrics: m,
	}
}

// Poll receives up to max orders and processes them. Malformed or invalid orders are
// completed so they do not come back; other failures are abandoned for redelivery.
func (s *OrderIntakeService) Poll(ctx context.Context, max int) (IntakeResult, error) {
	var res IntakeResult

	deliveries, err := s.bus.Receive(ctx, s.queue, max)
	if err != nil {
		return res, err
	}
	res.Received = len(deliveries)

	for _, d := range deliveries {
		outcome, err := s.process(ctx, d.Body())
		if err != nil && outcome == outcomeRetry {
			log.Error().Err(err).Str("message_id", d.ID()).Msg("failed to import order, returning it to the queue")
			if err := d.Abandon(ctx); err != nil {
				log.Error().Err(err).Str("message_id", d.ID()).Msg("failed to abandon order message")
			}
			res.Retried++
			continue
		}

		switch outcome {
		case outcomeCreated:
			res.Created++
			count(s.metrics, metrics.CounterOrdersImported)
		case outcomeDuplicate:
			res.Duplicate++
		case outcomeRejected:
			res.Rejected++
			log.Warn().Err(err).Str("message_id", d.ID()).Msg("rejected order message")
		}
		if err := d.Complete(ctx); err != nil {
			log.Error().Err(err).Str("message_id", d.ID()).Msg("failed to complete order message")
		}
	}

	if res.Received > 0 {
		log.Info().
			Int("received", res.Received).
			Int("created", res.Created).
			Int("duplicate", res.Duplicate).
			Int("rejected", res.Rejected).
			Int("retried", res.Retried).
			Msg("order intake batch processed")
	}
	return res, nil
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeDuplicate
	outcomeRejected
	outcomeRetry
)

func (s *OrderIntakeService) process(ctx context.Context, body []byte) (outcome, error) {
	var msg OrderMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return outcomeRejected, errors.Wrap(err, "failed to decode order message")
	}

	existing, err := s.jobs.GetByOrderNumber(ctx, msg.OrderNumber)
	switch {
	case err == nil:
		log.Debug().Str("order_number", msg.OrderNumber).Str("job_id", existing.ID.String()).Msg("order already imported")
		return outcomeDuplicate, nil
	case !errors.Is(err, repository.ErrNotFound):
		return outcomeRetry, err
	}

	job, err := s.creator.Create(ctx, CreateJobInput{
		OrderID:      msg.OrderID,
		OrderNumber:  msg.OrderNumber,
		CustomerName: msg.CustomerName,
		ProductName:  msg.ProductName,
		Quantity:     msg.Quantity,
		Notes:        msg.Notes,
		DueDate:      msg.DueDate,
		TemplateID:   msg.TemplateID,
	})
	if err != nil {
		var verr *validation.Error
		switch {
		case errors.Is(err, repository.ErrDuplicateKey):
			return outcomeDuplicate, nil
		case errors.As(err, &verr), errors.Is(err, repository.ErrNotFound):
			return outcomeRejected, err
		}
		return outcomeRetry, err
	}

	log.Info().Str("order_number", job.OrderNumber).Str("job_id", job.ID.String()).Msg("order imported")
	return outcomeCreated, nil
}
