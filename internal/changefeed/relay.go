// Package changefeed relays committed change events to the cache, the search index, the
// events queue and the notification dispatcher.
package changefeed

import (
	"context"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/premeepro/production/internal/messaging"
	"example.com/premeepro/production/internal/metrics"
	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/notify"
	"example.com/premeepro/production/internal/repository"
	"example.com/premeepro/production/internal/tracing"
)

// Notifier queues notifications without blocking
type Notifier interface {
	Enqueue(ev notify.Event) bool
}

// Options configures a Relay
type Options struct {
	Queue        string
	BatchSize    int
	MaxAttempts  int
	MaxRetries   int
	PollInterval time.Duration
	Tracer       tracing.Tracer
}

// Relay processes unprocessed change events in sequence order. Each batch is claimed in
// its own transaction, so relays in several processes never relay the same event.
type Relay struct {
	tx        repository.Transactor
	events    repository.EventRepository
	projector *Projector
	bus       messaging.Client
	notifier  Notifier
	metrics   *metrics.Metrics
	opts      Options

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
	wake    chan struct{}
}

// NewRelay creates a relay; notifier may be nil. events is used outside the batch
// transaction to report the backlog.
func NewRelay(tx repository.Transactor, events repository.EventRepository, p *Projector, bus messaging.Client, n Notifier, opts Options, m *metrics.Metrics) *Relay {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Tracer == nil {
		opts.Tracer = tracing.NewNoopTracer()
	}
	return &Relay{
		tx:        tx,
		events:    events,
		projector: p,
		bus:       bus,
		notifier:  n,
		metrics:   m,
		opts:      opts,
		wake:      make(chan struct{}, 1),
	}
}

// Start starts polling in the background
func (r *Relay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(r.stopCh, r.done)
}

// Stop stops polling and waits for the batch in flight
func (r *Relay) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	done := r.done
	r.mu.Unlock()

	<-done
}

// Wake asks the relay to poll now instead of waiting for the next tick
func (r *Relay) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Relay) loop(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-ticker.C:
		case <-r.wake:
		case <-stop:
			return
		}
		err := tracing.Background(ctx, r.opts.Tracer, "changefeed/relay", func(ctx context.Context) error {
			_, err := r.ProcessBatch(ctx)
			return err
		})
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("failed to process change event batch")
		}
	}
}

// ProcessBatch relays one batch of events and returns how many were relayed
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	relayed := 0
	err := r.tx.Transaction(ctx, func(repos *repository.Repositories) error {
		var err error
		relayed, err = r.relayBatch(ctx, repos.Events)
		return err
	})
	if err != nil {
		return relayed, err
	}

	r.opts.Tracer.AddAttribute(newrelic.FromContext(ctx), "relayed", relayed)
	r.gauge(ctx)
	return relayed, nil
}

func (r *Relay) relayBatch(ctx context.Context, events repository.EventRepository) (int, error) {
	batch, err := events.GetUnprocessed(ctx, r.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	log.Debug().Int("count", len(batch)).Msg("relaying change events")

	txn := newrelic.FromContext(ctx)
	relayed := 0
	for _, ev := range batch {
		if ctx.Err() != nil {
			return relayed, ctx.Err()
		}

		start := time.Now()
		seg := r.opts.Tracer.StartSpan("changefeed.relay "+ev.EventType, txn)
		err := r.processEvent(ctx, ev)
		seg.End()
		if r.metrics != nil {
			r.metrics.Since("changefeed_relay", start)
			r.metrics.RecordResult("changefeed_relay", err)
		}

		if err != nil {
			giveUp := ev.Attempts+1 >= r.opts.MaxAttempts
			log.Error().Err(err).
				Uint64("sequence", ev.Sequence).
				Str("event_type", ev.EventType).
				Str("job_id", ev.AggregateID.String()).
				Bool("give_up", giveUp).
				Msg("failed to relay change event")
			r.count(metrics.CounterEventsFailed)
			if markErr := events.MarkFailed(ctx, ev.Sequence, err.Error(), giveUp); markErr != nil {
				return relayed, markErr
			}
			continue
		}

		if err := events.MarkProcessed(ctx, ev.Sequence); err != nil {
			return relayed, err
		}
		r.count(metrics.CounterEventsRelayed)
		relayed++
	}
	return relayed, nil
}

func (r *Relay) processEvent(ctx context.Context, ev models.ChangeEvent) error {
	if err := r.projector.Invalidate(ctx, ev.AggregateID); err != nil {
		return err
	}
	if err := r.projector.Project(ctx, ev); err != nil {
		return errors.Wrap(err, "failed to project event")
	}

	err := messaging.RetryWithBackoff(ctx, func() error {
		return r.bus.Publish(ctx, r.opts.Queue, messaging.Message{
			ID:         ev.EventID.String(),
			Subject:    ev.EventType,
			SessionID:  ev.AggregateID.String(),
			Body:       ev,
			Properties: map[string]interface{}{"aggregate_type": ev.AggregateType, "version": ev.Version},
		})
	}, r.opts.MaxRetries)
	if r.metrics != nil {
		r.metrics.SetHealth(metrics.HealthMessageBus, err == nil)
	}
	if err != nil {
		return errors.Wrap(err, "failed to publish event")
	}

	if r.notifier == nil {
		return nil
	}
	n, ok, err := notify.FromChange(ev)
	if err != nil {
		log.Warn().Err(err).Uint64("sequence", ev.Sequence).Msg("skipping notification")
		return nil
	}
	if ok {
		r.notifier.Enqueue(n)
	}
	return nil
}

func (r *Relay) count(name string) {
	if r.metrics != nil {
		r.metrics.IncrementCounter(name)
	}
}

func (r *Relay) gauge(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	n, err := r.events.CountUnprocessed(ctx)
	if err != nil {
		return
	}
	r.metrics.SetGauge(metrics.GaugePendingChangeEvents, n)
}
