package notify

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/premeepro/production/internal/metrics"
)

// ErrQueueFull is returned when an event is dropped because the queue is full or closed
var ErrQueueFull = errors.New("notification queue is full")

// AsyncDispatcher delivers events on a bounded queue drained by worker goroutines.
// Events are delivered in no particular order.
type AsyncDispatcher struct {
	next    Dispatcher
	queue   chan Event
	timeout time.Duration
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncDispatcher starts workers goroutines delivering through next
func NewAsyncDispatcher(next Dispatcher, workers, size int, m *metrics.Metrics) *AsyncDispatcher {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 1
	}
	a := &AsyncDispatcher{
		next:    next,
		queue:   make(chan Event, size),
		timeout: 30 * time.Second,
		metrics: m,
	}
	a.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go a.work()
	}
	return a
}

// Enqueue queues ev without blocking. It reports false when the event was dropped.
func (a *AsyncDispatcher) Enqueue(ev Event) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.count(metrics.CounterNotificationsDropped)
		return false
	}

	select {
	case a.queue <- ev:
		a.gauge()
		return true
	default:
		log.Warn().Str("event_type", ev.Type).Str("job_id", ev.JobID.String()).Msg("notification queue full, dropping event")
		a.count(metrics.CounterNotificationsDropped)
		return false
	}
}

// Dispatch implements Dispatcher by queueing ev
func (a *AsyncDispatcher) Dispatch(ctx context.Context, ev Event) error {
	if !a.Enqueue(ev) {
		return ErrQueueFull
	}
	return nil
}

// Close stops accepting events, delivers what is queued and waits for the workers
func (a *AsyncDispatcher) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()
}

func (a *AsyncDispatcher) work() {
	defer a.wg.Done()
	for ev := range a.queue {
		a.gauge()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Dispatch(ctx, ev); err != nil {
			log.Error().Err(err).
				Str("event_type", ev.Type).
				Str("job_id", ev.JobID.String()).
				Msg("notification dispatch failed")
		}
		cancel()
	}
}

func (a *AsyncDispatcher) count(name string) {
	if a.metrics != nil {
		a.metrics.IncrementCounter(name)
	}
}

func (a *AsyncDispatcher) gauge() {
	if a.metrics != nil {
		a.metrics.SetGauge(metrics.GaugeNotificationQueue, int64(len(a.queue)))
	}
}
