package messaging

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// MemoryClient keeps queues in process. It backs local development and tests.
type MemoryClient struct {
	source string

	mu     sync.Mutex
	queues map[string][]*memoryDelivery
	sent   map[string][]Message
}

// NewMemoryClient creates an empty in-memory client
func NewMemoryClient(source string) *MemoryClient {
	return &MemoryClient{
		source: source,
		queues: make(map[string][]*memoryDelivery),
		sent:   make(map[string][]Message),
	}
}

// Publish enqueues a message
func (m *MemoryClient) Publish(ctx context.Context, queue string, msg Message) error {
	data, err := json.Marshal(msg.Body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message body")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[queue] = append(m.sent[queue], msg)
	m.queues[queue] = append(m.queues[queue], &memoryDelivery{client: m, queue: queue, id: msg.ID, body: data})

	log.Debug().Str("source", m.source).Str("queue", queue).Str("subject", msg.Subject).Msg("in-memory message published")
	return nil
}

// Receive takes up to max messages off the queue without waiting
func (m *MemoryClient) Receive(ctx context.Context, queue string, max int) ([]Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[queue]
	if max > len(q) {
		max = len(q)
	}
	out := make([]Delivery, max)
	for i := 0; i < max; i++ {
		out[i] = q[i]
	}
	m.queues[queue] = q[max:]
	return out, nil
}

// Close is a no-op
func (m *MemoryClient) Close(ctx context.Context) error {
	return nil
}

// Sent returns the messages published to queue
func (m *MemoryClient) Sent(queue string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent[queue]...)
}

// Pending returns the number of messages waiting on queue
func (m *MemoryClient) Pending(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[queue])
}

type memoryDelivery struct {
	client *MemoryClient
	queue  string
	id     string
	body   []byte
}

func (d *memoryDelivery) ID() string   { return d.id }
func (d *memoryDelivery) Body() []byte { return d.body }

func (d *memoryDelivery) Complete(ctx context.Context) error {
	return nil
}

// Abandon puts the message back at the end of its queue
func (d *memoryDelivery) Abandon(ctx context.Context) error {
	d.client.mu.Lock()
	defer d.client.mu.Unlock()
	d.client.queues[d.queue] = append(d.client.queues[d.queue], d)
	return nil
}
