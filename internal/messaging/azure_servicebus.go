package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/premeepro/production/config"
	"example.com/premeepro/production/internal/metrics"
)

// Message is an outbound message
type Message struct {
	ID         string
	Subject    string
	SessionID  string
	Body       interface{}
	Properties map[string]interface{}
}

// Delivery is a received, locked message
type Delivery interface {
	ID() string
	Body() []byte
	Complete(ctx context.Context) error
	Abandon(ctx context.Context) error
}

// Client sends to and receives from queues
type Client interface {
	Publish(ctx context.Context, queue string, msg Message) error
	Receive(ctx context.Context, queue string, max int) ([]Delivery, error)
	Close(ctx context.Context) error
}

// NewClient creates an Azure Service Bus client, or an in-memory client when no
// connection string is configured
func NewClient(cfg config.AzureConfig, source string, m *metrics.Metrics) (Client, error) {
	if cfg.QueueConnStr == "" {
		log.Warn().Msg("Azure Service Bus connection string is empty, using in-memory queues")
		return NewMemoryClient(source), nil
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	return &serviceBusClient{
		client:    client,
		source:    source,
		metrics:   m,
		senders:   make(map[string]*azservicebus.Sender),
		receivers: make(map[string]*azservicebus.Receiver),
	}, nil
}

type serviceBusClient struct {
	client  *azservicebus.Client
	source  string
	metrics *metrics.Metrics

	mu        sync.Mutex
	senders   map[string]*azservicebus.Sender
	receivers map[string]*azservicebus.Receiver
}

func (s *serviceBusClient) sender(queue string) (*azservicebus.Sender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snd, ok := s.senders[queue]; ok {
		return snd, nil
	}
	snd, err := s.client.NewSender(queue, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create sender for queue %s", queue)
	}
	s.senders[queue] = snd
	return snd, nil
}

func (s *serviceBusClient) receiver(queue string) (*azservicebus.Receiver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rcv, ok := s.receivers[queue]; ok {
		return rcv, nil
	}
	rcv, err := s.client.NewReceiverForQueue(queue, &azservicebus.ReceiverOptions{
		ReceiveMode: azservicebus.ReceiveModePeekLock,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create receiver for queue %s", queue)
	}
	s.receivers[queue] = rcv
	return rcv, nil
}

// Publish sends one message
func (s *serviceBusClient) Publish(ctx context.Context, queue string, msg Message) error {
	start := time.Now()
	err := s.publish(ctx, queue, msg)
	if s.metrics != nil {
		s.metrics.Since("servicebus_send", start)
		s.metrics.RecordResult("servicebus_send", err)
		if err == nil {
			s.metrics.IncrementCounter(metrics.CounterMessagesSent)
		}
	}
	return err
}

func (s *serviceBusClient) publish(ctx context.Context, queue string, msg Message) error {
	snd, err := s.sender(queue)
	if err != nil {
		return err
	}

	data, err := json.Marshal(msg.Body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message body")
	}

	props := map[string]interface{}{
		"source": s.source,
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range msg.Properties {
		props[k] = v
	}

	sbMsg := &azservicebus.Message{
		Body:                  data,
		ApplicationProperties: props,
	}
	contentType := "application/json"
	sbMsg.ContentType = &contentType
	if msg.ID != "" {
		id := msg.ID
		sbMsg.MessageID = &id
	}
	if msg.Subject != "" {
		subject := msg.Subject
		sbMsg.Subject = &subject
	}
	if msg.SessionID != "" {
		session := msg.SessionID
		sbMsg.SessionID = &session
	}

	if err := snd.SendMessage(ctx, sbMsg, nil); err != nil {
		return errors.Wrapf(err, "failed to send message to %s", queue)
	}
	return nil
}

// Receive waits for up to max messages; an expired ctx yields an empty batch
func (s *serviceBusClient) Receive(ctx context.Context, queue string, max int) ([]Delivery, error) {
	rcv, err := s.receiver(queue)
	if err != nil {
		return nil, err
	}

	msgs, err := rcv.ReceiveMessages(ctx, max, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to receive messages from %s", queue)
	}

	out := make([]Delivery, len(msgs))
	for i, m := range msgs {
		out[i] = &serviceBusDelivery{msg: m, receiver: rcv}
	}
	if s.metrics != nil {
		s.metrics.IncrementCounterBy(metrics.CounterMessagesReceived, int64(len(out)))
	}
	return out, nil
}

// Close closes every sender, receiver and the client
func (s *serviceBusClient) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, snd := range s.senders {
		if err := snd.Close(ctx); err != nil {
			log.Error().Err(err).Str("queue", name).Msg("failed to close sender")
		}
	}
	for name, rcv := range s.receivers {
		if err := rcv.Close(ctx); err != nil {
			log.Error().Err(err).Str("queue", name).Msg("failed to close receiver")
		}
	}
	return s.client.Close(ctx)
}

type serviceBusDelivery struct {
	msg      *azservicebus.ReceivedMessage
	receiver *azservicebus.Receiver
}

func (d *serviceBusDelivery) ID() string   { return d.msg.MessageID }
func (d *serviceBusDelivery) Body() []byte { return d.msg.Body }

func (d *serviceBusDelivery) Complete(ctx context.Context) error {
	return d.receiver.CompleteMessage(ctx, d.msg, nil)
}

func (d *serviceBusDelivery) Abandon(ctx context.Context) error {
	return d.receiver.AbandonMessage(ctx, d.msg, nil)
}

// IsTransient reports errors worth retrying
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var sbErr *azservicebus.Error
	if errors.As(err, &sbErr) {
		return sbErr.Code == azservicebus.CodeConnectionLost || sbErr.Code == azservicebus.CodeTimeout
	}
	msg := err.Error()
	return strings.Contains(msg, "amqp: link detached") ||
		strings.Contains(msg, "awaiting send: context deadline exceeded")
}

// backoffBase is the first retry delay; it doubles per attempt up to backoffMax
var (
	backoffBase = time.Second
	backoffMax  = 30 * time.Second
)

// RetryWithBackoff retries fn with exponential backoff while it fails transiently
func RetryWithBackoff(ctx context.Context, fn func() error, maxRetries int) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if attempt == maxRetries-1 {
			break
		}

		backoff := backoffBase << uint(attempt)
		if backoff > backoffMax {
			backoff = backoffMax
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", maxRetries, err)
}
