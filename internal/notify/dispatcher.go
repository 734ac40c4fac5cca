// Package notify delivers best-effort job notifications to staff.
//
// Delivery never feeds back into the job lifecycle: a failed channel is logged and counted,
// and observers must reconcile against an authoritative re-fetch.
package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"example.com/premeepro/production/internal/messaging"
	"example.com/premeepro/production/internal/metrics"
	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/repository"
)

// Channel names
const (
	ChannelInApp   = "in_app"
	ChannelWebPush = "web_push"
	ChannelLine    = "line"
)

// Dispatcher delivers one notification event
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}

// OutboundMessage is published to the notifications queue for the push and LINE senders
type OutboundMessage struct {
	Channel     string    `json:"channel"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Tokens      []string  `json:"tokens,omitempty"`
	LineUserID  string    `json:"line_user_id,omitempty"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	JobID       uuid.UUID `json:"job_id"`
	EventType   string    `json:"event_type"`
}

// Options configures a ChannelDispatcher
type Options struct {
	Queue      string
	InAppLimit int
	MaxRetries int
	Roles      []string
}

// ChannelDispatcher fans an event out to the in-app, web push and LINE channels concurrently
type ChannelDispatcher struct {
	notifications repository.NotificationRepository
	keys          repository.APIKeyRepository
	bus           messaging.Client
	metrics       *metrics.Metrics

	queue      string
	inAppLimit int
	maxRetries int
	roles      map[models.Role]bool
}

// NewDispatcher creates a channel dispatcher
func NewDispatcher(
	notifications repository.NotificationRepository,
	keys repository.APIKeyRepository,
	bus messaging.Client,
	opts Options,
	m *metrics.Metrics,
) *ChannelDispatcher {
	if opts.InAppLimit <= 0 {
		opts.InAppLimit = 50
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	roles := make(map[models.Role]bool, len(opts.Roles))
	for _, r := range opts.Roles {
		roles[models.Role(r)] = true
	}
	return &ChannelDispatcher{
		notifications: notifications,
		keys:          keys,
		bus:           bus,
		metrics:       m,
		queue:         opts.Queue,
		inAppLimit:    opts.InAppLimit,
		maxRetries:    opts.MaxRetries,
		roles:         roles,
	}
}

type recipient struct {
	key     models.APIKey
	setting *models.NotificationSetting
}

// Dispatch delivers ev on every channel. It returns the first channel error after all
// channels have finished.
func (d *ChannelDispatcher) Dispatch(ctx context.Context, ev Event) error {
	recipients, err := d.recipients(ctx)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}

	var g errgroup.Group
	g.Go(func() error { return d.deliver(ctx, ChannelInApp, ev, recipients, d.sendInApp) })
	g.Go(func() error { return d.deliver(ctx, ChannelWebPush, ev, recipients, d.sendWebPush) })
	g.Go(func() error { return d.deliver(ctx, ChannelLine, ev, recipients, d.sendLine) })
	return g.Wait()
}

func (d *ChannelDispatcher) recipients(ctx context.Context) ([]recipient, error) {
	keys, err := d.keys.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list notification recipients")
	}

	out := make([]recipient, 0, len(keys))
	for _, k := range keys {
		if len(d.roles) > 0 && !d.roles[k.Role] {
			continue
		}
		setting, err := d.notifications.GetSetting(ctx, k.ID)
		if err != nil {
			log.Warn().Err(err).Str("recipient_id", k.ID.String()).Msg("failed to load notification setting")
			setting = &models.NotificationSetting{RecipientID: k.ID}
		}
		out = append(out, recipient{key: k, setting: setting})
	}
	return out, nil
}

type sendFunc func(ctx context.Context, ev Event, r recipient) (bool, error)

// deliver sends to every recipient on one channel, continuing past failures
func (d *ChannelDispatcher) deliver(ctx context.Context, channel string, ev Event, recipients []recipient, send sendFunc) error {
	var first error
	for _, r := range recipients {
		sent, err := send(ctx, ev, r)
		if d.metrics != nil && (sent || err != nil) {
			d.metrics.RecordResult("notify_"+channel, err)
		}
		if err != nil {
			log.Error().Err(err).
				Str("channel", channel).
				Str("recipient_id", r.key.ID.String()).
				Str("event_type", ev.Type).
				Str("job_id", ev.JobID.String()).
				Msg("notification delivery failed")
			d.count(metrics.CounterNotificationsFailed)
			if first == nil {
				first = errors.Wrapf(err, "%s delivery failed", channel)
			}
			continue
		}
		if sent {
			d.count(metrics.CounterNotificationsSent)
		}
	}
	return first
}

func (d *ChannelDispatcher) sendInApp(ctx context.Context, ev Event, r recipient) (bool, error) {
	jobID := ev.JobID
	n := &models.Notification{
		RecipientID: r.key.ID,
		Kind:        ev.Kind,
		Title:       ev.Title,
		Message:     ev.Message,
		JobID:       &jobID,
	}
	if err := d.notifications.Create(ctx, n); err != nil {
		return false, err
	}
	if err := d.notifications.Trim(ctx, r.key.ID, d.inAppLimit); err != nil {
		return true, err
	}
	return true, nil
}

func (d *ChannelDispatcher) sendWebPush(ctx context.Context, ev Event, r recipient) (bool, error) {
	if !r.setting.WebPushEnabled {
		return false, nil
	}
	tokens, err := d.notifications.ListPushTokens(ctx, r.key.ID)
	if err != nil {
		return false, err
	}
	if len(tokens) == 0 {
		return false, nil
	}
	msg := d.outbound(ChannelWebPush, ev, r)
	for _, t := range tokens {
		msg.Tokens = append(msg.Tokens, t.Token)
	}
	return true, d.publish(ctx, msg)
}

func (d *ChannelDispatcher) sendLine(ctx context.Context, ev Event, r recipient) (bool, error) {
	if !r.setting.LineEnabled || r.setting.LineUserID == "" {
		return false, nil
	}
	msg := d.outbound(ChannelLine, ev, r)
	msg.LineUserID = r.setting.LineUserID
	return true, d.publish(ctx, msg)
}

func (d *ChannelDispatcher) outbound(channel string, ev Event, r recipient) OutboundMessage {
	return OutboundMessage{
		Channel:     channel,
		RecipientID: r.key.ID,
		Title:       ev.Title,
		Message:     ev.Message,
		JobID:       ev.JobID,
		EventType:   ev.Type,
	}
}

func (d *ChannelDispatcher) publish(ctx context.Context, msg OutboundMessage) error {
	return messaging.RetryWithBackoff(ctx, func() error {
		return d.bus.Publish(ctx, d.queue, messaging.Message{
			Subject:    msg.Channel,
			SessionID:  msg.RecipientID.String(),
			Body:       msg,
			Properties: map[string]interface{}{"event_type": msg.EventType},
		})
	}, d.maxRetries)
}

func (d *ChannelDispatcher) count(name string) {
	if d.metrics != nil {
		d.metrics.IncrementCounter(name)
	}
}
