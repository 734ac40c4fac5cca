package notify

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"example.com/premeepro/production/internal/models"
)

// Event is one notification fanned out to every channel
type Event struct {
	EventID uuid.UUID
	Type    string
	Kind    models.NotificationKind
	JobID   uuid.UUID
	Title   string
	Message string
	Data    models.JobEventData
}

var kinds = map[string]models.NotificationKind{
	models.EventJobCreated:   models.NotificationJobCreated,
	models.EventJobStarted:   models.NotificationJobStarted,
	models.EventJobAdvanced:  models.NotificationJobAdvanced,
	models.EventJobCompleted: models.NotificationJobCompleted,
	models.EventJobCancelled: models.NotificationJobCancelled,
}

// Notifies reports whether staff are notified of an event type
func Notifies(eventType string) bool {
	_, ok := kinds[eventType]
	return ok
}

// FromChange builds the notification for a change event. ok is false for event types
// nobody is notified of.
func FromChange(ev models.ChangeEvent) (Event, bool, error) {
	kind, ok := kinds[ev.EventType]
	if !ok {
		return Event{}, false, nil
	}

	var data models.JobEventData
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		return Event{}, false, errors.Wrapf(err, "failed to decode %s payload", ev.EventType)
	}

	out := Event{
		EventID: ev.EventID,
		Type:    ev.EventType,
		Kind:    kind,
		JobID:   ev.AggregateID,
		Data:    data,
	}
	out.Title, out.Message = render(kind, data)
	return out, true, nil
}

func render(kind models.NotificationKind, d models.JobEventData) (string, string) {
	job := fmt.Sprintf("%s (%s x%d)", d.OrderNumber, d.ProductName, d.Quantity)
	switch kind {
	case models.NotificationJobCreated:
		return "New job", fmt.Sprintf("Job %s for %s was created", job, d.CustomerName)
	case models.NotificationJobStarted:
		return "Job started", fmt.Sprintf("Job %s started at %s", job, d.ActiveStepName)
	case models.NotificationJobAdvanced:
		return "Job advanced", fmt.Sprintf("Job %s moved to %s", job, d.ActiveStepName)
	case models.NotificationJobCompleted:
		return "Job completed", fmt.Sprintf("Job %s is completed", job)
	case models.NotificationJobCancelled:
		if d.Reason != "" {
			return "Job cancelled", fmt.Sprintf("Job %s was cancelled: %s", job, d.Reason)
		}
		return "Job cancelled", fmt.Sprintf("Job %s was cancelled", job)
	}
	return string(kind), job
}
