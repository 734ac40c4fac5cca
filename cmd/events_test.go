package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/service"
)

func TestWriteEvents(t *testing.T) {
	var buf bytes.Buffer
	writeEvents(&buf, &service.ChangePage{Events: []models.ChangeEvent{}})
	assert.Contains(t, buf.String(), "no events")

	buf.Reset()
	jobID := uuid.New()
	writeEvents(&buf, &service.ChangePage{
		Events: []models.ChangeEvent{{
			Sequence:    42,
			AggregateID: jobID,
			EventType:   models.EventJobStarted,
			OccurredAt:  time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC),
		}},
		Next:    42,
		HasMore: true,
	})

	out := buf.String()
	assert.Contains(t, out, "job.started")
	assert.Contains(t, out, jobID.String())
	assert.Contains(t, out, "2026-03-01 08:30:00")
	assert.Contains(t, out, "--after 42")
}
