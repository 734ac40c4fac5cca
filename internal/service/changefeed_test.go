package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/repository/mocks"
)

func TestChanges(t *testing.T) {
	ctx := context.Background()

	events := func(seqs ...uint64) []models.ChangeEvent {
		out := make([]models.ChangeEvent, len(seqs))
		for i, s := range seqs {
			out[i] = models.ChangeEvent{Sequence: s, EventType: models.EventJobAdvanced}
		}
		return out
	}

	tests := []struct {
		name     string
		after    uint64
		limit    int
		fetch    int
		rows     []models.ChangeEvent
		wantLen  int
		wantNext uint64
		wantMore bool
	}{
		{name: "more pages follow", after: 10, limit: 2, fetch: 3, rows: events(11, 12, 13), wantLen: 2, wantNext: 12, wantMore: true},
		{name: "last page", after: 10, limit: 2, fetch: 3, rows: events(11), wantLen: 1, wantNext: 11},
		{name: "caught up keeps cursor", after: 42, limit: 0, fetch: 101, rows: nil, wantLen: 0, wantNext: 42},
		{name: "limit is capped", after: 0, limit: 10000, fetch: 501, rows: events(1), wantLen: 1, wantNext: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.EventRepository)
			repo.On("ListAfter", ctx, tt.after, tt.fetch).Return(tt.rows, nil)

			page, err := NewChangeFeedService(repo).Changes(ctx, tt.after, tt.limit)
			require.NoError(t, err)
			assert.Len(t, page.Events, tt.wantLen)
			assert.NotNil(t, page.Events)
			assert.Equal(t, tt.wantNext, page.Next)
			assert.Equal(t, tt.wantMore, page.HasMore)
			repo.AssertExpectations(t)
		})
	}
}
