package service

import (
	"context"

	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/repository"
)

// ChangePage is one page of the change feed
type ChangePage struct {
	Events []models.ChangeEvent `json:"events"`
	// Next is the cursor to pass as after for the following page
	Next    uint64 `json:"next"`
	HasMore bool   `json:"has_more"`
}

// ChangeFeedService lets clients tail committed changes by sequence
type ChangeFeedService struct {
	events repository.EventRepository
}

// NewChangeFeedService creates a change feed service
func NewChangeFeedService(events repository.EventRepository) *ChangeFeedService {
	return &ChangeFeedService{events: events}
}

// Changes returns the events after the given sequence, oldest first
func (s *ChangeFeedService) Changes(ctx context.Context, after uint64, n int) (*ChangePage, error) {
	n = limit(n, 100, 500)

	// one extra row tells whether another page follows
	events, err := s.events.ListAfter(ctx, after, n+1)
	if err != nil {
		return nil, err
	}

	page := &ChangePage{Events: events, Next: after}
	if len(events) > n {
		page.Events = events[:n]
		page.HasMore = true
	}
	if page.Events == nil {
		page.Events = []models.ChangeEvent{}
	}
	if len(page.Events) > 0 {
		page.Next = page.Events[len(page.Events)-1].Sequence
	}
	return page, nil
}
