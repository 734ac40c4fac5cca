package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/premeepro/production/internal/models"
)

// EventRepository stores the change feed
type EventRepository interface {
	Append(ctx context.Context, event *models.ChangeEvent) error
	GetUnprocessed(ctx context.Context, limit int) ([]models.ChangeEvent, error)
	CountUnprocessed(ctx context.Context) (int64, error)
	MarkProcessed(ctx context.Context, sequence uint64) error
	MarkFailed(ctx context.Context, sequence uint64, reason string, giveUp bool) error
	ListAfter(ctx context.Context, after uint64, limit int) ([]models.ChangeEvent, error)
	ListByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]models.ChangeEvent, error)
}

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new change event repository
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// Append writes an event to the feed
func (r *eventRepository) Append(ctx context.Context, event *models.ChangeEvent) error {
	return translate(r.db.WithContext(ctx).Create(event).Error, ErrCreateFailed, "append change event")
}

// GetUnprocessed returns the oldest events not yet relayed. Inside a transaction the rows
// stay locked until it ends and rows locked by another relay are skipped.
func (r *eventRepository) GetUnprocessed(ctx context.Context, limit int) ([]models.ChangeEvent, error) {
	var events []models.ChangeEvent
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("processed = ?", false).
		Order("sequence ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, translate(err, nil, "get unprocessed events")
	}
	return events, nil
}

// CountUnprocessed returns the relay backlog size
func (r *eventRepository) CountUnprocessed(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.ChangeEvent{}).Where("processed = ?", false).Count(&n).Error
	return n, translate(err, nil, "count unprocessed events")
}

// MarkProcessed flags an event as relayed
func (r *eventRepository) MarkProcessed(ctx context.Context, sequence uint64) error {
	err := r.db.WithContext(ctx).
		Model(&models.ChangeEvent{}).
		Where("sequence = ?", sequence).
		Updates(map[string]interface{}{
			"processed":    true,
			"processed_at": time.Now().UTC(),
		}).Error
	return translate(err, ErrUpdateFailed, "mark event processed")
}

// MarkFailed records a failed relay attempt; giveUp also flags the event as processed
func (r *eventRepository) MarkFailed(ctx context.Context, sequence uint64, reason string, giveUp bool) error {
	updates := map[string]interface{}{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": reason,
	}
	if giveUp {
		updates["processed"] = true
		updates["processed_at"] = time.Now().UTC()
	}
	err := r.db.WithContext(ctx).
		Model(&models.ChangeEvent{}).
		Where("sequence = ?", sequence).
		Updates(updates).Error
	return translate(err, ErrUpdateFailed, "mark event failed")
}

// ListAfter returns events with a sequence greater than after
func (r *eventRepository) ListAfter(ctx context.Context, after uint64, limit int) ([]models.ChangeEvent, error) {
	var events []models.ChangeEvent
	err := r.db.WithContext(ctx).
		Where("sequence > ?", after).
		Order("sequence ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, translate(err, nil, "list change events")
	}
	return events, nil
}

// ListByAggregate returns the full history of one aggregate
func (r *eventRepository) ListByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]models.ChangeEvent, error) {
	var events []models.ChangeEvent
	err := r.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("sequence ASC").
		Find(&events).Error
	if err != nil {
		return nil, translate(err, nil, "list aggregate events")
	}
	return events, nil
}
