package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories groups every repository bound to the same connection or transaction
type Repositories struct {
	Templates     TemplateRepository
	Jobs          JobRepository
	JobSteps      JobStepRepository
	StepData      StepDataRepository
	Events        EventRepository
	Notifications NotificationRepository
	APIKeys       APIKeyRepository
}

// Transactor runs fn inside one database transaction. fn receives repositories bound to
// that transaction; returning an error rolls everything back.
type Transactor interface {
	Transaction(ctx context.Context, fn func(repos *Repositories) error) error
}

// Store is the gorm backed entry point to the repositories
type Store struct {
	*Repositories
	db *gorm.DB
}

// NewStore creates a store on top of db
func NewStore(db *gorm.DB) *Store {
	return &Store{
		Repositories: newRepositories(db),
		db:           db,
	}
}

// Transaction implements Transactor
func (s *Store) Transaction(ctx context.Context, fn func(repos *Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newRepositories(tx))
	})
}

// DB exposes the underlying connection for health checks
func (s *Store) DB() *gorm.DB {
	return s.db
}

func newRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Templates:     NewTemplateRepository(db),
		Jobs:          NewJobRepository(db),
		JobSteps:      NewJobStepRepository(db),
		StepData:      NewStepDataRepository(db),
		Events:        NewEventRepository(db),
		Notifications: NewNotificationRepository(db),
		APIKeys:       NewAPIKeyRepository(db),
	}
}
