// Package mocks provides testify mocks of the repository, cache and search interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"example.com/premeepro/production/internal/cache"
	"example.com/premeepro/production/internal/engine"
	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/repository"
	"example.com/premeepro/production/internal/search"
)

// Store bundles one mock per repository and runs transactions against them
type Store struct {
	Templates     *TemplateRepository
	Jobs          *JobRepository
	JobSteps      *JobStepRepository
	StepData      *StepDataRepository
	Events        *EventRepository
	Notifications *NotificationRepository
	APIKeys       *APIKeyRepository

	// TxErr, when set, is returned by Transaction after fn succeeds, simulating a failed commit
	TxErr error
}

// NewStore creates a store with fresh mocks
func NewStore() *Store {
	return &Store{
		Templates:     new(TemplateRepository),
		Jobs:          new(JobRepository),
		JobSteps:      new(JobStepRepository),
		StepData:      new(StepDataRepository),
		Events:        new(EventRepository),
		Notifications: new(NotificationRepository),
		APIKeys:       new(APIKeyRepository),
	}
}

// Repositories returns the mocks as repository interfaces
func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Templates:     s.Templates,
		Jobs:          s.Jobs,
		JobSteps:      s.JobSteps,
		StepData:      s.StepData,
		Events:        s.Events,
		Notifications: s.Notifications,
		APIKeys:       s.APIKeys,
	}
}

// Transaction implements repository.Transactor
func (s *Store) Transaction(ctx context.Context, fn func(repos *repository.Repositories) error) error {
	if err := fn(s.Repositories()); err != nil {
		return err
	}
	return s.TxErr
}

// AssertExpectations asserts every mock
func (s *Store) AssertExpectations(t mock.TestingT) {
	s.Templates.AssertExpectations(t)
	s.Jobs.AssertExpectations(t)
	s.JobSteps.AssertExpectations(t)
	s.StepData.AssertExpectations(t)
	s.Events.AssertExpectations(t)
	s.Notifications.AssertExpectations(t)
	s.APIKeys.AssertExpectations(t)
}

// TemplateRepository is a mock of repository.TemplateRepository
type TemplateRepository struct {
	mock.Mock
}

func (m *TemplateRepository) List(ctx context.Context) ([]models.Template, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Template), args.Error(1)
}

func (m *TemplateRepository) Get(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Template), args.Error(1)
}

func (m *TemplateRepository) GetDefaults(ctx context.Context) ([]models.Template, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Template), args.Error(1)
}

func (m *TemplateRepository) Create(ctx context.Context, t *models.Template) error {
	return m.Called(ctx, t).Error(0)
}

func (m *TemplateRepository) Update(ctx context.Context, t *models.Template) error {
	return m.Called(ctx, t).Error(0)
}

func (m *TemplateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *TemplateRepository) ClearDefault(ctx context.Context, exceptID uuid.UUID) error {
	return m.Called(ctx, exceptID).Error(0)
}

func (m *TemplateRepository) GetStep(ctx context.Context, templateID, stepID uuid.UUID) (*models.StepDefinition, error) {
	args := m.Called(ctx, templateID, stepID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StepDefinition), args.Error(1)
}

func (m *TemplateRepository) CreateStep(ctx context.Context, step *models.StepDefinition) error {
	return m.Called(ctx, step).Error(0)
}

func (m *TemplateRepository) UpdateStep(ctx context.Context, step *models.StepDefinition) error {
	return m.Called(ctx, step).Error(0)
}

func (m *TemplateRepository) DeleteStep(ctx context.Context, templateID, stepID uuid.UUID) error {
	return m.Called(ctx, templateID, stepID).Error(0)
}

func (m *TemplateRepository) ShiftSteps(ctx context.Context, templateID uuid.UUID, fromOrder, delta int) error {
	return m.Called(ctx, templateID, fromOrder, delta).Error(0)
}

func (m *TemplateRepository) MaxStepOrder(ctx context.Context, templateID uuid.UUID) (int, error) {
	args := m.Called(ctx, templateID)
	return args.Int(0), args.Error(1)
}

// JobRepository is a mock of repository.JobRepository
type JobRepository struct {
	mock.Mock
}

func (m *JobRepository) Create(ctx context.Context, job *models.Job) error {
	return m.Called(ctx, job).Error(0)
}

func (m *JobRepository) Update(ctx context.Context, job *models.Job) error {
	return m.Called(ctx, job).Error(0)
}

func (m *JobRepository) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *JobRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *JobRepository) GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Job, error) {
	args := m.Called(ctx, orderNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *JobRepository) List(ctx context.Context, filter repository.JobFilter) ([]models.Job, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.Job), args.Get(1).(int64), args.Error(2)
}

func (m *JobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *JobRepository) DetachTemplate(ctx context.Context, templateID uuid.UUID) error {
	return m.Called(ctx, templateID).Error(0)
}

func (m *JobRepository) SetPendingStep(ctx context.Context, templateID *uuid.UUID, stepID *uuid.UUID) error {
	return m.Called(ctx, templateID, stepID).Error(0)
}

func (m *JobRepository) ForEachBatch(ctx context.Context, size int, fn func(jobs []models.Job) error) error {
	args := m.Called(ctx, size, fn)
	if batches, ok := args.Get(0).([][]models.Job); ok {
		for _, b := range batches {
			if err := fn(b); err != nil {
				return err
			}
		}
	}
	return args.Error(1)
}

// JobStepRepository is a mock of repository.JobStepRepository
type JobStepRepository struct {
	mock.Mock
}

func (m *JobStepRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.JobStep, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).([]models.JobStep), args.Error(1)
}

func (m *JobStepRepository) Get(ctx context.Context, jobID, stepID uuid.UUID) (*models.JobStep, error) {
	args := m.Called(ctx, jobID, stepID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.JobStep), args.Error(1)
}

func (m *JobStepRepository) Apply(ctx context.Context, changes engine.Changes) error {
	return m.Called(ctx, changes).Error(0)
}

// StepDataRepository is a mock of repository.StepDataRepository
type StepDataRepository struct {
	mock.Mock
}

func (m *StepDataRepository) GetDetail(ctx context.Context, stepID uuid.UUID) (*models.StepDetail, error) {
	args := m.Called(ctx, stepID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StepDetail), args.Error(1)
}

func (m *StepDataRepository) SaveDetail(ctx context.Context, detail *models.StepDetail) error {
	return m.Called(ctx, detail).Error(0)
}

func (m *StepDataRepository) ListDetailsByJob(ctx context.Context, jobID uuid.UUID) ([]models.StepDetail, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).([]models.StepDetail), args.Error(1)
}

func (m *StepDataRepository) ListAttachmentsByJob(ctx context.Context, jobID uuid.UUID) ([]models.StepAttachment, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).([]models.StepAttachment), args.Error(1)
}

func (m *StepDataRepository) ListAttachmentsByStep(ctx context.Context, stepID uuid.UUID) ([]models.StepAttachment, error) {
	args := m.Called(ctx, stepID)
	return args.Get(0).([]models.StepAttachment), args.Error(1)
}

func (m *StepDataRepository) GetAttachment(ctx context.Context, id uuid.UUID) (*models.StepAttachment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StepAttachment), args.Error(1)
}

func (m *StepDataRepository) CreateAttachment(ctx context.Context, a *models.StepAttachment) error {
	return m.Called(ctx, a).Error(0)
}

func (m *StepDataRepository) DeleteAttachment(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

// EventRepository is a mock of repository.EventRepository
type EventRepository struct {
	mock.Mock
}

func (m *EventRepository) Append(ctx context.Context, event *models.ChangeEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *EventRepository) GetUnprocessed(ctx context.Context, limit int) ([]models.ChangeEvent, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.ChangeEvent), args.Error(1)
}

func (m *EventRepository) CountUnprocessed(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *EventRepository) MarkProcessed(ctx context.Context, sequence uint64) error {
	return m.Called(ctx, sequence).Error(0)
}

func (m *EventRepository) MarkFailed(ctx context.Context, sequence uint64, reason string, giveUp bool) error {
	return m.Called(ctx, sequence, reason, giveUp).Error(0)
}

func (m *EventRepository) ListAfter(ctx context.Context, after uint64, limit int) ([]models.ChangeEvent, error) {
	args := m.Called(ctx, after, limit)
	return args.Get(0).([]models.ChangeEvent), args.Error(1)
}

func (m *EventRepository) ListByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]models.ChangeEvent, error) {
	args := m.Called(ctx, aggregateID)
	return args.Get(0).([]models.ChangeEvent), args.Error(1)
}

// NotificationRepository is a mock of repository.NotificationRepository
type NotificationRepository struct {
	mock.Mock
}

func (m *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *NotificationRepository) List(ctx context.Context, recipientID uuid.UUID, limit int, unreadOnly bool) ([]models.Notification, error) {
	args := m.Called(ctx, recipientID, limit, unreadOnly)
	return args.Get(0).([]models.Notification), args.Error(1)
}

func (m *NotificationRepository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	args := m.Called(ctx, recipientID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *NotificationRepository) MarkRead(ctx context.Context, recipientID, id uuid.UUID) error {
	return m.Called(ctx, recipientID, id).Error(0)
}

func (m *NotificationRepository) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	args := m.Called(ctx, recipientID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *NotificationRepository) Delete(ctx context.Context, recipientID, id uuid.UUID) error {
	return m.Called(ctx, recipientID, id).Error(0)
}

func (m *NotificationRepository) DeleteAll(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	args := m.Called(ctx, recipientID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *NotificationRepository) Trim(ctx context.Context, recipientID uuid.UUID, keep int) error {
	return m.Called(ctx, recipientID, keep).Error(0)
}

func (m *NotificationRepository) PruneRead(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *NotificationRepository) GetSetting(ctx context.Context, recipientID uuid.UUID) (*models.NotificationSetting, error) {
	args := m.Called(ctx, recipientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.NotificationSetting), args.Error(1)
}

func (m *NotificationRepository) SaveSetting(ctx context.Context, s *models.NotificationSetting) error {
	return m.Called(ctx, s).Error(0)
}

func (m *NotificationRepository) SavePushToken(ctx context.Context, t *models.PushToken) error {
	return m.Called(ctx, t).Error(0)
}

func (m *NotificationRepository) DeletePushToken(ctx context.Context, recipientID uuid.UUID, token string) error {
	return m.Called(ctx, recipientID, token).Error(0)
}

func (m *NotificationRepository) ListPushTokens(ctx context.Context, recipientID uuid.UUID) ([]models.PushToken, error) {
	args := m.Called(ctx, recipientID)
	return args.Get(0).([]models.PushToken), args.Error(1)
}

// APIKeyRepository is a mock of repository.APIKeyRepository
type APIKeyRepository struct {
	mock.Mock
}

func (m *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	return m.Called(ctx, key).Error(0)
}

func (m *APIKeyRepository) GetByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.APIKey), args.Error(1)
}

func (m *APIKeyRepository) List(ctx context.Context) ([]models.APIKey, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.APIKey), args.Error(1)
}

func (m *APIKeyRepository) ListActive(ctx context.Context) ([]models.APIKey, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.APIKey), args.Error(1)
}

func (m *APIKeyRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *APIKeyRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

// Cache is a mock of cache.Cache
type Cache struct {
	mock.Mock
}

func (m *Cache) Get(ctx context.Context, key string, value interface{}) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *Cache) Set(ctx context.Context, key string, value interface{}) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *Cache) Delete(ctx context.Context, keys ...string) error {
	return m.Called(ctx, keys).Error(0)
}

func (m *Cache) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *Cache) Close() error {
	return m.Called().Error(0)
}

// JobIndex is a mock of search.JobIndex
type JobIndex struct {
	mock.Mock
}

func (m *JobIndex) IndexJob(ctx context.Context, doc search.JobDocument) error {
	return m.Called(ctx, doc).Error(0)
}

func (m *JobIndex) DeleteJob(ctx context.Context, id uuid.UUID, version int) error {
	return m.Called(ctx, id, version).Error(0)
}

func (m *JobIndex) SearchJobs(ctx context.Context, q search.JobQuery) (*search.JobSearchResult, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*search.JobSearchResult), args.Error(1)
}

func (m *JobIndex) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var (
	_ cache.Cache                       = (*Cache)(nil)
	_ search.JobIndex                   = (*JobIndex)(nil)
	_ repository.Transactor             = (*Store)(nil)
	_ repository.TemplateRepository     = (*TemplateRepository)(nil)
	_ repository.JobRepository          = (*JobRepository)(nil)
	_ repository.JobStepRepository      = (*JobStepRepository)(nil)
	_ repository.StepDataRepository     = (*StepDataRepository)(nil)
	_ repository.EventRepository        = (*EventRepository)(nil)
	_ repository.NotificationRepository = (*NotificationRepository)(nil)
	_ repository.APIKeyRepository       = (*APIKeyRepository)(nil)
)
