package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/premeepro/production/internal/models"
)

// APIKeyRepository stores staff API keys
type APIKeyRepository interface {
	Create(ctx context.Context, key *models.APIKey) error
	GetByHash(ctx context.Context, hash string) (*models.APIKey, error)
	List(ctx context.Context) ([]models.APIKey, error)
	ListActive(ctx context.Context) ([]models.APIKey, error)
	Revoke(ctx context.Context, id uuid.UUID) error
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

type apiKeyRepository struct {
	db *gorm.DB
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *gorm.DB) APIKeyRepository {
	return &apiKeyRepository{db: db}
}

// Create inserts a key
func (r *apiKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	return translate(r.db.WithContext(ctx).Create(key).Error, ErrCreateFailed, "create api key")
}

// GetByHash looks up a key by the hash of its secret
func (r *apiKeyRepository) GetByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	var key models.APIKey
	if err := r.db.WithContext(ctx).Where("key_hash = ?", hash).First(&key).Error; err != nil {
		return nil, translate(err, nil, "get api key")
	}
	return &key, nil
}

// List returns every key, newest first
func (r *apiKeyRepository) List(ctx context.Context) ([]models.APIKey, error) {
	var keys []models.APIKey
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&keys).Error; err != nil {
		return nil, translate(err, nil, "list api keys")
	}
	return keys, nil
}

// ListActive returns the keys that can still authenticate
func (r *apiKeyRepository) ListActive(ctx context.Context) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := r.db.WithContext(ctx).
		Where("active = ? AND (expires_at IS NULL OR expires_at > ?)", true, time.Now().UTC()).
		Find(&keys).Error
	if err != nil {
		return nil, translate(err, nil, "list active api keys")
	}
	return keys, nil
}

// Revoke deactivates a key
func (r *apiKeyRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&models.APIKey{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		return translate(res.Error, ErrUpdateFailed, "revoke api key")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastUsed records when a key was last used
func (r *apiKeyRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.APIKey{}).Where("id = ?", id).Update("last_used_at", at).Error
	return translate(err, ErrUpdateFailed, "touch api key")
}
