package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"

	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/repository"
)

const (
	keyBytes  = 32
	prefixLen = 8
)

// Authentication errors
var (
	ErrInvalidKey = errors.New("invalid API key")
	ErrExpiredKey = errors.New("API key expired")
	ErrRevokedKey = errors.New("API key revoked")
)

// GeneratedKey is a freshly generated key. Secret is shown once and never stored.
type GeneratedKey struct {
	Secret string
	Prefix string
	Hash   string
}

// GenerateKey creates a random API key
func GenerateKey() (GeneratedKey, error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return GeneratedKey{}, errors.Wrap(err, "failed to generate key")
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)
	return GeneratedKey{
		Secret: secret,
		Prefix: secret[:prefixLen],
		Hash:   HashKey(secret),
	}, nil
}

// HashKey returns the stored form of a key
func HashKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// NewAPIKey builds the row for a generated key
func NewAPIKey(k GeneratedKey, name string, role models.Role, ttl time.Duration) *models.APIKey {
	key := &models.APIKey{
		KeyHash: k.Hash,
		Prefix:  k.Prefix,
		Name:    name,
		Role:    role,
		Active:  true,
	}
	if ttl > 0 {
		exp := time.Now().UTC().Add(ttl)
		key.ExpiresAt = &exp
	}
	return key
}

// Authenticator resolves bearer secrets to principals
type Authenticator struct {
	keys repository.APIKeyRepository
	now  func() time.Time
}

// NewAuthenticator creates an authenticator backed by the key repository
func NewAuthenticator(keys repository.APIKeyRepository) *Authenticator {
	return &Authenticator{keys: keys, now: time.Now}
}

// Authenticate checks a secret and returns the key it belongs to
func (a *Authenticator) Authenticate(ctx context.Context, secret string) (*models.APIKey, error) {
	if secret == "" {
		return nil, ErrInvalidKey
	}
	key, err := a.keys.GetByHash(ctx, HashKey(secret))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, errors.Wrap(err, "failed to look up API key")
	}
	if !key.Active {
		return nil, ErrRevokedKey
	}
	if key.ExpiresAt != nil && key.ExpiresAt.Before(a.now()) {
		return nil, ErrExpiredKey
	}
	if !key.Role.Valid() {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// Touch records the use of a key
func (a *Authenticator) Touch(ctx context.Context, key *models.APIKey) error {
	return a.keys.TouchLastUsed(ctx, key.ID, a.now().UTC())
}

// EnsureBootstrapKey stores secret as an admin key unless a key with the same hash exists.
// It reports whether a key was created.
func EnsureBootstrapKey(ctx context.Context, keys repository.APIKeyRepository, name, secret string) (bool, error) {
	if secret == "" {
		return false, nil
	}
	hash := HashKey(secret)
	_, err := keys.GetByHash(ctx, hash)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return false, errors.Wrap(err, "failed to look up bootstrap key")
	}

	prefix := secret
	if len(prefix) > prefixLen {
		prefix = prefix[:prefixLen]
	}
	key := NewAPIKey(GeneratedKey{Secret: secret, Prefix: prefix, Hash: hash}, name, models.RoleAdmin, 0)
	if err := keys.Create(ctx, key); err != nil {
		return false, errors.Wrap(err, "failed to store bootstrap key")
	}
	return true, nil
}
