package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"example.com/premeepro/production/internal/models"
)

// Principal is the authenticated caller
type Principal struct {
	ID   uuid.UUID
	Name string
	Role models.Role
}

// Can reports whether the principal holds c
func (p Principal) Can(c Capability) bool {
	return Allows(p.Role, c)
}

// Require returns a ForbiddenError unless the principal holds c
func (p Principal) Require(c Capability) error {
	if !p.Can(c) {
		return &ForbiddenError{Role: p.Role, Capability: c}
	}
	return nil
}

// ForbiddenError is returned when a principal lacks a capability
type ForbiddenError struct {
	Role       models.Role
	Capability Capability
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("role %q lacks capability %q", e.Role, e.Capability)
}

// PrincipalFromKey builds the principal an API key authenticates
func PrincipalFromKey(key *models.APIKey) Principal {
	return Principal{ID: key.ID, Name: key.Name, Role: key.Role}
}

type principalKey struct{}

// WithPrincipal stores p in ctx
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
