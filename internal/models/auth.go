package models

import (
	"time"
)

// Role is the role of a staff member
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleStaff    Role = "staff"
)

// Valid reports whether the role is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleStaff:
		return true
	}
	return false
}

// APIKey identifies a staff member. Only the sha256 hash of the key is stored.
type APIKey struct {
	Base
	KeyHash    string     `gorm:"column:key_hash;not null;uniqueIndex" json:"-"`
	Prefix     string     `gorm:"type:varchar(12)" json:"prefix"`
	Name       string     `gorm:"not null" json:"name"`
	Role       Role       `gorm:"type:varchar(20);not null" json:"role"`
	Active     bool       `gorm:"not null" json:"active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}
