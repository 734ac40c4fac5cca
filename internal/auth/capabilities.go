// Package auth maps staff roles to capabilities and enforces them at the API boundary.
package auth

import (
	"sort"

	"example.com/premeepro/production/internal/models"
)

// Capability names one thing a principal may do
type Capability string

const (
	JobsRead         Capability = "jobs:read"
	JobsProgress     Capability = "jobs:progress"
	JobsManage       Capability = "jobs:manage"
	JobsDelete       Capability = "jobs:delete"
	TemplatesRead    Capability = "templates:read"
	TemplatesManage  Capability = "templates:manage"
	NotificationsOwn Capability = "notifications:own"
)

var staffCapabilities = []Capability{JobsRead, JobsProgress, TemplatesRead, NotificationsOwn}

var roleCapabilities = map[models.Role]map[Capability]bool{
	models.RoleStaff:    set(staffCapabilities...),
	models.RoleOperator: set(append(staffCapabilities, JobsManage)...),
	models.RoleAdmin:    set(AllCapabilities()...),
}

// AllCapabilities lists every capability
func AllCapabilities() []Capability {
	return []Capability{JobsRead, JobsProgress, JobsManage, JobsDelete, TemplatesRead, TemplatesManage, NotificationsOwn}
}

// Allows reports whether role grants c
func Allows(role models.Role, c Capability) bool {
	return roleCapabilities[role][c]
}

// CapabilitiesOf returns the sorted capabilities of a role
func CapabilitiesOf(role models.Role) []Capability {
	out := make([]Capability, 0, len(roleCapabilities[role]))
	for c := range roleCapabilities[role] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func set(caps ...Capability) map[Capability]bool {
	m := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		m[c] = true
	}
	return m
}
