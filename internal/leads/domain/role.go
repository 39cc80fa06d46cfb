package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Role is a salesperson's permission tier inside a dealership.
type Role string

const (
	RoleStandard   Role = "standard"
	RoleAdmin      Role = "admin"
	RoleOwner      Role = "owner"
	RoleSuperAdmin Role = "super_admin"
)

var elevatedRoles = map[Role]bool{
	RoleAdmin:      true,
	RoleOwner:      true,
	RoleSuperAdmin: true,
}

// ParseRole maps a stored or token role string to a Role.
// Unknown values are treated as standard.
func ParseRole(value string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(value)))
	switch r {
	case RoleAdmin, RoleOwner, RoleSuperAdmin:
		return r
	default:
		return RoleStandard
	}
}

// HighestRole picks the most privileged role from a token's role list.
func HighestRole(values []string) Role {
	best := RoleStandard
	for _, v := range values {
		r := ParseRole(v)
		if r.IsElevated() {
			if r == RoleSuperAdmin {
				return r
			}
			best = r
		}
	}
	return best
}

// IsElevated reports whether the role manages assignments rather than
// working leads as an individual contributor.
func (r Role) IsElevated() bool {
	return elevatedRoles[r]
}

// Salesperson is a worker who can own leads.
type Salesperson struct {
	ID           uuid.UUID
	TenantID     *uuid.UUID
	Name         string
	Role         Role
	Active       bool
	Email        string
	Phone        string
	PushEnabled  bool
	EmailEnabled bool
	SMSEnabled   bool
}

// DisplayName falls back to a short ID when the profile has no name.
func (s Salesperson) DisplayName() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	return "salesperson " + s.ID.String()[:8]
}

// InTenant reports whether the salesperson belongs to tenantID.
func (s Salesperson) InTenant(tenantID *uuid.UUID) bool {
	return s.TenantID != nil && tenantID != nil && *s.TenantID == *tenantID
}

// The three functions below are the only place role gating is decided.
// Claim, conflict and reassignment paths all call through them.

// CanAutoClaim reports whether actor may become an owner by first touch.
func CanAutoClaim(actor Salesperson) bool {
	return actor.TenantID != nil && !actor.Role.IsElevated()
}

// SubjectToConflictCheck reports whether actor's actions on someone else's
// lead require confirmation.
func SubjectToConflictCheck(actor Salesperson) bool {
	return !actor.Role.IsElevated()
}

// CanReassign reports whether actor may hand a lead to another salesperson.
func CanReassign(actor Salesperson) bool {
	return actor.Role.IsElevated()
}
