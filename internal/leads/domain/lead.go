// Package domain provides core business rules for lead ownership and lifecycle.
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// OwnershipState is the derived position of a lead in the ownership lifecycle.
type OwnershipState string

const (
	StatePooledGlobal OwnershipState = "pooled_global"
	StatePooledTenant OwnershipState = "pooled_tenant"
	StateOwned        OwnershipState = "owned"
	StateClosed       OwnershipState = "closed"
)

// Lead is one sales opportunity.
type Lead struct {
	ID             uuid.UUID
	Name           string
	OwnerID        *uuid.UUID
	TenantID       *uuid.UUID
	StageID        uuid.UUID
	IsActive       bool
	Outcome        *string
	LastActivityAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

var (
	ErrOwnerWithoutTenant  = errors.New("owned lead must belong to a tenant")
	ErrOutcomeMismatch     = errors.New("outcome must be set exactly when the lead is inactive")
	ErrStageTenantMismatch = errors.New("stage does not belong to the lead's tenant")
	ErrOwnerTenantMismatch = errors.New("owner belongs to a different tenant")
)

// State derives the ownership state from the stored attributes.
func (l Lead) State() OwnershipState {
	switch {
	case !l.IsActive:
		return StateClosed
	case l.OwnerID != nil:
		return StateOwned
	case l.TenantID != nil:
		return StatePooledTenant
	default:
		return StatePooledGlobal
	}
}

// IsOwned reports whether the lead currently has an owner.
func (l Lead) IsOwned() bool {
	return l.OwnerID != nil
}

// IsOwnedBy reports whether id is the current owner.
func (l Lead) IsOwnedBy(id uuid.UUID) bool {
	return l.OwnerID != nil && *l.OwnerID == id
}

// Validate checks the structural invariants that do not need other rows.
func (l Lead) Validate() error {
	if l.OwnerID != nil && l.TenantID == nil {
		return ErrOwnerWithoutTenant
	}
	if (l.Outcome != nil) == l.IsActive {
		return ErrOutcomeMismatch
	}
	return nil
}

// ValidateOwner checks that owner is a legal owner for the lead.
func (l Lead) ValidateOwner(owner Salesperson) error {
	if !owner.InTenant(l.TenantID) {
		return ErrOwnerTenantMismatch
	}
	return nil
}

// OwnerEvidence is the most recent sign of owner engagement: the later of
// the owner's latest event and lastActivityAt, falling back to createdAt.
//
// An owner event does not simply take precedence over lastActivityAt. When
// the owner's latest event is older than lastActivityAt, lastActivityAt wins.
// lastActivityAt is set on claim and reassignment, so a lead reassigned to
// someone who touched it months ago starts a fresh lease at the reassignment
// instead of being reclaimable on the next sweep.
func (l Lead) OwnerEvidence(latestOwnerEvent *time.Time) time.Time {
	var evidence time.Time
	if latestOwnerEvent != nil {
		evidence = *latestOwnerEvent
	}
	if l.LastActivityAt != nil && l.LastActivityAt.After(evidence) {
		evidence = *l.LastActivityAt
	}
	if evidence.IsZero() {
		return l.CreatedAt
	}
	return evidence
}
