package repository

import (
	"context"
	"time"

	"dealerdesk_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// LeadReader provides read-only access to lead data.
type LeadReader interface {
	LoadLead(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	ListLeads(ctx context.Context, params ListParams) ([]domain.Lead, int, error)
}

// LeadWriter creates leads and applies non-ownership field changes.
type LeadWriter interface {
	CreateLead(ctx context.Context, params CreateLeadParams) (domain.Lead, error)
	UpdateStage(ctx context.Context, id uuid.UUID, params UpdateStageParams) (domain.Lead, error)
	TouchOwnerActivity(ctx context.Context, id uuid.UUID, ownerID uuid.UUID, at time.Time) error
}

// OwnershipStore holds the compare-and-swap primitives for the
// ownerId/tenantId pair. No other write path may change those columns.
type OwnershipStore interface {
	// ClaimLead sets the owner only if the lead is active, unowned and pooled
	// globally or in actorTenantID. ok is false when the precondition did not hold.
	ClaimLead(ctx context.Context, id uuid.UUID, actorID uuid.UUID, actorTenantID uuid.UUID, at time.Time) (result ClaimResult, ok bool, err error)
	// ConditionalUpdateOwnership applies change only if the current owner
	// still equals change.ExpectedOwnerID. Returns ErrOwnershipChanged otherwise.
	ConditionalUpdateOwnership(ctx context.Context, id uuid.UUID, change OwnershipChange) (domain.Lead, error)
}

// EventLog is the append-only ownership log.
type EventLog interface {
	AppendEvent(ctx context.Context, event domain.OwnershipEvent) (domain.OwnershipEvent, error)
	ListEvents(ctx context.Context, leadID uuid.UUID) ([]domain.OwnershipEvent, error)
	LatestOwnerEvent(ctx context.Context, leadID uuid.UUID, ownerID uuid.UUID) (*time.Time, error)
}

// LeaseScanner lists owned, active leads for the reclamation sweeper.
type LeaseScanner interface {
	// ListLeaseCandidates pages through owned active leads by id, after afterID.
	ListLeaseCandidates(ctx context.Context, afterID uuid.UUID, limit int) ([]LeaseCandidate, error)
}

// MemberReader provides read access to salespeople.
type MemberReader interface {
	GetSalesperson(ctx context.Context, id uuid.UUID) (domain.Salesperson, error)
	ListActiveMembers(ctx context.Context, tenantID uuid.UUID) ([]domain.Salesperson, error)
}

// NoteStore persists notes, call logs and email logs on a lead.
type NoteStore interface {
	CreateNote(ctx context.Context, params CreateNoteParams) (Note, error)
	ListNotes(ctx context.Context, leadID uuid.UUID) ([]Note, error)
}

// LeadStore is everything the ownership coordinator needs from storage.
type LeadStore interface {
	LeadReader
	LeadWriter
	OwnershipStore
	EventLog
	MemberReader
}

// Store is the full repository contract.
type Store interface {
	LeadStore
	LeaseScanner
	NoteStore
}

// ListParams filters lead listings.
type ListParams struct {
	TenantID *uuid.UUID
	OwnerID  *uuid.UUID
	// PoolOnly restricts to unowned leads: the tenant pool when TenantID is
	// set, the global pool otherwise.
	PoolOnly   bool
	ActiveOnly bool
	Limit      int
	Offset     int
}

// CreateLeadParams creates an unowned lead.
type CreateLeadParams struct {
	Name     string
	TenantID *uuid.UUID
	StageID  uuid.UUID
}

// UpdateStageParams moves a lead to a stage.
type UpdateStageParams struct {
	StageID  uuid.UUID
	IsActive bool
	Outcome  *string
}

// ClaimResult is returned by a successful claim.
type ClaimResult struct {
	Lead domain.Lead
	// Promoted is true when the claim moved the lead from the global pool
	// into the actor's tenant.
	Promoted bool
}

// OwnershipChange is a guarded write of the ownership pair.
type OwnershipChange struct {
	ExpectedOwnerID *uuid.UUID
	NewOwnerID      *uuid.UUID
	NewTenantID     *uuid.UUID
	LastActivityAt  *time.Time
	// NewStageID moves the lead in the same write; nil keeps the stage.
	NewStageID *uuid.UUID
	// RequireActive makes the write fail on closed leads.
	RequireActive bool
}

// LeaseCandidate is an owned active lead with its freshest owner-authored event.
type LeaseCandidate struct {
	Lead             domain.Lead
	LatestOwnerEvent *time.Time
}

// Note is a free-text entry on a lead.
type Note struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	AuthorID  uuid.UUID
	Kind      string
	Body      string
	CreatedAt time.Time
}

// CreateNoteParams creates a note.
type CreateNoteParams struct {
	LeadID   uuid.UUID
	AuthorID uuid.UUID
	Kind     string
	Body     string
}

// Note kinds.
const (
	NoteKindNote  = "note"
	NoteKindCall  = "call"
	NoteKindEmail = "email"
)
