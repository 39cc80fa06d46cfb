// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"dealerdesk_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Publisher   = events.Publisher
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Lead Ownership Events
// =============================================================================

// LeadClaimed is published after a first-touch claim committed.
type LeadClaimed struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	LeadName  string    `json:"leadName"`
	TenantID  uuid.UUID `json:"tenantId"`
	OwnerID   uuid.UUID `json:"ownerId"`
	OwnerName string    `json:"ownerName"`
	// Promoted is true when the claim pulled the lead out of the global pool.
	Promoted bool `json:"promoted"`
}

func (e LeadClaimed) EventName() string { return "leads.ownership.claimed" }

// LeadConflictAlerted is published after a confirmed override on someone
// else's lead.
type LeadConflictAlerted struct {
	BaseEvent
	LeadID      uuid.UUID `json:"leadId"`
	LeadName    string    `json:"leadName"`
	TenantID    uuid.UUID `json:"tenantId"`
	OwnerID     uuid.UUID `json:"ownerId"`
	OwnerName   string    `json:"ownerName"`
	ActorID     uuid.UUID `json:"actorId"`
	ActorName   string    `json:"actorName"`
	ActionLabel string    `json:"actionLabel"`
}

func (e LeadConflictAlerted) EventName() string { return "leads.ownership.conflict_alerted" }

// LeadReclaimed is published after the sweeper revoked a stale lease.
type LeadReclaimed struct {
	BaseEvent
	LeadID         uuid.UUID  `json:"leadId"`
	LeadName       string     `json:"leadName"`
	FormerOwnerID  uuid.UUID  `json:"formerOwnerId"`
	FormerTenantID *uuid.UUID `json:"formerTenantId,omitempty"`
	ToGlobalPool   bool       `json:"toGlobalPool"`
}

func (e LeadReclaimed) EventName() string { return "leads.ownership.reclaimed" }

// LeadReassigned is published after an elevated actor moved a lead to a new owner.
type LeadReassigned struct {
	BaseEvent
	LeadID          uuid.UUID  `json:"leadId"`
	LeadName        string     `json:"leadName"`
	TenantID        uuid.UUID  `json:"tenantId"`
	PreviousOwnerID *uuid.UUID `json:"previousOwnerId,omitempty"`
	NewOwnerID      uuid.UUID  `json:"newOwnerId"`
	NewOwnerName    string     `json:"newOwnerName"`
	ActorID         uuid.UUID  `json:"actorId"`
	ActorName       string     `json:"actorName"`
}

func (e LeadReassigned) EventName() string { return "leads.ownership.reassigned" }

// Change kinds carried by LeadStateChanged.
const (
	ChangeCreated    = "created"
	ChangeClaimed    = "claimed"
	ChangeReassigned = "reassigned"
	ChangeReclaimed  = "reclaimed"
	ChangeStage      = "stage_changed"
	ChangeActivity   = "activity"
)

// LeadStateChanged is the flat event relayed to realtime subscribers.
type LeadStateChanged struct {
	BaseEvent
	LeadID     uuid.UUID      `json:"leadId"`
	TenantID   *uuid.UUID     `json:"tenantId,omitempty"`
	ChangeKind string         `json:"changeKind"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func (e LeadStateChanged) EventName() string { return "leads.state.changed" }

// =============================================================================
// Notification Events
// =============================================================================

// NotificationOutboxDue is published by the scheduler worker when an outbox
// record should be delivered.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }
