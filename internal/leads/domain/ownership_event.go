package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind classifies an ownership log entry.
type EventKind string

const (
	EventClaimed       EventKind = "claimed"
	EventReassigned    EventKind = "reassigned"
	EventConflictAlert EventKind = "conflict_alert"
	EventReclaimed     EventKind = "reclaimed"
	EventActivity      EventKind = "activity"
)

// Activity kinds recorded in the metadata of EventActivity entries.
const (
	ActivityNoteAdded        = "note_added"
	ActivityCallLogged       = "call_logged"
	ActivityEmailLogged      = "email_logged"
	ActivityStageChanged     = "stage_changed"
	ActivityAppointmentAdded = "appointment_created"
)

// Metadata keys.
const (
	MetaActivityKind     = "activityKind"
	MetaPromoted         = "promoted"
	MetaPreviousOwnerID  = "previousOwnerId"
	MetaNewOwnerID       = "newOwnerId"
	MetaOwnerID          = "ownerId"
	MetaPreviousTenantID = "previousTenantId"
	MetaPreviousStageID  = "previousStageId"
	MetaStaleSince       = "staleSince"
	MetaToGlobalPool     = "toGlobalPool"
)

// OwnershipEvent is an append-only log entry. Seq is assigned by the store
// and orders events of one lead.
type OwnershipEvent struct {
	Seq       int64
	LeadID    uuid.UUID
	ActorID   *uuid.UUID
	Kind      EventKind
	Timestamp time.Time
	Metadata  map[string]any
}

// NewOwnershipEvent builds an event stamped with now. actorID nil means system.
func NewOwnershipEvent(leadID uuid.UUID, actorID *uuid.UUID, kind EventKind, metadata map[string]any) OwnershipEvent {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return OwnershipEvent{
		LeadID:    leadID,
		ActorID:   actorID,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}

// ActorPtr returns a pointer to a copy of id.
func ActorPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
