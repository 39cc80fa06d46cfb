package transport

import (
	"time"

	"github.com/google/uuid"
)

// Request DTOs

type CreateLeadRequest struct {
	Name string `json:"name" validate:"required,notblank,max=200"`
	// Global puts the lead in the global pool instead of the caller's dealership.
	Global bool `json:"global,omitempty"`
}

type CreateNoteRequest struct {
	Body    string `json:"body" validate:"required,notblank,max=2000"`
	Confirm bool   `json:"confirm,omitempty"`
}

type ChangeStageRequest struct {
	Stage   string `json:"stage" validate:"required,notblank,max=100"`
	Outcome string `json:"outcome,omitempty" validate:"max=200"`
	Confirm bool   `json:"confirm,omitempty"`
}

type AssignLeadRequest struct {
	OwnerID uuid.UUID `json:"ownerId" validate:"required"`
}

type ListLeadsRequest struct {
	Scope    string `form:"scope" validate:"omitempty,oneof=all mine pool global"`
	Active   bool   `form:"active"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// Response DTOs

type LeadResponse struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	State          string     `json:"state"`
	OwnerID        *uuid.UUID `json:"ownerId,omitempty"`
	TenantID       *uuid.UUID `json:"tenantId,omitempty"`
	StageID        uuid.UUID  `json:"stageId"`
	StageName      string     `json:"stageName,omitempty"`
	IsActive       bool       `json:"isActive"`
	Outcome        *string    `json:"outcome,omitempty"`
	LastActivityAt *time.Time `json:"lastActivityAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type LeadListResponse struct {
	Items      []LeadResponse `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
}

type NoteResponse struct {
	ID        uuid.UUID `json:"id"`
	LeadID    uuid.UUID `json:"leadId"`
	AuthorID  uuid.UUID `json:"authorId"`
	Kind      string    `json:"kind"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type OwnershipEventResponse struct {
	Seq       int64          `json:"seq"`
	Kind      string         `json:"kind"`
	ActorID   *uuid.UUID     `json:"actorId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type StageResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	DisplayOrder int       `json:"displayOrder"`
	IsTerminal   bool      `json:"isTerminal"`
	Global       bool      `json:"global"`
}

// ConflictWarningResponse is returned with 409 when an action needs confirmation.
type ConflictWarningResponse struct {
	LeadID          uuid.UUID `json:"leadId"`
	LeadName        string    `json:"leadName"`
	OwnerID         uuid.UUID `json:"ownerId"`
	OwnerName       string    `json:"ownerName"`
	ActionLabel     string    `json:"actionLabel"`
	SuggestedAction string    `json:"suggestedAction"`
}

type ConfirmationDetails struct {
	RequiresConfirmation bool                    `json:"requiresConfirmation"`
	Warning              ConflictWarningResponse `json:"warning"`
}

// ActionResponse reports the outcome of a lead action. Warning is set only
// when the action was held back pending confirmation.
type ActionResponse struct {
	Lead       LeadResponse             `json:"lead"`
	Note       *NoteResponse            `json:"note,omitempty"`
	Applied    bool                     `json:"applied"`
	Claimed    bool                     `json:"claimed"`
	Overridden bool                     `json:"overridden"`
	Warning    *ConflictWarningResponse `json:"warning,omitempty"`
}

type CreateStageRequest struct {
	Name         string `json:"name" validate:"required,notblank,max=100"`
	DisplayOrder int    `json:"displayOrder" validate:"min=0,max=10000"`
	IsTerminal   bool   `json:"isTerminal"`
}
