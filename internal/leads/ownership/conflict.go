package ownership

import (
	"context"
	"fmt"
	"slices"

	"dealerdesk_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// ConflictWarning asks the caller to confirm acting on a lead someone else
// owns. It is a result, not an error.
type ConflictWarning struct {
	LeadID          uuid.UUID `json:"leadId"`
	LeadName        string    `json:"leadName"`
	OwnerID         uuid.UUID `json:"ownerId"`
	OwnerName       string    `json:"ownerName"`
	ActionLabel     string    `json:"actionLabel"`
	SuggestedAction string    `json:"suggestedAction"`
}

// OwnerDirectory resolves owner names for warnings.
type OwnerDirectory interface {
	GetSalesperson(ctx context.Context, id uuid.UUID) (domain.Salesperson, error)
}

// ConflictMonitor detects standard-role actors working someone else's lead.
type ConflictMonitor struct {
	members OwnerDirectory
}

func NewConflictMonitor(members OwnerDirectory) *ConflictMonitor {
	return &ConflictMonitor{members: members}
}

// CheckConflict returns a warning when actor is a standard-role salesperson
// acting on a lead owned by someone else who has not invited them in.
func (m *ConflictMonitor) CheckConflict(ctx context.Context, lead domain.Lead, actor domain.Salesperson, actionLabel string, cooperativeExemptIDs ...uuid.UUID) *ConflictWarning {
	if lead.OwnerID == nil || *lead.OwnerID == actor.ID {
		return nil
	}
	if !domain.SubjectToConflictCheck(actor) || slices.Contains(cooperativeExemptIDs, actor.ID) {
		return nil
	}

	ownerName := domain.Salesperson{ID: *lead.OwnerID}.DisplayName()
	if m.members != nil {
		if owner, err := m.members.GetSalesperson(ctx, *lead.OwnerID); err == nil {
			ownerName = owner.DisplayName()
		}
	}

	return &ConflictWarning{
		LeadID:          lead.ID,
		LeadName:        lead.Name,
		OwnerID:         *lead.OwnerID,
		OwnerName:       ownerName,
		ActionLabel:     actionLabel,
		SuggestedAction: fmt.Sprintf("Coordinate with %s before continuing, or confirm to proceed and notify them.", ownerName),
	}
}
