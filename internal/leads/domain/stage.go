package domain

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultStageName is the global default stage every deployment must seed.
const DefaultStageName = "new"

// Stage is a pipeline position. A nil TenantID marks a global default.
type Stage struct {
	ID           uuid.UUID
	TenantID     *uuid.UUID
	Name         string
	DisplayOrder int
	IsTerminal   bool
}

// IsGlobal reports whether the stage is a built-in default.
func (s Stage) IsGlobal() bool {
	return s.TenantID == nil
}

// UsableBy reports whether a lead in tenantID may sit in this stage.
func (s Stage) UsableBy(tenantID *uuid.UUID) bool {
	if s.TenantID == nil {
		return true
	}
	return tenantID != nil && *s.TenantID == *tenantID
}

// ApplyStage moves lead into stage and derives isActive and outcome.
// A terminal stage closes the lead with outcome, defaulting to the stage name.
// A non-terminal stage reopens it and clears the outcome.
func ApplyStage(lead *Lead, stage Stage, outcome string) error {
	if !stage.UsableBy(lead.TenantID) {
		return ErrStageTenantMismatch
	}
	lead.StageID = stage.ID
	if stage.IsTerminal {
		value := strings.TrimSpace(outcome)
		if value == "" {
			value = stage.Name
		}
		lead.IsActive = false
		lead.Outcome = &value
		return nil
	}
	lead.IsActive = true
	lead.Outcome = nil
	return nil
}
