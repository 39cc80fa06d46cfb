package notification

import (
	"fmt"
	"strings"

	"dealerdesk_backend/internal/leads/domain"
)

// Notification kinds stored on records.
const (
	kindLeadClaimed    = "lead_claimed"
	kindLeadPromoted   = "lead_promoted"
	kindConflictOwner  = "lead_conflict_owner"
	kindConflictTeam   = "lead_conflict_team"
	kindLeadReclaimed  = "lead_reclaimed"
	kindLeadReassigned = "lead_reassigned"
)

func ownerConflictText(actor, lead, action string) string {
	text := fmt.Sprintf("%s tried to act on your lead %s", actor, lead)
	if action = strings.TrimSpace(action); action != "" {
		text += " (" + action + ")"
	}
	return text + "."
}

func teamConflictText(actor, lead, owner, action string) string {
	text := fmt.Sprintf("%s tried to act on lead %s assigned to %s", actor, lead, owner)
	if action = strings.TrimSpace(action); action != "" {
		text += " (" + action + ")"
	}
	return text + "."
}

func ownerName(fromEvent string, owner domain.Salesperson) string {
	if name := strings.TrimSpace(fromEvent); name != "" {
		return name
	}
	return owner.DisplayName()
}
