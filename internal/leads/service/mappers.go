package service

import (
	"dealerdesk_backend/internal/leads/domain"
	"dealerdesk_backend/internal/leads/ownership"
	"dealerdesk_backend/internal/leads/repository"
	"dealerdesk_backend/internal/leads/transport"
)

func (s *Service) toLeadResponse(l domain.Lead) transport.LeadResponse {
	resp := transport.LeadResponse{
		ID:             l.ID,
		Name:           l.Name,
		State:          string(l.State()),
		OwnerID:        l.OwnerID,
		TenantID:       l.TenantID,
		StageID:        l.StageID,
		IsActive:       l.IsActive,
		Outcome:        l.Outcome,
		LastActivityAt: l.LastActivityAt,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}
	if stage, ok := s.stages.ByID(l.StageID); ok {
		resp.StageName = stage.Name
	}
	return resp
}

func (s *Service) toActionResponse(res ownership.ApplyResult) transport.ActionResponse {
	out := transport.ActionResponse{
		Lead:       s.toLeadResponse(res.Lead),
		Applied:    res.Applied,
		Claimed:    res.Claimed,
		Overridden: res.Overridden,
	}
	if res.Warning != nil && !res.Applied {
		w := ToWarningResponse(*res.Warning)
		out.Warning = &w
	}
	return out
}

// ToWarningResponse maps a conflict warning to its wire form.
func ToWarningResponse(w ownership.ConflictWarning) transport.ConflictWarningResponse {
	return transport.ConflictWarningResponse{
		LeadID:          w.LeadID,
		LeadName:        w.LeadName,
		OwnerID:         w.OwnerID,
		OwnerName:       w.OwnerName,
		ActionLabel:     w.ActionLabel,
		SuggestedAction: w.SuggestedAction,
	}
}

func toNoteResponse(n repository.Note) transport.NoteResponse {
	return transport.NoteResponse{
		ID:        n.ID,
		LeadID:    n.LeadID,
		AuthorID:  n.AuthorID,
		Kind:      n.Kind,
		Body:      n.Body,
		CreatedAt: n.CreatedAt,
	}
}
