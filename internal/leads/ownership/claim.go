package ownership

import (
	"context"
	"log/slog"

	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/internal/leads/domain"
	"dealerdesk_backend/internal/leads/repository"
)

// ClaimStore is the storage the claim engine needs.
type ClaimStore interface {
	repository.OwnershipStore
	AppendEvent(ctx context.Context, event domain.OwnershipEvent) (domain.OwnershipEvent, error)
}

// ClaimEngine turns a first qualifying action into ownership.
type ClaimEngine struct {
	store ClaimStore
	opts  options
}

func NewClaimEngine(store ClaimStore, opts ...Option) *ClaimEngine {
	return &ClaimEngine{store: store, opts: buildOptions(opts)}
}

// AttemptClaim makes actor the owner of an unowned lead. It returns false
// without error when the actor may not claim or someone else won.
func (e *ClaimEngine) AttemptClaim(ctx context.Context, lead domain.Lead, actor domain.Salesperson) bool {
	_, ok := e.claim(ctx, lead, actor)
	return ok
}

func (e *ClaimEngine) claim(ctx context.Context, lead domain.Lead, actor domain.Salesperson) (domain.Lead, bool) {
	if !domain.CanAutoClaim(actor) || lead.IsOwned() || !lead.IsActive {
		return lead, false
	}
	if lead.TenantID != nil && *lead.TenantID != *actor.TenantID {
		return lead, false
	}

	now := e.opts.now().UTC()
	res, ok, err := e.store.ClaimLead(ctx, lead.ID, actor.ID, *actor.TenantID, now)
	if err != nil {
		e.opts.log.Warn("claim failed",
			slog.String("leadId", lead.ID.String()),
			slog.String("actorId", actor.ID.String()),
			slog.String("error", err.Error()),
		)
		return lead, false
	}
	if !ok {
		e.opts.log.OwnershipRaceLost("claim", lead.ID.String())
		return lead, false
	}

	evt := domain.NewOwnershipEvent(lead.ID, domain.ActorPtr(actor.ID), domain.EventClaimed, map[string]any{
		domain.MetaPromoted: res.Promoted,
	})
	evt.Timestamp = now
	if _, err := e.store.AppendEvent(ctx, evt); err != nil {
		e.opts.log.Warn("claimed event not recorded",
			slog.String("leadId", lead.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	claimed := res.Lead
	e.opts.publish(ctx,
		events.LeadClaimed{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    claimed.ID,
			LeadName:  claimed.Name,
			TenantID:  *claimed.TenantID,
			OwnerID:   actor.ID,
			OwnerName: actor.DisplayName(),
			Promoted:  res.Promoted,
		},
		stateChanged(claimed, events.ChangeClaimed, map[string]any{"promoted": res.Promoted}),
	)
	return claimed, true
}
