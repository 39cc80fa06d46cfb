package ownership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/internal/leads/domain"
	"dealerdesk_backend/internal/leads/repository"
	"dealerdesk_backend/platform/apperr"

	"github.com/google/uuid"
)

const (
	opEvaluateAndApply = "leads.ownership.evaluate_and_apply"
	opReassign         = "leads.ownership.reassign"
)

// Mutation is the domain action applied to a lead once the coordinator
// accepts it. It receives the lead after any claim and returns it updated.
type Mutation func(ctx context.Context, lead domain.Lead) (domain.Lead, error)

// ApplyParams describes one user action on a lead.
type ApplyParams struct {
	// ActivityKind is recorded on the action's own event (e.g. note_added).
	ActivityKind string
	// ActionLabel is the human wording used in warnings and alerts.
	ActionLabel          string
	ConfirmOverride      bool
	CooperativeExemptIDs []uuid.UUID
	Mutation             Mutation
	Metadata             map[string]any
}

// ApplyResult reports what EvaluateAndApply did. When Warning is set and
// Applied is false nothing was written.
type ApplyResult struct {
	Lead       domain.Lead      `json:"-"`
	Warning    *ConflictWarning `json:"warning,omitempty"`
	Applied    bool             `json:"applied"`
	Claimed    bool             `json:"claimed"`
	Overridden bool             `json:"overridden"`
}

// Coordinator is the single entry point for user actions on leads.
type Coordinator struct {
	store   repository.LeadStore
	claims  *ClaimEngine
	monitor *ConflictMonitor
	opts    options
}

func NewCoordinator(store repository.LeadStore, opts ...Option) *Coordinator {
	return &Coordinator{
		store:   store,
		claims:  NewClaimEngine(store, opts...),
		monitor: NewConflictMonitor(store),
		opts:    buildOptions(opts),
	}
}

func (c *Coordinator) ClaimEngine() *ClaimEngine         { return c.claims }
func (c *Coordinator) ConflictMonitor() *ConflictMonitor { return c.monitor }

// EvaluateAndApply runs the conflict check, claims unowned leads, applies the
// mutation and records the action. On an unconfirmed conflict it returns the
// warning and changes nothing.
//
// The conflict check and the mutation are not atomic. If ownership changes
// in between, the result is a missed or extra warning, never a corrupted
// owner: every owner write goes through a compare-and-swap.
func (c *Coordinator) EvaluateAndApply(ctx context.Context, leadID uuid.UUID, actor domain.Salesperson, p ApplyParams) (ApplyResult, error) {
	lead, err := c.loadVisible(ctx, leadID, actor, opEvaluateAndApply)
	if err != nil {
		return ApplyResult{}, err
	}

	warning := c.monitor.CheckConflict(ctx, lead, actor, p.ActionLabel, p.CooperativeExemptIDs...)
	if warning != nil && !p.ConfirmOverride {
		return ApplyResult{Lead: lead, Warning: warning}, nil
	}

	result := ApplyResult{Lead: lead, Warning: warning, Overridden: warning != nil}

	if !lead.IsOwned() {
		if claimed, ok := c.claims.claim(ctx, lead, actor); ok {
			lead = claimed
			result.Claimed = true
		}
	}

	if p.Mutation != nil {
		mutated, err := p.Mutation(ctx, lead)
		if err != nil {
			return result, err
		}
		lead = mutated
	}
	result.Lead = lead
	result.Applied = true

	now := c.opts.now().UTC()
	meta := map[string]any{domain.MetaActivityKind: p.ActivityKind}
	for k, v := range p.Metadata {
		meta[k] = v
	}
	activity := domain.NewOwnershipEvent(lead.ID, domain.ActorPtr(actor.ID), domain.EventActivity, meta)
	activity.Timestamp = now
	c.appendEvent(ctx, activity)

	if lead.IsOwnedBy(actor.ID) && !result.Claimed {
		if err := c.store.TouchOwnerActivity(ctx, lead.ID, actor.ID, now); err != nil {
			c.opts.log.Warn("owner activity not recorded",
				slog.String("leadId", lead.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	published := []events.Event{stateChanged(lead, events.ChangeActivity, map[string]any{
		"activityKind": p.ActivityKind,
		"actorId":      actor.ID.String(),
	})}

	if warning != nil {
		alert := domain.NewOwnershipEvent(lead.ID, domain.ActorPtr(actor.ID), domain.EventConflictAlert, map[string]any{
			domain.MetaOwnerID:      warning.OwnerID.String(),
			domain.MetaActivityKind: p.ActivityKind,
		})
		alert.Timestamp = now
		c.appendEvent(ctx, alert)

		if lead.TenantID != nil {
			published = append(published, events.LeadConflictAlerted{
				BaseEvent:   events.NewBaseEvent(),
				LeadID:      lead.ID,
				LeadName:    lead.Name,
				TenantID:    *lead.TenantID,
				OwnerID:     warning.OwnerID,
				OwnerName:   warning.OwnerName,
				ActorID:     actor.ID,
				ActorName:   actor.DisplayName(),
				ActionLabel: p.ActionLabel,
			})
		}
	}

	c.opts.publish(ctx, published...)
	return result, nil
}

// Reassign hands a lead to newOwnerID. Only elevated actors may do this and
// the conflict monitor is not consulted.
func (c *Coordinator) Reassign(ctx context.Context, leadID uuid.UUID, actor domain.Salesperson, newOwnerID uuid.UUID) (domain.Lead, error) {
	if !domain.CanReassign(actor) {
		return domain.Lead{}, apperr.Forbidden("only managers can reassign leads").WithOp(opReassign)
	}

	lead, err := c.loadVisible(ctx, leadID, actor, opReassign)
	if err != nil {
		return domain.Lead{}, err
	}
	if !lead.IsActive {
		return domain.Lead{}, apperr.Validation("closed leads cannot be reassigned").WithOp(opReassign)
	}

	target := lead.TenantID
	if target == nil {
		target = actor.TenantID
	}
	if target == nil {
		return domain.Lead{}, apperr.Validation("lead is in the global pool; assign it from a dealership account").WithOp(opReassign)
	}

	newOwner, err := c.store.GetSalesperson(ctx, newOwnerID)
	if errors.Is(err, repository.ErrSalespersonNotFound) {
		return domain.Lead{}, apperr.NotFound("salesperson not found").WithOp(opReassign)
	}
	if err != nil {
		return domain.Lead{}, fmt.Errorf("load new owner: %w", err)
	}
	if !newOwner.Active || newOwner.Role.IsElevated() {
		return domain.Lead{}, apperr.Validation("leads can only be assigned to active salespeople").WithOp(opReassign)
	}
	if !newOwner.InTenant(target) {
		return domain.Lead{}, apperr.Validation("salesperson belongs to a different dealership").WithOp(opReassign)
	}
	if lead.IsOwnedBy(newOwnerID) {
		return lead, nil
	}

	now := c.opts.now().UTC()
	updated, err := c.store.ConditionalUpdateOwnership(ctx, lead.ID, repository.OwnershipChange{
		ExpectedOwnerID: lead.OwnerID,
		NewOwnerID:      &newOwnerID,
		NewTenantID:     target,
		LastActivityAt:  &now,
		RequireActive:   true,
	})
	if errors.Is(err, repository.ErrOwnershipChanged) {
		c.opts.log.OwnershipRaceLost("reassign", lead.ID.String())
		return domain.Lead{}, apperr.Conflict("lead changed while reassigning; reload and try again").WithOp(opReassign)
	}
	if err != nil {
		return domain.Lead{}, fmt.Errorf("reassign lead: %w", err)
	}

	meta := map[string]any{domain.MetaNewOwnerID: newOwnerID.String()}
	if lead.OwnerID != nil {
		meta[domain.MetaPreviousOwnerID] = lead.OwnerID.String()
	}
	if lead.TenantID == nil {
		meta[domain.MetaPromoted] = true
	}
	evt := domain.NewOwnershipEvent(lead.ID, domain.ActorPtr(actor.ID), domain.EventReassigned, meta)
	evt.Timestamp = now
	c.appendEvent(ctx, evt)

	c.opts.publish(ctx,
		events.LeadReassigned{
			BaseEvent:       events.NewBaseEvent(),
			LeadID:          updated.ID,
			LeadName:        updated.Name,
			TenantID:        *target,
			PreviousOwnerID: copyID(lead.OwnerID),
			NewOwnerID:      newOwnerID,
			NewOwnerName:    newOwner.DisplayName(),
			ActorID:         actor.ID,
			ActorName:       actor.DisplayName(),
		},
		stateChanged(updated, events.ChangeReassigned, map[string]any{"actorId": actor.ID.String()}),
	)
	return updated, nil
}

// Load returns a lead the actor is allowed to see.
func (c *Coordinator) Load(ctx context.Context, leadID uuid.UUID, actor domain.Salesperson) (domain.Lead, error) {
	return c.loadVisible(ctx, leadID, actor, "leads.ownership.load")
}

func (c *Coordinator) loadVisible(ctx context.Context, leadID uuid.UUID, actor domain.Salesperson, op string) (domain.Lead, error) {
	lead, err := c.store.LoadLead(ctx, leadID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Lead{}, apperr.NotFound("lead not found").WithOp(op)
	}
	if err != nil {
		return domain.Lead{}, fmt.Errorf("load lead: %w", err)
	}
	if !Visible(lead, actor) {
		return domain.Lead{}, apperr.NotFound("lead not found").WithOp(op)
	}
	return lead, nil
}

// Visible reports whether actor may see lead. Global pool leads are visible
// to every dealership; tenant leads only to their own dealership.
func Visible(lead domain.Lead, actor domain.Salesperson) bool {
	if actor.Role == domain.RoleSuperAdmin {
		return true
	}
	if actor.TenantID == nil {
		return false
	}
	return lead.TenantID == nil || *lead.TenantID == *actor.TenantID
}

func (c *Coordinator) appendEvent(ctx context.Context, evt domain.OwnershipEvent) {
	if _, err := c.store.AppendEvent(ctx, evt); err != nil {
		c.opts.log.Warn("ownership event not recorded",
			slog.String("leadId", evt.LeadID.String()),
			slog.String("kind", string(evt.Kind)),
			slog.String("error", err.Error()),
		)
	}
}
