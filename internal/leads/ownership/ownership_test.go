package ownership

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dealerdesk_backend/internal/leads/domain"
	"dealerdesk_backend/internal/leads/leadstest"
	"dealerdesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func salesperson(store *leadstest.Store, tenant *uuid.UUID, role domain.Role, name string) domain.Salesperson {
	return store.AddSalesperson(domain.Salesperson{TenantID: tenant, Name: name, Role: role, Active: true})
}

func poolLead(store *leadstest.Store, tenant *uuid.UUID) domain.Lead {
	return store.PutLead(domain.Lead{Name: "Jane Roe", TenantID: tenant, StageID: uuid.New(), IsActive: true, CreatedAt: fixedNow.Add(-time.Hour)})
}

func ownedLead(store *leadstest.Store, tenant uuid.UUID, owner uuid.UUID) domain.Lead {
	last := fixedNow.Add(-time.Hour)
	return store.PutLead(domain.Lead{
		Name: "Jane Roe", TenantID: &tenant, OwnerID: &owner, StageID: uuid.New(),
		IsActive: true, LastActivityAt: &last, CreatedAt: fixedNow.Add(-2 * time.Hour),
	})
}

func TestConcurrentClaimsHaveExactlyOneWinner(t *testing.T) {
	store := leadstest.New()
	tenant := uuid.New()
	lead := poolLead(store, nil)
	engine := NewClaimEngine(store, WithClock(fixedClock))

	const n = 32
	actors := make([]domain.Salesperson, n)
	for i := range actors {
		actors[i] = salesperson(store, &tenant, domain.RoleStandard, "rep")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []uuid.UUID
	)
	start := make(chan struct{})
	for _, actor := range actors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if engine.AttemptClaim(context.Background(), lead, actor) {
				mu.Lock()
				winners = append(winners, actor.ID)
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1)
	got := store.Lead(lead.ID)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, winners[0], *got.OwnerID)
	require.NotNil(t, got.TenantID)
	assert.Equal(t, tenant, *got.TenantID)
	assert.Equal(t, 1, store.CountEvents(lead.ID, domain.EventClaimed))
}

func TestAttemptClaimRejections(t *testing.T) {
	store := leadstest.New()
	tenant, other := uuid.New(), uuid.New()
	engine := NewClaimEngine(store, WithClock(fixedClock))

	tests := []struct {
		name  string
		lead  domain.Lead
		actor domain.Salesperson
	}{
		{name: "elevated role", lead: poolLead(store, nil), actor: salesperson(store, &tenant, domain.RoleAdmin, "admin")},
		{name: "no tenant", lead: poolLead(store, nil), actor: salesperson(store, nil, domain.RoleStandard, "drifter")},
		{name: "other tenant pool", lead: poolLead(store, &other), actor: salesperson(store, &tenant, domain.RoleStandard, "rep")},
		{name: "already owned", lead: ownedLead(store, tenant, uuid.New()), actor: salesperson(store, &tenant, domain.RoleStandard, "rep")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := store.Lead(tt.lead.ID)
			assert.False(t, engine.AttemptClaim(context.Background(), tt.lead, tt.actor))
			assert.Equal(t, before.OwnerID, store.Lead(tt.lead.ID).OwnerID)
			assert.Zero(t, store.CountEvents(tt.lead.ID, domain.EventClaimed))
		})
	}
}

func TestClaimFromTenantPoolIsNotPromotion(t *testing.T) {
	store := leadstest.New()
	tenant := uuid.New()
	lead := poolLead(store, &tenant)
	actor := salesperson(store, &tenant, domain.RoleStandard, "rep")

	require.True(t, NewClaimEngine(store, WithClock(fixedClock)).AttemptClaim(context.Background(), lead, actor))

	events := store.Events(lead.ID)
	require.Len(t, events, 1)
	assert.Equal(t, false, events[0].Metadata[domain.MetaPromoted])
	got := store.Lead(lead.ID)
	require.NotNil(t, got.LastActivityAt)
	assert.True(t, got.LastActivityAt.Equal(fixedNow))
}

func TestElevatedActorsNeverGetWarnings(t *testing.T) {
	store := leadstest.New()
	tenant := uuid.New()
	owner := salesperson(store, &tenant, domain.RoleStandard, "Olive")
	monitor := NewConflictMonitor(store)
	lead := ownedLead(store, tenant, owner.ID)

	for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleOwner, domain.RoleSuperAdmin} {
		actor := salesperson(store, &tenant, role, string(role))
		assert.Nil(t, monitor.CheckConflict(context.Background(), lead, actor, "add a note"), role)
	}

	standard := salesperson(store, &tenant, domain.RoleStandard, "Xavier")
	warning := monitor.CheckConflict(context.Background(), lead, standard, "add a note")
	require.NotNil(t, warning)
	assert.Equal(t, "Olive", warning.OwnerName)
	assert.Equal(t, "Jane Roe", warning.LeadName)
	assert.NotEmpty(t, warning.SuggestedAction)

	assert.Nil(t, monitor.CheckConflict(context.Background(), lead, standard, "add a note", standard.ID))
	assert.Nil(t, monitor.CheckConflict(context.Background(), lead, owner, "add a note"))
}

func TestReassignByElevatedActor(t *testing.T) {
	store := leadstest.New()
	tenant := uuid.New()
	oldOwner := salesperson(store, &tenant, domain.RoleStandard, "Old")
	newOwner := salesperson(store, &tenant, domain.RoleStandard, "New")
	manager := salesperson(store, &tenant, domain.RoleAdmin, "Mgr")
	lead := ownedLead(store, tenant, oldOwner.ID)
	c := NewCoordinator(store, WithClock(fixedClock))

	updated, err := c.Reassign(context.Background(), lead.ID, manager, newOwner.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.OwnerID)
	assert.Equal(t, newOwner.ID, *updated.OwnerID)
	assert.True(t, updated.LastActivityAt.Equal(fixedNow))
	assert.Equal(t, 1, store.CountEvents(lead.ID, domain.EventReassigned))
	assert.Zero(t, store.CountEvents(lead.ID, domain.EventConflictAlert))
}

func TestReassignRules(t *testing.T) {
	store := leadstest.New()
	tenant, other := uuid.New(), uuid.New()
	owner := salesperson(store, &tenant, domain.RoleStandard, "Owner")
	rep := salesperson(store, &tenant, domain.RoleStandard, "Rep")
	outsider := salesperson(store, &other, domain.RoleStandard, "Outsider")
	manager := salesperson(store, &tenant, domain.RoleOwner, "Boss")
	lead := ownedLead(store, tenant, owner.ID)
	c := NewCoordinator(store, WithClock(fixedClock))
	ctx := context.Background()

	_, err := c.Reassign(ctx, lead.ID, rep, rep.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden), "standard actor: %v", err)

	_, err = c.Reassign(ctx, lead.ID, manager, outsider.ID)
	assert.True(t, apperr.Is(err, apperr.KindValidation), "cross-tenant owner: %v", err)

	_, err = c.Reassign(ctx, lead.ID, manager, manager.ID)
	assert.True(t, apperr.Is(err, apperr.KindValidation), "elevated owner: %v", err)

	_, err = c.Reassign(ctx, uuid.New(), manager, rep.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "missing lead: %v", err)
}

func TestReassignPromotesGlobalLead(t *testing.T) {
	store := leadstest.New()
	tenant := uuid.New()
	rep := salesperson(store, &tenant, domain.RoleStandard, "Rep")
	manager := salesperson(store, &tenant, domain.RoleAdmin, "Mgr")
	lead := poolLead(store, nil)

	updated, err := NewCoordinator(store, WithClock(fixedClock)).Reassign(context.Background(), lead.ID, manager, rep.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.TenantID)
	assert.Equal(t, tenant, *updated.TenantID)
	assert.NoError(t, updated.Validate())
}

func TestReassignLosesRace(t *testing.T) {
	store := leadstest.New()
	tenant := uuid.New()
	owner := salesperson(store, &tenant, domain.RoleStandard, "Owner")
	rep := salesperson(store, &tenant, domain.RoleStandard, "Rep")
	manager := salesperson(store, &tenant, domain.RoleAdmin, "Mgr")
	lead := ownedLead(store, tenant, owner.ID)

	store.BeforeOwnershipWrite = func(id uuid.UUID) {
		store.BeforeOwnershipWrite = nil
		intruder := uuid.New()
		l := store.Lead(id)
		l.OwnerID = &intruder
		store.PutLead(l)
	}

	_, err := NewCoordinator(store, WithClock(fixedClock)).Reassign(context.Background(), lead.ID, manager, rep.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "expected conflict, got %v", err)
	assert.Zero(t, store.CountEvents(lead.ID, domain.EventReassigned))
}

func TestEvaluateAndApplyWithoutConfirmationChangesNothing(t *testing.T) {
	store := leadstest.New()
	tenant := uuid.New()
	owner := salesperson(store, &tenant, domain.RoleStandard, "Olive")
	actor := salesperson(store, &tenant, domain.RoleStandard, "Xavier")
	lead := ownedLead(store, tenant, owner.ID)
	c := NewCoordinator(store, WithClock(fixedClock))

	calls := 0
	params := ApplyParams{
		ActivityKind: domain.ActivityNoteAdded,
		ActionLabel:  "add a note",
		Mutation: func(_ context.Context, l domain.Lead) (domain.Lead, error) {
			calls++
			return l, nil
		},
	}

	res, err := c.EvaluateAndApply(context.Background(), lead.ID, actor, params)
	require.NoError(t, err)
	require.NotNil(t, res.Warning)
	assert.False(t, res.Applied)
	assert.Zero(t, calls)
	assert.Empty(t, store.Events(lead.ID))
	assert.Equal(t, lead.LastActivityAt, store.Lead(lead.ID).LastActivityAt)

	params.ConfirmOverride = true
	res, err = c.EvaluateAndApply(context.Background(), lead.ID, actor, params)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.True(t, res.Overridden)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, store.CountEvents(lead.ID, domain.EventConflictAlert))
	assert.Equal(t, 1, store.CountEvents(lead.ID, domain.EventActivity))
	assert.Equal(t, owner.ID, *store.Lead(lead.ID).OwnerID)
}

func TestEvaluateAndApplyClaimsUnownedLead(t *testing.T) {
	store := leadstest.New()
	tenant := uuid.New()
	actor := salesperson(store, &tenant, domain.RoleStandard, "Wes")
	lead := poolLead(store, nil)
	c := NewCoordinator(store, WithClock(fixedClock))

	var seen domain.Lead
	res, err := c.EvaluateAndApply(context.Background(), lead.ID, actor, ApplyParams{
		ActivityKind: domain.ActivityCallLogged,
		Mutation: func(_ context.Context, l domain.Lead) (domain.Lead, error) {
			seen = l
			return l, nil
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Claimed)
	require.NotNil(t, seen.OwnerID, "mutation should see the claimed lead")
	assert.Equal(t, actor.ID, *seen.OwnerID)
	assert.Equal(t, 1, store.CountEvents(lead.ID, domain.EventClaimed))
	assert.Equal(t, 1, store.CountEvents(lead.ID, domain.EventActivity))
}

func TestEvaluateAndApplyMutationError(t *testing.T) {
	store := leadstest.New()
	tenant := uuid.New()
	owner := salesperson(store, &tenant, domain.RoleStandard, "Olive")
	lead := ownedLead(store, tenant, owner.ID)
	boom := errors.New("boom")

	_, err := NewCoordinator(store).EvaluateAndApply(context.Background(), lead.ID, owner, ApplyParams{
		ActivityKind: domain.ActivityNoteAdded,
		Mutation:     func(context.Context, domain.Lead) (domain.Lead, error) { return domain.Lead{}, boom },
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, store.CountEvents(lead.ID, domain.EventActivity))
}

func TestOwnerActionRefreshesLease(t *testing.T) {
	store := leadstest.New()
	tenant := uuid.New()
	owner := salesperson(store, &tenant, domain.RoleStandard, "Olive")
	lead := ownedLead(store, tenant, owner.ID)

	_, err := NewCoordinator(store, WithClock(fixedClock)).EvaluateAndApply(context.Background(), lead.ID, owner, ApplyParams{ActivityKind: domain.ActivityEmailLogged})
	require.NoError(t, err)
	assert.True(t, store.Lead(lead.ID).LastActivityAt.Equal(fixedNow))
}

func TestLeadsOfOtherTenantsAreHidden(t *testing.T) {
	store := leadstest.New()
	tenant, other := uuid.New(), uuid.New()
	owner := salesperson(store, &other, domain.RoleStandard, "Far")
	lead := ownedLead(store, other, owner.ID)
	actor := salesperson(store, &tenant, domain.RoleStandard, "Near")

	_, err := NewCoordinator(store).EvaluateAndApply(context.Background(), lead.ID, actor, ApplyParams{ActivityKind: domain.ActivityNoteAdded})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Empty(t, store.Events(lead.ID))
}
