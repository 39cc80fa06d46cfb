package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestLeadStateDerivation(t *testing.T) {
	tenant := uuid.New()
	owner := uuid.New()
	outcome := "won"

	tests := []struct {
		name string
		lead Lead
		want OwnershipState
	}{
		{name: "global pool", lead: Lead{IsActive: true}, want: StatePooledGlobal},
		{name: "tenant pool", lead: Lead{IsActive: true, TenantID: &tenant}, want: StatePooledTenant},
		{name: "owned", lead: Lead{IsActive: true, TenantID: &tenant, OwnerID: &owner}, want: StateOwned},
		{name: "closed keeps owner", lead: Lead{IsActive: false, Outcome: &outcome, TenantID: &tenant, OwnerID: &owner}, want: StateClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.lead.State(); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestLeadValidate(t *testing.T) {
	owner := uuid.New()
	if err := (Lead{IsActive: true, OwnerID: &owner}).Validate(); !errors.Is(err, ErrOwnerWithoutTenant) {
		t.Fatalf("expected ErrOwnerWithoutTenant, got %v", err)
	}
	if err := (Lead{IsActive: false}).Validate(); !errors.Is(err, ErrOutcomeMismatch) {
		t.Fatalf("expected ErrOutcomeMismatch, got %v", err)
	}
	if err := (Lead{IsActive: true}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOwnerEvidenceFallbacks(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	activity := created.Add(time.Hour)
	event := created.Add(2 * time.Hour)

	lead := Lead{CreatedAt: created}
	if got := lead.OwnerEvidence(nil); !got.Equal(created) {
		t.Fatalf("expected createdAt fallback, got %s", got)
	}
	lead.LastActivityAt = &activity
	if got := lead.OwnerEvidence(nil); !got.Equal(activity) {
		t.Fatalf("expected lastActivityAt fallback, got %s", got)
	}
	if got := lead.OwnerEvidence(&event); !got.Equal(event) {
		t.Fatalf("expected owner event, got %s", got)
	}

	stale := created.Add(-time.Hour)
	if got := lead.OwnerEvidence(&stale); !got.Equal(activity) {
		t.Fatalf("expected newer lastActivityAt to win over old event, got %s", got)
	}
}

func TestOwnerEvidenceAfterReassignment(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	oldNote := created.Add(24 * time.Hour)
	reassignedAt := created.Add(120 * 24 * time.Hour)

	// The new owner last wrote on the lead months before it was handed to them.
	lead := Lead{CreatedAt: created, LastActivityAt: &reassignedAt}
	if got := lead.OwnerEvidence(&oldNote); !got.Equal(reassignedAt) {
		t.Fatalf("expected reassignment time, got %s", got)
	}
}

func TestApplyStage(t *testing.T) {
	tenant := uuid.New()
	other := uuid.New()
	lead := Lead{IsActive: true, TenantID: &tenant}

	won := Stage{ID: uuid.New(), Name: "won", IsTerminal: true}
	if err := ApplyStage(&lead, won, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lead.IsActive || lead.Outcome == nil || *lead.Outcome != "won" {
		t.Fatalf("expected closed lead with outcome won, got active=%v outcome=%v", lead.IsActive, lead.Outcome)
	}

	contacted := Stage{ID: uuid.New(), TenantID: &tenant, Name: "contacted"}
	if err := ApplyStage(&lead, contacted, "ignored"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !lead.IsActive || lead.Outcome != nil {
		t.Fatal("expected reopened lead without outcome")
	}
	if err := lead.Validate(); err != nil {
		t.Fatalf("reopened lead violates invariants: %v", err)
	}

	foreign := Stage{ID: uuid.New(), TenantID: &other, Name: "foreign"}
	if err := ApplyStage(&lead, foreign, ""); !errors.Is(err, ErrStageTenantMismatch) {
		t.Fatalf("expected ErrStageTenantMismatch, got %v", err)
	}
}

func TestRolePolicy(t *testing.T) {
	tenant := uuid.New()
	tests := []struct {
		role          Role
		tenant        *uuid.UUID
		autoClaim     bool
		conflictCheck bool
		reassign      bool
	}{
		{role: RoleStandard, tenant: &tenant, autoClaim: true, conflictCheck: true},
		{role: RoleStandard, tenant: nil, autoClaim: false, conflictCheck: true},
		{role: RoleAdmin, tenant: &tenant, reassign: true},
		{role: RoleOwner, tenant: &tenant, reassign: true},
		{role: RoleSuperAdmin, tenant: nil, reassign: true},
	}

	for _, tt := range tests {
		actor := Salesperson{ID: uuid.New(), TenantID: tt.tenant, Role: tt.role}
		if got := CanAutoClaim(actor); got != tt.autoClaim {
			t.Errorf("%s: CanAutoClaim=%v, want %v", tt.role, got, tt.autoClaim)
		}
		if got := SubjectToConflictCheck(actor); got != tt.conflictCheck {
			t.Errorf("%s: SubjectToConflictCheck=%v, want %v", tt.role, got, tt.conflictCheck)
		}
		if got := CanReassign(actor); got != tt.reassign {
			t.Errorf("%s: CanReassign=%v, want %v", tt.role, got, tt.reassign)
		}
	}
}

func TestHighestRole(t *testing.T) {
	if got := HighestRole([]string{"standard", "admin"}); got != RoleAdmin {
		t.Fatalf("expected admin, got %s", got)
	}
	if got := HighestRole([]string{"owner", "super_admin", "admin"}); got != RoleSuperAdmin {
		t.Fatalf("expected super_admin, got %s", got)
	}
	if got := HighestRole(nil); got != RoleStandard {
		t.Fatalf("expected standard, got %s", got)
	}
}
