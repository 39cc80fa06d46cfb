package stages

import (
	"context"
	"errors"
	"sync"
	"testing"

	"dealerdesk_backend/internal/leads/domain"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu     sync.Mutex
	stages []domain.Stage
}

func (m *memoryStore) ListStages(ctx context.Context) ([]domain.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Stage, len(m.stages))
	copy(out, m.stages)
	return out, nil
}

func (m *memoryStore) InsertStage(ctx context.Context, stage domain.Stage) (domain.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stages {
		sameScope := (s.TenantID == nil && stage.TenantID == nil) ||
			(s.TenantID != nil && stage.TenantID != nil && *s.TenantID == *stage.TenantID)
		if sameScope && foldName(s.Name) == foldName(stage.Name) {
			return domain.Stage{}, ErrDuplicateName
		}
	}
	if stage.ID == uuid.Nil {
		stage.ID = uuid.New()
	}
	m.stages = append(m.stages, stage)
	return stage, nil
}

func seededRegistry(t *testing.T) (*Registry, *memoryStore) {
	t.Helper()
	store := &memoryStore{}
	reg := NewRegistry(store)
	ctx := context.Background()
	if err := reg.SeedDefaults(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := reg.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	return reg, store
}

func TestLoadFailsWithoutGlobalDefault(t *testing.T) {
	tenant := uuid.New()
	store := &memoryStore{stages: []domain.Stage{
		{ID: uuid.New(), TenantID: &tenant, Name: "new", DisplayOrder: 1},
		{ID: uuid.New(), Name: "sold", DisplayOrder: 90, IsTerminal: true},
	}}
	if err := NewRegistry(store).Load(context.Background()); !errors.Is(err, ErrNoGlobalDefault) {
		t.Fatalf("expected ErrNoGlobalDefault, got %v", err)
	}
}

func TestSeedDefaultsIsIdempotent(t *testing.T) {
	reg, store := seededRegistry(t)
	before := len(store.stages)
	if err := reg.SeedDefaults(context.Background()); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if len(store.stages) != before {
		t.Fatalf("expected %d stages after reseed, got %d", before, len(store.stages))
	}
}

func TestDefaultStage(t *testing.T) {
	reg, _ := seededRegistry(t)
	ctx := context.Background()

	global := reg.DefaultStage(nil)
	if global.Name != "new" || !global.IsGlobal() {
		t.Fatalf("expected global new stage, got %+v", global)
	}

	tenant := uuid.New()
	if got := reg.DefaultStage(&tenant); got.ID != global.ID {
		t.Fatalf("tenant without stages should get the global default, got %+v", got)
	}

	if _, err := reg.AddTenantStage(ctx, tenant, "archived", 1, true); err != nil {
		t.Fatalf("add terminal stage: %v", err)
	}
	inbox, err := reg.AddTenantStage(ctx, tenant, "Inbox", 5, false)
	if err != nil {
		t.Fatalf("add stage: %v", err)
	}
	if _, err := reg.AddTenantStage(ctx, tenant, "Follow up", 7, false); err != nil {
		t.Fatalf("add stage: %v", err)
	}

	if got := reg.DefaultStage(&tenant); got.ID != inbox.ID {
		t.Fatalf("expected lowest-order non-terminal tenant stage, got %+v", got)
	}
}

func TestStageByNamePrefersTenantStage(t *testing.T) {
	reg, _ := seededRegistry(t)
	tenant := uuid.New()
	other := uuid.New()

	custom, err := reg.AddTenantStage(context.Background(), tenant, "Contacted", 15, false)
	if err != nil {
		t.Fatalf("add stage: %v", err)
	}

	got, ok := reg.StageByName("  CONTACTED ", &tenant)
	if !ok || got.ID != custom.ID {
		t.Fatalf("expected tenant stage, got %+v ok=%v", got, ok)
	}

	got, ok = reg.StageByName("contacted", &other)
	if !ok || !got.IsGlobal() {
		t.Fatalf("expected global fallback for another tenant, got %+v ok=%v", got, ok)
	}

	if _, ok := reg.StageByName("nonexistent", &tenant); ok {
		t.Fatal("expected no stage for unknown name")
	}
}

func TestResolveByNameReloadsOnMiss(t *testing.T) {
	reg, store := seededRegistry(t)
	tenant := uuid.New()

	if _, err := store.InsertStage(context.Background(), domain.Stage{TenantID: &tenant, Name: "trade_in_review", DisplayOrder: 25}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, ok, err := reg.ResolveByName(context.Background(), "trade_in_review", &tenant)
	if err != nil || !ok {
		t.Fatalf("expected stage after reload, ok=%v err=%v", ok, err)
	}
	if reg.IsTerminal(got.ID) != got.IsTerminal {
		t.Fatal("IsTerminal disagrees with stage row")
	}
}

func TestTerminalDefaults(t *testing.T) {
	reg, _ := seededRegistry(t)
	for _, name := range []string{"sold", "lost"} {
		s, ok := reg.StageByName(name, nil)
		if !ok || !reg.IsTerminal(s.ID) {
			t.Fatalf("expected %s to be a terminal global stage", name)
		}
	}
	if s, _ := reg.StageByName("negotiation", nil); reg.IsTerminal(s.ID) {
		t.Fatal("negotiation must not be terminal")
	}
}

func TestGlobalEquivalent(t *testing.T) {
	reg, store := seededRegistry(t)
	ctx := context.Background()
	tenant := uuid.New()

	contacted, _ := reg.StageByName("contacted", nil)
	shadow, err := reg.AddTenantStage(ctx, tenant, "Contacted", 15, false)
	if err != nil {
		t.Fatalf("add shadow stage: %v", err)
	}
	private, err := reg.AddTenantStage(ctx, tenant, "t1_secret_stage", 25, false)
	if err != nil {
		t.Fatalf("add private stage: %v", err)
	}
	openSold, err := reg.AddTenantStage(ctx, tenant, "sold", 60, false)
	if err != nil {
		t.Fatalf("add open sold stage: %v", err)
	}

	// Written by another process after this registry loaded.
	late := domain.Stage{ID: uuid.New(), TenantID: &tenant, Name: "late_stage", DisplayOrder: 70}
	store.mu.Lock()
	store.stages = append(store.stages, late)
	store.mu.Unlock()

	cases := []struct {
		name string
		id   uuid.UUID
		want string
	}{
		{"global stays", contacted.ID, "contacted"},
		{"tenant stage maps by name", shadow.ID, "contacted"},
		{"private tenant stage falls back to default", private.ID, domain.DefaultStageName},
		{"terminal global namesake is skipped", openSold.ID, domain.DefaultStageName},
		{"stage added elsewhere", late.ID, domain.DefaultStageName},
		{"unknown stage", uuid.New(), domain.DefaultStageName},
	}
	for _, tc := range cases {
		got, err := reg.GlobalEquivalent(ctx, tc.id)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !got.IsGlobal() || got.Name != tc.want {
			t.Fatalf("%s: expected global %q, got %q (tenant %v)", tc.name, tc.want, got.Name, got.TenantID)
		}
	}
}
