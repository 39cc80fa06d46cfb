// Package stages resolves pipeline stage definitions: built-in global
// defaults plus per-tenant stages that take precedence by name.
package stages

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"dealerdesk_backend/internal/leads/domain"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// ErrNoGlobalDefault means the deployment has no usable global "new" stage.
// Startup must stop when Load returns it.
var ErrNoGlobalDefault = errors.New("no global default stage configured")

// Registry is an in-memory view of all stages, refreshed from the Store.
type Registry struct {
	store Store

	mu       sync.RWMutex
	global   []domain.Stage
	byTenant map[uuid.UUID][]domain.Stage
	byID     map[uuid.UUID]domain.Stage
	fallback domain.Stage
}

// NewRegistry creates a registry backed by store. Call Load before use.
func NewRegistry(store Store) *Registry {
	return &Registry{
		store:    store,
		byTenant: make(map[uuid.UUID][]domain.Stage),
		byID:     make(map[uuid.UUID]domain.Stage),
	}
}

// SeedDefaults inserts any built-in global stage missing from the store.
func (r *Registry) SeedDefaults(ctx context.Context) error {
	defaults, err := GlobalDefaults()
	if err != nil {
		return err
	}
	existing, err := r.store.ListStages(ctx)
	if err != nil {
		return fmt.Errorf("list stages: %w", err)
	}

	present := make(map[string]bool)
	for _, s := range existing {
		if s.IsGlobal() {
			present[foldName(s.Name)] = true
		}
	}
	for _, s := range defaults {
		if present[foldName(s.Name)] {
			continue
		}
		if _, err := r.store.InsertStage(ctx, s); err != nil && !errors.Is(err, ErrDuplicateName) {
			return fmt.Errorf("seed stage %q: %w", s.Name, err)
		}
	}
	return nil
}

// Load replaces the cached view with the store's rows.
func (r *Registry) Load(ctx context.Context) error {
	all, err := r.store.ListStages(ctx)
	if err != nil {
		return fmt.Errorf("list stages: %w", err)
	}

	global := make([]domain.Stage, 0)
	byTenant := make(map[uuid.UUID][]domain.Stage)
	byID := make(map[uuid.UUID]domain.Stage, len(all))
	var fallback *domain.Stage

	for _, s := range all {
		byID[s.ID] = s
		if s.TenantID == nil {
			global = append(global, s)
			if foldName(s.Name) == domain.DefaultStageName && !s.IsTerminal {
				stage := s
				fallback = &stage
			}
			continue
		}
		byTenant[*s.TenantID] = append(byTenant[*s.TenantID], s)
	}
	if fallback == nil {
		return ErrNoGlobalDefault
	}

	sortStages(global)
	for id := range byTenant {
		sortStages(byTenant[id])
	}

	r.mu.Lock()
	r.global = global
	r.byTenant = byTenant
	r.byID = byID
	r.fallback = *fallback
	r.mu.Unlock()
	return nil
}

// DefaultStage returns the lowest-order non-terminal stage of the tenant,
// or the global "new" stage when the tenant has none.
func (r *Registry) DefaultStage(tenantID *uuid.UUID) domain.Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if tenantID != nil {
		for _, s := range r.byTenant[*tenantID] {
			if !s.IsTerminal {
				return s
			}
		}
	}
	return r.fallback
}

// StageByName prefers the tenant's stage with that name and falls back to
// the global stage of that name. Matching ignores case and surrounding space.
func (r *Registry) StageByName(name string, tenantID *uuid.UUID) (domain.Stage, bool) {
	key := foldName(name)
	if key == "" {
		return domain.Stage{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if tenantID != nil {
		for _, s := range r.byTenant[*tenantID] {
			if foldName(s.Name) == key {
				return s, true
			}
		}
	}
	for _, s := range r.global {
		if foldName(s.Name) == key {
			return s, true
		}
	}
	return domain.Stage{}, false
}

// ResolveByName is StageByName with one reload on a miss, so stages created
// by another process become visible.
func (r *Registry) ResolveByName(ctx context.Context, name string, tenantID *uuid.UUID) (domain.Stage, bool, error) {
	if s, ok := r.StageByName(name, tenantID); ok {
		return s, true, nil
	}
	if err := r.Load(ctx); err != nil {
		return domain.Stage{}, false, err
	}
	s, ok := r.StageByName(name, tenantID)
	return s, ok, nil
}

// ByID returns the stage with id.
func (r *Registry) ByID(id uuid.UUID) (domain.Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// GlobalEquivalent returns the stage a lead in stage id keeps once it leaves
// its tenant. Global stages map to themselves. A tenant stage maps to the
// non-terminal global stage of the same name, else to the global default.
// An unknown id triggers one reload before falling back to the default.
func (r *Registry) GlobalEquivalent(ctx context.Context, id uuid.UUID) (domain.Stage, error) {
	current, ok := r.ByID(id)
	if !ok {
		if err := r.Load(ctx); err != nil {
			return domain.Stage{}, err
		}
		current, ok = r.ByID(id)
	}
	if ok && current.IsGlobal() {
		return current, nil
	}
	if ok {
		if global, found := r.StageByName(current.Name, nil); found && !global.IsTerminal {
			return global, nil
		}
	}
	return r.DefaultStage(nil), nil
}

// IsTerminal reports whether the stage with id closes a lead.
func (r *Registry) IsTerminal(id uuid.UUID) bool {
	s, ok := r.ByID(id)
	return ok && s.IsTerminal
}

// ListFor returns the stages visible to a tenant: its own stages followed by
// global stages whose names it does not override.
func (r *Registry) ListFor(tenantID *uuid.UUID) []domain.Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Stage, 0, len(r.global))
	overridden := make(map[string]bool)
	if tenantID != nil {
		for _, s := range r.byTenant[*tenantID] {
			out = append(out, s)
			overridden[foldName(s.Name)] = true
		}
	}
	for _, s := range r.global {
		if !overridden[foldName(s.Name)] {
			out = append(out, s)
		}
	}
	sortStages(out)
	return out
}

// AddTenantStage creates a tenant-scoped stage and makes it visible immediately.
func (r *Registry) AddTenantStage(ctx context.Context, tenantID uuid.UUID, name string, order int, terminal bool) (domain.Stage, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Stage{}, fmt.Errorf("stage name is required")
	}
	tid := tenantID
	stage, err := r.store.InsertStage(ctx, domain.Stage{
		TenantID:     &tid,
		Name:         name,
		DisplayOrder: order,
		IsTerminal:   terminal,
	})
	if err != nil {
		return domain.Stage{}, err
	}

	r.mu.Lock()
	list := append(r.byTenant[tenantID], stage)
	sortStages(list)
	r.byTenant[tenantID] = list
	r.byID[stage.ID] = stage
	r.mu.Unlock()
	return stage, nil
}

func sortStages(list []domain.Stage) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].DisplayOrder != list[j].DisplayOrder {
			return list[i].DisplayOrder < list[j].DisplayOrder
		}
		return list[i].Name < list[j].Name
	})
}

func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}
