// Package leadstest provides an in-memory lead store for tests. Ownership
// writes are true compare-and-swap operations under a single mutex.
package leadstest

import (
	"context"
	"sort"
	"sync"
	"time"

	"dealerdesk_backend/internal/leads/domain"
	"dealerdesk_backend/internal/leads/repository"

	"github.com/google/uuid"
)

// Store implements repository.Store in memory.
type Store struct {
	mu      sync.Mutex
	leads   map[uuid.UUID]domain.Lead
	events  []domain.OwnershipEvent
	members map[uuid.UUID]domain.Salesperson
	notes   []repository.Note
	seq     int64

	// BeforeOwnershipWrite runs before every ConditionalUpdateOwnership,
	// outside the lock, so tests can interleave a competing write.
	BeforeOwnershipWrite func(leadID uuid.UUID)
	// AppendErr, when set, makes AppendEvent fail.
	AppendErr error
}

var _ repository.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		leads:   make(map[uuid.UUID]domain.Lead),
		members: make(map[uuid.UUID]domain.Salesperson),
	}
}

// AddSalesperson registers a member.
func (s *Store) AddSalesperson(p domain.Salesperson) domain.Salesperson {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[p.ID] = p
	return p
}

// PutLead stores lead as-is, replacing any existing row.
func (s *Store) PutLead(l domain.Lead) domain.Lead {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[l.ID] = cloneLead(l)
	return l
}

// Lead returns a snapshot of the stored lead.
func (s *Store) Lead(id uuid.UUID) domain.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneLead(s.leads[id])
}

// Events returns a copy of the events recorded for leadID in seq order.
func (s *Store) Events(leadID uuid.UUID) []domain.OwnershipEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.OwnershipEvent, 0)
	for _, e := range s.events {
		if e.LeadID == leadID {
			out = append(out, e)
		}
	}
	return out
}

// CountEvents counts events of kind on leadID.
func (s *Store) CountEvents(leadID uuid.UUID, kind domain.EventKind) int {
	n := 0
	for _, e := range s.Events(leadID) {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (s *Store) LoadLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	return cloneLead(l), nil
}

func (s *Store) ListLeads(ctx context.Context, params repository.ListParams) ([]domain.Lead, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.Lead, 0)
	for _, l := range s.leads {
		if !sameID(l.TenantID, params.TenantID) {
			continue
		}
		if params.OwnerID != nil && !l.IsOwnedBy(*params.OwnerID) {
			continue
		}
		if params.PoolOnly && l.OwnerID != nil {
			continue
		}
		if params.ActiveOnly && !l.IsActive {
			continue
		}
		items = append(items, cloneLead(l))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })

	total := len(items)
	if params.Offset >= total {
		return []domain.Lead{}, total, nil
	}
	items = items[params.Offset:]
	if params.Limit > 0 && params.Limit < len(items) {
		items = items[:params.Limit]
	}
	return items, total, nil
}

func (s *Store) CreateLead(ctx context.Context, params repository.CreateLeadParams) (domain.Lead, error) {
	now := time.Now().UTC()
	l := domain.Lead{
		ID:        uuid.New(),
		Name:      params.Name,
		TenantID:  copyID(params.TenantID),
		StageID:   params.StageID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[l.ID] = l
	return cloneLead(l), nil
}

func (s *Store) UpdateStage(ctx context.Context, id uuid.UUID, params repository.UpdateStageParams) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	l.StageID = params.StageID
	l.IsActive = params.IsActive
	l.Outcome = copyString(params.Outcome)
	l.UpdatedAt = time.Now().UTC()
	s.leads[id] = l
	return cloneLead(l), nil
}

func (s *Store) TouchOwnerActivity(ctx context.Context, id uuid.UUID, ownerID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok || !l.IsOwnedBy(ownerID) {
		return nil
	}
	if l.LastActivityAt == nil || at.After(*l.LastActivityAt) {
		t := at
		l.LastActivityAt = &t
	}
	s.leads[id] = l
	return nil
}

func (s *Store) ClaimLead(ctx context.Context, id uuid.UUID, actorID uuid.UUID, actorTenantID uuid.UUID, at time.Time) (repository.ClaimResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leads[id]
	if !ok || l.OwnerID != nil || !l.IsActive {
		return repository.ClaimResult{}, false, nil
	}
	if l.TenantID != nil && *l.TenantID != actorTenantID {
		return repository.ClaimResult{}, false, nil
	}

	promoted := l.TenantID == nil
	tenant := actorTenantID
	owner := actorID
	ts := at
	l.OwnerID = &owner
	l.TenantID = &tenant
	l.LastActivityAt = &ts
	l.UpdatedAt = time.Now().UTC()
	s.leads[id] = l
	return repository.ClaimResult{Lead: cloneLead(l), Promoted: promoted}, true, nil
}

func (s *Store) ConditionalUpdateOwnership(ctx context.Context, id uuid.UUID, change repository.OwnershipChange) (domain.Lead, error) {
	if change.NewOwnerID != nil && change.NewTenantID == nil {
		return domain.Lead{}, repository.ErrInvalidOwnership
	}
	if hook := s.BeforeOwnershipWrite; hook != nil {
		hook(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	if !sameID(l.OwnerID, change.ExpectedOwnerID) {
		return domain.Lead{}, repository.ErrOwnershipChanged
	}
	if change.RequireActive && !l.IsActive {
		return domain.Lead{}, repository.ErrOwnershipChanged
	}

	l.OwnerID = copyID(change.NewOwnerID)
	l.TenantID = copyID(change.NewTenantID)
	l.LastActivityAt = copyTime(change.LastActivityAt)
	if change.NewStageID != nil {
		l.StageID = *change.NewStageID
	}
	l.UpdatedAt = time.Now().UTC()
	s.leads[id] = l
	return cloneLead(l), nil
}

func (s *Store) AppendEvent(ctx context.Context, event domain.OwnershipEvent) (domain.OwnershipEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return domain.OwnershipEvent{}, s.AppendErr
	}
	s.seq++
	event.Seq = s.seq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	s.events = append(s.events, event)
	return event, nil
}

func (s *Store) ListEvents(ctx context.Context, leadID uuid.UUID) ([]domain.OwnershipEvent, error) {
	return s.Events(leadID), nil
}

func (s *Store) LatestOwnerEvent(ctx context.Context, leadID uuid.UUID, ownerID uuid.UUID) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestOwnerEventLocked(leadID, ownerID), nil
}

func (s *Store) latestOwnerEventLocked(leadID uuid.UUID, ownerID uuid.UUID) *time.Time {
	var latest *time.Time
	for _, e := range s.events {
		if e.LeadID != leadID || e.ActorID == nil || *e.ActorID != ownerID {
			continue
		}
		if latest == nil || e.Timestamp.After(*latest) {
			t := e.Timestamp
			latest = &t
		}
	}
	return latest
}

func (s *Store) ListLeaseCandidates(ctx context.Context, afterID uuid.UUID, limit int) ([]repository.LeaseCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uuid.UUID, 0)
	for id, l := range s.leads {
		if l.OwnerID != nil && l.IsActive && compareIDs(id, afterID) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return compareIDs(ids[i], ids[j]) < 0 })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]repository.LeaseCandidate, 0, len(ids))
	for _, id := range ids {
		l := s.leads[id]
		out = append(out, repository.LeaseCandidate{
			Lead:             cloneLead(l),
			LatestOwnerEvent: s.latestOwnerEventLocked(id, *l.OwnerID),
		})
	}
	return out, nil
}

func (s *Store) GetSalesperson(ctx context.Context, id uuid.UUID) (domain.Salesperson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.members[id]
	if !ok {
		return domain.Salesperson{}, repository.ErrSalespersonNotFound
	}
	return p, nil
}

func (s *Store) ListActiveMembers(ctx context.Context, tenantID uuid.UUID) ([]domain.Salesperson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Salesperson, 0)
	for _, p := range s.members {
		if p.Active && p.TenantID != nil && *p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return compareIDs(out[i].ID, out[j].ID) < 0 })
	return out, nil
}

func (s *Store) CreateNote(ctx context.Context, params repository.CreateNoteParams) (repository.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[params.LeadID]; !ok {
		return repository.Note{}, repository.ErrNotFound
	}
	n := repository.Note{
		ID:        uuid.New(),
		LeadID:    params.LeadID,
		AuthorID:  params.AuthorID,
		Kind:      params.Kind,
		Body:      params.Body,
		CreatedAt: time.Now().UTC(),
	}
	s.notes = append(s.notes, n)
	return n, nil
}

func (s *Store) ListNotes(ctx context.Context, leadID uuid.UUID) ([]repository.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repository.Note, 0)
	for i := len(s.notes) - 1; i >= 0; i-- {
		if s.notes[i].LeadID == leadID {
			out = append(out, s.notes[i])
		}
	}
	return out, nil
}

func compareIDs(a, b uuid.UUID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneLead(l domain.Lead) domain.Lead {
	l.OwnerID = copyID(l.OwnerID)
	l.TenantID = copyID(l.TenantID)
	l.Outcome = copyString(l.Outcome)
	l.LastActivityAt = copyTime(l.LastActivityAt)
	return l
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
