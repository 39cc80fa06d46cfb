package inapp

import (
	"context"
	"sort"
	"sync"
	"time"

	"dealerdesk_backend/platform/apperr"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process. Used by tests and local runs
// without Postgres.
type MemoryStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]Notification
	order []uuid.UUID
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[uuid.UUID]Notification)}
}

func (m *MemoryStore) Create(ctx context.Context, p CreateParams) (Notification, error) {
	if p.RecipientID == uuid.Nil {
		return Notification{}, apperr.Validation(errRecipientIDRequired).WithOp(opCreate)
	}
	kind := p.Kind
	if kind == "" {
		kind = "info"
	}
	n := Notification{
		ID:              uuid.New(),
		RecipientID:     p.RecipientID,
		TenantID:        p.TenantID,
		Title:           p.Title,
		Content:         p.Content,
		Kind:            kind,
		LeadID:          p.LeadID,
		ChannelAttempts: []ChannelAttempt{},
		CreatedAt:       time.Now().UTC(),
	}
	if p.Link != "" {
		link := p.Link
		n.Link = &link
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[n.ID] = n
	m.order = append(m.order, n.ID)
	return n, nil
}

func (m *MemoryStore) RecordAttempts(ctx context.Context, id uuid.UUID, attempts []ChannelAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok {
		return apperr.NotFound("notification not found").WithOp(opRecordAttempts)
	}
	n.ChannelAttempts = append(n.ChannelAttempts, attempts...)
	m.items[id] = n
	return nil
}

// All returns every record in creation order.
func (m *MemoryStore) All() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, 0, len(m.order))
	for _, id := range m.order {
		if n, ok := m.items[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// ForRecipient returns the records of one recipient in creation order.
func (m *MemoryStore) ForRecipient(recipientID uuid.UUID) []Notification {
	out := make([]Notification, 0)
	for _, n := range m.All() {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out
}

func (m *MemoryStore) List(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]Notification, int, error) {
	items := m.ForRecipient(recipientID)
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	total := len(items)
	if offset >= total {
		return []Notification{}, total, nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items, total, nil
}

func (m *MemoryStore) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	count := 0
	for _, n := range m.ForRecipient(recipientID) {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) MarkRead(ctx context.Context, recipientID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.RecipientID != recipientID {
		return apperr.NotFound("notification not found").WithOp(opMarkRead)
	}
	n.IsRead = true
	m.items[id] = n
	return nil
}

func (m *MemoryStore) MarkAllRead(ctx context.Context, recipientID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, n := range m.items {
		if n.RecipientID == recipientID {
			n.IsRead = true
			m.items[id] = n
		}
	}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, recipientID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.RecipientID != recipientID {
		return apperr.NotFound("notification not found").WithOp(opDelete)
	}
	delete(m.items, id)
	return nil
}
