package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MemoryStore is an in-process Store for tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*memRecord
}

type memRecord struct {
	Record
	lastError *string
	updatedAt time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]*memRecord)}
}

func (m *MemoryStore) Insert(_ context.Context, p InsertParams) (uuid.UUID, error) {
	if p.Kind == "" {
		return uuid.Nil, fmt.Errorf("kind is required")
	}
	raw, err := json.Marshal(p.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal payload: %w", err)
	}
	if p.RunAt.IsZero() {
		p.RunAt = time.Now().UTC()
	}
	rec := &memRecord{
		Record: Record{
			ID:       uuid.New(),
			TenantID: p.TenantID,
			Kind:     p.Kind,
			Payload:  raw,
			RunAt:    p.RunAt,
			Status:   StatusPending,
		},
		updatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return rec.ID, nil
}

func (m *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, pgx.ErrNoRows
	}
	return rec.Record, nil
}

func (m *MemoryStore) ClaimPending(_ context.Context, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	due := make([]*memRecord, 0)
	for _, rec := range m.records {
		if rec.Status == StatusPending && !rec.RunAt.After(now) {
			due = append(due, rec)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]Record, 0, len(due))
	for _, rec := range due {
		rec.Status = StatusEnqueued
		rec.updatedAt = now
		out = append(out, rec.Record)
	}
	return out, nil
}

func (m *MemoryStore) RequeueStale(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var n int64
	for _, rec := range m.records {
		if (rec.Status == StatusEnqueued || rec.Status == StatusProcessing) && rec.updatedAt.Before(cutoff) {
			rec.Status = StatusPending
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) MarkPending(_ context.Context, id uuid.UUID, lastError *string) error {
	return m.update(id, func(rec *memRecord) {
		rec.Status = StatusPending
		rec.lastError = lastError
	})
}

func (m *MemoryStore) ScheduleRetry(_ context.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	return m.update(id, func(rec *memRecord) {
		rec.Status = StatusPending
		rec.RunAt = runAt
		rec.lastError = &lastError
	})
}

func (m *MemoryStore) MarkProcessing(_ context.Context, id uuid.UUID) error {
	return m.update(id, func(rec *memRecord) {
		rec.Status = StatusProcessing
		rec.Attempts++
	})
}

func (m *MemoryStore) MarkSucceeded(_ context.Context, id uuid.UUID) error {
	return m.update(id, func(rec *memRecord) {
		rec.Status = StatusSucceeded
		rec.lastError = nil
	})
}

func (m *MemoryStore) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	return m.update(id, func(rec *memRecord) {
		rec.Status = StatusFailed
		rec.lastError = &lastError
	})
}

// LastError reports the stored failure message, if any.
func (m *MemoryStore) LastError(id uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok && rec.lastError != nil {
		return *rec.lastError
	}
	return ""
}

func (m *MemoryStore) update(id uuid.UUID, fn func(*memRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return pgx.ErrNoRows
	}
	fn(rec)
	rec.updatedAt = time.Now().UTC()
	return nil
}
