package repository

import (
	"context"
	"encoding/json"
	"time"

	"dealerdesk_backend/internal/leads/domain"

	"github.com/google/uuid"
)

func (r *Repository) AppendEvent(ctx context.Context, event domain.OwnershipEvent) (domain.OwnershipEvent, error) {
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return domain.OwnershipEvent{}, err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO lead_ownership_events (lead_id, actor_id, kind, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq
	`, event.LeadID, event.ActorID, string(event.Kind), metadataJSON, event.Timestamp).Scan(&event.Seq)
	if err != nil {
		return domain.OwnershipEvent{}, err
	}
	return event, nil
}

func (r *Repository) ListEvents(ctx context.Context, leadID uuid.UUID) ([]domain.OwnershipEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT seq, lead_id, actor_id, kind, metadata, created_at
		FROM lead_ownership_events
		WHERE lead_id = $1
		ORDER BY seq ASC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.OwnershipEvent, 0)
	for rows.Next() {
		var (
			e        domain.OwnershipEvent
			kind     string
			metadata []byte
		)
		if err := rows.Scan(&e.Seq, &e.LeadID, &e.ActorID, &kind, &metadata, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Kind = domain.EventKind(kind)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, err
			}
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *Repository) LatestOwnerEvent(ctx context.Context, leadID uuid.UUID, ownerID uuid.UUID) (*time.Time, error) {
	var latest *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT max(created_at)
		FROM lead_ownership_events
		WHERE lead_id = $1 AND actor_id = $2
	`, leadID, ownerID).Scan(&latest)
	return latest, err
}

func (r *Repository) ListLeaseCandidates(ctx context.Context, afterID uuid.UUID, limit int) ([]LeaseCandidate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT l.id, l.name, l.owner_id, l.organization_id, l.stage_id, l.is_active, l.outcome,
			l.last_activity_at, l.created_at, l.updated_at, ev.latest
		FROM leads l
		LEFT JOIN LATERAL (
			SELECT max(e.created_at) AS latest
			FROM lead_ownership_events e
			WHERE e.lead_id = l.id AND e.actor_id = l.owner_id
		) ev ON true
		WHERE l.owner_id IS NOT NULL AND l.is_active AND l.id > $1
		ORDER BY l.id
		LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]LeaseCandidate, 0, limit)
	for rows.Next() {
		var c LeaseCandidate
		if err := rows.Scan(
			&c.Lead.ID,
			&c.Lead.Name,
			&c.Lead.OwnerID,
			&c.Lead.TenantID,
			&c.Lead.StageID,
			&c.Lead.IsActive,
			&c.Lead.Outcome,
			&c.Lead.LastActivityAt,
			&c.Lead.CreatedAt,
			&c.Lead.UpdatedAt,
			&c.LatestOwnerEvent,
		); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}
