package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealerdesk_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("lead not found")
	// ErrOwnershipChanged means a guarded ownership write lost a race.
	ErrOwnershipChanged = errors.New("lead ownership changed concurrently")
	// ErrInvalidOwnership rejects writes that would break the owner/tenant pairing.
	ErrInvalidOwnership = errors.New("owned lead requires a tenant")
)

const leadColumns = `id, name, owner_id, organization_id, stage_id, is_active, outcome, last_activity_at, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func scanLead(row pgx.Row) (domain.Lead, error) {
	var l domain.Lead
	err := row.Scan(
		&l.ID,
		&l.Name,
		&l.OwnerID,
		&l.TenantID,
		&l.StageID,
		&l.IsActive,
		&l.Outcome,
		&l.LastActivityAt,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	return l, err
}

func (r *Repository) LoadLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

func (r *Repository) ListLeads(ctx context.Context, params ListParams) ([]domain.Lead, int, error) {
	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	where := `WHERE ($1::uuid IS NULL AND organization_id IS NULL OR organization_id = $1::uuid)
		AND ($2::uuid IS NULL OR owner_id = $2::uuid)
		AND (NOT $3::bool OR owner_id IS NULL)
		AND (NOT $4::bool OR is_active)`
	args := []any{params.TenantID, params.OwnerID, params.PoolOnly, params.ActiveOnly}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM leads `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+leadColumns+` FROM leads `+where+`
		ORDER BY created_at DESC, id
		LIMIT $5 OFFSET $6`, append(args, limit, params.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, lead)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return items, total, nil
}

func (r *Repository) CreateLead(ctx context.Context, params CreateLeadParams) (domain.Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `
		INSERT INTO leads (name, organization_id, stage_id, is_active)
		VALUES ($1, $2, $3, true)
		RETURNING `+leadColumns,
		params.Name, params.TenantID, params.StageID,
	))
}

func (r *Repository) UpdateStage(ctx context.Context, id uuid.UUID, params UpdateStageParams) (domain.Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads
		SET stage_id = $2, is_active = $3, outcome = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+leadColumns,
		id, params.StageID, params.IsActive, params.Outcome,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

// TouchOwnerActivity moves lastActivityAt forward while ownerID still owns the lead.
func (r *Repository) TouchOwnerActivity(ctx context.Context, id uuid.UUID, ownerID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET last_activity_at = GREATEST(COALESCE(last_activity_at, $3), $3), updated_at = now()
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID, at)
	return err
}

func (r *Repository) ClaimLead(ctx context.Context, id uuid.UUID, actorID uuid.UUID, actorTenantID uuid.UUID, at time.Time) (ClaimResult, bool, error) {
	// The locked subquery reads the latest committed version, so prev_org is
	// exactly the tenant this update replaces.
	var (
		result  ClaimResult
		prevOrg *uuid.UUID
	)
	row := r.pool.QueryRow(ctx, `
		UPDATE leads l
		SET owner_id = $2,
			organization_id = COALESCE(l.organization_id, $3),
			last_activity_at = $4,
			updated_at = now()
		FROM (SELECT id, organization_id AS prev_org FROM leads WHERE id = $1 FOR UPDATE) p
		WHERE l.id = p.id
			AND l.owner_id IS NULL
			AND l.is_active
			AND (l.organization_id IS NULL OR l.organization_id = $3)
		RETURNING l.id, l.name, l.owner_id, l.organization_id, l.stage_id, l.is_active, l.outcome,
			l.last_activity_at, l.created_at, l.updated_at, p.prev_org
	`, id, actorID, actorTenantID, at)

	err := row.Scan(
		&result.Lead.ID,
		&result.Lead.Name,
		&result.Lead.OwnerID,
		&result.Lead.TenantID,
		&result.Lead.StageID,
		&result.Lead.IsActive,
		&result.Lead.Outcome,
		&result.Lead.LastActivityAt,
		&result.Lead.CreatedAt,
		&result.Lead.UpdatedAt,
		&prevOrg,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ClaimResult{}, false, nil
	}
	if err != nil {
		return ClaimResult{}, false, err
	}
	result.Promoted = prevOrg == nil
	return result, true, nil
}

func (r *Repository) ConditionalUpdateOwnership(ctx context.Context, id uuid.UUID, change OwnershipChange) (domain.Lead, error) {
	if change.NewOwnerID != nil && change.NewTenantID == nil {
		return domain.Lead{}, ErrInvalidOwnership
	}

	lead, err := scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads
		SET owner_id = $3, organization_id = $4, last_activity_at = $5,
			stage_id = COALESCE($7::uuid, stage_id), updated_at = now()
		WHERE id = $1
			AND owner_id IS NOT DISTINCT FROM $2
			AND (NOT $6::bool OR is_active)
		RETURNING `+leadColumns,
		id, change.ExpectedOwnerID, change.NewOwnerID, change.NewTenantID, change.LastActivityAt, change.RequireActive,
		change.NewStageID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, loadErr := r.LoadLead(ctx, id); errors.Is(loadErr, ErrNotFound) {
			return domain.Lead{}, ErrNotFound
		}
		return domain.Lead{}, ErrOwnershipChanged
	}
	if err != nil {
		return domain.Lead{}, fmt.Errorf("update ownership: %w", err)
	}
	return lead, nil
}
