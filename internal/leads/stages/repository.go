package stages

import (
	"context"
	"errors"

	"dealerdesk_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateName is returned when a tenant already has a stage with the name.
var ErrDuplicateName = errors.New("stage name already exists")

// Store persists stage rows.
type Store interface {
	ListStages(ctx context.Context) ([]domain.Stage, error)
	InsertStage(ctx context.Context, stage domain.Stage) (domain.Stage, error)
}

// Repository is the Postgres Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a stage repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) ListStages(ctx context.Context) ([]domain.Stage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, name, display_order, is_terminal
		FROM lead_stages
		ORDER BY organization_id NULLS FIRST, display_order ASC, name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Stage, 0)
	for rows.Next() {
		var s domain.Stage
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Name, &s.DisplayOrder, &s.IsTerminal); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *Repository) InsertStage(ctx context.Context, stage domain.Stage) (domain.Stage, error) {
	if stage.ID == uuid.Nil {
		stage.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO lead_stages (id, organization_id, name, display_order, is_terminal)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, organization_id, name, display_order, is_terminal
	`, stage.ID, stage.TenantID, stage.Name, stage.DisplayOrder, stage.IsTerminal).
		Scan(&stage.ID, &stage.TenantID, &stage.Name, &stage.DisplayOrder, &stage.IsTerminal)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Stage{}, ErrDuplicateName
		}
		return domain.Stage{}, err
	}
	return stage, nil
}
