package repository

import (
	"context"
	"errors"

	"dealerdesk_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrSalespersonNotFound is returned for unknown salesperson ids.
var ErrSalespersonNotFound = errors.New("salesperson not found")

const salespersonColumns = `id, organization_id, name, role, is_active, COALESCE(email, ''), COALESCE(phone, ''),
	push_enabled, email_enabled, sms_enabled`

func scanSalesperson(row pgx.Row) (domain.Salesperson, error) {
	var (
		s    domain.Salesperson
		role string
	)
	err := row.Scan(&s.ID, &s.TenantID, &s.Name, &role, &s.Active, &s.Email, &s.Phone,
		&s.PushEnabled, &s.EmailEnabled, &s.SMSEnabled)
	s.Role = domain.ParseRole(role)
	return s, err
}

func (r *Repository) GetSalesperson(ctx context.Context, id uuid.UUID) (domain.Salesperson, error) {
	s, err := scanSalesperson(r.pool.QueryRow(ctx, `SELECT `+salespersonColumns+` FROM salespeople WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Salesperson{}, ErrSalespersonNotFound
	}
	return s, err
}

func (r *Repository) ListActiveMembers(ctx context.Context, tenantID uuid.UUID) ([]domain.Salesperson, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+salespersonColumns+`
		FROM salespeople
		WHERE organization_id = $1 AND is_active
		ORDER BY name ASC, id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Salesperson, 0)
	for rows.Next() {
		s, err := scanSalesperson(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}
