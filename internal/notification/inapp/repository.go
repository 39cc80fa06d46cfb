package inapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dealerdesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opCreate         = "notification.inapp.repository.create"
	opRecordAttempts = "notification.inapp.repository.record_attempts"
	opList           = "notification.inapp.repository.list"
	opCountUnread    = "notification.inapp.repository.count_unread"
	opMarkRead       = "notification.inapp.repository.mark_read"
	opMarkAllRead    = "notification.inapp.repository.mark_all_read"
	opDelete         = "notification.inapp.repository.delete"

	errRepoNotConfigured   = "notification repository not configured"
	errRecipientIDRequired = "recipientId is required"
)

// Notification is the durable per-recipient record of one fanout.
type Notification struct {
	ID              uuid.UUID        `json:"id"`
	RecipientID     uuid.UUID        `json:"recipientId"`
	TenantID        *uuid.UUID       `json:"tenantId,omitempty"`
	Title           string           `json:"title"`
	Content         string           `json:"content"`
	Link            *string          `json:"link,omitempty"`
	Kind            string           `json:"kind"`
	LeadID          *uuid.UUID       `json:"leadId,omitempty"`
	IsRead          bool             `json:"isRead"`
	ChannelAttempts []ChannelAttempt `json:"channelAttempts"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// ChannelAttempt is the outcome of one channel send for a record.
type ChannelAttempt struct {
	Channel     string    `json:"channel"`
	Succeeded   bool      `json:"succeeded"`
	Error       string    `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attemptedAt"`
}

// CreateParams describes a new record.
type CreateParams struct {
	RecipientID uuid.UUID
	TenantID    *uuid.UUID
	Title       string
	Content     string
	Link        string
	Kind        string
	LeadID      *uuid.UUID
}

// Store is the record persistence contract.
type Store interface {
	Create(ctx context.Context, p CreateParams) (Notification, error)
	RecordAttempts(ctx context.Context, id uuid.UUID, attempts []ChannelAttempt) error
	List(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]Notification, int, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, recipientID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) error
	Delete(ctx context.Context, recipientID, id uuid.UUID) error
}

type Repository struct {
	pool *pgxpool.Pool
}

var _ Store = (*Repository)(nil)

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const notificationColumns = `id, recipient_id, organization_id, title, content, link, kind, lead_id, is_read, channel_attempts, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (Notification, error) {
	var (
		n        Notification
		attempts []byte
	)
	if err := row.Scan(&n.ID, &n.RecipientID, &n.TenantID, &n.Title, &n.Content, &n.Link, &n.Kind, &n.LeadID, &n.IsRead, &attempts, &n.CreatedAt); err != nil {
		return Notification{}, err
	}
	n.ChannelAttempts = []ChannelAttempt{}
	if len(attempts) > 0 {
		if err := json.Unmarshal(attempts, &n.ChannelAttempts); err != nil {
			return Notification{}, err
		}
	}
	return n, nil
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (Notification, error) {
	if r == nil || r.pool == nil {
		return Notification{}, apperr.Internal(errRepoNotConfigured).WithOp(opCreate)
	}
	if p.RecipientID == uuid.Nil {
		return Notification{}, apperr.Validation(errRecipientIDRequired).WithOp(opCreate)
	}
	if p.Title == "" || p.Content == "" {
		return Notification{}, apperr.Validation("title and content are required").WithOp(opCreate)
	}

	kind := p.Kind
	if kind == "" {
		kind = "info"
	}
	var link *string
	if p.Link != "" {
		link = &p.Link
	}

	n, err := scanNotification(r.pool.QueryRow(ctx, `
		INSERT INTO notifications (recipient_id, organization_id, title, content, link, kind, lead_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+notificationColumns,
		p.RecipientID, p.TenantID, p.Title, p.Content, link, kind, p.LeadID,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Notification{}, apperr.Validation("invalid recipientId or leadId").WithOp(opCreate)
		}
		return Notification{}, apperr.Wrap(apperr.KindInternal, "create notification failed", err).WithOp(opCreate)
	}
	return n, nil
}

func (r *Repository) RecordAttempts(ctx context.Context, id uuid.UUID, attempts []ChannelAttempt) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opRecordAttempts)
	}
	raw, err := json.Marshal(attempts)
	if err != nil {
		return fmt.Errorf("marshal channel attempts: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE notifications
		SET channel_attempts = channel_attempts || $2::jsonb
		WHERE id = $1
	`, id, raw)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "record channel attempts failed", err).WithOp(opRecordAttempts)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]Notification, int, error) {
	if r == nil || r.pool == nil {
		return nil, 0, apperr.Internal(errRepoNotConfigured).WithOp(opList)
	}
	if recipientID == uuid.Nil {
		return nil, 0, apperr.Validation(errRecipientIDRequired).WithOp(opList)
	}

	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1`, recipientID).Scan(&total)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, "count notifications failed", err).WithOp(opList)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, recipientID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, "list notifications query failed", err).WithOp(opList)
	}
	defer rows.Close()

	items := make([]Notification, 0, limit)
	for rows.Next() {
		n, scanErr := scanNotification(rows)
		if scanErr != nil {
			return nil, 0, apperr.Wrap(apperr.KindInternal, "scan notifications failed", scanErr).WithOp(opList)
		}
		items = append(items, n)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, "iterate notifications failed", rowsErr).WithOp(opList)
	}

	return items, total, nil
}

func (r *Repository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	if r == nil || r.pool == nil {
		return 0, apperr.Internal(errRepoNotConfigured).WithOp(opCountUnread)
	}
	if recipientID == uuid.Nil {
		return 0, apperr.Validation(errRecipientIDRequired).WithOp(opCountUnread)
	}

	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND NOT is_read
	`, recipientID).Scan(&count)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "count unread notifications failed", err).WithOp(opCountUnread)
	}
	return count, nil
}

func (r *Repository) MarkRead(ctx context.Context, recipientID, id uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opMarkRead)
	}
	if recipientID == uuid.Nil || id == uuid.Nil {
		return apperr.Validation("recipientId and notificationId are required").WithOp(opMarkRead)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND recipient_id = $2
	`, id, recipientID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "mark notification read failed", err).WithOp(opMarkRead)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notification not found").WithOp(opMarkRead)
	}
	return nil
}

func (r *Repository) MarkAllRead(ctx context.Context, recipientID uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opMarkAllRead)
	}
	if recipientID == uuid.Nil {
		return apperr.Validation(errRecipientIDRequired).WithOp(opMarkAllRead)
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE recipient_id = $1 AND NOT is_read
	`, recipientID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "mark all notifications read failed", err).WithOp(opMarkAllRead)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, recipientID, id uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opDelete)
	}
	if recipientID == uuid.Nil || id == uuid.Nil {
		return apperr.Validation("recipientId and notificationId are required").WithOp(opDelete)
	}

	tag, err := r.pool.Exec(ctx, `
		DELETE FROM notifications
		WHERE id = $1 AND recipient_id = $2
	`, id, recipientID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "delete notification failed", err).WithOp(opDelete)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notification not found").WithOp(opDelete)
	}
	return nil
}
