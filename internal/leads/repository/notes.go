package repository

import (
	"context"

	"github.com/google/uuid"
)

func (r *Repository) CreateNote(ctx context.Context, params CreateNoteParams) (Note, error) {
	var note Note
	err := r.pool.QueryRow(ctx, `
		INSERT INTO lead_notes (lead_id, author_id, kind, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, lead_id, author_id, kind, body, created_at
	`, params.LeadID, params.AuthorID, params.Kind, params.Body).Scan(
		&note.ID,
		&note.LeadID,
		&note.AuthorID,
		&note.Kind,
		&note.Body,
		&note.CreatedAt,
	)
	return note, err
}

func (r *Repository) ListNotes(ctx context.Context, leadID uuid.UUID) ([]Note, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, author_id, kind, body, created_at
		FROM lead_notes
		WHERE lead_id = $1
		ORDER BY created_at DESC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := make([]Note, 0)
	for rows.Next() {
		var note Note
		if err := rows.Scan(&note.ID, &note.LeadID, &note.AuthorID, &note.Kind, &note.Body, &note.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}
