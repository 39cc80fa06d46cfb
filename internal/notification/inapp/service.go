package inapp

import (
	"context"

	"github.com/google/uuid"
)

// Service exposes a recipient's notification history.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) List(ctx context.Context, recipientID uuid.UUID, page, pageSize int) ([]Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	offset := (page - 1) * pageSize
	return s.store.List(ctx, recipientID, pageSize, offset)
}

func (s *Service) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	return s.store.CountUnread(ctx, recipientID)
}

func (s *Service) MarkRead(ctx context.Context, recipientID, id uuid.UUID) error {
	return s.store.MarkRead(ctx, recipientID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, recipientID uuid.UUID) error {
	return s.store.MarkAllRead(ctx, recipientID)
}

func (s *Service) Delete(ctx context.Context, recipientID, id uuid.UUID) error {
	return s.store.Delete(ctx, recipientID, id)
}
