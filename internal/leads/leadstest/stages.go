package leadstest

import (
	"context"
	"strings"
	"sync"

	"dealerdesk_backend/internal/leads/domain"
	"dealerdesk_backend/internal/leads/stages"

	"github.com/google/uuid"
)

// StageStore implements stages.Store in memory.
type StageStore struct {
	mu   sync.Mutex
	rows []domain.Stage
}

var _ stages.Store = (*StageStore)(nil)

func (s *StageStore) ListStages(ctx context.Context) ([]domain.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Stage, len(s.rows))
	copy(out, s.rows)
	return out, nil
}

func (s *StageStore) InsertStage(ctx context.Context, stage domain.Stage) (domain.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if sameID(row.TenantID, stage.TenantID) && strings.EqualFold(row.Name, stage.Name) {
			return domain.Stage{}, stages.ErrDuplicateName
		}
	}
	if stage.ID == uuid.Nil {
		stage.ID = uuid.New()
	}
	s.rows = append(s.rows, stage)
	return stage, nil
}

// SeededRegistry returns a loaded registry holding the built-in stages.
func SeededRegistry(ctx context.Context) (*stages.Registry, error) {
	reg := stages.NewRegistry(&StageStore{})
	if err := reg.SeedDefaults(ctx); err != nil {
		return nil, err
	}
	if err := reg.Load(ctx); err != nil {
		return nil, err
	}
	return reg, nil
}
