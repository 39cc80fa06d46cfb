// Package reclaim revokes ownership of leads whose owner has gone quiet.
package reclaim

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/internal/leads/domain"
	"dealerdesk_backend/internal/leads/repository"
	"dealerdesk_backend/platform/config"
	"dealerdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultStaleThreshold = 72 * time.Hour
	defaultBatchSize      = 500
)

var (
	reclaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_reclaims_total",
			Help: "Leads whose stale ownership was revoked",
		},
		[]string{"pool"},
	)
	reclaimRacesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lead_reclaim_races_total",
			Help: "Reclamations skipped because ownership changed after selection",
		},
	)
)

// Store is what a sweep needs from the lead store.
type Store interface {
	repository.LeaseScanner
	repository.OwnershipStore
	AppendEvent(ctx context.Context, event domain.OwnershipEvent) (domain.OwnershipEvent, error)
}

// StageIndex supplies the global stage a lead moves to when it leaves its
// tenant. *stages.Registry implements it.
type StageIndex interface {
	GlobalEquivalent(ctx context.Context, stageID uuid.UUID) (domain.Stage, error)
}

// SweepResult counts what one pass did.
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Reclaimed int `json:"reclaimed"`
	RaceLost  int `json:"raceLost"`
	Fresh     int `json:"fresh"`
	Errors    int `json:"errors"`
}

type Option func(*Sweeper)

func WithStaleThreshold(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.staleThreshold = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithReclaimToGlobalPool controls whether reclaimed leads lose their
// dealership. When false they stay in the dealership's pool.
func WithReclaimToGlobalPool(toGlobal bool) Option {
	return func(s *Sweeper) { s.toGlobal = toGlobal }
}

// FromConfig maps the lease settings onto sweeper options.
func FromConfig(cfg config.OwnershipConfig) []Option {
	return []Option{
		WithStaleThreshold(cfg.GetLeaseStaleThreshold()),
		WithBatchSize(cfg.GetLeaseSweepBatchSize()),
		WithReclaimToGlobalPool(cfg.GetReclaimToGlobalPool()),
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Sweeper) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// Sweeper is stateless across runs. Each Run is a single pass.
type Sweeper struct {
	store          Store
	stages         StageIndex
	publisher      events.Publisher
	log            *logger.Logger
	now            func() time.Time
	staleThreshold time.Duration
	batchSize      int
	toGlobal       bool
}

// New builds a sweeper. stageIndex is consulted only when leads return to
// the global pool.
func New(store Store, stageIndex StageIndex, log *logger.Logger, opts ...Option) *Sweeper {
	if log == nil {
		log = logger.Nop()
	}
	s := &Sweeper{
		store:          store,
		stages:         stageIndex,
		log:            log,
		now:            time.Now,
		staleThreshold: defaultStaleThreshold,
		batchSize:      defaultBatchSize,
		toGlobal:       true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run scans every owned active lead once and revokes stale leases. Per-lead
// failures are counted, never returned; only a failed page read stops the pass.
func (s *Sweeper) Run(ctx context.Context) SweepResult {
	var res SweepResult
	now := s.now().UTC()
	cursor := uuid.Nil

	for {
		if ctx.Err() != nil {
			return res
		}
		batch, err := s.store.ListLeaseCandidates(ctx, cursor, s.batchSize)
		if err != nil {
			s.log.Warn("lease sweep page failed", "error", err, "after", cursor.String())
			res.Errors++
			return res
		}
		for _, c := range batch {
			res.Scanned++
			s.consider(ctx, c, now, &res)
		}
		if len(batch) < s.batchSize {
			break
		}
		cursor = batch[len(batch)-1].Lead.ID
	}

	if res.Reclaimed > 0 || res.Errors > 0 {
		s.log.Info("lease sweep finished",
			"scanned", res.Scanned,
			"reclaimed", res.Reclaimed,
			"raceLost", res.RaceLost,
			"errors", res.Errors,
		)
	}
	return res
}

func (s *Sweeper) consider(ctx context.Context, c repository.LeaseCandidate, now time.Time, res *SweepResult) {
	lead := c.Lead
	if lead.OwnerID == nil || !lead.IsActive {
		return
	}

	evidence := lead.OwnerEvidence(c.LatestOwnerEvent)
	if now.Sub(evidence) <= s.staleThreshold {
		res.Fresh++
		return
	}

	formerOwner := *lead.OwnerID
	change := repository.OwnershipChange{
		ExpectedOwnerID: &formerOwner,
		RequireActive:   true,
	}
	if s.toGlobal {
		// A global lead may not sit in a stage private to its former tenant.
		stage, err := s.stages.GlobalEquivalent(ctx, lead.StageID)
		if err != nil {
			s.log.Warn("lease reclaim stage lookup failed",
				slog.String("leadId", lead.ID.String()),
				slog.String("error", err.Error()),
			)
			res.Errors++
			return
		}
		if stage.ID != lead.StageID {
			change.NewStageID = &stage.ID
		}
	} else {
		change.NewTenantID = lead.TenantID
	}

	updated, err := s.store.ConditionalUpdateOwnership(ctx, lead.ID, change)
	if errors.Is(err, repository.ErrOwnershipChanged) {
		s.log.OwnershipRaceLost("reclaim", lead.ID.String())
		reclaimRacesTotal.Inc()
		res.RaceLost++
		return
	}
	if err != nil {
		s.log.Warn("lease reclaim failed",
			slog.String("leadId", lead.ID.String()),
			slog.String("error", err.Error()),
		)
		res.Errors++
		return
	}

	res.Reclaimed++
	pool := "tenant"
	if s.toGlobal {
		pool = "global"
	}
	reclaimsTotal.WithLabelValues(pool).Inc()

	meta := map[string]any{
		domain.MetaPreviousOwnerID: formerOwner.String(),
		domain.MetaStaleSince:      evidence.Format(time.RFC3339),
		domain.MetaToGlobalPool:    s.toGlobal,
	}
	if lead.TenantID != nil {
		meta[domain.MetaPreviousTenantID] = lead.TenantID.String()
	}
	if updated.StageID != lead.StageID {
		meta[domain.MetaPreviousStageID] = lead.StageID.String()
	}
	evt := domain.NewOwnershipEvent(lead.ID, nil, domain.EventReclaimed, meta)
	evt.Timestamp = now
	if _, err := s.store.AppendEvent(ctx, evt); err != nil {
		s.log.Warn("reclaimed event not recorded",
			slog.String("leadId", lead.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	if s.publisher == nil {
		return
	}
	payload := map[string]any{
		"state":         string(updated.State()),
		"stageId":       updated.StageID.String(),
		"formerOwnerId": formerOwner.String(),
		"toGlobalPool":  s.toGlobal,
	}
	s.publisher.Publish(ctx, events.LeadReclaimed{
		BaseEvent:      events.NewBaseEvent(),
		LeadID:         lead.ID,
		LeadName:       lead.Name,
		FormerOwnerID:  formerOwner,
		FormerTenantID: lead.TenantID,
		ToGlobalPool:   s.toGlobal,
	})
	// Tenant subscribers of the former dealership still need to see the lead leave.
	tenant := updated.TenantID
	if tenant == nil {
		tenant = lead.TenantID
	}
	s.publisher.Publish(ctx, events.LeadStateChanged{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     lead.ID,
		TenantID:   tenant,
		ChangeKind: events.ChangeReclaimed,
		Payload:    payload,
	})
}
