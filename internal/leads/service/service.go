// Package service holds the thin lead actions. Every user action goes
// through the ownership coordinator; this package only supplies the field
// mutations and maps results to transport types.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/internal/leads/domain"
	"dealerdesk_backend/internal/leads/ownership"
	"dealerdesk_backend/internal/leads/repository"
	"dealerdesk_backend/internal/leads/stages"
	"dealerdesk_backend/internal/leads/transport"
	"dealerdesk_backend/platform/apperr"
	"dealerdesk_backend/platform/logger"
	"dealerdesk_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Service struct {
	store       repository.Store
	stages      *stages.Registry
	coordinator *ownership.Coordinator
	publisher   events.Publisher
	log         *logger.Logger
}

func New(store repository.Store, registry *stages.Registry, coordinator *ownership.Coordinator, publisher events.Publisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:       store,
		stages:      registry,
		coordinator: coordinator,
		publisher:   publisher,
		log:         log,
	}
}

// Actor loads the salesperson behind an authenticated request.
func (s *Service) Actor(ctx context.Context, userID uuid.UUID) (domain.Salesperson, error) {
	actor, err := s.store.GetSalesperson(ctx, userID)
	if errors.Is(err, repository.ErrSalespersonNotFound) {
		return domain.Salesperson{}, apperr.Forbidden("no salesperson profile for this account")
	}
	if err != nil {
		return domain.Salesperson{}, fmt.Errorf("load actor: %w", err)
	}
	if !actor.Active {
		return domain.Salesperson{}, apperr.Forbidden("salesperson account is deactivated")
	}
	return actor, nil
}

// Intake creates an unowned lead in the default stage of its pool.
func (s *Service) Intake(ctx context.Context, actor domain.Salesperson, req transport.CreateLeadRequest) (transport.LeadResponse, error) {
	name := sanitize.Line(req.Name)
	if name == "" {
		return transport.LeadResponse{}, apperr.Validation("lead name is required")
	}

	var tenantID *uuid.UUID
	switch {
	case req.Global:
		if !actor.Role.IsElevated() {
			return transport.LeadResponse{}, apperr.Forbidden("only managers can add leads to the global pool")
		}
	case actor.TenantID != nil:
		tenantID = actor.TenantID
	default:
		return transport.LeadResponse{}, apperr.Validation("accounts without a dealership can only add global leads")
	}

	stage := s.stages.DefaultStage(tenantID)
	lead, err := s.store.CreateLead(ctx, repository.CreateLeadParams{
		Name:     name,
		TenantID: tenantID,
		StageID:  stage.ID,
	})
	if err != nil {
		return transport.LeadResponse{}, fmt.Errorf("create lead: %w", err)
	}

	s.publish(ctx, lead, events.ChangeCreated, map[string]any{"actorId": actor.ID.String()})
	return s.toLeadResponse(lead), nil
}

// AddNote records a free-text note through the coordinator.
func (s *Service) AddNote(ctx context.Context, leadID uuid.UUID, actor domain.Salesperson, req transport.CreateNoteRequest) (transport.ActionResponse, error) {
	return s.addEntry(ctx, leadID, actor, req, repository.NoteKindNote, domain.ActivityNoteAdded, "add a note")
}

// LogCall records a phone call.
func (s *Service) LogCall(ctx context.Context, leadID uuid.UUID, actor domain.Salesperson, req transport.CreateNoteRequest) (transport.ActionResponse, error) {
	return s.addEntry(ctx, leadID, actor, req, repository.NoteKindCall, domain.ActivityCallLogged, "log a call")
}

// LogEmail records an email exchange.
func (s *Service) LogEmail(ctx context.Context, leadID uuid.UUID, actor domain.Salesperson, req transport.CreateNoteRequest) (transport.ActionResponse, error) {
	return s.addEntry(ctx, leadID, actor, req, repository.NoteKindEmail, domain.ActivityEmailLogged, "log an email")
}

func (s *Service) addEntry(ctx context.Context, leadID uuid.UUID, actor domain.Salesperson, req transport.CreateNoteRequest, kind, activity, label string) (transport.ActionResponse, error) {
	body := sanitize.Text(req.Body)
	if body == "" {
		return transport.ActionResponse{}, apperr.Validation("body is required")
	}

	var note repository.Note
	res, err := s.coordinator.EvaluateAndApply(ctx, leadID, actor, ownership.ApplyParams{
		ActivityKind:    activity,
		ActionLabel:     label,
		ConfirmOverride: req.Confirm,
		Mutation: func(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
			created, err := s.store.CreateNote(ctx, repository.CreateNoteParams{
				LeadID:   lead.ID,
				AuthorID: actor.ID,
				Kind:     kind,
				Body:     body,
			})
			if err != nil {
				return lead, fmt.Errorf("create note: %w", err)
			}
			note = created
			return lead, nil
		},
	})
	if err != nil {
		return transport.ActionResponse{}, err
	}

	out := s.toActionResponse(res)
	if res.Applied {
		resp := toNoteResponse(note)
		out.Note = &resp
	}
	return out, nil
}

// ChangeStage moves a lead to the named stage. Terminal stages close it.
func (s *Service) ChangeStage(ctx context.Context, leadID uuid.UUID, actor domain.Salesperson, req transport.ChangeStageRequest) (transport.ActionResponse, error) {
	name := strings.TrimSpace(req.Stage)
	var target domain.Stage

	res, err := s.coordinator.EvaluateAndApply(ctx, leadID, actor, ownership.ApplyParams{
		ActivityKind:    domain.ActivityStageChanged,
		ActionLabel:     "move it to " + name,
		ConfirmOverride: req.Confirm,
		Metadata:        map[string]any{"stage": name},
		Mutation: func(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
			stage, ok, err := s.stages.ResolveByName(ctx, name, lead.TenantID)
			if err != nil {
				return lead, fmt.Errorf("resolve stage: %w", err)
			}
			if !ok {
				return lead, apperr.Validation(fmt.Sprintf("unknown stage %q", name))
			}

			next := lead
			if err := domain.ApplyStage(&next, stage, req.Outcome); err != nil {
				if errors.Is(err, domain.ErrStageTenantMismatch) {
					return lead, apperr.Validation("stage belongs to another dealership")
				}
				return lead, err
			}

			updated, err := s.store.UpdateStage(ctx, lead.ID, repository.UpdateStageParams{
				StageID:  next.StageID,
				IsActive: next.IsActive,
				Outcome:  next.Outcome,
			})
			if err != nil {
				return lead, fmt.Errorf("update stage: %w", err)
			}
			target = stage
			return updated, nil
		},
	})
	if err != nil {
		return transport.ActionResponse{}, err
	}

	if res.Applied {
		payload := map[string]any{
			"stageName": target.Name,
			"terminal":  target.IsTerminal,
			"isActive":  res.Lead.IsActive,
		}
		if res.Lead.Outcome != nil {
			payload["outcome"] = *res.Lead.Outcome
		}
		s.publish(ctx, res.Lead, events.ChangeStage, payload)
	}
	return s.toActionResponse(res), nil
}

// Assign hands the lead to another salesperson. Managers only.
func (s *Service) Assign(ctx context.Context, leadID uuid.UUID, actor domain.Salesperson, req transport.AssignLeadRequest) (transport.LeadResponse, error) {
	lead, err := s.coordinator.Reassign(ctx, leadID, actor, req.OwnerID)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	return s.toLeadResponse(lead), nil
}

func (s *Service) Get(ctx context.Context, leadID uuid.UUID, actor domain.Salesperson) (transport.LeadResponse, error) {
	lead, err := s.coordinator.Load(ctx, leadID, actor)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	return s.toLeadResponse(lead), nil
}

// List pages through leads the actor can see. Scope "pool" lists the
// actor's tenant pool, "global" the global pool and "mine" owned leads.
func (s *Service) List(ctx context.Context, actor domain.Salesperson, req transport.ListLeadsRequest) (transport.LeadListResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	params := repository.ListParams{
		TenantID:   actor.TenantID,
		ActiveOnly: req.Active,
		Limit:      pageSize,
		Offset:     (page - 1) * pageSize,
	}
	switch req.Scope {
	case "mine":
		params.OwnerID = &actor.ID
	case "pool":
		params.PoolOnly = true
	case "global":
		params.TenantID = nil
		params.PoolOnly = true
	default:
		if actor.TenantID == nil && actor.Role != domain.RoleSuperAdmin {
			return transport.LeadListResponse{}, apperr.Forbidden("accounts without a dealership can only browse the global pool")
		}
	}
	if params.TenantID == nil && !params.PoolOnly && actor.Role != domain.RoleSuperAdmin {
		params.PoolOnly = true
	}

	leads, total, err := s.store.ListLeads(ctx, params)
	if err != nil {
		return transport.LeadListResponse{}, fmt.Errorf("list leads: %w", err)
	}

	items := make([]transport.LeadResponse, 0, len(leads))
	for _, l := range leads {
		items = append(items, s.toLeadResponse(l))
	}
	totalPages := (total + pageSize - 1) / pageSize
	return transport.LeadListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// Events returns the ownership history of a lead.
func (s *Service) Events(ctx context.Context, leadID uuid.UUID, actor domain.Salesperson) ([]transport.OwnershipEventResponse, error) {
	if _, err := s.coordinator.Load(ctx, leadID, actor); err != nil {
		return nil, err
	}
	list, err := s.store.ListEvents(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]transport.OwnershipEventResponse, 0, len(list))
	for _, e := range list {
		out = append(out, transport.OwnershipEventResponse{
			Seq:       e.Seq,
			Kind:      string(e.Kind),
			ActorID:   e.ActorID,
			Timestamp: e.Timestamp,
			Metadata:  e.Metadata,
		})
	}
	return out, nil
}

func (s *Service) Notes(ctx context.Context, leadID uuid.UUID, actor domain.Salesperson) ([]transport.NoteResponse, error) {
	if _, err := s.coordinator.Load(ctx, leadID, actor); err != nil {
		return nil, err
	}
	list, err := s.store.ListNotes(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	out := make([]transport.NoteResponse, 0, len(list))
	for _, n := range list {
		out = append(out, toNoteResponse(n))
	}
	return out, nil
}

// Stages lists the pipeline visible to the actor's dealership.
func (s *Service) Stages(actor domain.Salesperson) []transport.StageResponse {
	list := s.stages.ListFor(actor.TenantID)
	out := make([]transport.StageResponse, 0, len(list))
	for _, st := range list {
		out = append(out, transport.StageResponse{
			ID:           st.ID,
			Name:         st.Name,
			DisplayOrder: st.DisplayOrder,
			IsTerminal:   st.IsTerminal,
			Global:       st.IsGlobal(),
		})
	}
	return out
}

// CreateStage adds a stage to the actor's dealership pipeline.
func (s *Service) CreateStage(ctx context.Context, actor domain.Salesperson, req transport.CreateStageRequest) (transport.StageResponse, error) {
	if !actor.Role.IsElevated() || actor.TenantID == nil {
		return transport.StageResponse{}, apperr.Forbidden("only dealership managers can edit the pipeline")
	}
	stage, err := s.stages.AddTenantStage(ctx, *actor.TenantID, req.Name, req.DisplayOrder, req.IsTerminal)
	if errors.Is(err, stages.ErrDuplicateName) {
		return transport.StageResponse{}, apperr.Conflict("a stage with this name already exists")
	}
	if err != nil {
		return transport.StageResponse{}, fmt.Errorf("add stage: %w", err)
	}
	return transport.StageResponse{
		ID:           stage.ID,
		Name:         stage.Name,
		DisplayOrder: stage.DisplayOrder,
		IsTerminal:   stage.IsTerminal,
	}, nil
}

func (s *Service) publish(ctx context.Context, lead domain.Lead, kind string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	payload["state"] = string(lead.State())
	payload["stageId"] = lead.StageID.String()
	s.publisher.Publish(ctx, events.LeadStateChanged{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     lead.ID,
		TenantID:   lead.TenantID,
		ChangeKind: kind,
		Payload:    payload,
	})
}
