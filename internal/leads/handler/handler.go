package handler

import (
	"context"
	"net/http"

	"dealerdesk_backend/internal/leads/domain"
	"dealerdesk_backend/internal/leads/service"
	"dealerdesk_backend/internal/leads/transport"
	"dealerdesk_backend/platform/httpkit"
	"dealerdesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest       = "invalid request"
	msgValidationFailed     = "validation failed"
	msgConfirmationRequired = "lead is owned by another salesperson"
)

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/stages", h.ListStages)
	rg.GET("/:id", h.GetByID)
	rg.GET("/:id/events", h.ListEvents)
	rg.GET("/:id/notes", h.ListNotes)
	rg.POST("/:id/notes", h.AddNote)
	rg.POST("/:id/calls", h.LogCall)
	rg.POST("/:id/emails", h.LogEmail)
	rg.PATCH("/:id/stage", h.ChangeStage)
	rg.PUT("/:id/assign", h.Assign)
}

// RegisterAdminRoutes mounts pipeline management on the admin group.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/stages", h.CreateStage)
}

// actor resolves the salesperson behind the request or writes the error.
func (h *Handler) actor(c *gin.Context) (domain.Salesperson, bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return domain.Salesperson{}, false
	}
	actor, err := h.svc.Actor(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return domain.Salesperson{}, false
	}
	return actor, true
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return false
	}
	return true
}

// respondAction writes 409 when the action was held back for confirmation.
func respondAction(c *gin.Context, status int, resp transport.ActionResponse) {
	if resp.Warning != nil {
		httpkit.Error(c, http.StatusConflict, msgConfirmationRequired, transport.ConfirmationDetails{
			RequiresConfirmation: true,
			Warning:              *resp.Warning,
		})
		return
	}
	httpkit.JSON(c, status, resp)
}

func (h *Handler) Create(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req transport.CreateLeadRequest
	if !h.bindJSON(c, &req) {
		return
	}

	lead, err := h.svc.Intake(c.Request.Context(), actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, lead)
}

func (h *Handler) List(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req transport.ListLeadsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.List(c.Request.Context(), actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) GetByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	lead, err := h.svc.Get(c.Request.Context(), id, actor)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) ListEvents(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	items, err := h.svc.Events(c.Request.Context(), id, actor)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": items})
}

func (h *Handler) ListNotes(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	items, err := h.svc.Notes(c.Request.Context(), id, actor)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": items})
}

func (h *Handler) AddNote(c *gin.Context) {
	h.noteAction(c, h.svc.AddNote)
}

func (h *Handler) LogCall(c *gin.Context) {
	h.noteAction(c, h.svc.LogCall)
}

func (h *Handler) LogEmail(c *gin.Context) {
	h.noteAction(c, h.svc.LogEmail)
}

type noteActionFunc func(ctx context.Context, leadID uuid.UUID, actor domain.Salesperson, req transport.CreateNoteRequest) (transport.ActionResponse, error)

func (h *Handler) noteAction(c *gin.Context, action noteActionFunc) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req transport.CreateNoteRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := action(c.Request.Context(), id, actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	respondAction(c, http.StatusCreated, resp)
}

func (h *Handler) ChangeStage(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req transport.ChangeStageRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.svc.ChangeStage(c.Request.Context(), id, actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	respondAction(c, http.StatusOK, resp)
}

func (h *Handler) Assign(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req transport.AssignLeadRequest
	if !h.bindJSON(c, &req) {
		return
	}

	lead, err := h.svc.Assign(c.Request.Context(), id, actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) ListStages(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	httpkit.OK(c, gin.H{"items": h.svc.Stages(actor)})
}

func (h *Handler) CreateStage(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req transport.CreateStageRequest
	if !h.bindJSON(c, &req) {
		return
	}

	stage, err := h.svc.CreateStage(c.Request.Context(), actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, stage)
}
