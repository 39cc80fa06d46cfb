// Package handler serves a salesperson's own notification inbox.
package handler

import (
	"context"
	"net/http"

	"dealerdesk_backend/internal/notification/inapp"
	"dealerdesk_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const defaultPageSize = 20

type listQuery struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"pageSize" binding:"omitempty,min=1,max=100"`
}

// InboxResponse is one page of the caller's notifications.
type InboxResponse struct {
	Items    []inapp.Notification `json:"items"`
	Total    int                  `json:"total"`
	Unread   int                  `json:"unread"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"pageSize"`
}

type HTTPHandler struct {
	svc *inapp.Service
}

func NewHTTPHandler(svc *inapp.Service) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

func (h *HTTPHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/unread", h.CountUnread)
	rg.PATCH("/read-all", h.MarkAllRead)
	rg.PATCH("/:id/read", h.withID(h.svc.MarkRead))
	rg.DELETE("/:id", h.withID(h.svc.Delete))
}

func (h *HTTPHandler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid paging", err.Error())
		return
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = defaultPageSize
	}

	ctx := c.Request.Context()
	items, total, err := h.svc.List(ctx, identity.UserID(), q.Page, q.PageSize)
	if httpkit.HandleError(c, err) {
		return
	}
	unread, err := h.svc.CountUnread(ctx, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	if items == nil {
		items = []inapp.Notification{}
	}

	httpkit.OK(c, InboxResponse{
		Items:    items,
		Total:    total,
		Unread:   unread,
		Page:     q.Page,
		PageSize: q.PageSize,
	})
}

func (h *HTTPHandler) CountUnread(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	count, err := h.svc.CountUnread(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"count": count})
}

func (h *HTTPHandler) MarkAllRead(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	if err := h.svc.MarkAllRead(c.Request.Context(), identity.UserID()); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// withID adapts a per-record operation scoped to the caller. A record that
// belongs to someone else reads as not found.
func (h *HTTPHandler) withID(op func(ctx context.Context, recipientID, id uuid.UUID) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := httpkit.MustGetIdentity(c)
		if identity == nil {
			return
		}
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid id", nil)
			return
		}
		if err := op(c.Request.Context(), identity.UserID(), id); httpkit.HandleError(c, err) {
			return
		}
		c.Status(http.StatusNoContent)
	}
}
