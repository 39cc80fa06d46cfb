package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"dealerdesk_backend/internal/notification/inapp"
	"dealerdesk_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func newRouter(store *inapp.MemoryStore, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/notifications", func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, userID)
		c.Next()
	})
	NewHTTPHandler(inapp.NewService(store)).RegisterRoutes(group)
	return r
}

func TestListReturnsOnlyOwnRecords(t *testing.T) {
	store := inapp.NewMemoryStore()
	me, other := uuid.New(), uuid.New()
	ctx := context.Background()
	for _, id := range []uuid.UUID{me, me, other} {
		if _, err := store.Create(ctx, inapp.CreateParams{RecipientID: id, Title: "t", Content: "c"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	w := httptest.NewRecorder()
	newRouter(store, me).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Items []inapp.Notification `json:"items"`
		Total int                  `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 2 || len(body.Items) != 2 {
		t.Fatalf("expected 2 own records, got total=%d items=%d", body.Total, len(body.Items))
	}
}

func TestMarkReadRejectsForeignRecord(t *testing.T) {
	store := inapp.NewMemoryStore()
	n, err := store.Create(context.Background(), inapp.CreateParams{RecipientID: uuid.New(), Title: "t", Content: "c"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	w := httptest.NewRecorder()
	newRouter(store, uuid.New()).ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/notifications/"+n.ID.String()+"/read", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestMarkReadInvalidID(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter(inapp.NewMemoryStore(), uuid.New()).ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/notifications/nope/read", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListReportsUnreadAndPaging(t *testing.T) {
	store := inapp.NewMemoryStore()
	me := uuid.New()
	ctx := context.Background()
	var first inapp.Notification
	for i := 0; i < 3; i++ {
		n, err := store.Create(ctx, inapp.CreateParams{RecipientID: me, Title: "t", Content: "c"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if i == 0 {
			first = n
		}
	}
	router := newRouter(store, me)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/notifications/"+first.ID.String()+"/read", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on mark read, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications?page=1&pageSize=2", nil))
	var body InboxResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 3 || len(body.Items) != 2 || body.Unread != 2 || body.PageSize != 2 {
		t.Fatalf("unexpected page %+v", body)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications?pageSize=500", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized page, got %d", w.Code)
	}
}
