package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/deckforge-ai/presentation-platform/internal/model"
	"github.com/deckforge-ai/presentation-platform/internal/session"
	"github.com/deckforge-ai/presentation-platform/pkg/logger"
)

func newSessionRouter(t *testing.T) (*chi.Mux, *session.Store) {
	t.Helper()
	sessions, err := session.NewStore(t.TempDir(), logger.NewNop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	h := NewSessionHandler(sessions, logger.NewNop())
	r := chi.NewRouter()
	r.Route("/api/v1/presentations", func(r chi.Router) {
		r.Get("/", h.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Get("/document", h.Document)
			r.Delete("/", h.Delete)
		})
	})
	return r, sessions
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	router, sessions := newSessionRouter(t)

	meta, err := sessions.Create("<html>deck</html>", "Q3", 4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// List
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/presentations", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status: got %d", rec.Code)
	}
	var list model.ListSessionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 || list.Sessions[0].ID != meta.ID {
		t.Errorf("list: got %+v", list)
	}

	// Get metadata
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/presentations/"+meta.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status: got %d", rec.Code)
	}

	// Get document
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/presentations/"+meta.ID+"/document", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("document status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Errorf("document content type: got %q", rec.Header().Get("Content-Type"))
	}
	if rec.Body.String() != "<html>deck</html>" {
		t.Errorf("document body: got %q", rec.Body.String())
	}

	// Delete
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/presentations/"+meta.ID, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status: got %d", rec.Code)
	}

	// Gone afterwards
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/presentations/"+meta.ID, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: got %d", rec.Code)
	}
}

func TestSessionEndpointsRejectBadIDs(t *testing.T) {
	router, _ := newSessionRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/presentations/not-a-uuid", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status: got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/presentations/0190a8b2-7c3d-7e4f-8a9b-0c1d2e3f4a5b", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status: got %d", rec.Code)
	}
}
