package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/deckforge-ai/presentation-platform/internal/middleware"
	"github.com/deckforge-ai/presentation-platform/internal/model"
	"github.com/deckforge-ai/presentation-platform/internal/service"
	"github.com/deckforge-ai/presentation-platform/internal/session"
	"github.com/deckforge-ai/presentation-platform/pkg/logger"
	"github.com/deckforge-ai/presentation-platform/pkg/metrics"
)

// TweakHandler handles presentation edits.
type TweakHandler struct {
	tweakService *service.TweakService
	sessions     *session.Store
	logger       *logger.Logger
}

// NewTweakHandler creates a new tweak handler.
func NewTweakHandler(svc *service.TweakService, sessions *session.Store, log *logger.Logger) *TweakHandler {
	return &TweakHandler{
		tweakService: svc,
		sessions:     sessions,
		logger:       log,
	}
}

// Tweak handles POST /api/v1/presentations/{id}/tweak.
// The response is an SSE stream of progress events ending in exactly one
// complete or error event.
func (h *TweakHandler) Tweak(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Unknown sessions fail before the stream starts so the client gets a
	// proper 404.
	if _, err := h.sessions.Get(sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not load session")
		return
	}

	var req model.TweakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateChangeRequest(req.ChangeRequest); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, id := range req.FragmentIDs {
		if err := middleware.ValidateFragmentID(id); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	flusher, ok := beginSSE(w)
	if !ok {
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	streamProgress(r.Context(), w, flusher, func(emit func(model.ProgressEvent)) {
		h.tweakService.Tweak(r.Context(), sessionID, req, emit)
	})
}
