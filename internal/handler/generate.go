package handler

import (
	"encoding/json"
	"net/http"

	"github.com/deckforge-ai/presentation-platform/internal/middleware"
	"github.com/deckforge-ai/presentation-platform/internal/model"
	"github.com/deckforge-ai/presentation-platform/internal/service"
	"github.com/deckforge-ai/presentation-platform/pkg/logger"
	"github.com/deckforge-ai/presentation-platform/pkg/metrics"
)

// GenerateHandler handles presentation generation.
type GenerateHandler struct {
	generateService *service.GenerateService
	logger          *logger.Logger
}

// NewGenerateHandler creates a new generation handler.
func NewGenerateHandler(svc *service.GenerateService, log *logger.Logger) *GenerateHandler {
	return &GenerateHandler{
		generateService: svc,
		logger:          log,
	}
}

// Generate handles POST /api/v1/presentations.
// The response is an SSE stream of progress events ending in exactly one
// complete or error event.
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidatePrompt(req.Prompt); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := beginSSE(w)
	if !ok {
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	streamProgress(r.Context(), w, flusher, func(emit func(model.ProgressEvent)) {
		h.generateService.Generate(r.Context(), req, emit)
	})
}
