package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	natsclient "github.com/deckforge-ai/presentation-platform/internal/nats"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	pool       *pgxpool.Pool
	natsClient *natsclient.Client
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(pool *pgxpool.Pool, natsClient *natsclient.Client) *HealthHandler {
	return &HealthHandler{
		pool:       pool,
		natsClient: natsClient,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.pool == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "analytics database not configured",
		})
		return
	}
	if err := h.pool.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "analytics database unreachable",
		})
		return
	}

	// NATS is optional telemetry; report it without failing readiness.
	natsStatus := "connected"
	if h.natsClient == nil || !h.natsClient.IsConnected() {
		natsStatus = "disconnected"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"nats":   natsStatus,
	})
}
