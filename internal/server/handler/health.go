package handler

import (
	"context"
	"net/http"
	"time"
)

// APIHealth reports whether the upstream trading API is reachable.
type APIHealth interface {
	Health(ctx context.Context) bool
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	api APIHealth
	now func() time.Time
}

// NewHealthHandler creates a HealthHandler. api may be nil.
func NewHealthHandler(api APIHealth) *HealthHandler {
	return &HealthHandler{api: api, now: time.Now}
}

// HealthCheck reports "ok", or "degraded" when the trading API is down.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	}
	if h.api != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		up := h.api.Health(ctx)
		body["api"] = up
		if !up {
			body["status"] = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, body)
}
