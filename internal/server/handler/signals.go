package handler

import (
	"net/http"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

// SignalSource returns the most recent combined signals, newest first.
type SignalSource interface {
	RecentSignals(limit int) []domain.Signal
}

// SignalHandler serves recent signals.
type SignalHandler struct {
	signals SignalSource
}

// NewSignalHandler creates a SignalHandler.
func NewSignalHandler(signals SignalSource) *SignalHandler {
	return &SignalHandler{signals: signals}
}

// ListSignals returns recent combined signals.
// GET /api/signals?limit=20
func (h *SignalHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	signals := h.signals.RecentSignals(parseLimit(r, 20, 200))
	if signals == nil {
		signals = []domain.Signal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"signals": signals})
}
