package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

// TradeHistory is the trading API's own trade list.
type TradeHistory interface {
	Trades(ctx context.Context, limit int) ([]domain.TradeHistoryEntry, error)
}

// TradeHandler serves trade records. Persisted records are preferred; without
// a store the trading API's history is returned.
type TradeHandler struct {
	store   domain.TradeStore
	history TradeHistory
	logger  *slog.Logger
}

// NewTradeHandler creates a TradeHandler. Either store or history may be nil.
func NewTradeHandler(store domain.TradeStore, history TradeHistory, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{store: store, history: history, logger: logger}
}

// ListTrades returns recent trades.
// GET /api/trades?limit=50&offset=0
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	switch {
	case h.store != nil:
		records, err := h.store.ListRecent(r.Context(), opts)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: list trades failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to list trades")
			return
		}
		if records == nil {
			records = []domain.TradeRecord{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"source": "store", "trades": records})
	case h.history != nil:
		entries, err := h.history.Trades(r.Context(), opts.Limit)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: trade history failed", slog.String("error", err.Error()))
			writeError(w, http.StatusBadGateway, "failed to fetch trade history")
			return
		}
		if entries == nil {
			entries = []domain.TradeHistoryEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"source": "api", "trades": entries})
	default:
		writeError(w, http.StatusNotImplemented, "trade history not available")
	}
}
