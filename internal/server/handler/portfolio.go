package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

// PortfolioService is the read side of the rebalancer used by the API.
type PortfolioService interface {
	Status(ctx context.Context) (domain.PortfolioStatus, error)
	Performance(ctx context.Context) (domain.Performance, error)
	CalculateTrades(ctx context.Context) ([]domain.TradeIntent, error)
}

// PortfolioHandler serves portfolio valuation and rebalance plans.
type PortfolioHandler struct {
	portfolio PortfolioService
	logger    *slog.Logger
}

// NewPortfolioHandler creates a PortfolioHandler.
func NewPortfolioHandler(portfolio PortfolioService, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{portfolio: portfolio, logger: logger}
}

type portfolioResponse struct {
	Status      domain.PortfolioStatus `json:"status"`
	Performance *domain.Performance    `json:"performance,omitempty"`
}

// GetPortfolio returns the current allocation status and performance.
// GET /api/portfolio
func (h *PortfolioHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	status, err := h.portfolio.Status(r.Context())
	if err != nil {
		h.fail(w, r, "status", err)
		return
	}
	resp := portfolioResponse{Status: status}
	if perf, err := h.portfolio.Performance(r.Context()); err == nil {
		resp.Performance = &perf
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRebalancePlan returns the trades a rebalance would place now without
// executing them.
// GET /api/portfolio/rebalance
func (h *PortfolioHandler) GetRebalancePlan(w http.ResponseWriter, r *http.Request) {
	intents, err := h.portfolio.CalculateTrades(r.Context())
	if err != nil {
		h.fail(w, r, "rebalance plan", err)
		return
	}
	if intents == nil {
		intents = []domain.TradeIntent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": intents})
}

func (h *PortfolioHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), "handler: portfolio "+op+" failed",
		slog.String("error", err.Error()),
	)
	if errors.Is(err, domain.ErrPortfolioUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "portfolio data unavailable")
		return
	}
	writeError(w, http.StatusInternalServerError, "failed to load portfolio")
}
