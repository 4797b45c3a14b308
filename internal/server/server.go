// Package server exposes the bot's read-only HTTP API and the WebSocket
// event feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/recallbot/internal/domain"
	"github.com/alanyoungcy/recallbot/internal/server/handler"
	"github.com/alanyoungcy/recallbot/internal/server/middleware"
	"github.com/alanyoungcy/recallbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
	RateLimit   int    // requests per RateWindow per client; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates the HTTP handlers registered by the server.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Portfolio *handler.PortfolioHandler
	Signals   *handler.SignalHandler
	Tokens    *handler.TokenHandler
	Trades    *handler.TradeHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and wraps them in the middleware chain:
// CORS, logging, rate limit, then auth. hub and limiter may be nil.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http_server"))
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	mux.HandleFunc("GET /api/portfolio", handlers.Portfolio.GetPortfolio)
	mux.HandleFunc("GET /api/portfolio/rebalance", handlers.Portfolio.GetRebalancePlan)
	mux.HandleFunc("GET /api/signals", handlers.Signals.ListSignals)
	mux.HandleFunc("GET /api/tokens", handlers.Tokens.ListTokens)
	mux.HandleFunc("GET /api/tokens/pairs", handlers.Tokens.ListPairs)
	mux.HandleFunc("GET /api/tokens/{key}/analysis", handlers.Tokens.GetAnalysis)
	mux.HandleFunc("GET /api/trades", handlers.Trades.ListTrades)
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	window := cfg.RateWindow
	if window <= 0 {
		window = time.Minute
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, window, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
