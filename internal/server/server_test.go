package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/recallbot/internal/domain"
	"github.com/alanyoungcy/recallbot/internal/server/handler"
)

type fakePortfolio struct {
	status  domain.PortfolioStatus
	intents []domain.TradeIntent
	err     error
}

func (f *fakePortfolio) Status(context.Context) (domain.PortfolioStatus, error) {
	return f.status, f.err
}

func (f *fakePortfolio) Performance(context.Context) (domain.Performance, error) {
	if f.err != nil {
		return domain.Performance{}, f.err
	}
	return domain.Performance{TotalValue: f.status.TotalValue}, nil
}

func (f *fakePortfolio) CalculateTrades(context.Context) ([]domain.TradeIntent, error) {
	return f.intents, f.err
}

type fakeSignals []domain.Signal

func (f fakeSignals) RecentSignals(limit int) []domain.Signal {
	return f[:min(limit, len(f))]
}

type fakeTokens []domain.Asset

func (f fakeTokens) All() []domain.Asset { return f }

func (f fakeTokens) HighVolatility() []domain.Asset {
	var out []domain.Asset
	for _, a := range f {
		if a.Enabled && a.HighVolatility() {
			out = append(out, a)
		}
	}
	return out
}

func (f fakeTokens) Get(key string) (domain.Asset, bool) {
	for _, a := range f {
		if a.Key == key {
			return a, true
		}
	}
	return domain.Asset{}, false
}

func (f fakeTokens) ByAddress(address string) (domain.Asset, bool) {
	for _, a := range f {
		if strings.EqualFold(a.Address, address) {
			return a, true
		}
	}
	return domain.Asset{}, false
}

func (f fakeTokens) TradingPairs() map[string]map[string]string {
	out := map[string]map[string]string{}
	for _, a := range f {
		if !a.Enabled {
			continue
		}
		if out[a.Chain] == nil {
			out[a.Chain] = map[string]string{}
		}
		out[a.Chain][a.Symbol] = a.Address
	}
	return out
}

type fakeWindows map[string][]domain.PriceSample

func (f fakeWindows) Snapshot(key string) []domain.PriceSample { return f[key] }

func bonkWindow() []domain.PriceSample {
	at := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	prices := []float64{10, 10, 10, 10, 10, 10, 10, 10, 0.5, 20}
	out := make([]domain.PriceSample, len(prices))
	for i, p := range prices {
		out[i] = domain.PriceSample{Price: p, Time: at.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

type fakeHistory struct{ limit int }

func (f *fakeHistory) Trades(_ context.Context, limit int) ([]domain.TradeHistoryEntry, error) {
	f.limit = limit
	return []domain.TradeHistoryEntry{{ID: "t1", FromSymbol: "USDC", ToSymbol: "WETH"}}, nil
}

type fakeLimiter struct{ allowed int }

func (f *fakeLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	if f.allowed <= 0 {
		return false, nil
	}
	f.allowed--
	return true, nil
}

func (f *fakeLimiter) Wait(context.Context, string) error { return nil }

type apiUp bool

func (a apiUp) Health(context.Context) bool { return bool(a) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	portfolio *fakePortfolio
	history   *fakeHistory
}

func newTestServer(t *testing.T, cfg Config, limiter domain.RateLimiter) (*Server, *fixture) {
	t.Helper()
	logger := discardLogger()
	fx := &fixture{
		portfolio: &fakePortfolio{status: domain.PortfolioStatus{
			TotalValue: 1000,
			Source:     "portfolio",
			Targets:    []domain.PortfolioTarget{{Symbol: "USDC", Chain: "ethereum", TargetAllocation: 1, CurrentAllocation: 1, CurrentValue: 1000}},
		}},
		history: &fakeHistory{},
	}
	handlers := Handlers{
		Health:    handler.NewHealthHandler(apiUp(true)),
		Status:    handler.NewStatusHandler(handler.StatusInfo{Mode: "run", DryRun: true, Strategies: []string{"momentum"}, StartedAt: time.Now()}, nil, logger),
		Portfolio: handler.NewPortfolioHandler(fx.portfolio, logger),
		Signals: handler.NewSignalHandler(fakeSignals{
			{Action: domain.ActionBuy, Symbol: "WETH", Strength: 0.8},
			{Action: domain.ActionSell, Symbol: "SOL", Strength: 0.4},
		}),
		Tokens: handler.NewTokenHandler(fakeTokens{
			{Key: "USDC_ethereum", Symbol: "USDC", Address: "0xA0b8", Chain: "ethereum", Category: domain.CategoryStablecoin, Volatility: domain.VolatilityLow, Enabled: true},
			{Key: "BONK", Symbol: "BONK", Address: "DezX", Chain: "solana", Category: domain.CategoryMeme, Volatility: domain.VolatilityVeryHigh, Enabled: true},
			{Key: "WIF", Symbol: "WIF", Address: "EKpQ", Chain: "solana", Category: domain.CategoryMeme, Volatility: domain.VolatilityVeryHigh},
		}, fakeWindows{"BONK": bonkWindow()}),
		Trades: handler.NewTradeHandler(nil, fx.history, logger),
	}
	return NewServer(cfg, handlers, nil, limiter, logger), fx
}

func do(t *testing.T, h http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAuth(t *testing.T) {
	srv, _ := newTestServer(t, Config{APIKey: "secret"}, nil)
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/status", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/status", map[string]string{"X-API-Key": "nope"}).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/status", map[string]string{"Authorization": "Bearer secret"}).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/status", map[string]string{"X-API-Key": "secret"}).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/status?api_key=secret", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, Config{CORSOrigins: []string{"http://localhost:3000"}, APIKey: "secret"}, nil)

	rec := do(t, srv.Handler(), http.MethodOptions, "/api/portfolio", map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, srv.Handler(), http.MethodOptions, "/api/portfolio", map[string]string{"Origin": "http://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, Config{RateLimit: 1}, &fakeLimiter{allowed: 1})
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/health", nil).Code)
	rec := do(t, h, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestHealthAndStatus(t *testing.T) {
	srv, _ := newTestServer(t, Config{}, nil)

	body := decode(t, do(t, srv.Handler(), http.MethodGet, "/api/health", nil))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["api"])

	body = decode(t, do(t, srv.Handler(), http.MethodGet, "/api/status", nil))
	assert.Equal(t, "run", body["mode"])
	assert.Equal(t, true, body["dry_run"])
	assert.Equal(t, []any{"momentum"}, body["strategies"])
	assert.NotContains(t, body, "competition")
}

func TestPortfolioEndpoints(t *testing.T) {
	srv, fx := newTestServer(t, Config{}, nil)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/portfolio", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	status := body["status"].(map[string]any)
	assert.Equal(t, 1000.0, status["total_value"])
	assert.Equal(t, "portfolio", status["source"])
	assert.Equal(t, 1000.0, body["performance"].(map[string]any)["total_value"])

	rec = do(t, h, http.MethodGet, "/api/portfolio/rebalance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decode(t, rec)["trades"])

	fx.portfolio.intents = []domain.TradeIntent{{From: "USDC", To: "WETH", Chain: "ethereum", USDAmount: 250}}
	trades := decode(t, do(t, h, http.MethodGet, "/api/portfolio/rebalance", nil))["trades"].([]any)
	require.Len(t, trades, 1)
	assert.Equal(t, 250.0, trades[0].(map[string]any)["usd_amount"])

	fx.portfolio.err = domain.ErrPortfolioUnavailable
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/portfolio", nil).Code)
}

func TestSignalsAndTokens(t *testing.T) {
	srv, _ := newTestServer(t, Config{}, nil)
	h := srv.Handler()

	signals := decode(t, do(t, h, http.MethodGet, "/api/signals?limit=1", nil))["signals"].([]any)
	require.Len(t, signals, 1)
	assert.Equal(t, "WETH", signals[0].(map[string]any)["symbol"])

	tokens := decode(t, do(t, h, http.MethodGet, "/api/tokens", nil))["tokens"].([]any)
	assert.Len(t, tokens, 3)

	tokens = decode(t, do(t, h, http.MethodGet, "/api/tokens?chain=solana&enabled=true", nil))["tokens"].([]any)
	require.Len(t, tokens, 1)
	assert.Equal(t, "BONK", tokens[0].(map[string]any)["symbol"])
}

func TestTokenQueries(t *testing.T) {
	srv, _ := newTestServer(t, Config{}, nil)
	h := srv.Handler()

	tokens := decode(t, do(t, h, http.MethodGet, "/api/tokens?volatile=true", nil))["tokens"].([]any)
	require.Len(t, tokens, 1, "disabled WIF is not listed")
	assert.Equal(t, "BONK", tokens[0].(map[string]any)["symbol"])

	tokens = decode(t, do(t, h, http.MethodGet, "/api/tokens?address=0xa0b8", nil))["tokens"].([]any)
	require.Len(t, tokens, 1)
	assert.Equal(t, "USDC", tokens[0].(map[string]any)["symbol"])

	rec := do(t, h, http.MethodGet, "/api/tokens?address=0xdead", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	pairs := decode(t, do(t, h, http.MethodGet, "/api/tokens/pairs", nil))["pairs"].(map[string]any)
	assert.Equal(t, map[string]any{"BONK": "DezX"}, pairs["solana"])
	assert.Equal(t, map[string]any{"USDC": "0xA0b8"}, pairs["ethereum"])
}

func TestTokenAnalysis(t *testing.T) {
	srv, _ := newTestServer(t, Config{}, nil)
	h := srv.Handler()

	body := decode(t, do(t, h, http.MethodGet, "/api/tokens/BONK/analysis", nil))
	assert.Equal(t, "BONK", body["key"])
	assert.EqualValues(t, 10, body["samples"])
	assert.Contains(t, body, "volatility")
	levels := body["levels"].(map[string]any)
	assert.InDelta(t, 0.5, levels["min_price"], 1e-9)
	assert.InDelta(t, 20, levels["max_price"], 1e-9)

	body = decode(t, do(t, h, http.MethodGet, "/api/tokens/USDC_ethereum/analysis", nil))
	assert.EqualValues(t, 0, body["samples"])
	assert.NotContains(t, body, "volatility")
	assert.NotContains(t, body, "levels")

	rec := do(t, h, http.MethodGet, "/api/tokens/NOPE/analysis", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTradesFallsBackToAPIHistory(t *testing.T) {
	srv, fx := newTestServer(t, Config{}, nil)

	body := decode(t, do(t, srv.Handler(), http.MethodGet, "/api/trades?limit=7", nil))
	assert.Equal(t, "api", body["source"])
	assert.Len(t, body["trades"], 1)
	assert.Equal(t, 7, fx.history.limit)
}
