// Package recall is the REST client for the Recall trading competition API.
package recall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

// Config holds the connection parameters for the API client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
}

// Client talks to the competition API with bearer authentication. Idempotent
// requests are retried on transport errors and 5xx; every request is retried
// on 429.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// keyCheckEndpoints are tried in order by ValidateAPIKey.
var keyCheckEndpoints = []string{"/agent/portfolio", "/agent/balances", "/competition/status"}

// New creates a client. Zero Timeout defaults to 30s.
func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
				if v := resp.Header().Get("Retry-After"); v != "" {
					if secs, err := strconv.Atoi(v); err == nil {
						return time.Duration(secs) * time.Second, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		}).
		AddRetryCondition(shouldRetry)

	return &Client{
		http:   rc,
		logger: logger.With(slog.String("component", "recall_client")),
	}
}

// shouldRetry retries rate-limited requests, and transport errors or 5xx
// only for GET so a trade is never submitted twice.
func shouldRetry(resp *resty.Response, err error) bool {
	if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
		return true
	}
	idempotent := resp != nil && resp.Request != nil && resp.Request.Method == http.MethodGet
	if !idempotent {
		return false
	}
	return err != nil || resp.StatusCode() >= http.StatusInternalServerError
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx)
}

// Health reports whether GET /health answers 200.
func (c *Client) Health(ctx context.Context) bool {
	resp, err := c.newRequest(ctx).Get("/health")
	if err != nil {
		c.logger.WarnContext(ctx, "health check failed", slog.String("error", err.Error()))
		return false
	}
	return resp.StatusCode() == http.StatusOK
}

// ValidateAPIKey calls a few authenticated endpoints. A 401 on any of them
// means the key is invalid; a 200 or 404 means it is accepted. Transport
// errors move on to the next endpoint.
func (c *Client) ValidateAPIKey(ctx context.Context) error {
	for _, ep := range keyCheckEndpoints {
		resp, err := c.newRequest(ctx).Get(ep)
		if err != nil {
			c.logger.DebugContext(ctx, "key check failed", slog.String("endpoint", ep), slog.String("error", err.Error()))
			continue
		}
		switch resp.StatusCode() {
		case http.StatusUnauthorized:
			return fmt.Errorf("recall: validate key on %s: %w: %s", ep, domain.ErrUnauthorized, errorMessage(resp.Body()))
		case http.StatusOK, http.StatusNotFound:
			c.logger.DebugContext(ctx, "api key accepted", slog.String("endpoint", ep))
			return nil
		}
	}
	return errors.New("recall: validate key: no working endpoints")
}

// Portfolio returns the authoritative valuation from GET /agent/portfolio.
func (c *Client) Portfolio(ctx context.Context) (domain.PortfolioValuation, error) {
	var out APIPortfolio
	if err := c.get(ctx, "/agent/portfolio", nil, &out); err != nil {
		return domain.PortfolioValuation{}, fmt.Errorf("recall: get portfolio: %w", err)
	}
	return out.ToDomain(), nil
}

// Balances returns the per-token holdings from GET /agent/balances.
func (c *Client) Balances(ctx context.Context) ([]domain.Balance, error) {
	var out apiBalances
	if err := c.get(ctx, "/agent/balances", nil, &out); err != nil {
		return nil, fmt.Errorf("recall: get balances: %w", err)
	}
	balances := make([]domain.Balance, 0, len(out.Balances))
	for _, b := range out.Balances {
		balances = append(balances, b.ToDomain())
	}
	return balances, nil
}

// chainParams maps a catalog chain to the API's (chain, specificChain) pair.
func chainParams(chain string) (string, string) {
	switch chain {
	case "solana", "svm":
		return "svm", "svm"
	case "ethereum", "evm", "eth":
		return "evm", "eth"
	case "base", "polygon", "arbitrum", "optimism":
		return "evm", chain
	default:
		return chain, chain
	}
}

// Price returns the USD price of a token. A non-positive price is reported as
// domain.ErrPriceUnavailable.
func (c *Client) Price(ctx context.Context, address, chain string) (float64, error) {
	apiChain, specific := chainParams(chain)
	params := map[string]string{
		"token":         address,
		"chain":         apiChain,
		"specificChain": specific,
	}

	var out apiPrice
	if err := c.get(ctx, "/price", params, &out); err != nil {
		return 0, fmt.Errorf("recall: get price %s on %s: %w", address, chain, err)
	}
	price := out.Price.InexactFloat64()
	if price <= 0 {
		return 0, fmt.Errorf("recall: price %s on %s is %v: %w", address, chain, price, domain.ErrPriceUnavailable)
	}
	return price, nil
}

// Quote asks POST /trade/quote what a swap would return.
func (c *Client) Quote(ctx context.Context, req domain.TradeRequest) (domain.Quote, error) {
	body := apiTradeRequest{
		FromToken: req.FromToken,
		ToToken:   req.ToToken,
		Amount:    formatAmount(req.Amount),
		Chain:     req.Chain,
	}
	var out APIQuote
	if err := c.post(ctx, "/trade/quote", body, &out); err != nil {
		return domain.Quote{}, fmt.Errorf("recall: get quote: %w", err)
	}
	return out.ToDomain(), nil
}

// ExecuteTrade submits a swap through POST /trade/execute. A 2xx response
// that reports failure is returned as an error alongside the result.
func (c *Client) ExecuteTrade(ctx context.Context, req domain.TradeRequest) (domain.TradeResult, error) {
	body := apiTradeRequest{
		FromToken: req.FromToken,
		ToToken:   req.ToToken,
		Amount:    formatAmount(req.Amount),
		Reason:    req.Reason,
	}

	c.logger.InfoContext(ctx, "executing trade",
		slog.String("from", req.FromToken),
		slog.String("to", req.ToToken),
		slog.String("amount", body.Amount),
		slog.String("reason", req.Reason),
	)

	var out APITradeResult
	if err := c.post(ctx, "/trade/execute", body, &out); err != nil {
		return domain.TradeResult{}, fmt.Errorf("recall: execute trade: %w", err)
	}
	res := out.ToDomain()
	if !res.Success {
		return res, fmt.Errorf("recall: execute trade: rejected: %s", res.Error)
	}
	return res, nil
}

// Trades returns the most recent trades from GET /agent/trades.
func (c *Client) Trades(ctx context.Context, limit int) ([]domain.TradeHistoryEntry, error) {
	params := map[string]string{"limit": strconv.Itoa(limit)}
	var out apiTrades
	if err := c.get(ctx, "/agent/trades", params, &out); err != nil {
		return nil, fmt.Errorf("recall: get trades: %w", err)
	}
	return toHistory(out.Trades), nil
}

// History returns the account history from GET /agent/history.
func (c *Client) History(ctx context.Context) ([]domain.TradeHistoryEntry, error) {
	var out apiHistory
	if err := c.get(ctx, "/agent/history", nil, &out); err != nil {
		return nil, fmt.Errorf("recall: get history: %w", err)
	}
	return toHistory(out.History), nil
}

func toHistory(rows []APITrade) []domain.TradeHistoryEntry {
	out := make([]domain.TradeHistoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToDomain())
	}
	return out
}

// CompetitionStatus returns GET /competition/status.
func (c *Client) CompetitionStatus(ctx context.Context) (domain.CompetitionStatus, error) {
	var out apiCompetitionStatus
	if err := c.get(ctx, "/competition/status", nil, &out); err != nil {
		return domain.CompetitionStatus{}, fmt.Errorf("recall: get competition status: %w", err)
	}
	return out.toDomain(), nil
}

// Leaderboard returns GET /competition/leaderboard.
func (c *Client) Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	var out apiLeaderboard
	if err := c.get(ctx, "/competition/leaderboard", nil, &out); err != nil {
		return nil, fmt.Errorf("recall: get leaderboard: %w", err)
	}
	entries := make([]domain.LeaderboardEntry, 0, len(out.Leaderboard))
	for _, e := range out.Leaderboard {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:         e.Rank,
			AgentID:      e.AgentID,
			AgentName:    e.AgentName,
			PortfolioUSD: e.PortfolioValue.InexactFloat64(),
		})
	}
	return entries, nil
}

// --------------------------------------------------------------------------
// transport helpers
// --------------------------------------------------------------------------

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	req := c.newRequest(ctx)
	if len(params) > 0 {
		req.SetQueryParams(params)
	}
	resp, err := req.Get(path)
	return decodeResponse(resp, err, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	resp, err := c.newRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	return decodeResponse(resp, err, out)
}

func decodeResponse(resp *resty.Response, err error, out any) error {
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode(), resp.Body()); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	msg := errorMessage(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, msg)
	}
}

// errorMessage extracts {"error": ...} or {"message": ...} from an error body
// and falls back to the raw text.
func errorMessage(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return strings.TrimSpace(string(body))
}

// formatAmount renders a token quantity as a plain decimal string.
func formatAmount(amount float64) string {
	return decimal.NewFromFloat(amount).String()
}
