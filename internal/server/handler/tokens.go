package handler

import (
	"net/http"
	"strings"

	"github.com/alanyoungcy/recallbot/internal/domain"
	"github.com/alanyoungcy/recallbot/internal/marketdata"
)

// TokenLister lists and queries the catalog.
type TokenLister interface {
	All() []domain.Asset
	HighVolatility() []domain.Asset
	Get(key string) (domain.Asset, bool)
	ByAddress(address string) (domain.Asset, bool)
	TradingPairs() map[string]map[string]string
}

// PriceWindows exposes the rolling price windows kept by the strategies.
type PriceWindows interface {
	Snapshot(key string) []domain.PriceSample
}

// TokenHandler serves the token catalog.
type TokenHandler struct {
	tokens  TokenLister
	windows PriceWindows
}

// NewTokenHandler creates a TokenHandler. windows may be nil, in which case
// the analysis endpoint reports 501.
func NewTokenHandler(tokens TokenLister, windows PriceWindows) *TokenHandler {
	return &TokenHandler{tokens: tokens, windows: windows}
}

type tokenView struct {
	Key        string `json:"key"`
	Symbol     string `json:"symbol"`
	Address    string `json:"address"`
	Chain      string `json:"chain"`
	Decimals   int    `json:"decimals"`
	Category   string `json:"category"`
	Volatility string `json:"volatility"`
	Enabled    bool   `json:"enabled"`
}

func viewOf(a domain.Asset) tokenView {
	return tokenView{
		Key:        a.Key,
		Symbol:     a.Symbol,
		Address:    a.Address,
		Chain:      a.Chain,
		Decimals:   a.Decimals,
		Category:   string(a.Category),
		Volatility: string(a.Volatility),
		Enabled:    a.Enabled,
	}
}

// ListTokens returns catalog entries, optionally filtered by address, chain,
// category, enabled flag and high volatility.
// GET /api/tokens?chain=solana&category=meme&enabled=true&volatile=true
func (h *TokenHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if address := q.Get("address"); address != "" {
		a, ok := h.tokens.ByAddress(address)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown token address")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tokens": []tokenView{viewOf(a)}})
		return
	}

	chain := strings.ToLower(q.Get("chain"))
	category := strings.ToLower(q.Get("category"))
	enabledOnly := q.Get("enabled") == "true"

	assets := h.tokens.All()
	if q.Get("volatile") == "true" {
		assets = h.tokens.HighVolatility()
	}

	out := []tokenView{}
	for _, a := range assets {
		if chain != "" && a.Chain != chain {
			continue
		}
		if category != "" && string(a.Category) != category {
			continue
		}
		if enabledOnly && !a.Enabled {
			continue
		}
		out = append(out, viewOf(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": out})
}

// ListPairs returns chain -> symbol -> address for enabled tokens.
// GET /api/tokens/pairs
func (h *TokenHandler) ListPairs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"pairs": h.tokens.TradingPairs()})
}

// GetAnalysis returns the sample count, return volatility and Fibonacci
// levels of the token's current price window. Statistics that need more
// samples than the window holds are omitted.
// GET /api/tokens/{key}/analysis
func (h *TokenHandler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if _, ok := h.tokens.Get(key); !ok {
		writeError(w, http.StatusNotFound, "unknown token")
		return
	}
	if h.windows == nil {
		writeError(w, http.StatusNotImplemented, "price windows not available")
		return
	}

	window := h.windows.Snapshot(key)
	resp := map[string]any{"key": key, "samples": len(window)}
	if vol, ok := marketdata.Volatility(window); ok {
		resp["volatility"] = vol
	}
	if levels, ok := marketdata.SupportResistance(window); ok {
		resp["levels"] = levels
	}
	writeJSON(w, http.StatusOK, resp)
}
