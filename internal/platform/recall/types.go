package recall

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

// The API is inconsistent about numeric encoding: some endpoints send
// numbers, others quoted strings. decimal.Decimal accepts both.

// --------------------------------------------------------------------------
// Account DTOs
// --------------------------------------------------------------------------

// APIPortfolioToken is one row of GET /agent/portfolio.
type APIPortfolioToken struct {
	Token         string          `json:"token"`
	Symbol        string          `json:"symbol"`
	Chain         string          `json:"chain"`
	SpecificChain string          `json:"specificChain"`
	Amount        decimal.Decimal `json:"amount"`
	Price         decimal.Decimal `json:"price"`
	Value         decimal.Decimal `json:"value"`
}

// APIPortfolio is the response of GET /agent/portfolio.
type APIPortfolio struct {
	Success    bool                `json:"success"`
	AgentID    string              `json:"agentId"`
	TotalValue decimal.Decimal     `json:"totalValue"`
	Tokens     []APIPortfolioToken `json:"tokens"`
	UpdatedAt  string              `json:"snapshotTime"`
}

// ToDomain converts the response into a valuation.
func (p APIPortfolio) ToDomain() domain.PortfolioValuation {
	out := domain.PortfolioValuation{
		TotalValue: p.TotalValue.InexactFloat64(),
		Tokens:     make([]domain.TokenValue, 0, len(p.Tokens)),
		UpdatedAt:  parseTime(p.UpdatedAt),
	}
	for _, t := range p.Tokens {
		out.Tokens = append(out.Tokens, domain.TokenValue{
			Symbol:  t.Symbol,
			Chain:   t.Chain,
			Address: t.Token,
			Amount:  t.Amount.InexactFloat64(),
			Price:   t.Price.InexactFloat64(),
			Value:   t.Value.InexactFloat64(),
		})
	}
	return out
}

// APIBalance is one row of GET /agent/balances.
type APIBalance struct {
	TokenAddress  string          `json:"tokenAddress"`
	Symbol        string          `json:"symbol"`
	Chain         string          `json:"chain"`
	SpecificChain string          `json:"specificChain"`
	Amount        decimal.Decimal `json:"amount"`
	USDValue      decimal.Decimal `json:"usd_value"`
}

// ToDomain converts the row into a balance.
func (b APIBalance) ToDomain() domain.Balance {
	return domain.Balance{
		TokenAddress: b.TokenAddress,
		Symbol:       b.Symbol,
		Chain:        b.Chain,
		Amount:       b.Amount.InexactFloat64(),
		USDValue:     b.USDValue.InexactFloat64(),
	}
}

type apiBalances struct {
	Success  bool         `json:"success"`
	Balances []APIBalance `json:"balances"`
}

// --------------------------------------------------------------------------
// Market DTOs
// --------------------------------------------------------------------------

type apiPrice struct {
	Success bool            `json:"success"`
	Price   decimal.Decimal `json:"price"`
	Token   string          `json:"token"`
	Chain   string          `json:"chain"`
}

// APIQuote is the response of POST /trade/quote.
type APIQuote struct {
	FromToken    string          `json:"fromToken"`
	ToToken      string          `json:"toToken"`
	FromAmount   decimal.Decimal `json:"fromAmount"`
	ToAmount     decimal.Decimal `json:"toAmount"`
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
}

// ToDomain converts the response into a quote.
func (q APIQuote) ToDomain() domain.Quote {
	return domain.Quote{
		FromToken:    q.FromToken,
		ToToken:      q.ToToken,
		FromAmount:   q.FromAmount.InexactFloat64(),
		ToAmount:     q.ToAmount.InexactFloat64(),
		ExchangeRate: q.ExchangeRate.InexactFloat64(),
	}
}

// --------------------------------------------------------------------------
// Trade DTOs
// --------------------------------------------------------------------------

type apiTradeRequest struct {
	FromToken string `json:"fromToken"`
	ToToken   string `json:"toToken"`
	Amount    string `json:"amount"`
	Reason    string `json:"reason,omitempty"`
	Chain     string `json:"chain,omitempty"`
}

// APITransaction is the transaction block of POST /trade/execute.
type APITransaction struct {
	ID         string          `json:"id"`
	FromAmount decimal.Decimal `json:"fromAmount"`
	ToAmount   decimal.Decimal `json:"toAmount"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
}

// APITradeResult is the response of POST /trade/execute.
type APITradeResult struct {
	Success     bool           `json:"success"`
	Error       string         `json:"error,omitempty"`
	Transaction APITransaction `json:"transaction"`
}

// ToDomain converts the response into a trade result.
func (r APITradeResult) ToDomain() domain.TradeResult {
	msg := r.Error
	if msg == "" {
		msg = r.Transaction.Error
	}
	return domain.TradeResult{
		Success:    r.Success,
		TxID:       r.Transaction.ID,
		FromAmount: r.Transaction.FromAmount.InexactFloat64(),
		ToAmount:   r.Transaction.ToAmount.InexactFloat64(),
		Error:      msg,
	}
}

// APITrade is one row of GET /agent/trades and GET /agent/history.
type APITrade struct {
	ID              string          `json:"id"`
	FromToken       string          `json:"fromToken"`
	ToToken         string          `json:"toToken"`
	FromTokenSymbol string          `json:"fromTokenSymbol"`
	ToTokenSymbol   string          `json:"toTokenSymbol"`
	FromAmount      decimal.Decimal `json:"fromAmount"`
	ToAmount        decimal.Decimal `json:"toAmount"`
	Reason          string          `json:"reason"`
	Timestamp       string          `json:"timestamp"`
}

// ToDomain converts the row into a history entry.
func (t APITrade) ToDomain() domain.TradeHistoryEntry {
	return domain.TradeHistoryEntry{
		ID:         t.ID,
		FromToken:  t.FromToken,
		ToToken:    t.ToToken,
		FromSymbol: t.FromTokenSymbol,
		ToSymbol:   t.ToTokenSymbol,
		FromAmount: t.FromAmount.InexactFloat64(),
		ToAmount:   t.ToAmount.InexactFloat64(),
		Reason:     t.Reason,
		Timestamp:  parseTime(t.Timestamp),
	}
}

type apiTrades struct {
	Trades []APITrade `json:"trades"`
}

type apiHistory struct {
	History []APITrade `json:"history"`
}

// --------------------------------------------------------------------------
// Competition DTOs
// --------------------------------------------------------------------------

type apiCompetition struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type apiCompetitionStatus struct {
	Success     bool            `json:"success"`
	Active      bool            `json:"active"`
	Competition *apiCompetition `json:"competition"`
	Message     string          `json:"message"`
}

func (s apiCompetitionStatus) toDomain() domain.CompetitionStatus {
	out := domain.CompetitionStatus{Active: s.Active, Message: s.Message}
	if s.Competition != nil {
		out.CompetitionID = s.Competition.ID
		out.Name = s.Competition.Name
		out.Status = s.Competition.Status
	}
	return out
}

type apiLeaderboardEntry struct {
	Rank           int             `json:"rank"`
	AgentID        string          `json:"agentId"`
	AgentName      string          `json:"agentName"`
	PortfolioValue decimal.Decimal `json:"portfolioValue"`
}

type apiLeaderboard struct {
	Leaderboard []apiLeaderboardEntry `json:"leaderboard"`
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// parseTime accepts RFC 3339 timestamps and returns the zero time otherwise.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
