package domain

import "time"

// Balance is one token holding as reported by the trading API.
type Balance struct {
	TokenAddress string  `json:"token_address"`
	Symbol       string  `json:"symbol"`
	Chain        string  `json:"chain"`
	Amount       float64 `json:"amount"`
	USDValue     float64 `json:"usd_value"`
}

// TokenValue is a single row of a portfolio valuation.
type TokenValue struct {
	Symbol  string  `json:"symbol"`
	Chain   string  `json:"chain"`
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
	Price   float64 `json:"price"`
	Value   float64 `json:"value"`
}

// PortfolioValuation is the authoritative valuation returned by the API.
type PortfolioValuation struct {
	TotalValue float64      `json:"total_value"`
	Tokens     []TokenValue `json:"tokens"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// PortfolioTarget compares one configured target allocation with the
// current holding. Drift is current minus target.
type PortfolioTarget struct {
	Symbol            string  `json:"symbol"`
	Chain             string  `json:"chain"`
	TargetAllocation  float64 `json:"target_allocation"`
	CurrentAllocation float64 `json:"current_allocation"`
	CurrentValue      float64 `json:"current_value"`
	Drift             float64 `json:"drift"`
}

// PortfolioStatus is a point-in-time allocation snapshot, ordered as the
// targets are configured.
type PortfolioStatus struct {
	TotalValue float64           `json:"total_value"`
	Targets    []PortfolioTarget `json:"targets"`
	Source     string            `json:"source"` // "portfolio" or "balances"
	TakenAt    time.Time         `json:"taken_at"`
}

// Target returns the row for symbol.
func (s PortfolioStatus) Target(symbol string) (PortfolioTarget, bool) {
	for _, t := range s.Targets {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return PortfolioTarget{}, false
}

// Performance summarises returns relative to earlier snapshots.
type Performance struct {
	TotalValue     float64 `json:"total_value"`
	TotalReturn    float64 `json:"total_return"`
	TotalReturnPct float64 `json:"total_return_pct"`
	DailyReturn    float64 `json:"daily_return"`
	DailyReturnPct float64 `json:"daily_return_pct"`
}

// CompetitionStatus is the subset of the competition status the bot reports.
type CompetitionStatus struct {
	Active        bool   `json:"active"`
	Status        string `json:"status"`
	CompetitionID string `json:"competition_id"`
	Name          string `json:"name"`
	Message       string `json:"message"`
}

// LeaderboardEntry is one row of the competition leaderboard.
type LeaderboardEntry struct {
	Rank         int     `json:"rank"`
	AgentID      string  `json:"agent_id"`
	AgentName    string  `json:"agent_name"`
	PortfolioUSD float64 `json:"portfolio_value"`
}
