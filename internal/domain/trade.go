package domain

import "time"

// TradeIntent is a proposed swap expressed in USD. Both symbols must resolve
// to the same chain.
type TradeIntent struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Chain     string  `json:"chain"`
	USDAmount float64 `json:"usd_amount"`
}

// TradeSource identifies which cycle produced a trade.
type TradeSource string

const (
	TradeSourceRebalance TradeSource = "rebalance"
	TradeSourceSignal    TradeSource = "signal"
)

// TradeStatus is the outcome of a submitted trade.
type TradeStatus string

const (
	TradeStatusExecuted TradeStatus = "executed"
	TradeStatusFailed   TradeStatus = "failed"
	TradeStatusDryRun   TradeStatus = "dry_run"
	TradeStatusRejected TradeStatus = "rejected"
)

// TradeOrder is a fully sized trade ready for submission. Quantity is in
// units of the source asset.
type TradeOrder struct {
	ID          string      `json:"id"`
	FromSymbol  string      `json:"from_symbol"`
	ToSymbol    string      `json:"to_symbol"`
	FromAddress string      `json:"from_address"`
	ToAddress   string      `json:"to_address"`
	Chain       string      `json:"chain"`
	Quantity    float64     `json:"quantity"`
	USDAmount   float64     `json:"usd_amount"`
	Price       float64     `json:"price"`
	Reason      string      `json:"reason"`
	Source      TradeSource `json:"source"`
	CreatedAt   time.Time   `json:"created_at"`
}

// TradeRequest is the wire-level swap request sent to the trading API.
type TradeRequest struct {
	FromToken string
	ToToken   string
	Amount    float64
	Reason    string
	Chain     string
}

// TradeResult is the API response to an executed trade.
type TradeResult struct {
	Success    bool    `json:"success"`
	TxID       string  `json:"tx_id"`
	FromAmount float64 `json:"from_amount"`
	ToAmount   float64 `json:"to_amount"`
	Error      string  `json:"error,omitempty"`
}

// Quote is a pre-trade price quote.
type Quote struct {
	FromToken    string  `json:"from_token"`
	ToToken      string  `json:"to_token"`
	FromAmount   float64 `json:"from_amount"`
	ToAmount     float64 `json:"to_amount"`
	ExchangeRate float64 `json:"exchange_rate"`
}

// TradeRecord is the persisted outcome of one order.
type TradeRecord struct {
	Order      TradeOrder  `json:"order"`
	Status     TradeStatus `json:"status"`
	TxID       string      `json:"tx_id,omitempty"`
	Error      string      `json:"error,omitempty"`
	ExecutedAt time.Time   `json:"executed_at"`
}

// TradeHistoryEntry is one row of the API's trade or account history.
type TradeHistoryEntry struct {
	ID         string    `json:"id"`
	FromToken  string    `json:"from_token"`
	ToToken    string    `json:"to_token"`
	FromSymbol string    `json:"from_symbol"`
	ToSymbol   string    `json:"to_symbol"`
	FromAmount float64   `json:"from_amount"`
	ToAmount   float64   `json:"to_amount"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}
