package domain

import "time"

// Action is the direction a signal recommends.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Signal is a per-asset recommendation produced by a strategy or by the
// combiner. Strategy signals have Strength within [0, 1]; a combined signal
// carries the net strength of its group and may exceed 1.
type Signal struct {
	Action    Action    `json:"action"`
	Symbol    string    `json:"symbol"` // asset key
	Strength  float64   `json:"strength"`
	Reason    string    `json:"reason"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Actionable reports whether the signal should be turned into a trade:
// it must not be a hold and its strength must exceed minStrength.
func (s Signal) Actionable(minStrength float64) bool {
	return s.Action != ActionHold && s.Strength > minStrength
}

// PriceSample is one observation in a rolling price window.
type PriceSample struct {
	Price float64   `json:"price"`
	Time  time.Time `json:"time"`
}

// PriceAlert is raised when a price moves more than the monitor threshold
// between two observations.
type PriceAlert struct {
	Symbol       string    `json:"symbol"`
	LastPrice    float64   `json:"last_price"`
	CurrentPrice float64   `json:"current_price"`
	Change       float64   `json:"change"`
	Timestamp    time.Time `json:"timestamp"`
}
