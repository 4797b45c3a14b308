package strategy

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

// CombinedSource is the Source of signals merged from several strategies.
const CombinedSource = "combined"

// Combine merges signals per asset using net-strength voting. Assets keep the
// order in which they first appear. A lone signal passes through unchanged.
// Otherwise buy and sell strengths are summed (holds are ignored) and the
// larger side wins with strength equal to the difference. The net strength is
// not clamped, so agreeing strategies can exceed 1. A tie yields hold with
// strength 0.
func Combine(signals []domain.Signal, now time.Time) []domain.Signal {
	var order []string
	groups := make(map[string][]domain.Signal)
	for _, s := range signals {
		if _, seen := groups[s.Symbol]; !seen {
			order = append(order, s.Symbol)
		}
		groups[s.Symbol] = append(groups[s.Symbol], s)
	}

	out := make([]domain.Signal, 0, len(order))
	for _, symbol := range order {
		group := groups[symbol]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		out = append(out, combineGroup(symbol, group, now))
	}
	return out
}

func combineGroup(symbol string, group []domain.Signal, now time.Time) domain.Signal {
	var (
		buyStrength, sellStrength float64
		buys, sells               int
	)
	for _, s := range group {
		switch s.Action {
		case domain.ActionBuy:
			buyStrength += s.Strength
			buys++
		case domain.ActionSell:
			sellStrength += s.Strength
			sells++
		}
	}

	sig := domain.Signal{Symbol: symbol, Source: CombinedSource, Timestamp: now}
	switch {
	case buyStrength > sellStrength:
		sig.Action = domain.ActionBuy
		sig.Strength = buyStrength - sellStrength
		sig.Reason = fmt.Sprintf("Combined buy signals: %d buy, %d sell", buys, sells)
	case sellStrength > buyStrength:
		sig.Action = domain.ActionSell
		sig.Strength = sellStrength - buyStrength
		sig.Reason = fmt.Sprintf("Combined sell signals: %d sell, %d buy", sells, buys)
	default:
		sig.Action = domain.ActionHold
		sig.Reason = "conflicting signals"
	}
	return sig
}

// Actionable keeps non-hold signals whose strength exceeds minStrength.
func Actionable(signals []domain.Signal, minStrength float64) []domain.Signal {
	var out []domain.Signal
	for _, s := range signals {
		if s.Actionable(minStrength) {
			out = append(out, s)
		}
	}
	return out
}
