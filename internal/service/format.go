package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// formatUSD renders v as dollars with thousands separators, e.g. $1,234.50.
func formatUSD(v float64) string {
	s := decimal.NewFromFloat(v).Round(2).StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := "$" + b.String() + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}

// formatPct renders a fraction as a percentage with one decimal.
func formatPct(fraction float64) string {
	return fmt.Sprintf("%.1f%%", fraction*100)
}

// formatSignedPct is formatPct with an explicit sign.
func formatSignedPct(fraction float64) string {
	return fmt.Sprintf("%+.1f%%", fraction*100)
}
