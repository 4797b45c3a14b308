package domain

// Category classifies an asset for threshold and sizing lookups.
type Category string

const (
	CategoryStablecoin Category = "stablecoin"
	CategoryMajor      Category = "major"
	CategoryMeme       Category = "meme"
	CategoryDefi       Category = "defi"
)

// VolatilityTier is the expected volatility bucket of an asset.
type VolatilityTier string

const (
	VolatilityLow      VolatilityTier = "low"
	VolatilityMedium   VolatilityTier = "medium"
	VolatilityHigh     VolatilityTier = "high"
	VolatilityVeryHigh VolatilityTier = "very_high"
)

// Asset is a tradable token on one chain. Assets are owned by the token
// catalog and never mutated after load.
type Asset struct {
	Key        string // "SYMBOL", or "SYMBOL_chain" when the symbol exists on several chains
	Symbol     string
	Address    string
	Chain      string
	Decimals   int
	Category   Category
	Volatility VolatilityTier
	Enabled    bool
}

// IsStablecoin reports whether the asset is in the stablecoin category.
func (a Asset) IsStablecoin() bool { return a.Category == CategoryStablecoin }

// IsMeme reports whether the asset is in the meme category.
func (a Asset) IsMeme() bool { return a.Category == CategoryMeme }

// HighVolatility reports whether the expected volatility is high or very high.
func (a Asset) HighVolatility() bool {
	return a.Volatility == VolatilityHigh || a.Volatility == VolatilityVeryHigh
}
