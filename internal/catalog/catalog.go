// Package catalog loads the token catalog: the set of tradable assets per
// chain, with their category and expected volatility.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

// evmChains lists chains whose token addresses must be 0x-prefixed hex.
var evmChains = map[string]bool{
	"ethereum": true,
	"evm":      true,
	"base":     true,
	"polygon":  true,
	"arbitrum": true,
	"optimism": true,
}

// Limits are the allocation caps enforced by ValidateAllocation.
type Limits struct {
	MaxMemeAllocation        float64
	MaxSingleAssetAllocation float64
}

func (l Limits) withDefaults() Limits {
	if l.MaxMemeAllocation <= 0 {
		l.MaxMemeAllocation = 0.20
	}
	if l.MaxSingleAssetAllocation <= 0 {
		l.MaxSingleAssetAllocation = 0.30
	}
	return l
}

// tokenEntry is the on-disk shape of one [chains.<chain>.<SYMBOL>] table.
type tokenEntry struct {
	Address    string `toml:"address"`
	Decimals   int    `toml:"decimals"`
	Category   string `toml:"category"`
	Enabled    *bool  `toml:"enabled"`
	Volatility string `toml:"volatility"`
}

type catalogFile struct {
	Chains map[string]map[string]tokenEntry `toml:"chains"`
}

// assetSet is an immutable snapshot of the catalog. Reload swaps it as a
// whole.
type assetSet struct {
	ordered []domain.Asset
	byKey   map[string]domain.Asset
}

// Catalog owns the asset definitions. It is safe for concurrent use.
type Catalog struct {
	path   string
	limits Limits
	logger *slog.Logger
	set    atomic.Pointer[assetSet]
}

// Load parses the TOML catalog at path.
func Load(path string, limits Limits, logger *slog.Logger) (*Catalog, error) {
	c := &Catalog{
		path:   path,
		limits: limits.withDefaults(),
		logger: logger.With(slog.String("component", "catalog")),
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// New builds a catalog from in-memory assets. Keys are recomputed from the
// symbols and chains.
func New(assets []domain.Asset, limits Limits, logger *slog.Logger) *Catalog {
	c := &Catalog{
		limits: limits.withDefaults(),
		logger: logger.With(slog.String("component", "catalog")),
	}
	c.set.Store(buildSet(assets))
	return c
}

// Reload reparses the catalog file and atomically replaces the asset set.
// On error the previous set stays in place.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return fmt.Errorf("catalog: reload: no file configured")
	}
	var f catalogFile
	if _, err := toml.DecodeFile(c.path, &f); err != nil {
		return fmt.Errorf("catalog: decode %s: %w", c.path, err)
	}
	assets, err := parseAssets(f)
	if err != nil {
		return err
	}
	c.set.Store(buildSet(assets))
	c.logger.Info("token catalog loaded", slog.String("path", c.path), slog.Int("assets", len(assets)))
	return nil
}

func parseAssets(f catalogFile) ([]domain.Asset, error) {
	var (
		assets []domain.Asset
		errs   []error
	)
	for _, chain := range sortedKeys(f.Chains) {
		tokens := f.Chains[chain]
		for _, symbol := range sortedKeys(tokens) {
			e := tokens[symbol]
			addr := strings.TrimSpace(e.Address)
			if addr == "" {
				errs = append(errs, fmt.Errorf("%s on %s: empty address", symbol, chain))
				continue
			}
			if evmChains[chain] {
				if !common.IsHexAddress(addr) {
					errs = append(errs, fmt.Errorf("%s on %s: invalid address %q", symbol, chain, addr))
					continue
				}
				addr = common.HexToAddress(addr).Hex()
			}
			a := domain.Asset{
				Symbol:     symbol,
				Address:    addr,
				Chain:      chain,
				Decimals:   e.Decimals,
				Category:   domain.Category(e.Category),
				Volatility: domain.VolatilityTier(e.Volatility),
				Enabled:    e.Enabled == nil || *e.Enabled,
			}
			if a.Volatility == "" {
				a.Volatility = domain.VolatilityMedium
			}
			assets = append(assets, a)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("catalog: %w: %w", domain.ErrInvalidConfig, errors.Join(errs...))
	}
	return assets, nil
}

// buildSet assigns keys. A symbol present on more than one chain is keyed
// "SYMBOL_chain"; otherwise the bare symbol is the key.
func buildSet(assets []domain.Asset) *assetSet {
	chainsPerSymbol := make(map[string]int, len(assets))
	for _, a := range assets {
		chainsPerSymbol[a.Symbol]++
	}

	s := &assetSet{
		ordered: make([]domain.Asset, 0, len(assets)),
		byKey:   make(map[string]domain.Asset, len(assets)),
	}
	for _, a := range assets {
		a.Key = a.Symbol
		if chainsPerSymbol[a.Symbol] > 1 {
			a.Key = a.Symbol + "_" + a.Chain
		}
		s.ordered = append(s.ordered, a)
		s.byKey[a.Key] = a
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Catalog) filter(keep func(domain.Asset) bool) []domain.Asset {
	var out []domain.Asset
	for _, a := range c.set.Load().ordered {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

// All returns every asset, enabled or not, ordered by chain then symbol.
func (c *Catalog) All() []domain.Asset {
	return c.filter(func(domain.Asset) bool { return true })
}

// Enabled returns the enabled assets.
func (c *Catalog) Enabled() []domain.Asset {
	return c.filter(func(a domain.Asset) bool { return a.Enabled })
}

// NonStablecoin returns enabled assets that are not stablecoins. These are
// the assets signal strategies evaluate.
func (c *Catalog) NonStablecoin() []domain.Asset {
	return c.filter(func(a domain.Asset) bool { return a.Enabled && !a.IsStablecoin() })
}

// ByChain returns enabled assets on chain.
func (c *Catalog) ByChain(chain string) []domain.Asset {
	return c.filter(func(a domain.Asset) bool { return a.Enabled && a.Chain == chain })
}

// ByCategory returns enabled assets in category.
func (c *Catalog) ByCategory(category domain.Category) []domain.Asset {
	return c.filter(func(a domain.Asset) bool { return a.Enabled && a.Category == category })
}

// HighVolatility returns enabled assets with high or very high expected
// volatility.
func (c *Catalog) HighVolatility() []domain.Asset {
	return c.filter(func(a domain.Asset) bool { return a.Enabled && a.HighVolatility() })
}

// Get returns the asset with the given key.
func (c *Catalog) Get(key string) (domain.Asset, bool) {
	a, ok := c.set.Load().byKey[key]
	return a, ok
}

// Lookup returns the asset for symbol on chain.
func (c *Catalog) Lookup(symbol, chain string) (domain.Asset, bool) {
	for _, a := range c.set.Load().ordered {
		if a.Symbol == symbol && a.Chain == chain {
			return a, true
		}
	}
	return domain.Asset{}, false
}

// BySymbol returns the first asset with symbol, in chain order.
func (c *Catalog) BySymbol(symbol string) (domain.Asset, bool) {
	for _, a := range c.set.Load().ordered {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return domain.Asset{}, false
}

// Resolve finds an asset by symbol, restricted to chain when chain is not
// empty.
func (c *Catalog) Resolve(symbol, chain string) (domain.Asset, bool) {
	if chain != "" {
		return c.Lookup(symbol, chain)
	}
	return c.BySymbol(symbol)
}

// ByAddress finds an asset by contract address, ignoring case.
func (c *Catalog) ByAddress(address string) (domain.Asset, bool) {
	for _, a := range c.set.Load().ordered {
		if strings.EqualFold(a.Address, address) {
			return a, true
		}
	}
	return domain.Asset{}, false
}

// Chain returns the chain of the first asset with symbol.
func (c *Catalog) Chain(symbol string) (string, bool) {
	a, ok := c.BySymbol(symbol)
	return a.Chain, ok
}

// Symbols returns the symbols of all enabled assets.
func (c *Catalog) Symbols() []string {
	enabled := c.Enabled()
	out := make([]string, 0, len(enabled))
	for _, a := range enabled {
		out = append(out, a.Symbol)
	}
	return out
}

// IsMeme reports whether symbol resolves to a meme asset.
func (c *Catalog) IsMeme(symbol string) bool {
	a, ok := c.BySymbol(symbol)
	return ok && a.IsMeme()
}

// TradingPairs returns chain -> symbol -> address for enabled assets.
func (c *Catalog) TradingPairs() map[string]map[string]string {
	out := make(map[string]map[string]string)
	for _, a := range c.Enabled() {
		if out[a.Chain] == nil {
			out[a.Chain] = make(map[string]string)
		}
		out[a.Chain][a.Symbol] = a.Address
	}
	return out
}

// ValidateAllocation checks allocations (symbol -> fraction) against the meme
// and single-asset caps.
func (c *Catalog) ValidateAllocation(allocations map[string]float64) error {
	var (
		meme float64
		errs []error
	)
	for _, symbol := range sortedKeys(allocations) {
		alloc := allocations[symbol]
		if c.IsMeme(symbol) {
			meme += alloc
		}
		if alloc > c.limits.MaxSingleAssetAllocation {
			errs = append(errs, fmt.Errorf("%s allocation %.1f%% exceeds limit %.1f%%",
				symbol, alloc*100, c.limits.MaxSingleAssetAllocation*100))
		}
	}
	if meme > c.limits.MaxMemeAllocation {
		errs = append(errs, fmt.Errorf("meme allocation %.1f%% exceeds limit %.1f%%",
			meme*100, c.limits.MaxMemeAllocation*100))
	}
	if len(errs) > 0 {
		return fmt.Errorf("catalog: %w: %w", domain.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Summary renders a human-readable overview of the enabled assets grouped by
// chain and category.
func (c *Catalog) Summary() string {
	enabled := c.Enabled()
	chains := make(map[string][]domain.Asset)
	for _, a := range enabled {
		chains[a.Chain] = append(chains[a.Chain], a)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Total Tokens: %d\n", len(enabled))
	fmt.Fprintf(&b, "Chains: %d\n\n", len(chains))

	for _, chain := range sortedKeys(chains) {
		assets := chains[chain]
		fmt.Fprintf(&b, "%s (%d tokens):\n", strings.ToUpper(chain), len(assets))

		var order []domain.Category
		byCategory := make(map[domain.Category][]domain.Asset)
		for _, a := range assets {
			if _, seen := byCategory[a.Category]; !seen {
				order = append(order, a.Category)
			}
			byCategory[a.Category] = append(byCategory[a.Category], a)
		}
		for _, cat := range order {
			var symbols []string
			tiers := make(map[string]bool)
			for _, a := range byCategory[cat] {
				symbols = append(symbols, a.Symbol)
				tiers[string(a.Volatility)] = true
			}
			fmt.Fprintf(&b, "  %s: %s (%s volatility)\n",
				cat, strings.Join(symbols, ", "), strings.Join(sortedKeys(tiers), ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
