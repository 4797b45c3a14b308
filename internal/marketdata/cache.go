// Package marketdata provides the short-TTL price cache, the rolling price
// windows strategies evaluate, and the price movement monitor.
package marketdata

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

// PriceSource fetches a live USD price. The Recall API client satisfies it.
type PriceSource interface {
	Price(ctx context.Context, address, chain string) (float64, error)
}

// PriceReader is the read side of the cache that strategies and services
// depend on. ok is false when no positive price could be obtained.
type PriceReader interface {
	Price(ctx context.Context, asset domain.Asset) (float64, bool)
}

type cacheEntry struct {
	price     float64
	fetchedAt time.Time
}

// Cache is a TTL price cache keyed by (chain, address). Failed or
// non-positive lookups are never stored, so the next call retries upstream.
type Cache struct {
	src    PriceSource
	shared domain.PriceCache
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache creates a cache in front of src. ttl <= 0 defaults to one minute.
func NewCache(src PriceSource, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{
		src:     src,
		ttl:     ttl,
		logger:  logger.With(slog.String("component", "price_cache")),
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// SetShared enables a second-level cache shared between bot instances.
// Fresh shared entries are used before calling upstream, and every upstream
// price is written through.
func (c *Cache) SetShared(pc domain.PriceCache) {
	c.shared = pc
}

func cacheKey(asset domain.Asset) string {
	return asset.Chain + ":" + asset.Address
}

// Price returns the USD price of asset.
func (c *Cache) Price(ctx context.Context, asset domain.Asset) (float64, bool) {
	key := cacheKey(asset)
	now := c.now()

	c.mu.Lock()
	e, hit := c.entries[key]
	c.mu.Unlock()
	if hit && now.Sub(e.fetchedAt) < c.ttl {
		return e.price, true
	}

	if c.shared != nil {
		price, ts, err := c.shared.GetPrice(ctx, key)
		switch {
		case err == nil && price > 0 && now.Sub(ts) < c.ttl:
			c.store(key, price, ts)
			return price, true
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			c.logger.DebugContext(ctx, "shared price cache read failed",
				slog.String("key", key), slog.String("error", err.Error()))
		}
	}

	price, err := c.src.Price(ctx, asset.Address, asset.Chain)
	if err != nil {
		c.logger.WarnContext(ctx, "price unavailable",
			slog.String("symbol", asset.Symbol),
			slog.String("chain", asset.Chain),
			slog.String("error", err.Error()),
		)
		return 0, false
	}
	if price <= 0 {
		c.logger.WarnContext(ctx, "non-positive price ignored",
			slog.String("symbol", asset.Symbol), slog.Float64("price", price))
		return 0, false
	}

	c.store(key, price, now)
	if c.shared != nil {
		if err := c.shared.SetPrice(ctx, key, price, now); err != nil {
			c.logger.DebugContext(ctx, "shared price cache write failed",
				slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	return price, true
}

func (c *Cache) store(key string, price float64, at time.Time) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{price: price, fetchedAt: at}
	c.mu.Unlock()
}

// Prices returns asset key -> price for the given assets, omitting assets
// whose price is unavailable.
func (c *Cache) Prices(ctx context.Context, assets []domain.Asset) map[string]float64 {
	out := make(map[string]float64, len(assets))
	for _, a := range assets {
		if p, ok := c.Price(ctx, a); ok {
			out[a.Key] = p
		}
	}
	return out
}
