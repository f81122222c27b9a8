// Package rates caches the bridge-asset price and local-currency rates used
// to quote transfers.
package rates

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

// sharedFetchTimeout bounds an upstream call made on behalf of every caller
// waiting on it.
const sharedFetchTimeout = 15 * time.Second

// Quote is a rate together with where it came from.
type Quote struct {
	Rate      decimal.Decimal
	Source    string // transfer.RateSourceOracle, RateSourceCache or RateSourceFallback
	FetchedAt time.Time
}

// PriceSource returns the USD price of one bridge-asset unit.
type PriceSource interface {
	USDPrice(ctx context.Context) (decimal.Decimal, error)
}

// PriceCache holds the USD to bridge-asset rate. Concurrent misses share a
// single upstream call; the last successful fetch wins.
type PriceCache struct {
	source   PriceSource
	ttl      time.Duration
	fallback decimal.Decimal
	logger   *slog.Logger
	now      func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	rate      decimal.Decimal
	fetchedAt time.Time
}

func NewPriceCache(logger *slog.Logger, source PriceSource, ttl time.Duration, fallback decimal.Decimal) *PriceCache {
	return &PriceCache{
		source:   source,
		ttl:      ttl,
		fallback: fallback,
		logger:   logger.With("component", "price_cache"),
		now:      time.Now,
	}
}

// GetCachedRate returns the current rate. It never fails: when the oracle is
// unreachable the last known rate, or the configured fallback, is returned.
func (c *PriceCache) GetCachedRate(ctx context.Context) decimal.Decimal {
	return c.Quote(ctx).Rate
}

// Quote is GetCachedRate with the rate's source.
func (c *PriceCache) Quote(ctx context.Context) Quote {
	if q, ok := c.fresh(); ok {
		return q
	}

	q, err := c.fetch(ctx)
	if err == nil {
		return q
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.rate.IsPositive() {
		c.logger.Warn("Price oracle unavailable, serving stale rate", "error", err, "age", c.now().Sub(c.fetchedAt))
		return Quote{Rate: c.rate, Source: transfer.RateSourceFallback, FetchedAt: c.fetchedAt}
	}
	c.logger.Warn("Price oracle unavailable and nothing cached, serving configured fallback", "error", err)
	return Quote{Rate: c.fallback, Source: transfer.RateSourceFallback}
}

// ForceRefresh bypasses the TTL.
func (c *PriceCache) ForceRefresh(ctx context.Context) (decimal.Decimal, error) {
	q, err := c.fetch(ctx)
	return q.Rate, err
}

// Run refreshes the rate every TTL until ctx is canceled, so request paths
// rarely pay for an oracle round trip.
func (c *PriceCache) Run(ctx context.Context) {
	if _, err := c.ForceRefresh(ctx); err != nil {
		c.logger.Warn("Initial price refresh failed", "error", err)
	}

	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.ForceRefresh(ctx); err != nil {
				c.logger.Warn("Scheduled price refresh failed", "error", err)
			}
		}
	}
}

func (c *PriceCache) fresh() (Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.rate.IsPositive() && c.now().Sub(c.fetchedAt) < c.ttl {
		return Quote{Rate: c.rate, Source: transfer.RateSourceCache, FetchedAt: c.fetchedAt}, true
	}
	return Quote{}, false
}

func (c *PriceCache) fetch(ctx context.Context) (Quote, error) {
	v, err := shared(ctx, &c.group, "price", func(ctx context.Context) (any, error) {
		rate, err := c.source.USDPrice(ctx)
		if err != nil {
			return Quote{}, err
		}
		now := c.now()
		c.mu.Lock()
		c.rate = rate
		c.fetchedAt = now
		c.mu.Unlock()
		c.logger.Debug("Refreshed bridge price", "rate", rate.String())
		return Quote{Rate: rate, Source: transfer.RateSourceOracle, FetchedAt: now}, nil
	})
	if err != nil {
		return Quote{}, err
	}
	return v.(Quote), nil
}

// shared runs fn once for all concurrent callers of key. fn runs detached
// from the caller that started it, so one canceled request does not fail the
// others; each caller still stops waiting when its own ctx ends.
func shared(ctx context.Context, group *singleflight.Group, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		return fn(fetchCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
