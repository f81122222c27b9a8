package rates

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

const localCacheSize = 256

// staticLocalRates is the last line of defence when the FX provider has never
// answered for a currency.
var staticLocalRates = map[string]decimal.Decimal{
	"KES": decimal.RequireFromString("129.5"),
	"NGN": decimal.RequireFromString("1580"),
	"ZAR": decimal.RequireFromString("18.6"),
	"UGX": decimal.RequireFromString("3700"),
	"TZS": decimal.RequireFromString("2680"),
	"GHS": decimal.RequireFromString("15.5"),
	"RWF": decimal.RequireFromString("1380"),
	"USD": decimal.NewFromInt(1),
}

var countryCurrency = map[string]string{
	"KE": "KES",
	"UG": "UGX",
	"TZ": "TZS",
	"NG": "NGN",
	"GH": "GHS",
	"ZA": "ZAR",
	"RW": "RWF",
}

// CurrencyForCountry returns the payout currency for an ISO country code.
func CurrencyForCountry(country string) (string, bool) {
	c, ok := countryCurrency[strings.ToUpper(strings.TrimSpace(country))]
	return c, ok
}

// LocalRateSource returns USD-based rates keyed by currency code.
type LocalRateSource interface {
	Rates(ctx context.Context) (map[string]decimal.Decimal, error)
}

// LocalRateCache resolves a USD to local-currency rate: fresh cache entry,
// then the provider, then the last value the provider ever gave for that
// currency, then the static table.
type LocalRateCache struct {
	source LocalRateSource
	cache  *expirable.LRU[string, decimal.Decimal]
	logger *slog.Logger
	group  singleflight.Group

	mu        sync.Mutex
	lastKnown map[string]decimal.Decimal
}

// NewLocalRateCache builds the cache. source may be nil, in which case only
// the static table is served.
func NewLocalRateCache(logger *slog.Logger, source LocalRateSource, ttl time.Duration) *LocalRateCache {
	return &LocalRateCache{
		source:    source,
		cache:     expirable.NewLRU[string, decimal.Decimal](localCacheSize, nil, ttl),
		logger:    logger.With("component", "local_rate_cache"),
		lastKnown: make(map[string]decimal.Decimal),
	}
}

func (c *LocalRateCache) Rate(ctx context.Context, currency string) (Quote, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))

	if r, ok := c.cache.Get(currency); ok {
		return Quote{Rate: r, Source: transfer.RateSourceCache}, nil
	}

	if c.source != nil {
		rates, err := c.refresh(ctx)
		if err == nil {
			if r, ok := rates[currency]; ok {
				return Quote{Rate: r, Source: transfer.RateSourceOracle, FetchedAt: time.Now()}, nil
			}
		} else {
			c.logger.Warn("FX provider unavailable", "currency", currency, "error", err)
		}
	}

	c.mu.Lock()
	last, ok := c.lastKnown[currency]
	c.mu.Unlock()
	if ok {
		return Quote{Rate: last, Source: transfer.RateSourceFallback}, nil
	}

	if r, ok := staticLocalRates[currency]; ok {
		return Quote{Rate: r, Source: transfer.RateSourceFallback}, nil
	}

	return Quote{}, transfer.ValidationError{Field: "localCurrency", Reason: "has no known rate: " + currency}
}

// refresh loads every provider rate into the cache. Concurrent misses for any
// currency share one call.
func (c *LocalRateCache) refresh(ctx context.Context) (map[string]decimal.Decimal, error) {
	v, err := shared(ctx, &c.group, "rates", func(ctx context.Context) (any, error) {
		rates, err := c.source.Rates(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		for code, r := range rates {
			c.cache.Add(code, r)
			c.lastKnown[code] = r
		}
		c.mu.Unlock()
		return rates, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]decimal.Decimal), nil
}
