package rates

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type fakePrice struct {
	calls   atomic.Int32
	mu      sync.Mutex
	price   decimal.Decimal
	err     error
	release chan struct{} // when set, calls block until closed
}

func (f *fakePrice) USDPrice(context.Context) (decimal.Decimal, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.price, f.err
}

func (f *fakePrice) set(price string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if price != "" {
		f.price = decimal.RequireFromString(price)
	}
	f.err = err
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newPriceCache(src PriceSource, clk *clock) *PriceCache {
	c := NewPriceCache(newTestLogger(), src, time.Minute, decimal.RequireFromString("0.50"))
	c.now = clk.now
	return c
}

func TestPriceCache_Quote(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	src := &fakePrice{}
	src.set("0.52", nil)
	c := newPriceCache(src, clk)

	q := c.Quote(ctx)
	assert.Equal(t, "0.52", q.Rate.String())
	assert.Equal(t, transfer.RateSourceOracle, q.Source)

	clk.advance(30 * time.Second)
	src.set("0.60", nil)
	q = c.Quote(ctx)
	assert.Equal(t, "0.52", q.Rate.String(), "served from cache within TTL")
	assert.Equal(t, transfer.RateSourceCache, q.Source)
	assert.Equal(t, int32(1), src.calls.Load())

	clk.advance(31 * time.Second)
	assert.Equal(t, "0.6", c.GetCachedRate(ctx).String(), "refetched after TTL")

	clk.advance(2 * time.Minute)
	src.set("", errors.New("oracle down"))
	q = c.Quote(ctx)
	assert.Equal(t, "0.6", q.Rate.String(), "last known rate on error")
	assert.Equal(t, transfer.RateSourceFallback, q.Source)
}

func TestPriceCache_ConfiguredFallback(t *testing.T) {
	src := &fakePrice{}
	src.set("", errors.New("oracle down"))
	c := newPriceCache(src, &clock{t: time.Now()})

	q := c.Quote(context.Background())
	assert.Equal(t, "0.5", q.Rate.String())
	assert.Equal(t, transfer.RateSourceFallback, q.Source)
}

func TestPriceCache_ForceRefreshBypassesTTL(t *testing.T) {
	ctx := context.Background()
	src := &fakePrice{}
	src.set("0.52", nil)
	c := newPriceCache(src, &clock{t: time.Now()})

	c.GetCachedRate(ctx)
	src.set("0.55", nil)
	rate, err := c.ForceRefresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.55", rate.String())
	assert.Equal(t, "0.55", c.GetCachedRate(ctx).String())
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestPriceCache_ConcurrentMissesShareOneFetch(t *testing.T) {
	src := &fakePrice{release: make(chan struct{})}
	src.set("0.52", nil)
	c := newPriceCache(src, &clock{t: time.Now()})

	const n = 20
	var wg sync.WaitGroup
	results := make([]decimal.Decimal, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.GetCachedRate(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(src.release)
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
	for _, r := range results {
		assert.Equal(t, "0.52", r.String())
	}
}

// slowPrice answers once released, or fails when its context ends first.
type slowPrice struct {
	calls   atomic.Int32
	release chan struct{}
}

func (s *slowPrice) USDPrice(ctx context.Context) (decimal.Decimal, error) {
	s.calls.Add(1)
	select {
	case <-s.release:
		return decimal.RequireFromString("0.53"), nil
	case <-ctx.Done():
		return decimal.Decimal{}, ctx.Err()
	}
}

func TestPriceCache_CanceledCallerLeavesFetchRunning(t *testing.T) {
	src := &slowPrice{release: make(chan struct{})}
	c := newPriceCache(src, &clock{t: time.Now()})

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Quote, 1)
	go func() { got <- c.Quote(ctx) }()

	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case q := <-got:
		assert.Equal(t, transfer.RateSourceFallback, q.Source, "the canceled caller stops waiting")
	case <-time.After(time.Second):
		t.Fatal("canceled caller kept waiting on the shared fetch")
	}

	close(src.release)
	require.Eventually(t, func() bool {
		_, ok := c.fresh()
		return ok
	}, time.Second, time.Millisecond, "the shared fetch completes for everyone else")

	q := c.Quote(context.Background())
	assert.Equal(t, transfer.RateSourceCache, q.Source)
	assert.Equal(t, "0.53", q.Rate.String())
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestPriceCache_RunStopsOnCancel(t *testing.T) {
	src := &fakePrice{}
	src.set("0.52", nil)
	c := NewPriceCache(newTestLogger(), src, 5*time.Millisecond, decimal.RequireFromString("0.5"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return src.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type fakeFX struct {
	calls atomic.Int32
	rates map[string]decimal.Decimal
	err   error
}

func (f *fakeFX) Rates(context.Context) (map[string]decimal.Decimal, error) {
	f.calls.Add(1)
	return f.rates, f.err
}

func TestLocalRateCache_Rate(t *testing.T) {
	ctx := context.Background()
	src := &fakeFX{rates: map[string]decimal.Decimal{
		"KES": decimal.RequireFromString("130.1"),
		"ZMW": decimal.RequireFromString("26.4"),
	}}
	c := NewLocalRateCache(newTestLogger(), src, time.Minute)

	q, err := c.Rate(ctx, "kes")
	require.NoError(t, err)
	assert.Equal(t, "130.1", q.Rate.String())
	assert.Equal(t, transfer.RateSourceOracle, q.Source)

	q, err = c.Rate(ctx, "ZMW")
	require.NoError(t, err)
	assert.Equal(t, transfer.RateSourceCache, q.Source, "one fetch fills every currency")
	assert.Equal(t, int32(1), src.calls.Load())

	// Provider now down and cache purged: last known value wins over the table.
	src.err = errors.New("service unavailable")
	c.cache.Purge()
	q, err = c.Rate(ctx, "KES")
	require.NoError(t, err)
	assert.Equal(t, "130.1", q.Rate.String())
	assert.Equal(t, transfer.RateSourceFallback, q.Source)

	q, err = c.Rate(ctx, "NGN")
	require.NoError(t, err)
	assert.Equal(t, "1580", q.Rate.String(), "static table")

	_, err = c.Rate(ctx, "XYZ")
	assert.ErrorIs(t, err, transfer.ValidationError{Field: "localCurrency"})
}

func TestLocalRateCache_NoUpstream(t *testing.T) {
	c := NewLocalRateCache(newTestLogger(), nil, time.Minute)

	tests := map[string]string{"KES": "129.5", "UGX": "3700", "TZS": "2680", "GHS": "15.5", "RWF": "1380", "ZAR": "18.6", "USD": "1"}
	for currency, want := range tests {
		q, err := c.Rate(context.Background(), currency)
		require.NoError(t, err, currency)
		assert.Equal(t, want, q.Rate.String(), currency)
	}
}

func TestCurrencyForCountry(t *testing.T) {
	tests := []struct {
		country string
		want    string
		ok      bool
	}{
		{"KE", "KES", true},
		{"ug", "UGX", true},
		{" NG ", "NGN", true},
		{"RW", "RWF", true},
		{"US", "", false},
	}
	for _, tt := range tests {
		got, ok := CurrencyForCountry(tt.country)
		assert.Equal(t, tt.ok, ok, tt.country)
		assert.Equal(t, tt.want, got, tt.country)
	}
}
