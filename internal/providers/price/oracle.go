// Package price reads the USD price of the bridge asset from a
// CoinGecko-compatible oracle.
package price

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/remitbridge-transfer-orchestrator/internal/providers"
)

const providerName = "price_oracle"

// Oracle fetches the USD price of one bridge-asset unit.
type Oracle struct {
	client  *providers.Client
	assetID string
}

func NewOracle(baseURL, assetID string, timeout time.Duration) *Oracle {
	return &Oracle{
		client:  providers.NewClient(providerName, baseURL, timeout),
		assetID: assetID,
	}
}

// USDPrice calls GET /simple/price?ids=<asset>&vs_currencies=usd.
func (o *Oracle) USDPrice(ctx context.Context) (decimal.Decimal, error) {
	var out map[string]map[string]decimal.Decimal
	err := o.client.Do(ctx, providers.Request{
		Operation: "price",
		Method:    http.MethodGet,
		Path:      "/simple/price",
		Query:     url.Values{"ids": {o.assetID}, "vs_currencies": {"usd"}},
		Out:       &out,
	})
	if err != nil {
		return decimal.Zero, err
	}

	usd, ok := out[o.assetID]["usd"]
	if !ok || !usd.IsPositive() {
		return decimal.Zero, o.client.Fail("price", "no usd price for "+o.assetID, true)
	}
	return usd, nil
}
