// Package fxrates reads USD to local-currency rates from an
// open.er-api.com style endpoint.
package fxrates

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/remitbridge-transfer-orchestrator/internal/providers"
)

const providerName = "fx_rates"

type Client struct {
	client *providers.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{client: providers.NewClient(providerName, baseURL, timeout)}
}

type latestResponse struct {
	Result string                     `json:"result"`
	Rates  map[string]decimal.Decimal `json:"rates"`
}

// Rates returns every USD-based rate the provider publishes, keyed by
// upper-case ISO currency code.
func (c *Client) Rates(ctx context.Context) (map[string]decimal.Decimal, error) {
	var out latestResponse
	err := c.client.Do(ctx, providers.Request{
		Operation:   "latest",
		Method:      http.MethodGet,
		Path:        "/latest/USD",
		Out:         &out,
		ErrorReason: providers.MessageField("error-type", "error"),
	})
	if err != nil {
		return nil, err
	}
	if out.Result != "" && out.Result != "success" {
		return nil, c.client.Fail("latest", "provider result "+out.Result, true)
	}

	rates := make(map[string]decimal.Decimal, len(out.Rates))
	for code, r := range out.Rates {
		if r.IsPositive() {
			rates[strings.ToUpper(code)] = r
		}
	}
	return rates, nil
}
