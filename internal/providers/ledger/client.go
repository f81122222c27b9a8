// Package ledger moves the bridge asset to the partner address on the
// distributed ledger through a payment gateway API.
package ledger

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/providers"
)

const providerName = "ledger"

// IdempotencyKeyHeader deduplicates payment submissions at the gateway.
const IdempotencyKeyHeader = "Idempotency-Key"

type Client struct {
	client         *providers.Client
	apiKey         string
	partnerAddress string
}

func NewClient(baseURL, apiKey, partnerAddress string, timeout time.Duration) *Client {
	return &Client{
		client:         providers.NewClient(providerName, baseURL, timeout),
		apiKey:         apiKey,
		partnerAddress: partnerAddress,
	}
}

type paymentRequest struct {
	Destination string          `json:"destination"`
	Amount      decimal.Decimal `json:"amount"`
	Memo        string          `json:"memo"`
}

type paymentResponse struct {
	Hash        string          `json:"hash"`
	LedgerIndex uint64          `json:"ledger_index"`
	Fee         decimal.Decimal `json:"fee"`
	Result      string          `json:"engine_result,omitempty"`
}

// Send transfers amount of the bridge asset to the partner address. memo
// carries the transaction id so the partner can match the deposit. A repeated
// idempotencyKey makes the gateway return the original payment's receipt
// instead of paying twice.
func (c *Client) Send(ctx context.Context, amount decimal.Decimal, memo, idempotencyKey string) (transfer.LedgerTransaction, error) {
	var out paymentResponse
	err := c.client.Do(ctx, providers.Request{
		Operation: "payment",
		Method:    http.MethodPost,
		Path:      "/v1/payments",
		Header: http.Header{
			"Authorization":      {"Bearer " + c.apiKey},
			IdempotencyKeyHeader: {idempotencyKey},
		},
		Body: paymentRequest{
			Destination: c.partnerAddress,
			Amount:      amount,
			Memo:        memo,
		},
		Out:         &out,
		ErrorReason: providers.MessageField("error_message", "error", "message"),
	})
	if err != nil {
		return transfer.LedgerTransaction{}, err
	}

	if out.Hash == "" {
		return transfer.LedgerTransaction{}, c.client.Fail("payment", "ledger returned no transaction hash", false)
	}
	if out.Result != "" && out.Result != "tesSUCCESS" {
		return transfer.LedgerTransaction{}, c.client.Fail("payment", out.Result, false)
	}

	return transfer.LedgerTransaction{
		Hash:        out.Hash,
		LedgerIndex: out.LedgerIndex,
		Fee:         out.Fee,
		Amount:      amount,
	}, nil
}
