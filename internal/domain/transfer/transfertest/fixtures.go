package transfertest

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

// Fees used by fixtures: a flat 0.50 USD network fee and no percentage.
var FlatFees = transfer.FeeSchedule{
	NetworkFeeUSD:       decimal.RequireFromString("0.50"),
	PlatformFeePercent:  decimal.Zero,
	BenchmarkFeePercent: decimal.RequireFromString("6.5"),
}

// Params returns valid creation params for a Kenyan receiver.
func Params(usd string) transfer.NewParams {
	now := time.Now()
	return transfer.NewParams{
		IdempotencyKey: "idem-" + uuid.NewString(),
		Sender:         transfer.Sender{Name: "Ada Sender", Email: "ada@example.com"},
		Receiver:       transfer.Receiver{Name: "Wanjiru Receiver", Phone: "0712345678", Country: "KE"},
		USD:            decimal.RequireFromString(usd),
		LocalCurrency:  "KES",
		FXRate: transfer.NewFXRate(
			decimal.RequireFromString("0.50"),
			decimal.RequireFromString("129.5"),
			transfer.RateSourceCache,
			now,
			FlatFees.PlatformFeePercent,
		),
		Fees:       FlatFees,
		MaxRetries: transfer.DefaultMaxRetries,
	}
}

// NewTransaction builds a pending transfer from Params.
func NewTransaction(usd string) *transfer.Transaction {
	t, err := transfer.NewTransaction(Params(usd), time.Now())
	if err != nil {
		panic(err)
	}
	return t
}

// AwaitingPayout returns a transfer whose payout was initiated under ref.
func AwaitingPayout(usd, ref string) *transfer.Transaction {
	now := time.Now()
	t := NewTransaction(usd)
	must(t.CompleteConversion(t.FXRate.USDToBridge, transfer.RateSourceCache, now))
	must(t.CompleteLedgerTransfer(transfer.LedgerTransaction{
		Hash:        "LEDGERHASH",
		LedgerIndex: 42,
		Fee:         decimal.RequireFromString("0.000012"),
		Amount:      t.Amounts.BridgeAsset,
	}, now))
	must(t.InitiatePayout(ref, now))
	return t
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
