package orchestrator

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/shared"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/providers/mpesa"
	"github.com/remitbridge-transfer-orchestrator/internal/rates"
)

// StatusPublisher fans a status event out to subscribers. Both the Kafka
// producer and the in-process hub satisfy it.
type StatusPublisher interface {
	Publish(ctx context.Context, event transfer.StatusEvent) error
}

// CommandDispatcher hands a transfer command to the processor.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, cmd shared.TransferCommand) error
}

// BridgeRates returns the USD price of one bridge-asset unit. It never fails.
type BridgeRates interface {
	Quote(ctx context.Context) rates.Quote
}

// LocalRates returns USD to local-currency rates.
type LocalRates interface {
	Rate(ctx context.Context, currency string) (rates.Quote, error)
}

// LedgerSender moves the bridge asset to the partner ledger. A repeated
// idempotency key returns the first send's receipt.
type LedgerSender interface {
	Send(ctx context.Context, amount decimal.Decimal, memo, idempotencyKey string) (transfer.LedgerTransaction, error)
}

// PayoutInitiator asks the mobile-money provider to pay the receiver.
type PayoutInitiator interface {
	InitiatePayout(ctx context.Context, req mpesa.PayoutRequest) (mpesa.PayoutResponse, error)
}

// PayoutFailureHandler applies a failed payout initiation: it classifies the
// cause and either schedules a retry or fails the transfer.
type PayoutFailureHandler interface {
	PayoutFailed(ctx context.Context, transactionID string, cause error) error
}
