package service

import (
	"context"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/shared"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/orchestrator"
	"github.com/remitbridge-transfer-orchestrator/internal/providers/mpesa"
	"github.com/remitbridge-transfer-orchestrator/internal/reconciler"
	"github.com/remitbridge-transfer-orchestrator/internal/rates"
)

// TransferService defines the interface for transfer operations
type TransferService interface {
	// CreateTransfer persists a new transfer and queues its first stage.
	// duplicate is true when the idempotency key was already taken; the
	// existing transfer is returned with a nil error in that case.
	CreateTransfer(ctx context.Context, req orchestrator.CreateRequest) (t *transfer.Transaction, duplicate bool, err error)

	// GetTransfer returns a NotFoundError when the id is unknown
	GetTransfer(ctx context.Context, transactionID string) (*transfer.Transaction, error)

	// RetryTransfer reopens a failed transfer. Returns a ValidationError when
	// the transfer is not failed or its retry budget is spent.
	RetryTransfer(ctx context.Context, transactionID string) (*transfer.Transaction, error)
}

// RateService defines the interface for rate lookups
type RateService interface {
	Rates(ctx context.Context, currency string) (RateSnapshot, error)
}

// WebhookService handles provider callbacks. reconciler.Reconciler implements it.
type WebhookService interface {
	HandleCheckoutCompleted(ctx context.Context, payload []byte, signatureHeader, correlationID string) (reconciler.Outcome, error)
	HandlePayoutResult(ctx context.Context, body mpesa.PayoutResult) (reconciler.Outcome, error)
	HandlePayoutTimeout(ctx context.Context, body mpesa.PayoutResult) (reconciler.Outcome, error)
}

// TransferOrchestrator is the part of the orchestrator the gateway drives
type TransferOrchestrator interface {
	CreateTransaction(ctx context.Context, req orchestrator.CreateRequest) (*transfer.Transaction, error)
	Enqueue(ctx context.Context, transactionID string, action shared.CommandAction, correlationID string) error
	Get(ctx context.Context, transactionID string) (*transfer.Transaction, error)
}

// ManualRetrier validates and performs an operator retry
type ManualRetrier interface {
	ManualRetry(ctx context.Context, transactionID string) (*transfer.Transaction, error)
}

// RateSnapshot is the pair of rates a transfer to currency would be quoted at
type RateSnapshot struct {
	Currency   string
	BridgeUSD  rates.Quote // USD price of one bridge-asset unit
	USDToLocal rates.Quote
}

var _ WebhookService = (*reconciler.Reconciler)(nil)
