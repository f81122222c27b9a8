// Package orchestrator runs the transfer state machine: creation, the
// conversion, ledger and payout stages, deferred payout retries and manual
// resumes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/shared"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/rates"
)

// Dependencies are the collaborators an Orchestrator drives.
type Dependencies struct {
	Repository transfer.Repository
	Publisher  StatusPublisher
	Commands   CommandDispatcher
	Bridge     BridgeRates
	Local      LocalRates
	Ledger     LedgerSender
	Payouts    PayoutInitiator
}

// Settings are the pricing and retry parameters stamped on new transfers.
type Settings struct {
	Fees       transfer.FeeSchedule
	MaxRetries int
}

type Orchestrator struct {
	repo      transfer.Repository
	publisher StatusPublisher
	commands  CommandDispatcher
	bridge    BridgeRates
	local     LocalRates
	ledger    LedgerSender
	payouts   PayoutInitiator
	failures  PayoutFailureHandler
	settings  Settings
	logger    *slog.Logger
	now       func() time.Time
}

func New(logger *slog.Logger, deps Dependencies, settings Settings) *Orchestrator {
	if settings.MaxRetries <= 0 {
		settings.MaxRetries = transfer.DefaultMaxRetries
	}
	return &Orchestrator{
		repo:      deps.Repository,
		publisher: deps.Publisher,
		commands:  deps.Commands,
		bridge:    deps.Bridge,
		local:     deps.Local,
		ledger:    deps.Ledger,
		payouts:   deps.Payouts,
		settings:  settings,
		logger:    logger.With("component", "orchestrator"),
		now:       time.Now,
	}
}

// SetPayoutFailureHandler installs the payout-failure path. The reconciler
// owns that path and itself depends on the orchestrator, so it is attached
// after both are built.
func (o *Orchestrator) SetPayoutFailureHandler(h PayoutFailureHandler) {
	o.failures = h
}

// CreateRequest is a validated-at-the-edge transfer request.
type CreateRequest struct {
	IdempotencyKey string
	Sender         transfer.Sender
	Receiver       transfer.Receiver
	AmountUSD      decimal.Decimal
	// LocalCurrency defaults from the receiver country when empty.
	LocalCurrency string
	// USDToLocal, when positive, is used instead of the cached rate.
	USDToLocal    decimal.Decimal
	Vault         *transfer.Vault
	CorrelationID string
}

// CreateTransaction prices and persists a new pending transfer. When the
// idempotency key is already taken it returns the existing record together
// with a DuplicateError naming it.
func (o *Orchestrator) CreateTransaction(ctx context.Context, req CreateRequest) (*transfer.Transaction, error) {
	logger := o.logger.With("idempotency_key", req.IdempotencyKey)
	if req.CorrelationID != "" {
		logger = logger.With("correlation_id", req.CorrelationID)
	}

	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, transfer.ValidationError{Field: "idempotencyKey", Reason: "is required"}
	}

	// 1. Idempotency fast path
	existing, err := o.repo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
	if err == nil {
		logger.Info("Transfer already exists for idempotency key", "transaction_id", existing.TransactionID)
		return existing, transfer.DuplicateError{IdempotencyKey: req.IdempotencyKey, TransactionID: existing.TransactionID}
	}
	if !errors.Is(err, transfer.NotFoundError{}) {
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}

	// 2. Resolve rates
	currency := strings.ToUpper(strings.TrimSpace(req.LocalCurrency))
	if currency == "" {
		c, ok := rates.CurrencyForCountry(req.Receiver.Country)
		if !ok {
			return nil, transfer.ValidationError{Field: "fxRate.localCurrency", Reason: "is required for receiver country " + req.Receiver.Country}
		}
		currency = c
	}

	local := rates.Quote{Rate: req.USDToLocal, Source: transfer.RateSourceRequest, FetchedAt: o.now()}
	if !req.USDToLocal.IsPositive() {
		if local, err = o.local.Rate(ctx, currency); err != nil {
			return nil, err
		}
	}
	bridge := o.bridge.Quote(ctx)

	now := o.now()
	fx := transfer.NewFXRate(bridge.Rate, local.Rate, combineSources(bridge.Source, local.Source), now, o.settings.Fees.PlatformFeePercent)

	// 3. Build and persist
	tx, err := transfer.NewTransaction(transfer.NewParams{
		IdempotencyKey: req.IdempotencyKey,
		Sender:         req.Sender,
		Receiver:       req.Receiver,
		USD:            req.AmountUSD,
		LocalCurrency:  currency,
		Vault:          req.Vault,
		FXRate:         fx,
		Fees:           o.settings.Fees,
		MaxRetries:     o.settings.MaxRetries,
		CorrelationID:  req.CorrelationID,
	}, now)
	if err != nil {
		return nil, err
	}

	if err := o.repo.Create(ctx, tx); err != nil {
		if !errors.Is(err, transfer.DuplicateError{}) {
			logger.Error("Failed to persist transfer", "transaction_id", tx.TransactionID, "error", err)
			return nil, fmt.Errorf("failed to create transfer: %w", err)
		}
		// Lost a concurrent insert; the winner's record is the answer.
		winner, getErr := o.repo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if getErr != nil {
			return nil, fmt.Errorf("failed to load transfer after duplicate insert: %w", getErr)
		}
		logger.Info("Concurrent create lost to existing transfer", "transaction_id", winner.TransactionID)
		return winner, transfer.DuplicateError{IdempotencyKey: req.IdempotencyKey, TransactionID: winner.TransactionID}
	}

	logger.Info("Transfer created",
		"transaction_id", tx.TransactionID,
		"usd", tx.Amounts.USD.String(),
		"local_currency", tx.Amounts.LocalCurrency,
		"rate_source", tx.FXRate.Source,
	)
	o.publish(ctx, transfer.EventStatusUpdate, tx, "")
	return tx, nil
}

// Enqueue dispatches a command for the processor.
func (o *Orchestrator) Enqueue(ctx context.Context, transactionID string, action shared.CommandAction, correlationID string) error {
	cmd := shared.TransferCommand{
		TransactionID: transactionID,
		Action:        action,
		CorrelationID: correlationID,
		RequestedAt:   o.now().UTC(),
	}
	if err := o.commands.Dispatch(ctx, cmd); err != nil {
		return fmt.Errorf("failed to dispatch %s command for %s: %w", action, transactionID, err)
	}
	return nil
}

// Get returns the persisted transfer.
func (o *Orchestrator) Get(ctx context.Context, transactionID string) (*transfer.Transaction, error) {
	return o.repo.GetByID(ctx, transactionID)
}

// publish never fails the caller; state is already persisted and
// subscribers can always re-read the projection.
func (o *Orchestrator) publish(ctx context.Context, eventType transfer.EventType, t *transfer.Transaction, errMsg string) {
	if err := o.publisher.Publish(ctx, transfer.NewStatusEvent(eventType, t, errMsg)); err != nil {
		o.logger.Warn("Failed to publish status event",
			"transaction_id", t.TransactionID,
			"event_type", eventType,
			"error", err,
		)
	}
}

// sourceRank orders rate sources by how much they weaken the quote.
var sourceRank = map[string]int{
	transfer.RateSourceCache:    0,
	transfer.RateSourceOracle:   1,
	transfer.RateSourceRequest:  2,
	transfer.RateSourceFallback: 3,
}

// combineSources reports the weaker of the two rate sources.
func combineSources(bridge, local string) string {
	if sourceRank[local] > sourceRank[bridge] {
		return local
	}
	return bridge
}
