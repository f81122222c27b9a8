package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/shared"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/orchestrator"
	"github.com/remitbridge-transfer-orchestrator/internal/providers/checkout"
)

// HandleCheckoutCompleted turns a signed completed-checkout event into a
// transfer and enqueues it. A bad signature returns checkout.ErrInvalidSignature
// and changes nothing. Bad order metadata is acknowledged so the provider
// stops redelivering it.
func (r *Reconciler) HandleCheckoutCompleted(ctx context.Context, payload []byte, signatureHeader, correlationID string) (Outcome, error) {
	if r.verifier == nil {
		return Outcome{}, transfer.ConfigurationError{Setting: "CHECKOUT_WEBHOOK_SECRET"}
	}
	logger := r.logger
	if correlationID != "" {
		logger = logger.With("correlation_id", correlationID)
	}

	ev, err := r.verifier.Verify(payload, signatureHeader)
	if err != nil {
		logger.Warn("Rejected checkout webhook", "error", err)
		return Outcome{}, err
	}
	if string(ev.Type) != checkout.EventCheckoutCompleted {
		logger.Debug("Ignoring checkout event", "event_type", ev.Type, "event_id", ev.ID)
		return Outcome{Action: ActionIgnored}, nil
	}

	session, err := checkout.SessionFromEvent(ev)
	if err != nil {
		logger.Warn("Unreadable checkout session", "event_id", ev.ID, "error", err)
		return Outcome{Action: ActionInvalid, Reason: err.Error()}, nil
	}
	key := checkout.IdempotencyKey(session.ID)
	logger = logger.With("idempotency_key", key)

	// 1. Redelivery
	existing, err := r.repo.GetByIdempotencyKey(ctx, key)
	if err == nil {
		return r.duplicate(ctx, existing, correlationID)
	}
	if !isNotFound(err) {
		return Outcome{}, fmt.Errorf("failed to check checkout session %s: %w", session.ID, err)
	}

	// 2. Decode the order and create
	order, err := session.Order()
	if err != nil {
		logger.Warn("Invalid checkout metadata", "session_id", session.ID, "error", err)
		return Outcome{Action: ActionInvalid, Reason: err.Error()}, nil
	}

	req := orchestrator.CreateRequest{
		IdempotencyKey: key,
		Sender:         transfer.Sender{Name: order.SenderName, Email: order.SenderEmail},
		Receiver:       transfer.Receiver{Name: order.ReceiverName, Phone: order.ReceiverPhone, Country: order.ReceiverCountry},
		AmountUSD:      order.AmountUSD,
		LocalCurrency:  order.LocalCurrency,
		USDToLocal:     order.USDToLocal,
		CorrelationID:  correlationID,
	}
	if order.Vault {
		req.Vault = &transfer.Vault{Enabled: true}
	}

	tx, err := r.creator.CreateTransaction(ctx, req)
	switch {
	case errors.Is(err, transfer.DuplicateError{}):
		return r.duplicate(ctx, tx, correlationID)
	case errors.Is(err, transfer.ValidationError{}):
		logger.Warn("Checkout order rejected", "session_id", session.ID, "error", err)
		return Outcome{Action: ActionInvalid, Reason: err.Error()}, nil
	case err != nil:
		return Outcome{}, err
	}

	// 3. Hand off to the processor
	if err := r.creator.Enqueue(ctx, tx.TransactionID, shared.CommandAdvance, correlationID); err != nil {
		// the redelivery finds a pending duplicate and enqueues again
		return Outcome{Action: ActionCreated, TransactionID: tx.TransactionID}, err
	}

	logger.Info("Transfer created from checkout", "transaction_id", tx.TransactionID, "session_id", session.ID)
	return Outcome{Action: ActionCreated, TransactionID: tx.TransactionID}, nil
}

// duplicate acknowledges a redelivered session. A transfer that never left
// pending is enqueued again, since its first command may have been lost.
func (r *Reconciler) duplicate(ctx context.Context, t *transfer.Transaction, correlationID string) (Outcome, error) {
	outcome := Outcome{Action: ActionDuplicate, TransactionID: t.TransactionID}
	if t.Status != transfer.StatusPending {
		return outcome, nil
	}
	if err := r.creator.Enqueue(ctx, t.TransactionID, shared.CommandAdvance, correlationID); err != nil {
		return outcome, err
	}
	return outcome, nil
}
