// Package reconciler applies provider webhooks to transfers: completed card
// checkouts create them, payout results and timeouts finish or fail them.
// Every handler is safe to run more than once for the same delivery.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v76"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/shared"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/orchestrator"
)

// Creator opens transfers and hands them to the processor.
type Creator interface {
	CreateTransaction(ctx context.Context, req orchestrator.CreateRequest) (*transfer.Transaction, error)
	Enqueue(ctx context.Context, transactionID string, action shared.CommandAction, correlationID string) error
}

// RetryScheduler persists a deferred payout retry.
type RetryScheduler interface {
	Schedule(ctx context.Context, t *transfer.Transaction) error
}

// Verifier authenticates a checkout webhook.
type Verifier interface {
	Verify(payload []byte, signatureHeader string) (stripe.Event, error)
}

// Action is what a webhook delivery did.
type Action string

const (
	ActionCreated        Action = "created"
	ActionDuplicate      Action = "duplicate"
	ActionIgnored        Action = "ignored"
	ActionInvalid        Action = "invalid"
	ActionCompleted      Action = "completed"
	ActionRetryScheduled Action = "retry_scheduled"
	ActionFailed         Action = "failed"
	ActionNoop           Action = "noop"
)

// Outcome reports a handled delivery. Every outcome is acknowledged to the
// provider; errors are returned separately.
type Outcome struct {
	Action        Action
	TransactionID string
	Reason        string
}

type Reconciler struct {
	repo      transfer.Repository
	publisher orchestrator.StatusPublisher
	creator   Creator
	scheduler RetryScheduler
	verifier  Verifier
	logger    *slog.Logger
	now       func() time.Time
}

// New builds a Reconciler. verifier may be nil in processes that never
// receive checkout webhooks.
func New(
	logger *slog.Logger,
	repo transfer.Repository,
	publisher orchestrator.StatusPublisher,
	creator Creator,
	scheduler RetryScheduler,
	verifier Verifier,
) *Reconciler {
	return &Reconciler{
		repo:      repo,
		publisher: publisher,
		creator:   creator,
		scheduler: scheduler,
		verifier:  verifier,
		logger:    logger.With("component", "reconciler"),
		now:       time.Now,
	}
}

func (r *Reconciler) publish(ctx context.Context, eventType transfer.EventType, t *transfer.Transaction, errMsg string) {
	if err := r.publisher.Publish(ctx, transfer.NewStatusEvent(eventType, t, errMsg)); err != nil {
		r.logger.Warn("Failed to publish status event",
			"transaction_id", t.TransactionID,
			"event_type", eventType,
			"error", err,
		)
	}
}

// rejectPayout is the shared payout-failure path. applies guards the
// mutation against the latest persisted state so redeliveries are no-ops.
func (r *Reconciler) rejectPayout(
	ctx context.Context,
	transactionID string,
	applies func(t *transfer.Transaction) bool,
	reason string,
	details map[string]string,
	retryable bool,
) (Outcome, error) {
	logger := r.logger.With("transaction_id", transactionID)

	updated, changed, err := transfer.Mutate(ctx, r.repo, transactionID, func(t *transfer.Transaction) (bool, error) {
		if !applies(t) {
			return false, nil
		}
		return true, t.RejectPayout(reason, details, retryable, r.now())
	})
	if err != nil {
		return Outcome{TransactionID: transactionID}, fmt.Errorf("failed to apply payout failure: %w", err)
	}
	if !changed {
		logger.Info("Payout failure already applied", "status", updated.Status, "phase", updated.Steps.Payout.Phase)
		return Outcome{Action: ActionNoop, TransactionID: transactionID}, nil
	}

	if updated.Status == transfer.StatusPayoutProcessing {
		logger.Warn("Payout failed, retry scheduled",
			"reason", reason,
			"retry_count", updated.RetryCount,
			"max_retries", updated.MaxRetries,
		)
		r.publish(ctx, transfer.EventStatusUpdate, updated, "")
		if err := r.scheduler.Schedule(ctx, updated); err != nil {
			// The in-flight sweep reschedules rejected payouts with no task.
			logger.Error("Failed to schedule payout retry", "error", err)
		}
		return Outcome{Action: ActionRetryScheduled, TransactionID: transactionID, Reason: reason}, nil
	}

	logger.Warn("Payout failed permanently", "reason", reason, "retry_count", updated.RetryCount)
	r.publish(ctx, transfer.EventError, updated, reason)
	r.publish(ctx, transfer.EventStatusUpdate, updated, "")
	return Outcome{Action: ActionFailed, TransactionID: transactionID, Reason: reason}, nil
}

// isNotFound is a small readability helper for lookups.
func isNotFound(err error) bool {
	return errors.Is(err, transfer.NotFoundError{})
}
