package orchestrator

import (
	"context"
	"fmt"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/shared"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

// RetryPayout is the deferred payout re-entry run by the retry poller.
// A task whose attempt no longer matches the transfer is stale and ignored.
// Errors are returned only when the task should be tried again.
func (o *Orchestrator) RetryPayout(ctx context.Context, transactionID string, attempt int) error {
	logger := o.logger.With("transaction_id", transactionID, "attempt", attempt)

	t, err := o.repo.GetByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if !retryDue(t, attempt) {
		logger.Info("Skipping stale payout retry", "status", t.Status, "retry_count", t.RetryCount, "phase", t.Steps.Payout.Phase)
		return nil
	}

	ref, err := o.requestPayout(ctx, t)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		var outcome StageOutcome
		if isValidation(err) {
			outcome, err = o.failStage(ctx, transactionID, transfer.StagePayout, err)
		} else {
			outcome, err = o.payoutFailed(ctx, transactionID, err)
		}
		if err != nil {
			return err
		}
		logger.Warn("Payout retry failed", "result", outcome.Result, "reason", outcome.Reason)
		return nil
	}

	updated, changed, err := transfer.Mutate(ctx, o.repo, transactionID, func(t *transfer.Transaction) (bool, error) {
		if !retryDue(t, attempt) {
			return false, nil
		}
		return true, t.InitiatePayout(ref, o.now())
	})
	if err != nil {
		logger.Error("Payout retry initiated but not recorded", "conversation_id", ref, "error", err)
		return fmt.Errorf("failed to record payout retry %s: %w", ref, err)
	}
	if !changed {
		// Someone moved the transfer on while the provider call was in flight.
		logger.Warn("Payout retry initiated for a transfer that moved on", "conversation_id", ref, "status", updated.Status)
		return nil
	}

	logger.Info("Payout retry initiated", "conversation_id", ref, "payout_attempts", updated.Steps.Payout.Attempts)
	o.publish(ctx, transfer.EventStatusUpdate, updated, "")
	return nil
}

// Resume reopens a failed transfer at its first incomplete stage, consumes
// one unit of retry budget and enqueues a resume command.
func (o *Orchestrator) Resume(ctx context.Context, transactionID string) (*transfer.Transaction, error) {
	updated, _, err := transfer.Mutate(ctx, o.repo, transactionID, func(t *transfer.Transaction) (bool, error) {
		return true, t.Reopen(o.now())
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("Transfer reopened for manual retry",
		"transaction_id", transactionID,
		"status", updated.Status,
		"retry_count", updated.RetryCount,
	)
	o.publish(ctx, transfer.EventStatusUpdate, updated, "")

	if err := o.Enqueue(ctx, transactionID, shared.CommandResume, updated.CorrelationID); err != nil {
		return updated, err
	}
	return updated, nil
}

// retryDue reports whether a retry task scheduled for attempt still applies.
func retryDue(t *transfer.Transaction, attempt int) bool {
	return retryPending(t) && t.RetryCount == attempt
}
