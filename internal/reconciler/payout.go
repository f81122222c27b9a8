package reconciler

import (
	"context"
	"fmt"
	"strings"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/orchestrator"
	"github.com/remitbridge-transfer-orchestrator/internal/providers/mpesa"
	"github.com/remitbridge-transfer-orchestrator/internal/retry"
)

// ReasonPaymentTimeout is recorded when the provider's timeout URL fires.
const ReasonPaymentTimeout = "Payment timeout"

// HandlePayoutResult applies a payout result callback. The transfer is found
// by the reference stored at initiation; an unknown reference is a
// NotFoundError.
func (r *Reconciler) HandlePayoutResult(ctx context.Context, body mpesa.PayoutResult) (Outcome, error) {
	res := body.Result
	t, ref, err := r.lookup(ctx, res)
	if err != nil {
		return Outcome{}, err
	}

	if res.Succeeded() {
		return r.confirmPayout(ctx, t.TransactionID, ref, res)
	}

	reason := strings.TrimSpace(res.ResultDesc)
	if reason == "" {
		reason = fmt.Sprintf("payout failed with result code %s", res.ResultCode)
	}
	details := map[string]string{
		"result_code":     string(res.ResultCode),
		"conversation_id": res.ConversationID,
	}
	return r.rejectPayout(ctx, t.TransactionID, awaiting(ref), reason, details, retry.IsRetryableMessage(reason))
}

// HandlePayoutTimeout applies the provider's queue-timeout callback. It is
// the failure path with a fixed, retryable reason.
func (r *Reconciler) HandlePayoutTimeout(ctx context.Context, body mpesa.PayoutResult) (Outcome, error) {
	res := body.Result
	t, ref, err := r.lookup(ctx, res)
	if err != nil {
		return Outcome{}, err
	}

	details := map[string]string{"conversation_id": res.ConversationID}
	if res.ResultDesc != "" {
		details["result_desc"] = res.ResultDesc
	}
	return r.rejectPayout(ctx, t.TransactionID, awaiting(ref), ReasonPaymentTimeout, details, retry.IsRetryableMessage(ReasonPaymentTimeout))
}

// PayoutFailed applies a failed payout initiation. The orchestrator calls it
// when the provider refuses a request before any ConversationID exists.
func (r *Reconciler) PayoutFailed(ctx context.Context, transactionID string, cause error) error {
	reason := cause.Error()
	if pe, ok := transfer.AsProviderError(cause); ok {
		reason = pe.Reason
	}
	_, err := r.rejectPayout(ctx, transactionID, payoutNotInFlight, reason, orchestrator.FailureDetails(cause), retry.IsRetryable(cause))
	return err
}

func (r *Reconciler) confirmPayout(ctx context.Context, transactionID, ref string, res mpesa.Result) (Outcome, error) {
	settlement := res.Settlement()

	updated, changed, err := transfer.Mutate(ctx, r.repo, transactionID, func(t *transfer.Transaction) (bool, error) {
		if !t.AwaitingPayoutResult(ref) {
			return false, nil
		}
		return true, t.ConfirmPayout(ref, settlement.Receipt, settlement.Amount, settlement.CompletedAt, r.now())
	})
	if err != nil {
		return Outcome{TransactionID: transactionID}, fmt.Errorf("failed to confirm payout: %w", err)
	}
	if !changed {
		r.logger.Info("Payout result already applied",
			"transaction_id", transactionID,
			"conversation_id", ref,
			"status", updated.Status,
		)
		return Outcome{Action: ActionNoop, TransactionID: transactionID}, nil
	}

	r.logger.Info("Payout confirmed",
		"transaction_id", transactionID,
		"conversation_id", ref,
		"receipt", settlement.Receipt,
		"settled_amount", settlement.Amount.String(),
	)
	r.publish(ctx, transfer.EventTransactionComplete, updated, "")
	r.publish(ctx, transfer.EventStatusUpdate, updated, "")
	return Outcome{Action: ActionCompleted, TransactionID: transactionID}, nil
}

// lookup finds the transfer a callback belongs to and the reference it was
// recorded under. A payout recorded after a duplicate submission is known
// only by the originator id we sent.
func (r *Reconciler) lookup(ctx context.Context, res mpesa.Result) (*transfer.Transaction, string, error) {
	if strings.TrimSpace(res.ConversationID) == "" {
		return nil, "", transfer.ValidationError{Field: "Result.ConversationID", Reason: "is required"}
	}
	t, err := r.repo.GetByPayoutReference(ctx, res.ConversationID)
	if err == nil {
		return t, res.ConversationID, nil
	}
	if !isNotFound(err) {
		return nil, "", err
	}

	if res.OriginatorConversationID != "" {
		t, oerr := r.repo.GetByPayoutReference(ctx, res.OriginatorConversationID)
		if oerr == nil {
			return t, res.OriginatorConversationID, nil
		}
		if !isNotFound(oerr) {
			return nil, "", oerr
		}
	}

	r.logger.Warn("Payout callback for unknown reference",
		"conversation_id", res.ConversationID,
		"originator_conversation_id", res.OriginatorConversationID,
	)
	return nil, "", err
}

// awaiting matches a transfer still waiting on the result for ref.
func awaiting(ref string) func(t *transfer.Transaction) bool {
	return func(t *transfer.Transaction) bool {
		return t.AwaitingPayoutResult(ref)
	}
}

// payoutNotInFlight matches a transfer whose payout stage is next and has no
// request outstanding.
func payoutNotInFlight(t *transfer.Transaction) bool {
	if t.Status == transfer.StatusCompleted || t.Status == transfer.StatusFailed {
		return false
	}
	stage, ok := t.NextStage()
	return ok && stage == transfer.StagePayout
}
