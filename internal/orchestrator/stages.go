package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/providers/mpesa"
)

// Result says what an Advance did and whether the pipeline should go on.
type Result string

const (
	// ResultAdvanced means a stage completed and the next one may run.
	ResultAdvanced Result = "advanced"
	// ResultAwaiting means the transfer now waits on a provider callback or a
	// scheduled payout retry.
	ResultAwaiting Result = "awaiting"
	// ResultRetryScheduled means the payout failed and a retry was scheduled.
	ResultRetryScheduled Result = "retry_scheduled"
	// ResultFailed means the stage failed and the transfer is failed.
	ResultFailed Result = "failed"
	// ResultHalted means there was nothing to run: the transfer is completed
	// or failed.
	ResultHalted Result = "halted"
)

// StageOutcome reports one Advance. Stage failures land here, not in the
// returned error; the error is reserved for infrastructure problems.
type StageOutcome struct {
	Transaction *transfer.Transaction
	Stage       transfer.Stage
	Result      Result
	Reason      string
}

// Continue reports whether Process should run the next stage.
func (s StageOutcome) Continue() bool {
	return s.Result == ResultAdvanced
}

// Advance runs the next incomplete stage of a transfer.
func (o *Orchestrator) Advance(ctx context.Context, transactionID string) (StageOutcome, error) {
	return o.advance(ctx, transactionID, false)
}

// Process runs stages until the payout is initiated, a stage fails or
// nothing is left to do. Every stage is persisted before the next starts.
func (o *Orchestrator) Process(ctx context.Context, transactionID string) (StageOutcome, error) {
	return o.run(ctx, transactionID, false)
}

// ProcessResume is Process for a manually reopened transfer: a rejected
// payout is re-initiated immediately instead of waiting for a scheduled retry.
func (o *Orchestrator) ProcessResume(ctx context.Context, transactionID string) (StageOutcome, error) {
	return o.run(ctx, transactionID, true)
}

func (o *Orchestrator) run(ctx context.Context, transactionID string, resume bool) (StageOutcome, error) {
	for {
		outcome, err := o.advance(ctx, transactionID, resume)
		if err != nil {
			return outcome, err
		}
		if !outcome.Continue() {
			return outcome, nil
		}
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
	}
}

func (o *Orchestrator) advance(ctx context.Context, transactionID string, resume bool) (StageOutcome, error) {
	t, err := o.repo.GetByID(ctx, transactionID)
	if err != nil {
		return StageOutcome{}, err
	}

	if t.Status == transfer.StatusCompleted || t.Status == transfer.StatusFailed {
		return StageOutcome{Transaction: t, Result: ResultHalted}, nil
	}

	stage, ok := t.NextStage()
	if !ok {
		return StageOutcome{Transaction: t, Result: ResultAwaiting}, nil
	}

	switch stage {
	case transfer.StageConversion:
		return o.convert(ctx, t)
	case transfer.StageLedgerTransfer:
		return o.sendToLedger(ctx, t)
	default:
		if retryPending(t) && !resume {
			return StageOutcome{Transaction: t, Stage: stage, Result: ResultAwaiting}, nil
		}
		return o.initiatePayout(ctx, t)
	}
}

// convert locks the live bridge rate. No funds move here.
func (o *Orchestrator) convert(ctx context.Context, t *transfer.Transaction) (StageOutcome, error) {
	quote := o.bridge.Quote(ctx)
	source := combineSources(quote.Source, t.FXRate.Source)

	updated, _, err := transfer.Mutate(ctx, o.repo, t.TransactionID, func(t *transfer.Transaction) (bool, error) {
		if t.Steps.Conversion.Completed {
			return false, nil
		}
		return true, t.CompleteConversion(quote.Rate, source, o.now())
	})
	if err != nil {
		if isValidation(err) {
			return o.failStage(ctx, t.TransactionID, transfer.StageConversion, err)
		}
		return StageOutcome{Transaction: t}, fmt.Errorf("failed to record conversion: %w", err)
	}

	o.logger.Info("Conversion completed",
		"transaction_id", updated.TransactionID,
		"usd_to_bridge", updated.FXRate.USDToBridge.String(),
		"bridge_asset", updated.Amounts.BridgeAsset.String(),
		"rate_source", updated.FXRate.Source,
	)
	o.publish(ctx, transfer.EventStatusUpdate, updated, "")
	return StageOutcome{Transaction: updated, Stage: transfer.StageConversion, Result: ResultAdvanced}, nil
}

func (o *Orchestrator) sendToLedger(ctx context.Context, t *transfer.Transaction) (StageOutcome, error) {
	receipt, err := o.ledger.Send(ctx, t.Amounts.BridgeAsset, t.TransactionID, t.AttemptKey(transfer.StageLedgerTransfer))
	if err != nil {
		if ctx.Err() != nil {
			return StageOutcome{Transaction: t}, err
		}
		return o.failStage(ctx, t.TransactionID, transfer.StageLedgerTransfer, err)
	}

	updated, _, err := transfer.Mutate(ctx, o.repo, t.TransactionID, func(t *transfer.Transaction) (bool, error) {
		if t.Steps.LedgerTransfer.Completed {
			return false, nil
		}
		return true, t.CompleteLedgerTransfer(receipt, o.now())
	})
	if err != nil {
		o.logger.Error("Ledger transfer sent but not recorded",
			"transaction_id", t.TransactionID,
			"ledger_hash", receipt.Hash,
			"error", err,
		)
		return StageOutcome{Transaction: t}, fmt.Errorf("failed to record ledger transfer %s: %w", receipt.Hash, err)
	}

	o.logger.Info("Ledger transfer completed",
		"transaction_id", updated.TransactionID,
		"ledger_hash", receipt.Hash,
		"ledger_index", receipt.LedgerIndex,
	)
	o.publish(ctx, transfer.EventStatusUpdate, updated, "")
	return StageOutcome{Transaction: updated, Stage: transfer.StageLedgerTransfer, Result: ResultAdvanced}, nil
}

func (o *Orchestrator) initiatePayout(ctx context.Context, t *transfer.Transaction) (StageOutcome, error) {
	ref, err := o.requestPayout(ctx, t)
	if err != nil {
		if ctx.Err() != nil {
			return StageOutcome{Transaction: t}, err
		}
		if isValidation(err) {
			return o.failStage(ctx, t.TransactionID, transfer.StagePayout, err)
		}
		return o.payoutFailed(ctx, t.TransactionID, err)
	}

	updated, _, err := transfer.Mutate(ctx, o.repo, t.TransactionID, func(t *transfer.Transaction) (bool, error) {
		if phase := t.Steps.Payout.Phase; phase == transfer.PayoutPhaseInitiated || phase == transfer.PayoutPhaseConfirmed {
			return false, nil
		}
		return true, t.InitiatePayout(ref, o.now())
	})
	if err != nil {
		o.logger.Error("Payout initiated but not recorded",
			"transaction_id", t.TransactionID,
			"conversation_id", ref,
			"error", err,
		)
		return StageOutcome{Transaction: t}, fmt.Errorf("failed to record payout %s: %w", ref, err)
	}

	o.logger.Info("Payout initiated",
		"transaction_id", updated.TransactionID,
		"conversation_id", ref,
		"attempt", updated.Steps.Payout.Attempts,
	)
	o.publish(ctx, transfer.EventStatusUpdate, updated, "")
	return StageOutcome{Transaction: updated, Stage: transfer.StagePayout, Result: ResultAwaiting}, nil
}

// requestPayout normalizes the receiver phone and calls the provider. It
// returns the provider's conversation id, or the originator id when the
// provider already holds this attempt from an earlier delivery.
func (o *Orchestrator) requestPayout(ctx context.Context, t *transfer.Transaction) (string, error) {
	phone, err := mpesa.NormalizePhone(t.Receiver.Phone, t.Receiver.Country)
	if err != nil {
		return "", err
	}

	originator := t.AttemptKey(transfer.StagePayout)
	resp, err := o.payouts.InitiatePayout(ctx, mpesa.PayoutRequest{
		Phone:                    phone,
		Amount:                   t.Amounts.Local,
		Remarks:                  "Transfer " + t.TransactionID,
		Occasion:                 t.TransactionID,
		OriginatorConversationID: originator,
	})
	if errors.Is(err, mpesa.ErrDuplicateRequest) {
		o.logger.Warn("Payout attempt already submitted",
			"transaction_id", t.TransactionID,
			"originator_conversation_id", originator,
		)
		return originator, nil
	}
	if err != nil {
		return "", err
	}
	return resp.ConversationID, nil
}

// payoutFailed hands a failed initiation to the failure path and reports
// what it decided.
func (o *Orchestrator) payoutFailed(ctx context.Context, transactionID string, cause error) (StageOutcome, error) {
	if o.failures == nil {
		return o.failStage(ctx, transactionID, transfer.StagePayout, cause)
	}
	if err := o.failures.PayoutFailed(ctx, transactionID, cause); err != nil {
		return StageOutcome{}, fmt.Errorf("failed to apply payout failure: %w", err)
	}

	t, err := o.repo.GetByID(ctx, transactionID)
	if err != nil {
		return StageOutcome{}, err
	}
	outcome := StageOutcome{Transaction: t, Stage: transfer.StagePayout, Result: ResultFailed, Reason: failureReason(cause)}
	if t.Status == transfer.StatusPayoutProcessing {
		outcome.Result = ResultRetryScheduled
	}
	return outcome, nil
}

// failStage records a stage failure and fails the transfer.
func (o *Orchestrator) failStage(ctx context.Context, transactionID string, stage transfer.Stage, cause error) (StageOutcome, error) {
	reason := failureReason(cause)
	details := FailureDetails(cause)

	updated, changed, err := transfer.Mutate(ctx, o.repo, transactionID, func(t *transfer.Transaction) (bool, error) {
		if t.Status == transfer.StatusFailed || t.Status == transfer.StatusCompleted {
			return false, nil
		}
		return true, t.FailStage(stage, reason, details, o.now())
	})
	if err != nil {
		return StageOutcome{}, fmt.Errorf("failed to record %s failure: %w", stage, err)
	}

	outcome := StageOutcome{Transaction: updated, Stage: stage, Result: ResultFailed, Reason: reason}
	if !changed {
		outcome.Result = ResultHalted
		return outcome, nil
	}

	o.logger.Warn("Stage failed",
		"transaction_id", transactionID,
		"stage", stage,
		"reason", reason,
	)
	o.publish(ctx, transfer.EventError, updated, reason)
	o.publish(ctx, transfer.EventStatusUpdate, updated, "")
	return outcome, nil
}

// retryPending reports whether a rejected payout is waiting on a scheduled retry.
func retryPending(t *transfer.Transaction) bool {
	return t.Status == transfer.StatusPayoutProcessing && t.Steps.Payout.Phase == transfer.PayoutPhaseRejected
}

func isValidation(err error) bool {
	return errors.Is(err, transfer.ValidationError{})
}

// failureReason is the provider's message verbatim when there is one.
func failureReason(err error) string {
	if pe, ok := transfer.AsProviderError(err); ok {
		return pe.Reason
	}
	return err.Error()
}

// FailureDetails describes a failure for the audit trail.
func FailureDetails(err error) map[string]string {
	pe, ok := transfer.AsProviderError(err)
	if !ok {
		return nil
	}
	details := map[string]string{
		"provider":  pe.Provider,
		"operation": pe.Operation,
		"retryable": strconv.FormatBool(pe.Retryable),
	}
	if pe.StatusCode != 0 {
		details["status_code"] = strconv.Itoa(pe.StatusCode)
	}
	return details
}
