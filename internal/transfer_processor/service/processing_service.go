package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/shared"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/orchestrator"
)

type ProcessingServiceImpl struct {
	pipeline Pipeline
	logger   *slog.Logger
}

func NewProcessingService(logger *slog.Logger, pipeline Pipeline) ProcessingService {
	return &ProcessingServiceImpl{
		pipeline: pipeline,
		logger:   logger.With("component", "processing_service"),
	}
}

// ProcessCommand runs the transfer named by cmd as far as it can go.
// Business failures are recorded on the transfer by the pipeline, so only
// infrastructure errors are returned and left for redelivery.
func (s *ProcessingServiceImpl) ProcessCommand(ctx context.Context, cmd shared.TransferCommand) error {
	logger := s.logger.With("transaction_id", cmd.TransactionID, "action", string(cmd.Action))
	if cmd.CorrelationID != "" {
		logger = logger.With("correlation_id", cmd.CorrelationID)
	}

	var (
		outcome orchestrator.StageOutcome
		err     error
	)
	switch cmd.Action {
	case shared.CommandAdvance:
		outcome, err = s.pipeline.Process(ctx, cmd.TransactionID)
	case shared.CommandResume:
		outcome, err = s.pipeline.ProcessResume(ctx, cmd.TransactionID)
	default:
		return shared.ErrInvalidCommandAction
	}

	if err != nil {
		if errors.Is(err, transfer.NotFoundError{}) {
			// Nothing to retry against; acknowledge.
			logger.Warn("Command for unknown transfer", "error", err)
			return nil
		}
		logger.Error("Failed to process transfer", "error", err)
		return fmt.Errorf("processing transfer %s failed: %w", cmd.TransactionID, err)
	}

	logger.Info("Transfer processed",
		"result", string(outcome.Result),
		"stage", string(outcome.Stage),
		"reason", outcome.Reason,
	)
	return nil
}
