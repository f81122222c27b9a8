package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/shared"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/orchestrator"
)

// TransferServiceImpl implements the TransferService interface
type TransferServiceImpl struct {
	orchestrator TransferOrchestrator
	retrier      ManualRetrier
	logger       *slog.Logger
}

// NewTransferService creates a new transfer service
func NewTransferService(logger *slog.Logger, orch TransferOrchestrator, retrier ManualRetrier) TransferService {
	return &TransferServiceImpl{
		orchestrator: orch,
		retrier:      retrier,
		logger:       logger.With("component", "transfer_service"),
	}
}

// CreateTransfer persists the transfer and publishes its advance command.
// A lost command is not an error for the caller: the record is durable and
// the in-flight sweep re-dispatches pending transfers.
func (s *TransferServiceImpl) CreateTransfer(ctx context.Context, req orchestrator.CreateRequest) (*transfer.Transaction, bool, error) {
	t, err := s.orchestrator.CreateTransaction(ctx, req)
	if errors.Is(err, transfer.DuplicateError{}) {
		s.logger.Info("Duplicate transfer request",
			"idempotency_key", req.IdempotencyKey,
			"transaction_id", t.TransactionID,
			"status", string(t.Status),
		)
		if t.Status == transfer.StatusPending {
			s.enqueue(ctx, t.TransactionID, req.CorrelationID)
		}
		return t, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	s.enqueue(ctx, t.TransactionID, req.CorrelationID)

	s.logger.Info("Transfer created",
		"transaction_id", t.TransactionID,
		"correlation_id", req.CorrelationID,
		"usd", t.Amounts.USD.String(),
		"local_currency", t.Amounts.LocalCurrency,
	)
	return t, false, nil
}

func (s *TransferServiceImpl) enqueue(ctx context.Context, transactionID, correlationID string) {
	if err := s.orchestrator.Enqueue(ctx, transactionID, shared.CommandAdvance, correlationID); err != nil {
		s.logger.Error("Failed to publish advance command",
			"transaction_id", transactionID,
			"correlation_id", correlationID,
			"error", err,
		)
	}
}

func (s *TransferServiceImpl) GetTransfer(ctx context.Context, transactionID string) (*transfer.Transaction, error) {
	return s.orchestrator.Get(ctx, transactionID)
}

func (s *TransferServiceImpl) RetryTransfer(ctx context.Context, transactionID string) (*transfer.Transaction, error) {
	t, err := s.retrier.ManualRetry(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Manual retry accepted", "transaction_id", transactionID, "status", string(t.Status))
	return t, nil
}
