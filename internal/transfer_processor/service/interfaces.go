package service

import (
	"context"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/shared"
	"github.com/remitbridge-transfer-orchestrator/internal/orchestrator"
)

// ProcessingService defines the interface for handling transfer commands.
type ProcessingService interface {
	ProcessCommand(ctx context.Context, cmd shared.TransferCommand) error
}

// Pipeline runs a transfer through its stages. orchestrator.Orchestrator
// implements it.
type Pipeline interface {
	Process(ctx context.Context, transactionID string) (orchestrator.StageOutcome, error)
	ProcessResume(ctx context.Context, transactionID string) (orchestrator.StageOutcome, error)
}

var _ Pipeline = (*orchestrator.Orchestrator)(nil)
