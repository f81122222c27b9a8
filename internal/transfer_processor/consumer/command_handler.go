package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/shared"
	"github.com/remitbridge-transfer-orchestrator/internal/platform/messaging/producers"
	"github.com/remitbridge-transfer-orchestrator/internal/transfer_processor/service"
)

// CommandHandler handles transfer commands from Kafka
type CommandHandler struct {
	processingService service.ProcessingService
	producer          producers.DeadLetterPublisher
	logger            *slog.Logger
}

func NewCommandHandler(
	logger *slog.Logger,
	processingService service.ProcessingService,
	producer producers.DeadLetterPublisher,
) *CommandHandler {
	return &CommandHandler{
		processingService: processingService,
		producer:          producer,
		logger:            logger.With("component", "command_handler"),
	}
}

// HandleMessage decodes and runs one command. Commands that can never be
// processed go to the DLQ and are committed.
func (h *CommandHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var cmd shared.TransferCommand
	if err := json.Unmarshal(value, &cmd); err != nil {
		return h.deadLetter(ctx, key, value, "Failed to unmarshal transfer command", err)
	}
	if err := cmd.Validate(); err != nil {
		return h.deadLetter(ctx, key, value, "Invalid transfer command", err)
	}

	logger := h.logger.With("transaction_id", cmd.TransactionID)
	if cmd.CorrelationID != "" {
		logger = logger.With("correlation_id", cmd.CorrelationID)
	}
	logger.Info("Received transfer command", "action", string(cmd.Action), "requested_at", cmd.RequestedAt)

	if err := h.processingService.ProcessCommand(ctx, cmd); err != nil {
		return fmt.Errorf("transfer command %s failed: %w", cmd.TransactionID, err)
	}
	return nil
}

func (h *CommandHandler) deadLetter(ctx context.Context, key, value []byte, msg string, cause error) error {
	h.logger.Error(msg, "error", cause, "message_key", string(key))

	if h.producer == nil {
		return fmt.Errorf("%s: %w", msg, cause)
	}

	reason := fmt.Sprintf("%s: %s", msg, cause.Error())
	if err := h.producer.PublishToDLQ(ctx, string(key), value, reason); err != nil {
		h.logger.Error("Failed to publish message to DLQ",
			"dlq_error", err,
			"original_error", cause,
			"message_key", string(key),
		)
		return fmt.Errorf("%s: %w", msg, cause)
	}

	h.logger.Info("Published unprocessable command to DLQ", "message_key", string(key), "reason", reason)
	return nil
}
