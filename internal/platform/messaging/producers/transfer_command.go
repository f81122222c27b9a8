package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/remitbridge-transfer-orchestrator/internal/config"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/shared"
)

// TransferCommandProducer publishes transfer commands keyed by transaction id.
// The hash balancer keeps every command for one transfer on one partition,
// so the processor sees them in order.
type TransferCommandProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

// NewTransferCommandProducer creates the command producer and ensures its topic exists
func NewTransferCommandProducer(logger *slog.Logger, cfg *config.KafkaConfig) (*TransferCommandProducer, error) {
	if cfg.CommandTopic == "" {
		return nil, fmt.Errorf("kafka command topic is not configured")
	}

	logger = logger.With("component", "command_producer")
	if err := ensureTopic(cfg, cfg.CommandTopic, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure command topic %s exists: %w", cfg.CommandTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.CommandTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.MaxWait,
	}

	return &TransferCommandProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.CommandTopic,
	}, nil
}

// Dispatch writes cmd synchronously. The caller learns about a lost command
// instead of leaving a transfer pending with nothing queued for it.
func (p *TransferCommandProducer) Dispatch(ctx context.Context, cmd shared.TransferCommand) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("invalid transfer command: %w", err)
	}

	value, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal transfer command: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(cmd.TransactionID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(cmd.Action)},
			{Key: "correlation-id", Value: []byte(cmd.CorrelationID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to dispatch transfer command",
			"topic", p.topic,
			"transaction_id", cmd.TransactionID,
			"action", string(cmd.Action),
			"error", err,
		)
		return fmt.Errorf("failed to dispatch transfer command to %s: %w", p.topic, err)
	}

	p.logger.Debug("Dispatched transfer command",
		"transaction_id", cmd.TransactionID,
		"action", string(cmd.Action),
	)
	return nil
}

func (p *TransferCommandProducer) Close() error {
	p.logger.Info("Closing transfer command producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
