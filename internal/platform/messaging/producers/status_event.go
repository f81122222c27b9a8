package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/remitbridge-transfer-orchestrator/internal/config"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

// StatusEventProducer fans status events out to every gateway instance
// through the status topic. Delivery is best effort: subscribers re-read the
// projection on connect, so a dropped event only delays an update.
type StatusEventProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

// NewStatusEventProducer creates the async status producer and ensures its topic exists
func NewStatusEventProducer(logger *slog.Logger, cfg *config.KafkaConfig) (*StatusEventProducer, error) {
	if cfg.StatusTopic == "" {
		return nil, fmt.Errorf("kafka status topic is not configured")
	}

	logger = logger.With("component", "status_producer")
	if err := ensureTopic(cfg, cfg.StatusTopic, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure status topic %s exists: %w", cfg.StatusTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.StatusTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		WriteTimeout: cfg.MaxWait,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to write status events", "topic", cfg.StatusTopic, "error", err, "count", len(messages))
			}
		},
	}

	return &StatusEventProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.StatusTopic,
	}, nil
}

// Publish implements the status publisher used by the orchestrator and reconciler.
func (p *StatusEventProducer) Publish(ctx context.Context, event transfer.StatusEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.TransactionID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish status event",
			"transaction_id", event.TransactionID,
			"type", string(event.Type),
			"error", err,
		)
		return fmt.Errorf("failed to publish status event to %s: %w", p.topic, err)
	}
	return nil
}

func (p *StatusEventProducer) Close() error {
	p.logger.Info("Closing status event producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
