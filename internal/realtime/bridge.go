package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/platform/messaging/consumers"
)

// Bridge feeds the status topic into the local hub. Every gateway instance
// runs one in its own consumer group so each sees every event.
type Bridge struct {
	consumer consumers.Consumer
	hub      *Hub
	logger   *slog.Logger
}

func NewBridge(logger *slog.Logger, consumer consumers.Consumer, hub *Hub) *Bridge {
	return &Bridge{
		consumer: consumer,
		hub:      hub,
		logger:   logger.With("component", "status_bridge"),
	}
}

func (b *Bridge) Start(ctx context.Context) error {
	return b.consumer.Subscribe(ctx, b.Handle)
}

// Handle decodes one status event and publishes it locally. Undecodable
// events are skipped; there is nobody to redeliver them to.
func (b *Bridge) Handle(ctx context.Context, key []byte, value []byte) error {
	var event transfer.StatusEvent
	if err := json.Unmarshal(value, &event); err != nil {
		b.logger.Error("Skipping undecodable status event", "key", string(key), "error", err)
		return nil
	}
	if event.TransactionID == "" {
		event.TransactionID = string(key)
	}
	return b.hub.Publish(ctx, event)
}

func (b *Bridge) Close() error {
	return b.consumer.Close()
}
