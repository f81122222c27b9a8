// Package realtime fans transfer status events out to connected clients over
// WebSocket and Server-Sent Events.
package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

// Subscriber receives events for the transfers it subscribed to.
type Subscriber interface {
	// Send queues an event without blocking. It returns false when the
	// subscriber cannot keep up.
	Send(event transfer.StatusEvent) bool
	Close()
}

// Hub maps transaction ids to subscribers and back. It is safe for
// concurrent use.
type Hub struct {
	mu     sync.RWMutex
	byID   map[string]map[Subscriber]struct{}
	bySub  map[Subscriber]map[string]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		byID:   make(map[string]map[Subscriber]struct{}),
		bySub:  make(map[Subscriber]map[string]struct{}),
		logger: logger.With("component", "realtime_hub"),
	}
}

func (h *Hub) Subscribe(transactionID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.byID[transactionID] == nil {
		h.byID[transactionID] = make(map[Subscriber]struct{})
	}
	h.byID[transactionID][sub] = struct{}{}

	if h.bySub[sub] == nil {
		h.bySub[sub] = make(map[string]struct{})
	}
	h.bySub[sub][transactionID] = struct{}{}
}

func (h *Hub) Unsubscribe(transactionID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(transactionID, sub)
}

// RemoveSubscriber drops every subscription held by sub. Called when its
// connection closes.
func (h *Hub) RemoveSubscriber(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.bySub[sub] {
		h.unsubscribeLocked(id, sub)
	}
	delete(h.bySub, sub)
}

func (h *Hub) unsubscribeLocked(transactionID string, sub Subscriber) {
	if subs, ok := h.byID[transactionID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.byID, transactionID)
		}
	}
	if ids, ok := h.bySub[sub]; ok {
		delete(ids, transactionID)
		if len(ids) == 0 {
			delete(h.bySub, sub)
		}
	}
}

// Publish delivers event to every subscriber of its transaction. A
// subscriber whose buffer is full is dropped and closed.
func (h *Hub) Publish(_ context.Context, event transfer.StatusEvent) error {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.byID[event.TransactionID]))
	for sub := range h.byID[event.TransactionID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if sub.Send(event) {
			continue
		}
		h.logger.Warn("Dropping slow subscriber", "transaction_id", event.TransactionID, "event_type", event.Type)
		h.RemoveSubscriber(sub)
		sub.Close()
	}
	return nil
}

// Subscribers returns how many subscribers follow transactionID.
func (h *Hub) Subscribers(transactionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID[transactionID])
}
