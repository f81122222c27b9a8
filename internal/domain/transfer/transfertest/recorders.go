package transfertest

import (
	"context"
	"sync"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/shared"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

// RecordingPublisher captures status events in publish order.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []transfer.StatusEvent
	Err    error
}

func (p *RecordingPublisher) Publish(_ context.Context, event transfer.StatusEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.Err
}

// Events returns every event published for transactionID.
func (p *RecordingPublisher) Events(transactionID string) []transfer.StatusEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []transfer.StatusEvent
	for _, e := range p.events {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out
}

// Types returns the event types published for transactionID.
func (p *RecordingPublisher) Types(transactionID string) []transfer.EventType {
	var out []transfer.EventType
	for _, e := range p.Events(transactionID) {
		out = append(out, e.Type)
	}
	return out
}

// CommandRecorder captures dispatched transfer commands.
type CommandRecorder struct {
	mu       sync.Mutex
	commands []shared.TransferCommand
	Err      error
}

func (c *CommandRecorder) Dispatch(_ context.Context, cmd shared.TransferCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.commands = append(c.commands, cmd)
	return nil
}

// Commands returns a copy of the dispatched commands.
func (c *CommandRecorder) Commands() []shared.TransferCommand {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]shared.TransferCommand, len(c.commands))
	copy(out, c.commands)
	return out
}
