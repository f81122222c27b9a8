package shared

import (
	"errors"
	"time"
)

var ErrInvalidCommandAction = errors.New("invalid transfer command action")

// CommandAction tells the processor what to do with a transfer.
type CommandAction string

const (
	// CommandAdvance runs the pipeline from the first incomplete stage.
	CommandAdvance CommandAction = "advance"
	// CommandResume is an operator-triggered advance after a manual retry.
	CommandResume CommandAction = "resume"
)

// TransferCommand defines a Kafka message for transfer processing. It is
// keyed by TransactionID so one transfer's commands stay ordered.
type TransferCommand struct {
	TransactionID string        `json:"transaction_id"`
	Action        CommandAction `json:"action"`
	CorrelationID string        `json:"correlation_id"`
	RequestedAt   time.Time     `json:"requested_at"`
}

// Validate checks the command before it is published or handled.
func (c TransferCommand) Validate() error {
	if c.TransactionID == "" {
		return errors.New("transaction_id is required")
	}
	switch c.Action {
	case CommandAdvance, CommandResume:
		return nil
	}
	return ErrInvalidCommandAction
}
