package transfer

import (
	"time"
)

// EventType classifies a status event.
type EventType string

const (
	EventStatusUpdate        EventType = "status_update"
	EventTransactionComplete EventType = "transaction_complete"
	EventError               EventType = "error"
)

// View is the full projection served by the status query and carried in
// every event, so a subscriber never has to merge deltas.
type View struct {
	TransactionID     string             `json:"transactionId"`
	Status            Status             `json:"status"`
	Steps             Steps              `json:"steps"`
	Amounts           Amounts            `json:"amounts"`
	Fees              Fees               `json:"fees"`
	FXRate            FXRate             `json:"fxRate"`
	LedgerTransaction *LedgerTransaction `json:"ledgerTransaction,omitempty"`
	PayoutTransaction *PayoutTransaction `json:"payoutTransaction,omitempty"`
	RetryCount        int                `json:"retryCount"`
	MaxRetries        int                `json:"maxRetries"`
	LastRetryAt       *time.Time         `json:"lastRetryAt,omitempty"`
	LastError         *ErrorEntry        `json:"lastError,omitempty"`
	Errors            []ErrorEntry       `json:"errors"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// View projects the transaction for external readers.
func (t *Transaction) View() View {
	errs := t.Errors
	if errs == nil {
		errs = []ErrorEntry{}
	}
	return View{
		TransactionID:     t.TransactionID,
		Status:            t.Status,
		Steps:             t.Steps,
		Amounts:           t.Amounts,
		Fees:              t.Fees,
		FXRate:            t.FXRate,
		LedgerTransaction: t.LedgerTransaction,
		PayoutTransaction: t.PayoutTransaction,
		RetryCount:        t.RetryCount,
		MaxRetries:        t.MaxRetries,
		LastRetryAt:       t.LastRetryAt,
		LastError:         t.LastError(),
		Errors:            errs,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

// StatusEvent is what subscribers receive.
type StatusEvent struct {
	Type          EventType `json:"type"`
	TransactionID string    `json:"transactionId"`
	Data          *View     `json:"data,omitempty"`
	Error         string    `json:"error,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewStatusEvent snapshots t into an event of the given type.
func NewStatusEvent(eventType EventType, t *Transaction, errMsg string) StatusEvent {
	v := t.View()
	return StatusEvent{
		Type:          eventType,
		TransactionID: t.TransactionID,
		Data:          &v,
		Error:         errMsg,
		Timestamp:     time.Now().UTC(),
	}
}
