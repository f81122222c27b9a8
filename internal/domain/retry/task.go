package retry

import (
	"time"

	"github.com/google/uuid"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/shared"
)

// Task is a durable deferred payout retry. Attempt is the transfer's
// retry_count at scheduling time; a task whose attempt no longer matches the
// transfer is stale and does nothing when run.
type Task struct {
	ID            uuid.UUID              `json:"id"`
	TransactionID string                 `json:"transaction_id"`
	Attempt       int                    `json:"attempt"`
	DueAt         time.Time              `json:"due_at"`
	Status        shared.RetryTaskStatus `json:"status"`
	Attempts      int                    `json:"attempts"` // Poller executions, not payout attempts
	LastError     string                 `json:"last_error,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	LastAttemptAt *time.Time             `json:"last_attempt_at,omitempty"`
}

// NewTask creates a pending task due after delay.
func NewTask(transactionID string, attempt int, delay time.Duration, now time.Time) *Task {
	now = now.UTC()
	return &Task{
		ID:            uuid.New(),
		TransactionID: transactionID,
		Attempt:       attempt,
		DueAt:         now.Add(delay),
		Status:        shared.RetryTaskPending,
		CreatedAt:     now,
	}
}

func (t *Task) IncrementAttempts(errMsg string) {
	t.Attempts++
	t.LastError = errMsg
	now := time.Now().UTC()
	t.LastAttemptAt = &now
}

func (t *Task) MarkAsCompleted() {
	t.Status = shared.RetryTaskCompleted
	now := time.Now().UTC()
	t.LastAttemptAt = &now
}

func (t *Task) MarkAsFailed() {
	t.Status = shared.RetryTaskFailed
	now := time.Now().UTC()
	t.LastAttemptAt = &now
}
