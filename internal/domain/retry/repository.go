package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/shared"
)

// Repository manages durable payout retry tasks
type Repository interface {
	// Create inserts a task; a second task for the same (transaction, attempt)
	// returns ErrDuplicateTask.
	Create(ctx context.Context, task *Task) error
	// ClaimDue moves up to limit due tasks to PROCESSING and returns them.
	// PROCESSING tasks last touched before now-lease are reclaimed.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*Task, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status shared.RetryTaskStatus) error
	RecordFailure(ctx context.Context, id uuid.UUID, errMsg string) error
	GetByTransactionID(ctx context.Context, transactionID string) ([]*Task, error)
}

// ErrTaskNotFound indicates missing retry task
type ErrTaskNotFound struct {
	ID uuid.UUID
}

func (e ErrTaskNotFound) Error() string {
	return "retry task not found: " + e.ID.String()
}

// ErrDuplicateTask indicates the attempt was already scheduled
type ErrDuplicateTask struct {
	TransactionID string
	Attempt       int
}

func (e ErrDuplicateTask) Error() string {
	return fmt.Sprintf("retry already scheduled: %s attempt %d", e.TransactionID, e.Attempt)
}

// Is matches any ErrDuplicateTask when the target has no transaction id.
func (e ErrDuplicateTask) Is(target error) bool {
	t, ok := target.(ErrDuplicateTask)
	if !ok {
		return false
	}
	return t.TransactionID == "" || (t.TransactionID == e.TransactionID && t.Attempt == e.Attempt)
}
