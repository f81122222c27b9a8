package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/shared"
)

func TestNewTask(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	task := NewTask("TX-20240501-AAAA0001", 2, 90*time.Second, now)

	require.NotNil(t, task)
	assert.Equal(t, "TX-20240501-AAAA0001", task.TransactionID)
	assert.Equal(t, 2, task.Attempt)
	assert.Equal(t, now.Add(90*time.Second), task.DueAt)
	assert.Equal(t, shared.RetryTaskPending, task.Status)
	assert.Equal(t, 0, task.Attempts)
	assert.Nil(t, task.LastAttemptAt)
}

func TestTask_StateChanges(t *testing.T) {
	t.Run("IncrementAttempts", func(t *testing.T) {
		task := NewTask("TX-1", 1, time.Second, time.Now())
		task.IncrementAttempts("ledger unavailable")
		task.IncrementAttempts("ledger unavailable again")

		assert.Equal(t, 2, task.Attempts)
		assert.Equal(t, "ledger unavailable again", task.LastError)
		require.NotNil(t, task.LastAttemptAt)
		assert.Equal(t, shared.RetryTaskPending, task.Status)
	})

	t.Run("MarkAsCompleted", func(t *testing.T) {
		task := NewTask("TX-1", 1, time.Second, time.Now())
		task.MarkAsCompleted()
		assert.Equal(t, shared.RetryTaskCompleted, task.Status)
		assert.NotNil(t, task.LastAttemptAt)
	})

	t.Run("MarkAsFailed", func(t *testing.T) {
		task := NewTask("TX-1", 1, time.Second, time.Now())
		task.MarkAsFailed()
		assert.Equal(t, shared.RetryTaskFailed, task.Status)
		assert.NotNil(t, task.LastAttemptAt)
	})
}

func TestErrDuplicateTask_Is(t *testing.T) {
	err := error(ErrDuplicateTask{TransactionID: "TX-1", Attempt: 2})

	assert.True(t, errors.Is(err, ErrDuplicateTask{}))
	assert.True(t, errors.Is(err, ErrDuplicateTask{TransactionID: "TX-1", Attempt: 2}))
	assert.False(t, errors.Is(err, ErrDuplicateTask{TransactionID: "TX-1", Attempt: 3}))
	assert.False(t, errors.Is(err, ErrTaskNotFound{}))
}
