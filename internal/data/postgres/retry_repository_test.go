package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/retry"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/shared"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

var retryRowColumns = []string{"id", "transaction_id", "attempt", "due_at", "status", "attempts", "last_error", "created_at", "last_attempt_at"}

func newRetryRepo(t *testing.T) (*RetryRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &RetryRepository{querier: mock, logger: newTestLogger()}, mock
}

func TestRetryRepository_Create(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	task := retry.NewTask("tx_1", 1, 30*time.Second, now)
	insert := regexp.QuoteMeta("INSERT INTO payout_retries")

	t.Run("success", func(t *testing.T) {
		repo, mock := newRetryRepo(t)
		mock.ExpectExec(insert).
			WithArgs(task.ID, "tx_1", 1, now.Add(30*time.Second), shared.RetryTaskPending, 0, "", now, task.LastAttemptAt, shared.RetryTaskFailed).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.Create(ctx, task))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("re-arms a failed attempt", func(t *testing.T) {
		repo, mock := newRetryRepo(t)
		// the conflicting row was FAILED, so the upsert updates it
		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (transaction_id, attempt) DO UPDATE")).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), shared.RetryTaskFailed).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.Create(ctx, task))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate attempt", func(t *testing.T) {
		repo, mock := newRetryRepo(t)
		mock.ExpectExec(insert).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		err := repo.Create(ctx, task)
		assert.ErrorIs(t, err, retry.ErrDuplicateTask{})
		var dup retry.ErrDuplicateTask
		require.True(t, errors.As(err, &dup))
		assert.Equal(t, 1, dup.Attempt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		repo, mock := newRetryRepo(t)
		mock.ExpectExec(insert).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("connection reset"))

		err := repo.Create(ctx, task)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, retry.ErrDuplicateTask{})
		assert.Contains(t, err.Error(), "failed to create retry task")
	})
}

func TestRetryRepository_ClaimDue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	lease := 2 * time.Minute
	claim := regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")

	t.Run("returns claimed tasks", func(t *testing.T) {
		repo, mock := newRetryRepo(t)
		id1, id2 := uuid.New(), uuid.New()
		lastErr := "ledger unavailable"
		rows := pgxmock.NewRows(retryRowColumns).
			AddRow(id1, "tx_1", 1, now.Add(-time.Minute), shared.RetryTaskProcessing, 0, (*string)(nil), now.Add(-2*time.Minute), &now).
			AddRow(id2, "tx_2", 2, now.Add(-time.Second), shared.RetryTaskProcessing, 1, &lastErr, now.Add(-time.Hour), &now)

		mock.ExpectQuery(claim).
			WithArgs(shared.RetryTaskProcessing, now, shared.RetryTaskPending, now.Add(-lease), 10).
			WillReturnRows(rows)

		tasks, err := repo.ClaimDue(ctx, now, lease, 10)
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, id1, tasks[0].ID)
		assert.Empty(t, tasks[0].LastError)
		assert.Equal(t, "tx_2", tasks[1].TransactionID)
		assert.Equal(t, 2, tasks[1].Attempt)
		assert.Equal(t, "ledger unavailable", tasks[1].LastError)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nothing due", func(t *testing.T) {
		repo, mock := newRetryRepo(t)
		mock.ExpectQuery(claim).
			WithArgs(shared.RetryTaskProcessing, now, shared.RetryTaskPending, now.Add(-lease), 10).
			WillReturnRows(pgxmock.NewRows(retryRowColumns))

		tasks, err := repo.ClaimDue(ctx, now, lease, 10)
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})

	t.Run("query error", func(t *testing.T) {
		repo, mock := newRetryRepo(t)
		mock.ExpectQuery(claim).
			WithArgs(shared.RetryTaskProcessing, now, shared.RetryTaskPending, now.Add(-lease), 10).
			WillReturnError(errors.New("deadlock"))

		_, err := repo.ClaimDue(ctx, now, lease, 10)
		assert.ErrorContains(t, err, "failed to claim due retry tasks")
	})
}

func TestRetryRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	update := regexp.QuoteMeta("SET status = $1, last_attempt_at = $2")

	tests := []struct {
		name     string
		affected int64
		execErr  error
		wantErr  error
	}{
		{name: "updated", affected: 1},
		{name: "missing task", affected: 0, wantErr: retry.ErrTaskNotFound{ID: id}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRetryRepo(t)
			mock.ExpectExec(update).
				WithArgs(shared.RetryTaskCompleted, pgxmock.AnyArg(), id).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			err := repo.UpdateStatus(ctx, id, shared.RetryTaskCompleted)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRetryRepository_RecordFailure(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	update := regexp.QuoteMeta("SET attempts = attempts + 1")

	t.Run("returns task to pending", func(t *testing.T) {
		repo, mock := newRetryRepo(t)
		mock.ExpectExec(update).
			WithArgs("transfer store unavailable", pgxmock.AnyArg(), shared.RetryTaskPending, id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.RecordFailure(ctx, id, "transfer store unavailable"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing task", func(t *testing.T) {
		repo, mock := newRetryRepo(t)
		mock.ExpectExec(update).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.RecordFailure(ctx, id, "boom")
		assert.Equal(t, retry.ErrTaskNotFound{ID: id}, err)
	})
}

func TestRetryRepository_GetByTransactionID(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	query := regexp.QuoteMeta("WHERE transaction_id = $1")

	repo, mock := newRetryRepo(t)
	rows := pgxmock.NewRows(retryRowColumns).
		AddRow(uuid.New(), "tx_9", 1, now, shared.RetryTaskCompleted, 1, (*string)(nil), now, &now).
		AddRow(uuid.New(), "tx_9", 2, now.Add(time.Minute), shared.RetryTaskPending, 0, (*string)(nil), now, (*time.Time)(nil))
	mock.ExpectQuery(query).WithArgs("tx_9").WillReturnRows(rows)

	tasks, err := repo.GetByTransactionID(ctx, "tx_9")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, shared.RetryTaskCompleted, tasks[0].Status)
	assert.Nil(t, tasks[1].LastAttemptAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
