package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/retry"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/shared"
	"github.com/remitbridge-transfer-orchestrator/internal/platform/persistence"
)

const retryColumns = `id, transaction_id, attempt, due_at, status, attempts, last_error, created_at, last_attempt_at`

// RetryRepository implements retry.Repository on PostgreSQL
type RetryRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewRetryRepository creates a new PostgreSQL retry task repository
func NewRetryRepository(logger *slog.Logger, db *persistence.PostgresDB) retry.Repository {
	return &RetryRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// Create stores a pending task. The (transaction_id, attempt) unique key makes
// scheduling a live attempt twice a no-op reported as ErrDuplicateTask. An
// attempt whose task already FAILED is re-armed, so the in-flight sweep can
// revive a retry the poller gave up on.
func (r *RetryRepository) Create(ctx context.Context, task *retry.Task) error {
	query := `
		INSERT INTO payout_retries (` + retryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (transaction_id, attempt) DO UPDATE
		SET due_at = EXCLUDED.due_at,
		    status = EXCLUDED.status,
		    attempts = 0,
		    last_error = NULL,
		    last_attempt_at = NULL
		WHERE payout_retries.status = $10
	`

	tag, err := r.querier.Exec(ctx, query,
		task.ID,
		task.TransactionID,
		task.Attempt,
		task.DueAt,
		task.Status,
		task.Attempts,
		task.LastError,
		task.CreatedAt,
		task.LastAttemptAt,
		shared.RetryTaskFailed,
	)
	if err != nil {
		r.logger.Error("Failed to create retry task",
			"transaction_id", task.TransactionID,
			"attempt", task.Attempt,
			"error", err,
		)
		return fmt.Errorf("failed to create retry task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return retry.ErrDuplicateTask{TransactionID: task.TransactionID, Attempt: task.Attempt}
	}

	return nil
}

// ClaimDue atomically moves due tasks to PROCESSING. SKIP LOCKED lets several
// processor instances poll the same table without handing out a task twice.
func (r *RetryRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*retry.Task, error) {
	query := `
		UPDATE payout_retries
		SET status = $1, last_attempt_at = $2
		WHERE id IN (
			SELECT id FROM payout_retries
			WHERE (status = $3 AND due_at <= $2)
			   OR (status = $1 AND last_attempt_at < $4)
			ORDER BY due_at ASC
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + retryColumns

	rows, err := r.querier.Query(ctx, query,
		shared.RetryTaskProcessing,
		now,
		shared.RetryTaskPending,
		now.Add(-lease),
		limit,
	)
	if err != nil {
		r.logger.Error("Failed to claim due retry tasks", "error", err)
		return nil, fmt.Errorf("failed to claim due retry tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*retry.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			r.logger.Error("Failed to scan retry task", "error", err)
			return nil, fmt.Errorf("failed to scan retry task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over retry tasks", "error", err)
		return nil, fmt.Errorf("error iterating over retry tasks: %w", err)
	}

	return tasks, nil
}

// UpdateStatus sets a terminal or pending status on the task.
func (r *RetryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status shared.RetryTaskStatus) error {
	query := `
		UPDATE payout_retries
		SET status = $1, last_attempt_at = $2
		WHERE id = $3
	`

	result, err := r.querier.Exec(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to update retry task status",
			"id", id.String(),
			"status", string(status),
			"error", err,
		)
		return fmt.Errorf("failed to update retry task status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return retry.ErrTaskNotFound{ID: id}
	}

	return nil
}

// RecordFailure counts a failed execution and returns the task to PENDING so
// the next poll picks it up again.
func (r *RetryRepository) RecordFailure(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE payout_retries
		SET attempts = attempts + 1, last_error = $1, last_attempt_at = $2, status = $3
		WHERE id = $4
	`

	result, err := r.querier.Exec(ctx, query, errMsg, time.Now().UTC(), shared.RetryTaskPending, id)
	if err != nil {
		r.logger.Error("Failed to record retry task failure",
			"id", id.String(),
			"error", err,
		)
		return fmt.Errorf("failed to record retry task failure: %w", err)
	}

	if result.RowsAffected() == 0 {
		return retry.ErrTaskNotFound{ID: id}
	}

	return nil
}

// GetByTransactionID lists every task scheduled for a transfer, oldest attempt first.
func (r *RetryRepository) GetByTransactionID(ctx context.Context, transactionID string) ([]*retry.Task, error) {
	query := `
		SELECT ` + retryColumns + `
		FROM payout_retries
		WHERE transaction_id = $1
		ORDER BY attempt ASC
	`

	rows, err := r.querier.Query(ctx, query, transactionID)
	if err != nil {
		r.logger.Error("Failed to get retry tasks by transaction ID",
			"transaction_id", transactionID,
			"error", err,
		)
		return nil, fmt.Errorf("failed to get retry tasks by transaction ID: %w", err)
	}
	defer rows.Close()

	var tasks []*retry.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan retry task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over retry tasks: %w", err)
	}

	return tasks, nil
}

func scanTask(row pgx.Row) (*retry.Task, error) {
	var task retry.Task
	var lastError *string
	err := row.Scan(
		&task.ID,
		&task.TransactionID,
		&task.Attempt,
		&task.DueAt,
		&task.Status,
		&task.Attempts,
		&lastError,
		&task.CreatedAt,
		&task.LastAttemptAt,
	)
	if err != nil {
		return nil, err
	}
	if lastError != nil {
		task.LastError = *lastError
	}
	return &task, nil
}
