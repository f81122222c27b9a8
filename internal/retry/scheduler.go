package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/remitbridge-transfer-orchestrator/internal/config"
	retrytask "github.com/remitbridge-transfer-orchestrator/internal/domain/retry"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

// Resumer reopens a failed transfer and enqueues it for processing.
type Resumer interface {
	Resume(ctx context.Context, transactionID string) (*transfer.Transaction, error)
}

// Scheduler turns retry decisions into durable tasks and serves manual retries.
type Scheduler struct {
	tasks     retrytask.Repository
	transfers transfer.Repository
	resumer   Resumer
	baseDelay time.Duration
	maxDelay  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewScheduler(
	logger *slog.Logger,
	cfg *config.RetryConfig,
	tasks retrytask.Repository,
	transfers transfer.Repository,
	resumer Resumer,
) *Scheduler {
	return &Scheduler{
		tasks:     tasks,
		transfers: transfers,
		resumer:   resumer,
		baseDelay: cfg.BaseDelay,
		maxDelay:  cfg.MaxDelay,
		logger:    logger.With("component", "retry_scheduler"),
		now:       time.Now,
	}
}

// Backoff is min(base * 2^(retryCount-1), max).
func (s *Scheduler) Backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	delay := s.baseDelay
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if delay >= s.maxDelay {
			return s.maxDelay
		}
	}
	if delay > s.maxDelay {
		return s.maxDelay
	}
	return delay
}

// Schedule persists a retry task for the transfer's current retry_count.
// Scheduling the same attempt twice is a no-op.
func (s *Scheduler) Schedule(ctx context.Context, t *transfer.Transaction) error {
	delay := s.Backoff(t.RetryCount)
	task := retrytask.NewTask(t.TransactionID, t.RetryCount, delay, s.now())

	if err := s.tasks.Create(ctx, task); err != nil {
		if errors.Is(err, retrytask.ErrDuplicateTask{}) {
			s.logger.Debug("Payout retry already scheduled", "transaction_id", t.TransactionID, "attempt", t.RetryCount)
			return nil
		}
		return fmt.Errorf("failed to schedule payout retry for %s: %w", t.TransactionID, err)
	}

	s.logger.Info("Payout retry scheduled",
		"transaction_id", t.TransactionID,
		"attempt", task.Attempt,
		"due_at", task.DueAt,
		"delay", delay.String(),
	)
	return nil
}

// ManualRetry reopens a failed transfer that still has retry budget.
func (s *Scheduler) ManualRetry(ctx context.Context, transactionID string) (*transfer.Transaction, error) {
	t, err := s.transfers.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := t.CanManualRetry(); err != nil {
		return nil, err
	}

	s.logger.Info("Manual retry requested", "transaction_id", transactionID, "retry_count", t.RetryCount, "max_retries", t.MaxRetries)
	return s.resumer.Resume(ctx, transactionID)
}
