package retry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/remitbridge-transfer-orchestrator/internal/config"
	retrytask "github.com/remitbridge-transfer-orchestrator/internal/domain/retry"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/shared"
)

// PayoutRetrier re-initiates a rejected payout for one scheduled attempt.
type PayoutRetrier interface {
	RetryPayout(ctx context.Context, transactionID string, attempt int) error
}

// Poller claims due retry tasks and runs them on a bounded worker pool.
// Pending retries are rows, not timers, so nothing is lost on restart.
type Poller struct {
	tasks        retrytask.Repository
	retrier      PayoutRetrier
	pool         *ants.Pool
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	lease        time.Duration
	now          func() time.Time
}

func NewPoller(
	logger *slog.Logger,
	cfg *config.RetryConfig,
	poolSize int,
	tasks retrytask.Repository,
	retrier PayoutRetrier,
) (*Poller, error) {
	logger = logger.With("component", "retry_poller")
	pool, err := ants.NewPool(poolSize, ants.WithPanicHandler(func(p any) {
		logger.Error("Panic recovered in payout retry worker", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create retry worker pool: %w", err)
	}

	return &Poller{
		tasks:        tasks,
		retrier:      retrier,
		pool:         pool,
		logger:       logger,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		maxAttempts:  cfg.MaxAttempts,
		lease:        cfg.Lease,
		now:          time.Now,
	}, nil
}

// Start polls until ctx is canceled.
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting retry poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_attempts", p.maxAttempts,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Retry poller stopping due to context cancellation.")
			return
		case <-ticker.C:
			if err := p.ProcessDue(ctx); err != nil {
				p.logger.Error("Error during retry batch", "error", err)
			}
		}
	}
}

// ProcessDue claims one batch of due tasks and waits for all of them.
func (p *Poller) ProcessDue(ctx context.Context) error {
	tasks, err := p.tasks.ClaimDue(ctx, p.now().UTC(), p.lease, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to claim due retry tasks: %w", err)
	}
	if len(tasks) == 0 {
		p.logger.Debug("No payout retries due")
		return nil
	}
	p.logger.Info("Claimed due payout retries", "count", len(tasks))

	var wg sync.WaitGroup
	for _, task := range tasks {
		task := task
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			p.run(ctx, task)
		})
		if err != nil {
			wg.Done()
			// the claim lapses after the lease and the task is picked up again
			p.logger.Error("Failed to submit payout retry to worker pool", "task_id", task.ID, "error", err)
		}
	}
	wg.Wait()
	return nil
}

func (p *Poller) run(ctx context.Context, task *retrytask.Task) {
	logger := p.logger.With("task_id", task.ID, "transaction_id", task.TransactionID, "attempt", task.Attempt)

	err := p.retrier.RetryPayout(ctx, task.TransactionID, task.Attempt)
	if err == nil {
		if err := p.tasks.UpdateStatus(ctx, task.ID, shared.RetryTaskCompleted); err != nil {
			logger.Error("Failed to mark payout retry completed", "error", err)
		}
		return
	}

	logger.Error("Payout retry task failed", "current_attempts", task.Attempts, "error", err)
	if errRec := p.tasks.RecordFailure(ctx, task.ID, err.Error()); errRec != nil {
		logger.Error("Failed to record payout retry failure", "error", errRec)
		return
	}

	if task.Attempts+1 >= p.maxAttempts {
		logger.Warn("Max attempts reached for payout retry, marking as FAILED", "attempts_made", task.Attempts+1)
		if errUpdate := p.tasks.UpdateStatus(ctx, task.ID, shared.RetryTaskFailed); errUpdate != nil {
			logger.Error("Failed to mark payout retry failed", "error", errUpdate)
		}
	}
}

// Shutdown releases the worker pool.
func (p *Poller) Shutdown() {
	p.logger.Info("Shutting down retry worker pool", "running_workers", p.pool.Running())
	p.pool.Release()
}
