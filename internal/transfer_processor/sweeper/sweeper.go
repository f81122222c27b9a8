package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/remitbridge-transfer-orchestrator/internal/config"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/shared"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

// Dispatcher publishes a command for the processor.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd shared.TransferCommand) error
}

// RetryScheduler persists a payout retry for a rejected transfer.
type RetryScheduler interface {
	Schedule(ctx context.Context, t *transfer.Transaction) error
}

const defaultBatchSize = 100

// inFlight are the statuses a lost advance command can strand.
var inFlight = []transfer.Status{
	transfer.StatusPending,
	transfer.StatusConverting,
	transfer.StatusAssetSent,
}

// Sweeper re-dispatches transfers that stopped moving: an advance command
// lost between store write and publish, or a rejected payout whose retry
// was never scheduled.
type Sweeper struct {
	transfers  transfer.Repository
	dispatcher Dispatcher
	scheduler  RetryScheduler
	logger     *slog.Logger
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
}

func NewSweeper(
	logger *slog.Logger,
	cfg *config.RetryConfig,
	transfers transfer.Repository,
	dispatcher Dispatcher,
	scheduler RetryScheduler,
) *Sweeper {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Sweeper{
		transfers:  transfers,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		logger:     logger.With("component", "sweeper"),
		interval:   cfg.SweepInterval,
		staleAfter: cfg.StaleAfter,
		batchSize:  batchSize,
		now:        time.Now,
	}
}

// Start sweeps until ctx is canceled.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting in-flight sweeper",
		"sweep_interval", s.interval.String(),
		"stale_after", s.staleAfter.String(),
	)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper stopping due to context cancellation.")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("Error during sweep", "error", err)
			}
		}
	}
}

// Sweep runs one pass and returns the first listing error. Per-transfer
// dispatch failures are logged and picked up by the next pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-s.staleAfter)

	for _, status := range inFlight {
		err := s.each(ctx, status, cutoff, func(t *transfer.Transaction) {
			cmd := shared.TransferCommand{
				TransactionID: t.TransactionID,
				Action:        shared.CommandAdvance,
				CorrelationID: t.CorrelationID,
				RequestedAt:   s.now().UTC(),
			}
			if err := s.dispatcher.Dispatch(ctx, cmd); err != nil {
				s.logger.Error("Failed to re-dispatch stale transfer", "transaction_id", t.TransactionID, "error", err)
				return
			}
			s.logger.Info("Re-dispatched stale transfer", "transaction_id", t.TransactionID, "status", string(t.Status))
		})
		if err != nil {
			return err
		}
	}

	return s.each(ctx, transfer.StatusPayoutProcessing, cutoff, func(t *transfer.Transaction) {
		if t.Steps.Payout.Phase != transfer.PayoutPhaseRejected {
			return
		}
		if err := s.scheduler.Schedule(ctx, t); err != nil {
			s.logger.Error("Failed to schedule stranded payout retry", "transaction_id", t.TransactionID, "error", err)
		}
	})
}

func (s *Sweeper) each(ctx context.Context, status transfer.Status, cutoff time.Time, fn func(*transfer.Transaction)) error {
	for offset := 0; ; offset += s.batchSize {
		page, err := s.transfers.ListByStatus(ctx, status, s.batchSize, offset)
		if err != nil {
			return fmt.Errorf("failed to list %s transfers: %w", status, err)
		}
		for _, t := range page {
			if t.UpdatedAt.After(cutoff) {
				continue
			}
			fn(t)
		}
		if len(page) < s.batchSize {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
