package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/panjf2000/ants/v2"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/shared"
)

// WorkerPoolProcessingService bounds how many transfers run at once. Each
// command waits for its own result so the consumer commits only after the
// transfer was handled.
type WorkerPoolProcessingService struct {
	baseService ProcessingService
	pool        *ants.Pool
	logger      *slog.Logger
}

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolProcessingService(
	baseService ProcessingService,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolProcessingService, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolProcessingService{
		baseService: baseService,
		pool:        pool,
		logger:      logger.With("component", "worker_pool"),
	}, nil
}

// ProcessCommand submits cmd to the pool and waits for it. A panicking
// task is reported as an error instead of taking the consumer down.
func (s *WorkerPoolProcessingService) ProcessCommand(ctx context.Context, cmd shared.TransferCommand) error {
	resultChan := make(chan error, 1)

	err := s.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Transfer task panicked", "transaction_id", cmd.TransactionID, "panic", r)
				resultChan <- fmt.Errorf("transfer %s panicked: %v", cmd.TransactionID, r)
			}
		}()
		resultChan <- s.baseService.ProcessCommand(ctx, cmd)
	})
	if err != nil {
		s.logger.Error("Failed to submit transfer to worker pool",
			"transaction_id", cmd.TransactionID,
			"error", err,
		)
		return err
	}

	select {
	case err := <-resultChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown gracefully shuts down the worker pool.
func (s *WorkerPoolProcessingService) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

// Running returns the number of running workers in the pool.
func (s *WorkerPoolProcessingService) Running() int {
	return s.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolProcessingService) Capacity() int {
	return s.pool.Cap()
}
