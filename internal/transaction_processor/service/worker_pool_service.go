package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/panjf2000/ants/v2"
)

// WorkerPoolSagaService runs sagas on a bounded ants pool so runs for
// different transactions proceed in parallel
type WorkerPoolSagaService struct {
	baseService SagaService
	pool        *ants.Pool
	logger      *slog.Logger
	wg          sync.WaitGroup
}

var (
	_ SagaService   = (*WorkerPoolSagaService)(nil)
	_ SagaSubmitter = (*WorkerPoolSagaService)(nil)
)

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolSagaService(
	baseService SagaService,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolSagaService, error) {
	// Create a new worker pool with the specified size
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolSagaService{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
	}, nil
}

// Run executes the saga on a pool worker and waits for its result
func (s *WorkerPoolSagaService) Run(ctx context.Context, request *shared.SagaRequest) error {
	resultChan := make(chan error, 1)

	// Create a copy of the request to avoid data races
	requestCopy := *request

	if err := s.submit(func() {
		resultChan <- s.baseService.Run(ctx, &requestCopy)
	}); err != nil {
		s.logger.Error("Failed to submit saga to worker pool",
			"transaction_id", request.TransactionID.String(),
			"error", err,
		)
		return err
	}

	return <-resultChan
}

// Submit hands the saga to a pool worker and returns once it is queued.
// It blocks while every worker is busy.
func (s *WorkerPoolSagaService) Submit(ctx context.Context, request *shared.SagaRequest) error {
	logger := s.logger.With("transaction_id", request.TransactionID.String())
	if request.CorrelationID != "" {
		logger = logger.With("correlation_id", request.CorrelationID)
	}

	requestCopy := *request
	err := s.submit(func() {
		if err := s.baseService.Run(ctx, &requestCopy); err != nil {
			if IsRunInProgress(err) {
				logger.Debug("Saga already running elsewhere")
				return
			}
			logger.Error("Saga run failed", "error", err)
		}
	})
	if err != nil {
		logger.Error("Failed to submit saga to worker pool", "error", err)
		return err
	}

	logger.Debug("Submitted saga to worker pool")
	return nil
}

func (s *WorkerPoolSagaService) submit(task func()) error {
	s.wg.Add(1)
	err := s.pool.Submit(func() {
		defer s.wg.Done()
		task()
	})
	if err != nil {
		s.wg.Done()
	}
	return err
}

// Shutdown waits up to timeout for running sagas, then releases the pool
func (s *WorkerPoolSagaService) Shutdown(timeout time.Duration) {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("Worker pool shutdown timed out, abandoning running sagas", "running_workers", s.pool.Running())
	}
	s.pool.Release()
}

// Running returns the number of running workers in the pool.
func (s *WorkerPoolSagaService) Running() int {
	return s.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolSagaService) Capacity() int {
	return s.pool.Cap()
}
