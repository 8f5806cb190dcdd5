package saga_poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/exchange-bridge/internal/config"
	"github.com/exchange-bridge/internal/domain/sagajob"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/transaction_processor/service"
)

// Poller resubmits due saga jobs: runs whose Kafka kick-off was lost, parked
// jobs whose backoff elapsed and jobs whose lease holder died.
type Poller struct {
	jobs         sagajob.Repository
	sagas        service.SagaSubmitter
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int
	now          func() time.Time
}

func NewPoller(
	cfg *config.SagaJobsConfig,
	jobs sagajob.Repository,
	sagas service.SagaSubmitter,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		jobs:         jobs,
		sagas:        sagas,
		logger:       logger,
		pollInterval: cfg.PollingInterval,
		batchSize:    cfg.BatchSize,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Start begins polling until context is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting saga job poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Saga job poller stopping due to context cancellation.")
			return
		case <-ticker.C:
			if err := p.processDueJobs(ctx); err != nil {
				p.logger.Error("Error during saga job poll", "error", err)
			}
		}
	}
}

func (p *Poller) processDueJobs(ctx context.Context) error {
	jobs, err := p.jobs.GetRunnable(ctx, p.now(), p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get runnable saga jobs: %w", err)
	}
	if len(jobs) == 0 {
		p.logger.Debug("No due saga jobs found.")
		return nil
	}

	p.logger.Info("Fetched due saga jobs", "count", len(jobs))

	for _, job := range jobs {
		request := &shared.SagaRequest{
			TransactionID: job.TransactionID,
			CorrelationID: job.CorrelationID,
			Timestamp:     p.now(),
		}
		if err := p.sagas.Submit(ctx, request); err != nil {
			p.logger.Error("Failed to submit due saga job",
				"transaction_id", job.TransactionID.String(),
				"attempts", job.Attempts,
				"error", err,
			)
			// the pool is closed or saturated; the rest wait for the next tick
			return nil
		}
	}
	return nil
}
