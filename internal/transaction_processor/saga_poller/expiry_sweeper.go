package saga_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/exchange-bridge/internal/config"
	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/exchange-bridge/internal/transaction_processor/service"
)

var errCodeStillValid = fmt.Errorf("confirmation code was reissued: %w", transfer.ErrInvalidTransition)

// ExpirySweeper cancels PENDING transfers whose confirmation code expired
type ExpirySweeper struct {
	transactions transfer.Repository
	writer       service.StateWriter
	logger       *slog.Logger
	interval     time.Duration
	batchSize    int
	now          func() time.Time
}

func NewExpirySweeper(
	cfg *config.ExpiryConfig,
	transactions transfer.Repository,
	writer service.StateWriter,
	logger *slog.Logger,
) *ExpirySweeper {
	return &ExpirySweeper{
		transactions: transactions,
		writer:       writer,
		logger:       logger,
		interval:     cfg.SweepInterval,
		batchSize:    cfg.BatchSize,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Start sweeps until context is canceled
func (s *ExpirySweeper) Start(ctx context.Context) {
	s.logger.Info("Starting expiry sweeper", "interval", s.interval.String(), "batch_size", s.batchSize)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Expiry sweeper stopping due to context cancellation.")
			return
		case <-ticker.C:
			if _, err := s.sweep(ctx); err != nil {
				s.logger.Error("Error during expiry sweep", "error", err)
			}
		}
	}
}

// sweep returns the number of transfers it cancelled
func (s *ExpirySweeper) sweep(ctx context.Context) (int, error) {
	now := s.now()
	expired, err := s.transactions.ListExpiredPending(ctx, now, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired pending transactions: %w", err)
	}

	cancelled := 0
	for _, tx := range expired {
		logger := s.logger.With("transaction_id", tx.ID.String())

		out, err := s.writer.Apply(ctx, service.Transition{
			TransactionID: tx.ID,
			Mutate: func(c transfer.Transaction) (transfer.Transaction, error) {
				if !c.OTPExpired(now) {
					return c, errCodeStillValid
				}
				return c.Expire(now)
			},
		})
		switch {
		case errors.Is(err, transfer.ErrInvalidTransition):
			// confirmed or reissued since it was listed
			logger.Debug("Pending transaction no longer expired", "reason", err.Error())
			continue
		case err != nil:
			logger.Error("Failed to expire pending transaction", "error", err)
			continue
		}
		if out.Changed {
			cancelled++
		}
	}

	if cancelled > 0 {
		s.logger.Info("Expired pending transactions", "count", cancelled)
	}
	return cancelled, nil
}
