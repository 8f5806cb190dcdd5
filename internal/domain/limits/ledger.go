package limits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/exchange-bridge/internal/config"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Ledger admits, commits and rolls back spend against a user's limits
type Ledger struct {
	repo     Repository
	defaults Defaults
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

func NewLedger(repo Repository, cfg config.LimitsConfig, logger *slog.Logger) (*Ledger, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load limits timezone %q: %w", cfg.Timezone, err)
	}
	return &Ledger{
		repo:     repo,
		defaults: Defaults{Daily: cfg.DefaultDaily, Weekly: cfg.DefaultWeekly},
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// WithTx returns a ledger whose writes join tx
func (l *Ledger) WithTx(tx pgx.Tx) *Ledger {
	c := *l
	c.repo = l.repo.WithTx(tx)
	return &c
}

// Check reports whether amount fits without reserving anything
func (l *Ledger) Check(ctx context.Context, userID string, amount decimal.Decimal) (*Decision, error) {
	state, err := l.repo.Refresh(ctx, userID, l.defaults, WindowAt(l.now(), l.loc))
	if err != nil {
		return nil, err
	}
	d := state.Decide(amount)
	return &d, nil
}

// Admit reserves amount for the transaction if it fits both windows.
// Admitting a transaction that already holds capacity is a no-op that succeeds.
func (l *Ledger) Admit(ctx context.Context, userID string, transactionID uuid.UUID, amount decimal.Decimal) (*Decision, error) {
	logger := l.logger.With("user_id", userID, "transaction_id", transactionID.String())

	state, err := l.repo.Refresh(ctx, userID, l.defaults, WindowAt(l.now(), l.loc))
	if err != nil {
		return nil, err
	}

	hold, err := l.repo.GetHold(ctx, transactionID)
	var notFound ErrHoldNotFound
	switch {
	case err == nil && hold.Status != shared.HoldStatusReleased:
		logger.Debug("Limit hold already exists", "status", hold.Status)
		return &Decision{Allowed: true, Requested: amount, DailyAvailable: state.DailyAvailable(), WeeklyAvailable: state.WeeklyAvailable()}, nil
	case err == nil:
		d := state.Decide(amount)
		d.Allowed = false
		return &d, nil
	case !errors.As(err, &notFound):
		return nil, err
	}

	reserved, err := l.repo.Reserve(ctx, userID, transactionID, amount)
	if err != nil {
		return nil, err
	}
	if !reserved {
		// recompute headroom from the latest counters; a concurrent reservation may have won
		latest, err := l.repo.Refresh(ctx, userID, l.defaults, WindowAt(l.now(), l.loc))
		if err != nil {
			return nil, err
		}
		d := latest.Decide(amount)
		d.Allowed = false
		logger.Info("Limit reservation rejected",
			"requested", amount.String(),
			"daily_available", d.DailyAvailable.String(),
			"weekly_available", d.WeeklyAvailable.String())
		return &d, nil
	}

	logger.Info("Limit reserved", "amount", amount.String())
	return &Decision{
		Allowed:         true,
		Requested:       amount,
		DailyAvailable:  nonNegative(state.DailyAvailable().Sub(amount)),
		WeeklyAvailable: nonNegative(state.WeeklyAvailable().Sub(amount)),
	}, nil
}

// Commit turns the transaction's hold into used capacity, exactly once
func (l *Ledger) Commit(ctx context.Context, transactionID uuid.UUID) error {
	changed, err := l.repo.CommitHold(ctx, transactionID)
	if err != nil {
		return err
	}
	if !changed {
		l.logger.Debug("Limit hold already settled, commit skipped", "transaction_id", transactionID.String())
	}
	return nil
}

// Rollback releases the transaction's hold, exactly once
func (l *Ledger) Rollback(ctx context.Context, transactionID uuid.UUID) error {
	changed, err := l.repo.ReleaseHold(ctx, transactionID)
	if err != nil {
		return err
	}
	if !changed {
		l.logger.Debug("Limit hold already settled, release skipped", "transaction_id", transactionID.String())
	}
	return nil
}
