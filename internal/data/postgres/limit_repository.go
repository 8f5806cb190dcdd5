package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/exchange-bridge/internal/domain/limits"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LimitRepository implements the limits.Repository interface for PostgreSQL
type LimitRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewLimitRepository creates a new PostgreSQL limit repository
func NewLimitRepository(logger *slog.Logger, db *persistence.PostgresDB) limits.Repository {
	return &LimitRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction so reservations commit
// together with the status change that needs them
func (r *LimitRepository) WithTx(tx pgx.Tx) limits.Repository {
	return &LimitRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Refresh creates the user's counters on first use and zeroes the used
// amounts whose calendar window has rolled over. Reservations survive the reset.
func (r *LimitRepository) Refresh(ctx context.Context, userID string, defaults limits.Defaults, w limits.Window) (*limits.State, error) {
	query := `
		INSERT INTO user_limits (user_id, daily_limit, weekly_limit, last_daily_reset, last_weekly_reset, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			daily_used = CASE WHEN user_limits.last_daily_reset < $4 THEN 0 ELSE user_limits.daily_used END,
			weekly_used = CASE WHEN user_limits.last_weekly_reset < $5 THEN 0 ELSE user_limits.weekly_used END,
			last_daily_reset = GREATEST(user_limits.last_daily_reset, $4),
			last_weekly_reset = GREATEST(user_limits.last_weekly_reset, $5),
			updated_at = CASE
				WHEN user_limits.last_daily_reset < $4 OR user_limits.last_weekly_reset < $5 THEN NOW()
				ELSE user_limits.updated_at
			END
		RETURNING user_id, daily_limit, weekly_limit, daily_used, weekly_used, daily_reserved, weekly_reserved,
			last_daily_reset, last_weekly_reset, updated_at
	`

	var s limits.State
	err := r.querier.QueryRow(ctx, query, userID, defaults.Daily, defaults.Weekly, w.DayStart, w.WeekStart).Scan(
		&s.UserID,
		&s.DailyLimit,
		&s.WeeklyLimit,
		&s.DailyUsed,
		&s.WeeklyUsed,
		&s.DailyReserved,
		&s.WeeklyReserved,
		&s.LastDailyReset,
		&s.LastWeeklyReset,
		&s.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to refresh user limits", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to refresh user limits: %w", err)
	}

	return &s, nil
}

// Reserve atomically checks both windows and records the hold. The counters
// row is locked by the UPDATE, so concurrent reservations for one user serialize.
func (r *LimitRepository) Reserve(ctx context.Context, userID string, transactionID uuid.UUID, amount decimal.Decimal) (bool, error) {
	query := `
		WITH reserved AS (
			UPDATE user_limits
			SET daily_reserved = daily_reserved + $3::numeric,
				weekly_reserved = weekly_reserved + $3::numeric,
				updated_at = NOW()
			WHERE user_id = $1
				AND daily_used + daily_reserved + $3::numeric <= daily_limit
				AND weekly_used + weekly_reserved + $3::numeric <= weekly_limit
				AND NOT EXISTS (SELECT 1 FROM limit_holds WHERE transaction_id = $2::uuid)
			RETURNING user_id
		)
		INSERT INTO limit_holds (transaction_id, user_id, amount, status, created_at, updated_at)
		SELECT $2::uuid, user_id, $3::numeric, $4, NOW(), NOW()
		FROM reserved
	`

	result, err := r.querier.Exec(ctx, query, userID, transactionID, amount, shared.HoldStatusHeld)
	if err != nil {
		r.logger.Error("Failed to reserve limit",
			"user_id", userID,
			"transaction_id", transactionID.String(),
			"error", err,
		)
		return false, fmt.Errorf("failed to reserve limit: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// CommitHold moves a HELD amount from reserved to used
func (r *LimitRepository) CommitHold(ctx context.Context, transactionID uuid.UUID) (bool, error) {
	query := `
		WITH settled AS (
			UPDATE limit_holds
			SET status = $2, updated_at = NOW()
			WHERE transaction_id = $1 AND status = $3
			RETURNING user_id, amount
		)
		UPDATE user_limits u
		SET daily_reserved = GREATEST(u.daily_reserved - s.amount, 0),
			weekly_reserved = GREATEST(u.weekly_reserved - s.amount, 0),
			daily_used = u.daily_used + s.amount,
			weekly_used = u.weekly_used + s.amount,
			updated_at = NOW()
		FROM settled s
		WHERE u.user_id = s.user_id
	`

	result, err := r.querier.Exec(ctx, query, transactionID, shared.HoldStatusCommitted, shared.HoldStatusHeld)
	if err != nil {
		r.logger.Error("Failed to commit limit hold", "transaction_id", transactionID.String(), "error", err)
		return false, fmt.Errorf("failed to commit limit hold: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// ReleaseHold gives a HELD amount back without counting it as used
func (r *LimitRepository) ReleaseHold(ctx context.Context, transactionID uuid.UUID) (bool, error) {
	query := `
		WITH settled AS (
			UPDATE limit_holds
			SET status = $2, updated_at = NOW()
			WHERE transaction_id = $1 AND status = $3
			RETURNING user_id, amount
		)
		UPDATE user_limits u
		SET daily_reserved = GREATEST(u.daily_reserved - s.amount, 0),
			weekly_reserved = GREATEST(u.weekly_reserved - s.amount, 0),
			updated_at = NOW()
		FROM settled s
		WHERE u.user_id = s.user_id
	`

	result, err := r.querier.Exec(ctx, query, transactionID, shared.HoldStatusReleased, shared.HoldStatusHeld)
	if err != nil {
		r.logger.Error("Failed to release limit hold", "transaction_id", transactionID.String(), "error", err)
		return false, fmt.Errorf("failed to release limit hold: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// GetHold retrieves the hold recorded for a transaction
func (r *LimitRepository) GetHold(ctx context.Context, transactionID uuid.UUID) (*limits.Hold, error) {
	query := `
		SELECT transaction_id, user_id, amount, status, created_at, updated_at
		FROM limit_holds
		WHERE transaction_id = $1
	`

	var h limits.Hold
	err := r.querier.QueryRow(ctx, query, transactionID).Scan(
		&h.TransactionID,
		&h.UserID,
		&h.Amount,
		&h.Status,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, limits.ErrHoldNotFound{TransactionID: transactionID}
		}
		r.logger.Error("Failed to get limit hold", "transaction_id", transactionID.String(), "error", err)
		return nil, fmt.Errorf("failed to get limit hold: %w", err)
	}

	return &h, nil
}
