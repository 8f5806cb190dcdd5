package limits

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Repository defines limit persistence operations. Every method is a single
// atomic statement so concurrent transfers for one user never read-then-write.
type Repository interface {
	// Refresh creates the user's row with defaults if missing and applies the calendar reset
	Refresh(ctx context.Context, userID string, defaults Defaults, w Window) (*State, error)

	// Reserve adds amount to both reserved counters and records a HELD hold,
	// only if it fits both windows. Returns false when it does not fit.
	Reserve(ctx context.Context, userID string, transactionID uuid.UUID, amount decimal.Decimal) (bool, error)

	// CommitHold moves a HELD hold into the used counters. Returns false if the hold was not HELD.
	CommitHold(ctx context.Context, transactionID uuid.UUID) (bool, error)

	// ReleaseHold returns a HELD hold's capacity. Returns false if the hold was not HELD.
	ReleaseHold(ctx context.Context, transactionID uuid.UUID) (bool, error)

	GetHold(ctx context.Context, transactionID uuid.UUID) (*Hold, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrHoldNotFound indicates a transaction without a limit hold
type ErrHoldNotFound struct {
	TransactionID uuid.UUID
}

func (e ErrHoldNotFound) Error() string {
	return "limit hold not found for transaction: " + e.TransactionID.String()
}
