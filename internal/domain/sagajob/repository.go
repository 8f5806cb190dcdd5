package sagajob

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository manages durable saga job persistence
type Repository interface {
	// Enqueue stores a runnable job; enqueuing an existing transaction is a no-op
	Enqueue(ctx context.Context, job *Job) error
	Get(ctx context.Context, transactionID uuid.UUID) (*Job, error)

	// GetRunnable returns unfinished jobs that are due and not leased at now
	GetRunnable(ctx context.Context, now time.Time, limit int) ([]*Job, error)

	// AcquireLease takes the job for owner until the given time, only if it is
	// unfinished and not leased by someone else. Returns false when it is.
	AcquireLease(ctx context.Context, transactionID uuid.UUID, owner string, until, now time.Time) (bool, error)

	// Release drops owner's lease without changing the schedule
	Release(ctx context.Context, transactionID uuid.UUID, owner string) error

	// Park schedules the next status probe and drops owner's lease
	Park(ctx context.Context, transactionID uuid.UUID, owner string, attempts int, nextAttemptAt time.Time, lastError string) error

	// Wake makes a parked or escalated job due now and resets its probe count
	Wake(ctx context.Context, transactionID uuid.UUID, now time.Time) error

	MarkDone(ctx context.Context, transactionID uuid.UUID) error
	Escalate(ctx context.Context, transactionID uuid.UUID, reason string) error
	WithTx(tx pgx.Tx) Repository
}

// ErrJobNotFound indicates missing saga job
type ErrJobNotFound struct {
	TransactionID uuid.UUID
}

func (e ErrJobNotFound) Error() string {
	return "saga job not found: " + e.TransactionID.String()
}
