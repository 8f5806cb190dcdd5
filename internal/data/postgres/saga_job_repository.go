package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/exchange-bridge/internal/domain/sagajob"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const selectSagaJob = `
	SELECT transaction_id, status, attempts, next_attempt_at, locked_by, locked_until,
		last_error, correlation_id, created_at, updated_at
	FROM saga_jobs`

// SagaJobRepository implements the sagajob.Repository interface for PostgreSQL
type SagaJobRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewSagaJobRepository creates a new PostgreSQL saga job repository
func NewSagaJobRepository(logger *slog.Logger, db *persistence.PostgresDB) sagajob.Repository {
	return &SagaJobRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction for atomic operations.
// This ensures a job is enqueued or finished together with the transfer state.
func (r *SagaJobRepository) WithTx(tx pgx.Tx) sagajob.Repository {
	return &SagaJobRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Enqueue stores a new runnable job. The poller picks it up even if the
// saga request message is never delivered.
func (r *SagaJobRepository) Enqueue(ctx context.Context, job *sagajob.Job) error {
	query := `
		INSERT INTO saga_jobs (transaction_id, status, attempts, next_attempt_at, correlation_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (transaction_id) DO NOTHING
	`

	_, err := r.querier.Exec(ctx, query,
		job.TransactionID,
		job.Status,
		job.Attempts,
		job.NextAttemptAt,
		job.CorrelationID,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to enqueue saga job",
			"transaction_id", job.TransactionID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to enqueue saga job: %w", err)
	}

	return nil
}

// Get retrieves the job for a transaction
func (r *SagaJobRepository) Get(ctx context.Context, transactionID uuid.UUID) (*sagajob.Job, error) {
	query := selectSagaJob + " WHERE transaction_id = $1"

	job, err := scanSagaJob(r.querier.QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sagajob.ErrJobNotFound{TransactionID: transactionID}
		}
		r.logger.Error("Failed to get saga job", "transaction_id", transactionID.String(), "error", err)
		return nil, fmt.Errorf("failed to get saga job: %w", err)
	}

	return job, nil
}

// GetRunnable retrieves a batch of due, unleased jobs ordered by due time.
// This is used by the job poller to resume orchestration in FIFO order.
func (r *SagaJobRepository) GetRunnable(ctx context.Context, now time.Time, limit int) ([]*sagajob.Job, error) {
	query := selectSagaJob + `
		WHERE status IN ($1, $2)
			AND next_attempt_at <= $3
			AND (locked_until IS NULL OR locked_until <= $3)
		ORDER BY next_attempt_at ASC
		LIMIT $4`

	rows, err := r.querier.Query(ctx, query, shared.SagaJobStatusRunnable, shared.SagaJobStatusParked, now, limit)
	if err != nil {
		r.logger.Error("Failed to get runnable saga jobs", "error", err)
		return nil, fmt.Errorf("failed to get runnable saga jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*sagajob.Job
	for rows.Next() {
		job, err := scanSagaJob(rows)
		if err != nil {
			r.logger.Error("Failed to scan saga job", "error", err)
			return nil, fmt.Errorf("failed to scan saga job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over saga jobs", "error", err)
		return nil, fmt.Errorf("error iterating over saga jobs: %w", err)
	}

	return jobs, nil
}

// AcquireLease takes the job for owner. An expired lease can be taken over;
// a lease already held by owner is extended.
func (r *SagaJobRepository) AcquireLease(ctx context.Context, transactionID uuid.UUID, owner string, until, now time.Time) (bool, error) {
	query := `
		UPDATE saga_jobs
		SET locked_by = $1, locked_until = $2, status = $3, updated_at = $4
		WHERE transaction_id = $5
			AND status IN ($3, $6)
			AND (locked_until IS NULL OR locked_until <= $4 OR locked_by = $1)
	`

	result, err := r.querier.Exec(ctx, query,
		owner,
		until,
		shared.SagaJobStatusRunnable,
		now,
		transactionID,
		shared.SagaJobStatusParked,
	)
	if err != nil {
		r.logger.Error("Failed to acquire saga job lease",
			"transaction_id", transactionID.String(),
			"owner", owner,
			"error", err,
		)
		return false, fmt.Errorf("failed to acquire saga job lease: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// Release drops owner's lease. Releasing a lease owned by someone else does nothing.
func (r *SagaJobRepository) Release(ctx context.Context, transactionID uuid.UUID, owner string) error {
	query := `
		UPDATE saga_jobs
		SET locked_by = '', locked_until = NULL, updated_at = NOW()
		WHERE transaction_id = $1 AND locked_by = $2
	`

	if _, err := r.querier.Exec(ctx, query, transactionID, owner); err != nil {
		r.logger.Error("Failed to release saga job lease", "transaction_id", transactionID.String(), "error", err)
		return fmt.Errorf("failed to release saga job lease: %w", err)
	}
	return nil
}

// Park schedules the next status probe and drops owner's lease
func (r *SagaJobRepository) Park(ctx context.Context, transactionID uuid.UUID, owner string, attempts int, nextAttemptAt time.Time, lastError string) error {
	query := `
		UPDATE saga_jobs
		SET status = $1, attempts = $2, next_attempt_at = $3, last_error = $4,
			locked_by = '', locked_until = NULL, updated_at = NOW()
		WHERE transaction_id = $5 AND locked_by = $6 AND status IN ($7, $1)
	`

	result, err := r.querier.Exec(ctx, query,
		shared.SagaJobStatusParked,
		attempts,
		nextAttemptAt,
		lastError,
		transactionID,
		owner,
		shared.SagaJobStatusRunnable,
	)
	if err != nil {
		r.logger.Error("Failed to park saga job", "transaction_id", transactionID.String(), "error", err)
		return fmt.Errorf("failed to park saga job: %w", err)
	}

	if result.RowsAffected() == 0 {
		r.logger.Warn("Saga job lease lost before parking", "transaction_id", transactionID.String(), "owner", owner)
	}
	return nil
}

// Wake makes a job that is not done due now and resets its probe count.
// Used when a webhook delivers the outcome the job was waiting for; an
// escalated job is revived too, since the transfer is still short of terminal.
func (r *SagaJobRepository) Wake(ctx context.Context, transactionID uuid.UUID, now time.Time) error {
	query := `
		UPDATE saga_jobs
		SET status = $1, attempts = 0, next_attempt_at = $2, updated_at = $2
		WHERE transaction_id = $3 AND status IN ($1, $4, $5)
	`

	_, err := r.querier.Exec(ctx, query,
		shared.SagaJobStatusRunnable,
		now,
		transactionID,
		shared.SagaJobStatusParked,
		shared.SagaJobStatusEscalated,
	)
	if err != nil {
		r.logger.Error("Failed to wake saga job", "transaction_id", transactionID.String(), "error", err)
		return fmt.Errorf("failed to wake saga job: %w", err)
	}
	return nil
}

// MarkDone finishes the job; the transfer reached a terminal status
func (r *SagaJobRepository) MarkDone(ctx context.Context, transactionID uuid.UUID) error {
	return r.finish(ctx, transactionID, shared.SagaJobStatusDone, "")
}

// Escalate finishes the job and hands the transfer to manual reconciliation
func (r *SagaJobRepository) Escalate(ctx context.Context, transactionID uuid.UUID, reason string) error {
	return r.finish(ctx, transactionID, shared.SagaJobStatusEscalated, reason)
}

func (r *SagaJobRepository) finish(ctx context.Context, transactionID uuid.UUID, status shared.SagaJobStatus, reason string) error {
	query := `
		UPDATE saga_jobs
		SET status = $1, last_error = CASE WHEN $2 = '' THEN last_error ELSE $2 END,
			locked_by = '', locked_until = NULL, updated_at = NOW()
		WHERE transaction_id = $3 AND status IN ($4, $5)
	`

	_, err := r.querier.Exec(ctx, query,
		status,
		reason,
		transactionID,
		shared.SagaJobStatusRunnable,
		shared.SagaJobStatusParked,
	)
	if err != nil {
		r.logger.Error("Failed to finish saga job",
			"transaction_id", transactionID.String(),
			"status", string(status),
			"error", err,
		)
		return fmt.Errorf("failed to finish saga job: %w", err)
	}
	return nil
}

func scanSagaJob(row rowScanner) (*sagajob.Job, error) {
	var job sagajob.Job
	err := row.Scan(
		&job.TransactionID,
		&job.Status,
		&job.Attempts,
		&job.NextAttemptAt,
		&job.LockedBy,
		&job.LockedUntil,
		&job.LastError,
		&job.CorrelationID,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
