// Package sagajob is the durable record that a confirmed transfer still has
// orchestration work to do. A job outlives process restarts; whoever holds its
// lease is the only orchestrator allowed to drive the transfer.
package sagajob

import (
	"time"

	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/google/uuid"
)

// Job tracks orchestration of one transaction
type Job struct {
	TransactionID uuid.UUID            `json:"transaction_id"`
	Status        shared.SagaJobStatus `json:"status"`
	Attempts      int                  `json:"attempts"` // unresolved status probes since the last wake-up
	NextAttemptAt time.Time            `json:"next_attempt_at"`
	LockedBy      string               `json:"locked_by,omitempty"`
	LockedUntil   *time.Time           `json:"locked_until,omitempty"`
	LastError     string               `json:"last_error,omitempty"`
	CorrelationID string               `json:"correlation_id,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// NewJob creates a job that is runnable immediately
func NewJob(transactionID uuid.UUID, correlationID string, now time.Time) *Job {
	return &Job{
		TransactionID: transactionID,
		Status:        shared.SagaJobStatusRunnable,
		NextAttemptAt: now,
		CorrelationID: correlationID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsFinished reports whether no orchestrator will pick the job up again
func (j *Job) IsFinished() bool {
	return j.Status == shared.SagaJobStatusDone || j.Status == shared.SagaJobStatusEscalated
}

// LeasedAt reports whether another owner still holds the lease at now
func (j *Job) LeasedAt(now time.Time) bool {
	return j.LockedBy != "" && j.LockedUntil != nil && now.Before(*j.LockedUntil)
}

// Backoff returns the delay before probe number attempt (1-based), doubling from base up to max
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
