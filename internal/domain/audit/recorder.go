package audit

import (
	"context"
	"log/slog"
	"time"
)

const recordTimeout = 5 * time.Second

// RepositoryRecorder appends events to a Repository and only logs failures
type RepositoryRecorder struct {
	repo   Repository
	logger *slog.Logger
}

func NewRecorder(repo Repository, logger *slog.Logger) *RepositoryRecorder {
	return &RepositoryRecorder{repo: repo, logger: logger}
}

// Record survives cancellation of the caller's context so a finished request still leaves its trail
func (r *RepositoryRecorder) Record(ctx context.Context, event *Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := r.repo.Append(ctx, event); err != nil {
		r.logger.Error("Failed to write audit event",
			"action", string(event.Action),
			"transaction_id", event.TransactionID,
			"correlation_id", event.CorrelationID,
			"error", err)
	}
}
