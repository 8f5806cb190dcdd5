package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/exchange-bridge/internal/domain/sagajob"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/domain/transfer"
)

// ReconcilerImpl applies provider callbacks to the leg they reference.
// Events are matched only by the leg reference, never by amount or timing.
type ReconcilerImpl struct {
	transactions transfer.Repository
	jobs         sagajob.Repository
	writer       StateWriter
	notifier     Notifier
	logger       *slog.Logger
	now          func() time.Time
}

var _ Reconciler = (*ReconcilerImpl)(nil)

func NewReconciler(
	transactions transfer.Repository,
	jobs sagajob.Repository,
	writer StateWriter,
	notifier Notifier,
	logger *slog.Logger,
) *ReconcilerImpl {
	return &ReconcilerImpl{
		transactions: transactions,
		jobs:         jobs,
		writer:       writer,
		notifier:     notifier,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile is idempotent: replaying an event yields the state of applying it once.
// Mismatches are recorded and swallowed; only infrastructure errors are returned.
func (r *ReconcilerImpl) Reconcile(ctx context.Context, event *shared.ProviderEvent) error {
	logger := r.logger.With(
		"provider", event.Provider,
		"reference", event.Reference,
		"outcome", string(event.Outcome),
	)
	if event.CorrelationID != "" {
		logger = logger.With("correlation_id", event.CorrelationID)
	}

	tx, err := r.transactions.GetByLegReference(ctx, event.Provider, event.Reference)
	if err != nil {
		var notFound transfer.ErrLegReferenceNotFound
		if errors.As(err, &notFound) {
			r.mismatch(ctx, logger, event, "unknown reference")
			return nil
		}
		return err
	}
	logger = logger.With("transaction_id", tx.ID.String())

	kind, ok := tx.LegByReference(event.Provider, event.Reference)
	if !ok {
		r.mismatch(ctx, logger, event, "reference does not belong to any leg")
		return nil
	}

	if settled, matches := legOutcome(tx.Leg(kind).Status, event.Outcome); settled {
		if matches {
			logger.Debug("Duplicate provider event discarded", "leg", string(kind))
			return nil
		}
		r.mismatch(ctx, logger, event, "contradicts recorded "+string(tx.Leg(kind).Status)+" outcome")
		return nil
	}
	if tx.IsTerminal() {
		r.mismatch(ctx, logger, event, "transaction already "+string(tx.Status))
		return nil
	}

	mutate := func(c transfer.Transaction) (transfer.Transaction, error) {
		if event.Outcome == shared.EventOutcomeSucceeded {
			return c.CompleteLeg(kind, event.Receipt, r.now())
		}
		return c.FailLeg(kind, eventReason(event), r.now())
	}

	out, err := r.writer.Apply(ctx, Transition{TransactionID: tx.ID, CorrelationID: event.CorrelationID, Mutate: mutate})
	if err != nil {
		if errors.Is(err, transfer.ErrInvalidTransition) {
			r.mismatch(ctx, logger, event, err.Error())
			return nil
		}
		return err
	}
	if !out.Changed {
		logger.Debug("Provider event already reflected", "status", string(out.Transaction.Status))
		return nil
	}

	logger.Info("Provider event applied",
		"leg", string(kind),
		"status", string(out.Transaction.Status),
	)

	// leg 2 can start without waiting for the parked job's backoff; an escalated job is revived
	if out.Transaction.Status == shared.TransactionStatusSourceCompleted {
		if err := r.jobs.Wake(ctx, tx.ID, r.now()); err != nil {
			logger.Error("Failed to wake saga job", "error", err)
		}
	}
	return nil
}

func (r *ReconcilerImpl) mismatch(ctx context.Context, logger *slog.Logger, event *shared.ProviderEvent, reason string) {
	m := shared.ReconciliationMismatchError{Provider: event.Provider, Reference: event.Reference, Reason: reason}
	logger.Warn("Reconciliation mismatch", "error", m.Error())
	r.notifier.Mismatch(ctx, event, m)
}

// legOutcome reports whether the leg is settled and whether the event agrees with it
func legOutcome(status shared.LegStatus, outcome shared.EventOutcome) (settled, matches bool) {
	switch status {
	case shared.LegStatusCompleted:
		return true, outcome == shared.EventOutcomeSucceeded
	case shared.LegStatusFailed:
		return true, outcome == shared.EventOutcomeFailed
	}
	return false, false
}

func eventReason(e *shared.ProviderEvent) string {
	switch {
	case e.Code != "" && e.Message != "":
		return e.Code + ": " + e.Message
	case e.Code != "":
		return e.Code
	case e.Message != "":
		return e.Message
	}
	return "declined by provider"
}
