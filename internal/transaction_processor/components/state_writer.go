package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/exchange-bridge/internal/domain/limits"
	"github.com/exchange-bridge/internal/domain/sagajob"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/exchange-bridge/internal/platform/persistence"
	"github.com/exchange-bridge/internal/transaction_processor/service"
	"github.com/jackc/pgx/v5"
)

// StateWriterImpl is the only writer of transaction state in the processor.
// Each Apply re-reads the transaction inside a database transaction, so a
// mutation always sees the latest stored version.
type StateWriterImpl struct {
	db           persistence.TxRunner
	transactions transfer.Repository
	ledger       *limits.Ledger
	jobs         sagajob.Repository
	notifier     service.Notifier
	retries      int
	logger       *slog.Logger
}

var _ service.StateWriter = (*StateWriterImpl)(nil)

func NewStateWriter(
	db persistence.TxRunner,
	transactions transfer.Repository,
	ledger *limits.Ledger,
	jobs sagajob.Repository,
	notifier service.Notifier,
	retries int,
	logger *slog.Logger,
) *StateWriterImpl {
	if retries <= 0 {
		retries = 1
	}
	return &StateWriterImpl{
		db:           db,
		transactions: transactions,
		ledger:       ledger,
		jobs:         jobs,
		notifier:     notifier,
		retries:      retries,
		logger:       logger,
	}
}

// Apply runs the mutation against the stored transaction and persists the result.
// Terminal transitions settle the limit hold and finish the saga job in the
// same database transaction.
func (w *StateWriterImpl) Apply(ctx context.Context, t service.Transition) (*service.Outcome, error) {
	logger := w.logger.With("transaction_id", t.TransactionID.String())
	if t.CorrelationID != "" {
		logger = logger.With("correlation_id", t.CorrelationID)
	}

	for attempt := 1; ; attempt++ {
		before, out, err := w.apply(ctx, t)
		if err == nil {
			if out.Changed && before.Status != out.Transaction.Status {
				w.notifier.StatusChanged(ctx, before, out.Transaction, t.CorrelationID)
			}
			return out, nil
		}

		var conflict transfer.ErrConcurrentModification
		if errors.As(err, &conflict) && attempt < w.retries {
			logger.Debug("Version conflict, retrying state write", "attempt", attempt)
			continue
		}
		if !errors.Is(err, transfer.ErrInvalidTransition) {
			logger.Error("Failed to apply state transition", "attempt", attempt, "error", err)
		}
		return nil, err
	}
}

func (w *StateWriterImpl) apply(ctx context.Context, t service.Transition) (*transfer.Transaction, *service.Outcome, error) {
	var (
		before *transfer.Transaction
		out    *service.Outcome
	)

	err := w.db.ExecuteTx(ctx, func(dbTx pgx.Tx) error {
		repo := w.transactions.WithTx(dbTx)

		current, err := repo.GetByID(ctx, t.TransactionID)
		if err != nil {
			return err
		}
		before = current

		next, err := t.Mutate(*current)
		if errors.Is(err, transfer.ErrAlreadyTerminal) || errors.Is(err, transfer.ErrLegAlreadySettled) {
			out = &service.Outcome{Transaction: current, Changed: false}
			return nil
		}
		if err != nil {
			return err
		}

		if err := repo.Update(ctx, &next); err != nil {
			return err
		}

		if next.IsTerminal() {
			if err := w.settle(ctx, dbTx, &next); err != nil {
				return err
			}
		}

		out = &service.Outcome{Transaction: &next, Changed: true}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, out, nil
}

// settle resolves the limit hold and closes the saga job for a terminal transaction.
// A partial settlement keeps its hold: the source was debited.
func (w *StateWriterImpl) settle(ctx context.Context, dbTx pgx.Tx, tx *transfer.Transaction) error {
	ledger := w.ledger.WithTx(dbTx)

	switch {
	case tx.Status == shared.TransactionStatusCompleted:
		if err := ledger.Commit(ctx, tx.ID); err != nil {
			return fmt.Errorf("failed to commit limit hold: %w", err)
		}
	case tx.FailureReason.MovedMoney():
		w.logger.Warn("Limit hold kept for partially settled transfer", "transaction_id", tx.ID.String())
	default:
		if err := ledger.Rollback(ctx, tx.ID); err != nil {
			return fmt.Errorf("failed to release limit hold: %w", err)
		}
	}

	if err := w.jobs.WithTx(dbTx).MarkDone(ctx, tx.ID); err != nil {
		return fmt.Errorf("failed to finish saga job: %w", err)
	}
	return nil
}
