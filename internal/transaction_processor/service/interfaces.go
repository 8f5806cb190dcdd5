package service

import (
	"context"
	"errors"

	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/exchange-bridge/internal/providers"
	"github.com/google/uuid"
)

var (
	// ErrRunInProgress rejects a second orchestration of a transaction that is already being driven
	ErrRunInProgress = errors.New("saga run already in progress")
	// ErrNotConfirmed rejects orchestration of a transaction whose code was never verified
	ErrNotConfirmed = errors.New("transaction is not confirmed")
)

// SagaService drives confirmed transactions through both legs
type SagaService interface {
	Run(ctx context.Context, request *shared.SagaRequest) error
}

// SagaSubmitter queues a saga run without waiting for it
type SagaSubmitter interface {
	Submit(ctx context.Context, request *shared.SagaRequest) error
}

// Reconciler applies asynchronous provider callbacks
type Reconciler interface {
	Reconcile(ctx context.Context, event *shared.ProviderEvent) error
}

// Mutation derives the next version of a transaction from the current one
type Mutation func(current transfer.Transaction) (transfer.Transaction, error)

// Transition asks the StateWriter to apply a mutation to the latest stored version
type Transition struct {
	TransactionID uuid.UUID
	CorrelationID string
	Mutate        Mutation
}

// Outcome reports the stored state after a transition. Changed is false when
// the mutation was a no-op against an already settled transaction or leg.
type Outcome struct {
	Transaction *transfer.Transaction
	Changed     bool
}

// StateWriter persists transitions under optimistic concurrency, retrying
// the read-modify-write when another writer wins the version race
type StateWriter interface {
	Apply(ctx context.Context, t Transition) (*Outcome, error)
}

// LegExecutor issues and resolves provider calls for a leg
type LegExecutor interface {
	// Execute calls Debit or Credit. Errors are ProviderErrors.
	Execute(ctx context.Context, tx transfer.Transaction, kind transfer.LegKind) (*providers.Result, error)
	// Resolve asks the provider for the outcome of an earlier call instead of reissuing it
	Resolve(ctx context.Context, tx transfer.Transaction, kind transfer.LegKind) (*providers.Result, error)
}

// Notifier publishes side effects of settled transfers
type Notifier interface {
	// StatusChanged records a committed transition. It never fails the caller.
	StatusChanged(ctx context.Context, before, after *transfer.Transaction, correlationID string)
	// RaiseCase hands the transfer to manual reconciliation
	RaiseCase(ctx context.Context, tx *transfer.Transaction, reason shared.ReconciliationReason, correlationID string) error
	// Mismatch records a provider event that could not be applied
	Mismatch(ctx context.Context, event *shared.ProviderEvent, mismatch shared.ReconciliationMismatchError)
}
