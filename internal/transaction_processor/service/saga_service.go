package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/exchange-bridge/internal/config"
	"github.com/exchange-bridge/internal/domain/sagajob"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/exchange-bridge/internal/providers"
	"github.com/google/uuid"
)

// SagaServiceImpl is the orchestrator. A run owns the transaction's saga job
// lease for its whole duration; a second run for the same transaction, in this
// process or another, is rejected with ErrRunInProgress.
type SagaServiceImpl struct {
	jobs         sagajob.Repository
	transactions transfer.Repository
	writer       StateWriter
	legs         LegExecutor
	notifier     Notifier
	logger       *slog.Logger

	owner              string
	leaseTTL           time.Duration
	backoff            time.Duration
	maxBackoff         time.Duration
	maxResolveAttempts int
	now                func() time.Time

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

var _ SagaService = (*SagaServiceImpl)(nil)

func NewSagaService(
	jobs sagajob.Repository,
	transactions transfer.Repository,
	writer StateWriter,
	legs LegExecutor,
	notifier Notifier,
	cfg config.SagaJobsConfig,
	owner string,
	logger *slog.Logger,
) *SagaServiceImpl {
	return &SagaServiceImpl{
		jobs:               jobs,
		transactions:       transactions,
		writer:             writer,
		legs:               legs,
		notifier:           notifier,
		logger:             logger,
		owner:              owner,
		leaseTTL:           cfg.LeaseTTL,
		backoff:            cfg.ResolveBackoff,
		maxBackoff:         cfg.MaxResolveBackoff,
		maxResolveAttempts: cfg.MaxResolveAttempts,
		now:                func() time.Time { return time.Now().UTC() },
		inFlight:           make(map[uuid.UUID]struct{}),
	}
}

// Run drives the transaction until it is terminal or waiting on a provider.
// Provider calls and the writes that record them are not interrupted by ctx;
// cancellation is honored between steps.
func (s *SagaServiceImpl) Run(ctx context.Context, request *shared.SagaRequest) error {
	id := request.TransactionID
	logger := s.logger.With("transaction_id", id.String())
	if request.CorrelationID != "" {
		logger = logger.With("correlation_id", request.CorrelationID)
	}

	if !s.claim(id) {
		logger.Info("Saga run rejected, transaction already running in this process")
		return ErrRunInProgress
	}
	defer s.unclaim(id)

	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.IsFinished() {
		logger.Debug("Saga job already finished", "status", string(job.Status))
		return nil
	}

	now := s.now()
	acquired, err := s.jobs.AcquireLease(ctx, id, s.owner, now.Add(s.leaseTTL), now)
	if err != nil {
		return err
	}
	if !acquired {
		logger.Info("Saga run rejected, lease held by another worker", "locked_by", job.LockedBy)
		return ErrRunInProgress
	}

	logger.Info("Saga run started", "attempts", job.Attempts)
	return s.drive(ctx, logger, job, request.CorrelationID)
}

func (s *SagaServiceImpl) drive(ctx context.Context, logger *slog.Logger, job *sagajob.Job, correlationID string) error {
	id := job.TransactionID
	work := context.WithoutCancel(ctx)

	tx, err := s.transactions.GetByID(work, id)
	if err != nil {
		return s.retryLater(work, logger, job, err)
	}

	for {
		if tx.IsTerminal() {
			return s.finish(work, logger, tx)
		}
		if ctx.Err() != nil {
			s.release(work, logger, id)
			return ctx.Err()
		}

		var (
			kind    transfer.LegKind
			result  *providers.Result
			callErr error
		)

		switch tx.Status {
		case shared.TransactionStatusPending:
			logger.Warn("Saga job exists for an unconfirmed transaction")
			s.release(work, logger, id)
			return ErrNotConfirmed

		case shared.TransactionStatusProcessing, shared.TransactionStatusSourceCompleted:
			kind = transfer.LegSource
			if tx.Status == shared.TransactionStatusSourceCompleted {
				kind = transfer.LegDestination
			}
			if err := s.extendLease(work, id); err != nil {
				return err
			}

			begin := func(c transfer.Transaction) (transfer.Transaction, error) { return c.BeginLeg(kind, s.now()) }
			out, err := s.writer.Apply(work, Transition{TransactionID: id, CorrelationID: correlationID, Mutate: begin})
			if err != nil {
				return s.retryLater(work, logger, job, err)
			}
			tx = out.Transaction
			if !out.Changed {
				continue
			}

			logger.Info("Calling provider", "leg", string(kind), "provider", tx.Leg(kind).Provider)
			result, callErr = s.legs.Execute(work, *tx, kind)

		default:
			inFlight, ok := tx.InFlightLeg()
			if !ok {
				return s.retryLater(work, logger, job, fmt.Errorf("unexpected status %s", tx.Status))
			}
			kind = inFlight
			if err := s.extendLease(work, id); err != nil {
				return err
			}

			logger.Info("Resolving leg outcome", "leg", string(kind), "leg_status", string(tx.Leg(kind).Status))
			result, callErr = s.legs.Resolve(work, *tx, kind)
		}

		next, unresolved, err := s.record(work, tx, kind, result, callErr, correlationID)
		if err != nil {
			return s.retryLater(work, logger, job, err)
		}
		if unresolved != "" {
			return s.park(work, logger, job, next, kind, unresolved, correlationID)
		}
		tx = next
	}
}

// record persists what the provider said about the leg. A non-empty unresolved
// reason means the outcome is still unknown and the job must wait.
func (s *SagaServiceImpl) record(
	ctx context.Context,
	tx *transfer.Transaction,
	kind transfer.LegKind,
	result *providers.Result,
	callErr error,
	correlationID string,
) (*transfer.Transaction, string, error) {
	var (
		mutate     Mutation
		unresolved string
	)

	leg := tx.Leg(kind)
	switch {
	case callErr != nil:
		pe := providers.Classify(leg.Provider, callErr)
		if pe.OutcomeKnown() {
			mutate = func(c transfer.Transaction) (transfer.Transaction, error) {
				return c.FailLeg(kind, pe.Error(), s.now())
			}
			break
		}
		unresolved = pe.Error()
		if leg.Status == shared.LegStatusUnknown && leg.LastError == unresolved {
			return tx, unresolved, nil
		}
		mutate = func(c transfer.Transaction) (transfer.Transaction, error) {
			return c.MarkLegUnknown(kind, unresolved, s.now())
		}

	case result.State == providers.LegStateCompleted:
		mutate = func(c transfer.Transaction) (transfer.Transaction, error) {
			return c.CompleteLeg(kind, result.Receipt, s.now())
		}

	case result.State == providers.LegStateFailed:
		reason := describe(result)
		mutate = func(c transfer.Transaction) (transfer.Transaction, error) {
			return c.FailLeg(kind, reason, s.now())
		}

	case result.State == providers.LegStateNotFound:
		return tx, "provider has no record of " + leg.ProviderTransactionID, nil

	default:
		return tx, "awaiting provider callback", nil
	}

	out, err := s.writer.Apply(ctx, Transition{TransactionID: tx.ID, CorrelationID: correlationID, Mutate: mutate})
	if err != nil {
		return nil, "", err
	}
	if !out.Changed {
		// a callback settled the leg first; continue from the stored state
		return out.Transaction, "", nil
	}
	return out.Transaction, unresolved, nil
}

// park schedules the next status probe, or escalates once probes are exhausted
func (s *SagaServiceImpl) park(
	ctx context.Context,
	logger *slog.Logger,
	job *sagajob.Job,
	tx *transfer.Transaction,
	kind transfer.LegKind,
	reason string,
	correlationID string,
) error {
	attempts := job.Attempts + 1

	if attempts > s.maxResolveAttempts {
		caseReason := shared.ReconciliationUnresolvedSource
		if kind == transfer.LegDestination {
			caseReason = shared.ReconciliationUnresolvedDestination
		}
		if err := s.notifier.RaiseCase(ctx, tx, caseReason, correlationID); err != nil {
			// keep probing; the case is raised on the next attempt
			if parkErr := s.jobs.Park(ctx, tx.ID, s.owner, job.Attempts, s.now().Add(s.maxBackoff), reason); parkErr != nil {
				logger.Error("Failed to reschedule saga job", "error", parkErr)
			}
			return err
		}
		if err := s.jobs.Escalate(ctx, tx.ID, reason); err != nil {
			return err
		}
		logger.Warn("Saga escalated to manual reconciliation",
			"leg", string(kind),
			"attempts", job.Attempts,
			"reason", reason,
		)
		return nil
	}

	next := s.now().Add(sagajob.Backoff(s.backoff, s.maxBackoff, attempts))
	if err := s.jobs.Park(ctx, tx.ID, s.owner, attempts, next, reason); err != nil {
		return err
	}
	logger.Info("Saga parked until leg outcome is known",
		"leg", string(kind),
		"attempts", attempts,
		"next_attempt_at", next,
		"reason", reason,
	)
	return nil
}

// retryLater parks the job without counting a probe so the poller retries after an infrastructure error
func (s *SagaServiceImpl) retryLater(ctx context.Context, logger *slog.Logger, job *sagajob.Job, cause error) error {
	logger.Error("Saga run interrupted", "error", cause)
	next := s.now().Add(s.backoff)
	if err := s.jobs.Park(ctx, job.TransactionID, s.owner, job.Attempts, next, cause.Error()); err != nil {
		logger.Error("Failed to reschedule saga job", "error", err)
	}
	return cause
}

func (s *SagaServiceImpl) finish(ctx context.Context, logger *slog.Logger, tx *transfer.Transaction) error {
	if err := s.jobs.MarkDone(ctx, tx.ID); err != nil {
		return err
	}
	logger.Info("Saga run finished",
		"status", string(tx.Status),
		"failure_reason", string(tx.FailureReason),
	)
	return nil
}

func (s *SagaServiceImpl) extendLease(ctx context.Context, id uuid.UUID) error {
	now := s.now()
	ok, err := s.jobs.AcquireLease(ctx, id, s.owner, now.Add(s.leaseTTL), now)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("lease lost: %w", ErrRunInProgress)
	}
	return nil
}

func (s *SagaServiceImpl) release(ctx context.Context, logger *slog.Logger, id uuid.UUID) {
	if err := s.jobs.Release(ctx, id, s.owner); err != nil {
		logger.Error("Failed to release saga job lease", "error", err)
	}
}

func (s *SagaServiceImpl) claim(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *SagaServiceImpl) unclaim(id uuid.UUID) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

func describe(r *providers.Result) string {
	switch {
	case r.Code != "" && r.Message != "":
		return r.Code + ": " + r.Message
	case r.Code != "":
		return r.Code
	case r.Message != "":
		return r.Message
	}
	return "declined by provider"
}

// IsRunInProgress reports whether err means another run owns the transaction
func IsRunInProgress(err error) bool {
	return errors.Is(err, ErrRunInProgress)
}
