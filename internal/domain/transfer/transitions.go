package transfer

import (
	"fmt"
	"time"

	"github.com/exchange-bridge/internal/domain/shared"
)

// ErrInvalidTransition is matched by every InvalidTransitionError
var ErrInvalidTransition = fmt.Errorf("invalid status transition")

// InvalidTransitionError reports an edge missing from the status graph
type InvalidTransitionError struct {
	From shared.TransactionStatus
	To   shared.TransactionStatus
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func (e InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

var allowedTransitions = map[shared.TransactionStatus][]shared.TransactionStatus{
	shared.TransactionStatusPending: {
		shared.TransactionStatusProcessing,
		shared.TransactionStatusCancelled,
		shared.TransactionStatusFailed,
	},
	shared.TransactionStatusProcessing: {
		shared.TransactionStatusAwaitingSource,
		shared.TransactionStatusFailed,
	},
	shared.TransactionStatusAwaitingSource: {
		shared.TransactionStatusSourceCompleted,
		shared.TransactionStatusFailed,
	},
	shared.TransactionStatusSourceCompleted: {
		shared.TransactionStatusAwaitingDestination,
		shared.TransactionStatusFailed,
	},
	shared.TransactionStatusAwaitingDestination: {
		shared.TransactionStatusCompleted,
		shared.TransactionStatusFailed,
	},
}

// CanTransition reports whether the status graph has an edge from -> to
func CanTransition(from, to shared.TransactionStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// advance moves to a new status and appends the history entry for the new version
func (t Transaction) advance(to shared.TransactionStatus, msg string, at time.Time) (Transaction, error) {
	if t.Status.IsTerminal() {
		return t, ErrAlreadyTerminal
	}
	if !CanTransition(t.Status, to) {
		return t, InvalidTransitionError{From: t.Status, To: to}
	}

	next := t.clone()
	next.Version++
	next.Status = to
	next.StatusMessage = msg
	next.UpdatedAt = at
	next.History = append(next.History, StatusChange{Version: next.Version, Status: to, Message: msg, At: at})

	switch to {
	case shared.TransactionStatusCompleted:
		next.CompletedAt = &at
	case shared.TransactionStatusFailed, shared.TransactionStatusCancelled:
		next.FailedAt = &at
	}
	return next, nil
}

// touch produces the next version without a status change
func (t Transaction) touch(at time.Time) Transaction {
	next := t.clone()
	next.Version++
	next.UpdatedAt = at
	return next
}

func (t Transaction) requirePending() error {
	if t.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if t.Status != shared.TransactionStatusPending {
		return InvalidTransitionError{From: t.Status, To: shared.TransactionStatusProcessing}
	}
	return nil
}

// VerifyOTP records a successful code check and moves the transfer to PROCESSING.
// The code hash is cleared so the same code can never be replayed.
func (t Transaction) VerifyOTP(at time.Time) (Transaction, error) {
	if err := t.requirePending(); err != nil {
		return t, err
	}
	next, err := t.advance(shared.TransactionStatusProcessing, "Confirmation code verified", at)
	if err != nil {
		return t, err
	}
	next.OTP.Verified = true
	next.OTP.VerifiedAt = &at
	next.OTP.CodeHash = ""
	return next, nil
}

// RecordOTPFailure counts a wrong code without changing status
func (t Transaction) RecordOTPFailure(at time.Time) (Transaction, error) {
	if err := t.requirePending(); err != nil {
		return t, err
	}
	next := t.touch(at)
	next.OTP.Attempts++
	return next, nil
}

// ReissueOTP replaces the confirmation code, invalidating the previous one
func (t Transaction) ReissueOTP(codeHash string, expiresAt, at time.Time) (Transaction, error) {
	if err := t.requirePending(); err != nil {
		return t, err
	}
	next := t.touch(at)
	next.OTP.CodeHash = codeHash
	next.OTP.ExpiresAt = expiresAt
	next.OTP.Attempts = 0
	return next, nil
}

// Cancel ends a PENDING transfer. No provider was ever called.
func (t Transaction) Cancel(reason shared.FailureReason, msg string, at time.Time) (Transaction, error) {
	next, err := t.advance(shared.TransactionStatusCancelled, msg, at)
	if err != nil {
		return t, err
	}
	next.FailureReason = reason
	next.OTP.CodeHash = ""
	return next, nil
}

// Expire cancels a PENDING transfer whose confirmation window closed
func (t Transaction) Expire(at time.Time) (Transaction, error) {
	return t.Cancel(shared.FailureReasonOTPExpired, "Confirmation code expired", at)
}

// Fail ends the transfer with the given reason
func (t Transaction) Fail(reason shared.FailureReason, msg string, at time.Time) (Transaction, error) {
	next, err := t.advance(shared.TransactionStatusFailed, msg, at)
	if err != nil {
		return t, err
	}
	next.FailureReason = reason
	return next, nil
}

// BeginLeg marks the leg in flight before its provider call is issued
func (t Transaction) BeginLeg(kind LegKind, at time.Time) (Transaction, error) {
	to := shared.TransactionStatusAwaitingSource
	msg := "Debiting source account"
	if kind == LegDestination {
		to = shared.TransactionStatusAwaitingDestination
		msg = "Crediting destination account"
	}

	next, err := t.advance(to, msg, at)
	if err != nil {
		return t, err
	}
	leg := next.Leg(kind)
	leg.Status = shared.LegStatusInFlight
	leg.LastError = ""
	return next.withLeg(kind, leg), nil
}

// MarkLegUnknown records that the provider call ended without a known outcome.
// The status stays AWAITING_*; only a later webhook or status probe resolves it.
func (t Transaction) MarkLegUnknown(kind LegKind, reason string, at time.Time) (Transaction, error) {
	if t.Status.IsTerminal() {
		return t, ErrAlreadyTerminal
	}
	if t.Leg(kind).Status.IsTerminal() {
		return t, ErrLegAlreadySettled
	}
	if inFlight, ok := t.InFlightLeg(); !ok || inFlight != kind {
		return t, fmt.Errorf("%w: %s leg is not awaiting an outcome in status %s", ErrInvalidTransition, kind, t.Status)
	}

	next := t.touch(at)
	leg := next.Leg(kind)
	leg.Status = shared.LegStatusUnknown
	leg.LastError = reason
	return next.withLeg(kind, leg), nil
}

// CompleteLeg records a provider success for the leg
func (t Transaction) CompleteLeg(kind LegKind, receipt string, at time.Time) (Transaction, error) {
	if t.Status.IsTerminal() {
		return t, ErrAlreadyTerminal
	}
	if t.Leg(kind).Status.IsTerminal() {
		return t, ErrLegAlreadySettled
	}

	to := shared.TransactionStatusSourceCompleted
	msg := "Source account debited"
	if kind == LegDestination {
		to = shared.TransactionStatusCompleted
		msg = "Transfer completed"
	}

	next, err := t.advance(to, msg, at)
	if err != nil {
		return t, err
	}
	leg := next.Leg(kind)
	leg.Status = shared.LegStatusCompleted
	leg.LastError = ""
	if receipt != "" {
		leg.Receipt = receipt
	}
	return next.withLeg(kind, leg), nil
}

// FailLeg records a definitive provider rejection. A rejected source leg moved
// no money; a rejected destination leg leaves the transfer partially settled.
func (t Transaction) FailLeg(kind LegKind, reason string, at time.Time) (Transaction, error) {
	if t.Status.IsTerminal() {
		return t, ErrAlreadyTerminal
	}
	if t.Leg(kind).Status.IsTerminal() {
		return t, ErrLegAlreadySettled
	}

	failure := shared.FailureReasonSourceRejected
	msg := "Source debit rejected"
	switch kind {
	case LegSource:
		if t.Status != shared.TransactionStatusProcessing && t.Status != shared.TransactionStatusAwaitingSource {
			return t, InvalidTransitionError{From: t.Status, To: shared.TransactionStatusFailed}
		}
	case LegDestination:
		if t.Status != shared.TransactionStatusSourceCompleted && t.Status != shared.TransactionStatusAwaitingDestination {
			return t, InvalidTransitionError{From: t.Status, To: shared.TransactionStatusFailed}
		}
		failure = shared.FailureReasonPartialSettlement
		msg = "Destination credit rejected after source debit"
	}
	if reason != "" {
		msg += ": " + reason
	}

	next, err := t.Fail(failure, msg, at)
	if err != nil {
		return t, err
	}
	leg := next.Leg(kind)
	leg.Status = shared.LegStatusFailed
	leg.LastError = reason
	return next.withLeg(kind, leg), nil
}
