package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidAmount    = errors.New("amount must be positive")
)

// ValidationError reports bad caller input. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// OTPErrorKind classifies a failed confirmation code check
type OTPErrorKind string

const (
	OTPExpired     OTPErrorKind = "OTP_EXPIRED"
	OTPInvalid     OTPErrorKind = "OTP_INVALID"
	OTPAlreadyUsed OTPErrorKind = "OTP_ALREADY_USED"
)

// OTPError is returned by the OTP gate. The user must restart the confirm step.
type OTPError struct {
	Kind OTPErrorKind
}

func (e OTPError) Error() string {
	switch e.Kind {
	case OTPExpired:
		return "confirmation code expired"
	case OTPAlreadyUsed:
		return "confirmation code already used"
	default:
		return "confirmation code invalid"
	}
}

// Is matches any OTPError of the same kind
func (e OTPError) Is(target error) bool {
	t, ok := target.(OTPError)
	return ok && t.Kind == e.Kind
}

// LimitExceededError carries the remaining headroom in the settlement currency
type LimitExceededError struct {
	Requested       decimal.Decimal
	DailyAvailable  decimal.Decimal
	WeeklyAvailable decimal.Decimal
}

func (e LimitExceededError) Error() string {
	return fmt.Sprintf("limit exceeded: requested %s, daily available %s, weekly available %s",
		e.Requested.StringFixed(2), e.DailyAvailable.StringFixed(2), e.WeeklyAvailable.StringFixed(2))
}

// ProviderErrorKind classifies the outcome of a failed provider call
type ProviderErrorKind string

const (
	ProviderRejected ProviderErrorKind = "REJECTED" // provider refused, no money moved
	ProviderTimeout  ProviderErrorKind = "TIMEOUT"  // outcome unknown
	ProviderUnknown  ProviderErrorKind = "UNKNOWN"  // outcome unknown
)

// ProviderError wraps an adapter failure with its classification
type ProviderError struct {
	Kind     ProviderErrorKind
	Provider string
	Code     string
	Err      error
}

func (e ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s %s", e.Provider, e.Kind)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e ProviderError) Unwrap() error {
	return e.Err
}

// OutcomeKnown reports whether the provider definitely did not move money
func (e ProviderError) OutcomeKnown() bool {
	return e.Kind == ProviderRejected
}

// ReconciliationMismatchError marks a provider event that references an unknown
// transaction or contradicts an already-terminal one. It is logged, not propagated.
type ReconciliationMismatchError struct {
	Provider  string
	Reference string
	Reason    string
}

func (e ReconciliationMismatchError) Error() string {
	return fmt.Sprintf("reconciliation mismatch for %s reference %s: %s", e.Provider, e.Reference, e.Reason)
}
