// Package transfer models a two-leg cross-network transfer as an immutable value.
// Every mutation returns a new Transaction with an incremented Version; the
// repository persists it only if the stored version still matches Version-1.
package transfer

import (
	"errors"
	"time"

	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrAlreadyTerminal   = errors.New("transaction is already in a terminal state")
	ErrLegAlreadySettled = errors.New("leg outcome already recorded")
	ErrEmptyUserID       = errors.New("user id cannot be empty")
	ErrEmptyAccount      = errors.New("leg account identifier cannot be empty")
	ErrEmptyProvider     = errors.New("leg provider cannot be empty")
)

// LegKind selects one side of the transfer
type LegKind string

const (
	LegSource      LegKind = "SOURCE"
	LegDestination LegKind = "DESTINATION"
)

// Fee is the fee breakdown fixed at quote time
type Fee struct {
	Percentage decimal.Decimal `json:"percentage"`
	Fixed      decimal.Decimal `json:"fixed"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency"`
}

// Amounts holds the money fields. They are set once at creation and never mutated.
type Amounts struct {
	SourceAmount        decimal.Decimal `json:"source_amount"`
	SourceCurrency      string          `json:"source_currency"`
	DestinationAmount   decimal.Decimal `json:"destination_amount"`
	DestinationCurrency string          `json:"destination_currency"`
	ExchangeRate        decimal.Decimal `json:"exchange_rate"`
	Fee                 Fee             `json:"fee"`
	NetAmount           decimal.Decimal `json:"net_amount"`
	SettlementAmount    decimal.Decimal `json:"settlement_amount"` // amount counted against user limits
}

// Leg is one side of the transfer at its provider
type Leg struct {
	Provider              string           `json:"provider"`
	AccountIdentifier     string           `json:"account_identifier"`
	ProviderTransactionID string           `json:"provider_transaction_id"` // reference registered with the provider, dedup key for callbacks
	Receipt               string           `json:"receipt,omitempty"`       // provider-assigned id, once known
	Status                shared.LegStatus `json:"status"`
	LastError             string           `json:"last_error,omitempty"`
}

// OTP holds the confirmation code state. CodeHash is cleared once verified or expired.
type OTP struct {
	CodeHash   string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	Attempts   int        `json:"attempts"`
}

// StatusChange is an immutable status history entry, stamped with the version that produced it
type StatusChange struct {
	Version int                      `json:"version"`
	Status  shared.TransactionStatus `json:"status"`
	Message string                   `json:"message,omitempty"`
	At      time.Time                `json:"at"`
}

// Transaction is the unit of work
type Transaction struct {
	ID        uuid.UUID        `json:"id"`
	UserID    string           `json:"user_id"`
	Direction shared.Direction `json:"direction"`
	Amounts

	Status        shared.TransactionStatus `json:"status"`
	FailureReason shared.FailureReason     `json:"failure_reason,omitempty"`
	StatusMessage string                   `json:"status_message,omitempty"`
	History       []StatusChange           `json:"status_history"`

	Source      Leg `json:"source"`
	Destination Leg `json:"destination"`
	OTP         OTP `json:"otp"`

	Version     int        `json:"version"` // For optimistic locking
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
}

// LegEndpoint names the provider and account for one leg at creation time
type LegEndpoint struct {
	Provider          string
	AccountIdentifier string
}

// NewParams carries everything needed to create a PENDING transaction
type NewParams struct {
	UserID       string
	Direction    shared.Direction
	Amounts      Amounts
	Source       LegEndpoint
	Destination  LegEndpoint
	OTPHash      string
	OTPExpiresAt time.Time
}

// New creates a PENDING transaction with its first history entry
func New(p NewParams, at time.Time) (*Transaction, error) {
	if p.UserID == "" {
		return nil, ErrEmptyUserID
	}
	if !p.Direction.Valid() {
		return nil, shared.ErrInvalidDirection
	}
	if !p.Amounts.SourceAmount.IsPositive() || !p.Amounts.DestinationAmount.IsPositive() {
		return nil, shared.ErrInvalidAmount
	}
	for _, ep := range []LegEndpoint{p.Source, p.Destination} {
		if ep.Provider == "" {
			return nil, ErrEmptyProvider
		}
		if ep.AccountIdentifier == "" {
			return nil, ErrEmptyAccount
		}
	}

	id := uuid.New()
	t := &Transaction{
		ID:        id,
		UserID:    p.UserID,
		Direction: p.Direction,
		Amounts:   p.Amounts,
		Status:    shared.TransactionStatusPending,
		Source: Leg{
			Provider:              p.Source.Provider,
			AccountIdentifier:     p.Source.AccountIdentifier,
			ProviderTransactionID: LegReference(id, LegSource),
			Status:                shared.LegStatusNotStarted,
		},
		Destination: Leg{
			Provider:              p.Destination.Provider,
			AccountIdentifier:     p.Destination.AccountIdentifier,
			ProviderTransactionID: LegReference(id, LegDestination),
			Status:                shared.LegStatusNotStarted,
		},
		OTP: OTP{
			CodeHash:  p.OTPHash,
			ExpiresAt: p.OTPExpiresAt,
		},
		Version:   1,
		CreatedAt: at,
		UpdatedAt: at,
	}
	t.StatusMessage = "Transaction initiated"
	t.History = []StatusChange{{Version: 1, Status: shared.TransactionStatusPending, Message: t.StatusMessage, At: at}}
	return t, nil
}

// LegReference builds the client-assigned reference registered with the provider for a leg
func LegReference(id uuid.UUID, kind LegKind) string {
	if kind == LegDestination {
		return id.String() + "-DST"
	}
	return id.String() + "-SRC"
}

// Leg returns a copy of the requested leg
func (t Transaction) Leg(kind LegKind) Leg {
	if kind == LegDestination {
		return t.Destination
	}
	return t.Source
}

// LegByReference finds which leg a provider reference belongs to
func (t Transaction) LegByReference(provider, reference string) (LegKind, bool) {
	switch {
	case t.Source.Provider == provider && t.Source.ProviderTransactionID == reference:
		return LegSource, true
	case t.Destination.Provider == provider && t.Destination.ProviderTransactionID == reference:
		return LegDestination, true
	}
	return "", false
}

// InFlightLeg returns the leg whose outcome the transaction is waiting for
func (t Transaction) InFlightLeg() (LegKind, bool) {
	switch t.Status {
	case shared.TransactionStatusAwaitingSource:
		return LegSource, true
	case shared.TransactionStatusAwaitingDestination:
		return LegDestination, true
	}
	return "", false
}

// OTPExpired reports whether the confirmation window has closed at the given instant
func (t Transaction) OTPExpired(at time.Time) bool {
	return !at.Before(t.OTP.ExpiresAt)
}

// IsTerminal reports whether the transaction has settled
func (t Transaction) IsTerminal() bool {
	return t.Status.IsTerminal()
}

func (t Transaction) withLeg(kind LegKind, leg Leg) Transaction {
	if kind == LegDestination {
		t.Destination = leg
	} else {
		t.Source = leg
	}
	return t
}

// clone copies the value so the history slice is never shared between versions
func (t Transaction) clone() Transaction {
	c := t
	c.History = make([]StatusChange, len(t.History), len(t.History)+1)
	copy(c.History, t.History)
	return c
}
