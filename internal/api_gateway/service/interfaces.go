package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/exchange-bridge/internal/domain/limits"
	"github.com/exchange-bridge/internal/domain/quote"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrIgnoredEvent marks a webhook the bridge acknowledges but does not act on
	ErrIgnoredEvent = errors.New("webhook event ignored")
	// ErrEventNotAccepted means a provider event could not be handed to the processor
	ErrEventNotAccepted = errors.New("provider event not accepted")
)

// QuoteResult is a priced transfer plus the caller's limit headroom. Nothing is reserved.
type QuoteResult struct {
	Quote  *quote.Quote     `json:"quote"`
	Limits *limits.Decision `json:"limits"`
}

// InitiateRequest carries the caller's transfer request
type InitiateRequest struct {
	UserID             string
	Direction          shared.Direction
	Amount             decimal.Decimal
	SourceAccount      string
	DestinationAccount string
	CorrelationID      string
}

// InitiateResult is the PENDING transaction and when its confirmation code expires
type InitiateResult struct {
	Transaction  *transfer.Transaction
	OTPExpiresAt time.Time
}

// ExchangeService defines the transfer lifecycle operations exposed to users
type ExchangeService interface {
	Quote(ctx context.Context, userID string, direction shared.Direction, amount decimal.Decimal) (*QuoteResult, error)
	Rates(ctx context.Context) []quote.Rate

	// Initiate prices the transfer, creates it in PENDING and sends a confirmation code
	Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error)

	// Confirm verifies the code, reserves limit capacity and schedules the saga.
	// Returns an OTPError or LimitExceededError when the transfer cannot start.
	Confirm(ctx context.Context, userID string, transactionID uuid.UUID, code, correlationID string) (*transfer.Transaction, error)

	// ResendOTP replaces the confirmation code of a PENDING transfer
	ResendOTP(ctx context.Context, userID string, transactionID uuid.UUID, correlationID string) (*InitiateResult, error)

	// Cancel ends a PENDING transfer
	Cancel(ctx context.Context, userID string, transactionID uuid.UUID, correlationID string) (*transfer.Transaction, error)

	// Status returns the transfer with its history. Another user's transfer is reported as not found.
	Status(ctx context.Context, userID string, transactionID uuid.UUID) (*transfer.Transaction, error)
}

// TransactionQueryService defines read-only views over a user's transfers
type TransactionQueryService interface {
	List(ctx context.Context, filter transfer.ListFilter, page, perPage int) ([]*transfer.Transaction, int64, error)
	Get(ctx context.Context, userID string, transactionID uuid.UUID) (*transfer.Transaction, error)
	Stats(ctx context.Context, userID string) (*transfer.Stats, error)

	// Export writes every transfer matching filter to w as CSV, newest first
	Export(ctx context.Context, filter transfer.ListFilter, w io.Writer) error
}

// WebhookService hands normalized provider callbacks to the processor
type WebhookService interface {
	// Accept publishes the event and audits the call. Returns ErrEventNotAccepted
	// when the event could not be published; the provider is expected to retry.
	Accept(ctx context.Context, event *shared.ProviderEvent) error
}
