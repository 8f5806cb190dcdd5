package shared

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SagaRequest is the Kafka kick-off message published after a successful confirm
type SagaRequest struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventOutcome is the normalized result reported by a provider callback
type EventOutcome string

const (
	EventOutcomeSucceeded EventOutcome = "SUCCEEDED"
	EventOutcomeFailed    EventOutcome = "FAILED"
)

// ProviderEvent is a webhook callback normalized by the gateway and consumed by the reconciler
type ProviderEvent struct {
	EventID       string       `json:"event_id"`
	Provider      string       `json:"provider"`
	Reference     string       `json:"reference"` // client-assigned leg reference echoed by the provider
	Receipt       string       `json:"receipt,omitempty"`
	Outcome       EventOutcome `json:"outcome"`
	Code          string       `json:"code,omitempty"`
	Message       string       `json:"message,omitempty"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	ReceivedAt    time.Time    `json:"received_at"`
}

// NotificationRequest asks the external notification service to deliver a message
type NotificationRequest struct {
	UserID        string            `json:"user_id"`
	Channel       string            `json:"channel"`
	Template      string            `json:"template"`
	Params        map[string]string `json:"params,omitempty"`
	TransactionID uuid.UUID         `json:"transaction_id"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// ReconciliationReason names why a transfer needs an operator
type ReconciliationReason string

const (
	ReconciliationPartialSettlement     ReconciliationReason = "PARTIAL_SETTLEMENT"
	ReconciliationUnresolvedSource      ReconciliationReason = "UNRESOLVED_SOURCE"
	ReconciliationUnresolvedDestination ReconciliationReason = "UNRESOLVED_DESTINATION"
)

// LegSnapshot is the state of one leg at the moment a case was raised
type LegSnapshot struct {
	Provider  string    `json:"provider"`
	Account   string    `json:"account"`
	Reference string    `json:"reference"`
	Receipt   string    `json:"receipt,omitempty"`
	Status    LegStatus `json:"status"`
	LastError string    `json:"last_error,omitempty"`
}

// ReconciliationCase hands a transfer to manual reconciliation
type ReconciliationCase struct {
	TransactionID       uuid.UUID            `json:"transaction_id"`
	UserID              string               `json:"user_id"`
	Reason              ReconciliationReason `json:"reason"`
	Status              TransactionStatus    `json:"status"`
	Source              LegSnapshot          `json:"source"`
	Destination         LegSnapshot          `json:"destination"`
	SourceAmount        decimal.Decimal      `json:"source_amount"`
	SourceCurrency      string               `json:"source_currency"`
	DestinationAmount   decimal.Decimal      `json:"destination_amount"`
	DestinationCurrency string               `json:"destination_currency"`
	NetAmount           decimal.Decimal      `json:"net_amount"`
	CorrelationID       string               `json:"correlation_id,omitempty"`
	Timestamp           time.Time            `json:"timestamp"`
}
