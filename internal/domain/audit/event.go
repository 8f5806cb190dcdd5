package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action names an audited occurrence
type Action string

const (
	ActionTransactionInitiated         Action = "transaction.initiated"
	ActionTransactionOTPVerified       Action = "transaction.otp_verified"
	ActionTransactionOTPFailed         Action = "transaction.otp_failed"
	ActionTransactionProcessing        Action = "transaction.processing"
	ActionTransactionCompleted         Action = "transaction.completed"
	ActionTransactionFailed            Action = "transaction.failed"
	ActionTransactionCancelled         Action = "transaction.cancelled"
	ActionTransactionPartialSettlement Action = "transaction.partial_settlement"
	ActionExternalAPICall              Action = "system.external_api_call"
	ActionReconciliationMismatch       Action = "system.reconciliation_mismatch"
)

// Event is an append-only audit record
type Event struct {
	EventID       string            `json:"event_id" bson:"event_id"`
	Action        Action            `json:"action" bson:"action"`
	UserID        string            `json:"user_id,omitempty" bson:"user_id,omitempty"`
	TransactionID string            `json:"transaction_id,omitempty" bson:"transaction_id,omitempty"`
	Details       map[string]string `json:"details,omitempty" bson:"details,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at" bson:"created_at"`
}

// NewEvent stamps a new event with an id and the current time
func NewEvent(action Action, userID string, transactionID uuid.UUID, details map[string]string) *Event {
	e := &Event{
		EventID:   uuid.NewString(),
		Action:    action,
		UserID:    userID,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if transactionID != uuid.Nil {
		e.TransactionID = transactionID.String()
	}
	return e
}

// WithCorrelationID sets the correlation id and returns the event
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// Repository manages audit event persistence
type Repository interface {
	Append(ctx context.Context, event *Event) error
	ListByTransaction(ctx context.Context, transactionID uuid.UUID, limit int) ([]*Event, error)
	CountByAction(ctx context.Context, action Action, since time.Time) (int64, error)
}

// Recorder writes audit events without ever failing the caller
type Recorder interface {
	Record(ctx context.Context, event *Event)
}
