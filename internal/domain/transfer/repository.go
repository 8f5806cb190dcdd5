package transfer

import (
	"context"
	"time"

	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Repository defines transaction persistence operations
type Repository interface {
	// Create stores a new transaction together with its first history entry
	Create(ctx context.Context, tx *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// GetByLegReference resolves a provider callback to its transaction
	GetByLegReference(ctx context.Context, provider, reference string) (*Transaction, error)

	// Update persists next only if the stored version is next.Version-1.
	// New history entries are appended in the same statement.
	Update(ctx context.Context, next *Transaction) error

	// List returns summaries without status history, newest first
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Transaction, error)
	Count(ctx context.Context, filter ListFilter) (int64, error)
	Stats(ctx context.Context, userID string) (*Stats, error)

	// ListExpiredPending returns PENDING transactions whose code expired before now
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*Transaction, error)
	WithTx(tx pgx.Tx) Repository
}

// ListFilter narrows a transaction listing. Zero values match everything.
type ListFilter struct {
	UserID    string
	Status    shared.TransactionStatus
	Direction shared.Direction
	From      *time.Time
	To        *time.Time
}

// Stats aggregates a user's transfers
type Stats struct {
	TotalTransactions     int64           `json:"total_transactions"`
	CompletedTransactions int64           `json:"completed_transactions"`
	FailedTransactions    int64           `json:"failed_transactions"`
	WalletToMobile        int64           `json:"wallet_to_mobile"`
	MobileToWallet        int64           `json:"mobile_to_wallet"`
	TotalFees             decimal.Decimal `json:"total_fees"`
	AverageAmount         decimal.Decimal `json:"average_amount"` // settlement currency
}

// ErrConcurrentModification indicates optimistic lock failure
type ErrConcurrentModification struct {
	TransactionID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for transaction: " + e.TransactionID.String()
}

// ErrTransactionNotFound indicates missing transaction
type ErrTransactionNotFound struct {
	TransactionID uuid.UUID
}

func (e ErrTransactionNotFound) Error() string {
	return "transaction not found: " + e.TransactionID.String()
}

// ErrLegReferenceNotFound indicates a provider reference that matches no leg
type ErrLegReferenceNotFound struct {
	Provider  string
	Reference string
}

func (e ErrLegReferenceNotFound) Error() string {
	return "no transaction leg for " + e.Provider + " reference: " + e.Reference
}
