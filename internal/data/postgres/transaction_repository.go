// Package postgres provides PostgreSQL implementations of the domain repositories.
// It handles all database operations while maintaining transaction safety and
// proper error handling for the exchange bridge.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/exchange-bridge/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// transactionColumns is the column order used by every transaction query
var transactionColumns = []string{
	"id", "user_id", "direction",
	"source_amount", "source_currency", "destination_amount", "destination_currency",
	"exchange_rate", "fee_percentage", "fee_fixed", "fee_total", "fee_currency",
	"net_amount", "settlement_amount",
	"status", "failure_reason", "status_message",
	"source_provider", "source_account", "source_reference", "source_receipt", "source_status", "source_last_error",
	"destination_provider", "destination_account", "destination_reference", "destination_receipt", "destination_status", "destination_last_error",
	"otp_hash", "otp_expires_at", "otp_verified", "otp_verified_at", "otp_attempts",
	"version", "created_at", "updated_at", "completed_at", "failed_at",
}

var selectTransaction = "SELECT " + strings.Join(transactionColumns, ", ") + " FROM bridge_transactions"

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// TransactionRepository implements the transfer.Repository interface for PostgreSQL
type TransactionRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewTransactionRepository creates a new PostgreSQL transaction repository
func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) transfer.Repository {
	return &TransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to the given transaction
func (r *TransactionRepository) WithTx(tx pgx.Tx) transfer.Repository {
	return &TransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new transaction and its history in one statement
func (r *TransactionRepository) Create(ctx context.Context, t *transfer.Transaction) error {
	placeholders := make([]string, len(transactionColumns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	n := len(transactionColumns)
	query := fmt.Sprintf(`
		WITH created AS (
			INSERT INTO bridge_transactions (%s)
			VALUES (%s)
			RETURNING id
		)
		INSERT INTO transaction_status_history (transaction_id, version, status, message, changed_at)
		SELECT c.id, h.version, h.status, h.message, h.changed_at
		FROM created c
		CROSS JOIN unnest($%d::int[], $%d::text[], $%d::text[], $%d::timestamptz[]) AS h(version, status, message, changed_at)
	`, strings.Join(transactionColumns, ", "), strings.Join(placeholders, ", "), n+1, n+2, n+3, n+4)

	args := append(transactionArgs(t), historyArgs(t.History)...)
	_, err := r.querier.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to create transaction", "id", t.ID.String(), "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a transaction with its full status history
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transfer.Transaction, error) {
	query := selectTransaction + " WHERE id = $1"

	t, err := scanTransaction(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transfer.ErrTransactionNotFound{TransactionID: id}
		}
		r.logger.Error("Failed to get transaction", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	if t.History, err = r.history(ctx, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// GetByLegReference finds the transaction owning a provider reference on either leg
func (r *TransactionRepository) GetByLegReference(ctx context.Context, provider, reference string) (*transfer.Transaction, error) {
	query := selectTransaction + `
		WHERE (source_provider = $1 AND source_reference = $2)
		   OR (destination_provider = $1 AND destination_reference = $2)`

	t, err := scanTransaction(r.querier.QueryRow(ctx, query, provider, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transfer.ErrLegReferenceNotFound{Provider: provider, Reference: reference}
		}
		r.logger.Error("Failed to get transaction by leg reference",
			"provider", provider,
			"reference", reference,
			"error", err,
		)
		return nil, fmt.Errorf("failed to get transaction by leg reference: %w", err)
	}

	if t.History, err = r.history(ctx, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// Update writes next only if the stored version is next.Version-1, appending
// the history entries stamped with next.Version in the same statement.
// Returns ErrConcurrentModification if another writer got there first.
func (r *TransactionRepository) Update(ctx context.Context, next *transfer.Transaction) error {
	query := `
		WITH updated AS (
			UPDATE bridge_transactions
			SET status = $1, failure_reason = $2, status_message = $3,
				source_receipt = $4, source_status = $5, source_last_error = $6,
				destination_receipt = $7, destination_status = $8, destination_last_error = $9,
				otp_hash = $10, otp_expires_at = $11, otp_verified = $12, otp_verified_at = $13, otp_attempts = $14,
				version = $15, updated_at = $16, completed_at = $17, failed_at = $18
			WHERE id = $19 AND version = $20
			RETURNING id
		), appended AS (
			INSERT INTO transaction_status_history (transaction_id, version, status, message, changed_at)
			SELECT u.id, h.version, h.status, h.message, h.changed_at
			FROM updated u
			CROSS JOIN unnest($21::int[], $22::text[], $23::text[], $24::timestamptz[]) AS h(version, status, message, changed_at)
		)
		SELECT COUNT(*) FROM updated
	`

	var added []transfer.StatusChange
	for _, h := range next.History {
		if h.Version == next.Version {
			added = append(added, h)
		}
	}

	args := []interface{}{
		next.Status,
		next.FailureReason,
		next.StatusMessage,
		next.Source.Receipt,
		next.Source.Status,
		next.Source.LastError,
		next.Destination.Receipt,
		next.Destination.Status,
		next.Destination.LastError,
		next.OTP.CodeHash,
		next.OTP.ExpiresAt,
		next.OTP.Verified,
		next.OTP.VerifiedAt,
		next.OTP.Attempts,
		next.Version,
		next.UpdatedAt,
		next.CompletedAt,
		next.FailedAt,
		next.ID,
		next.Version - 1, // Check previous version for optimistic locking
	}
	args = append(args, historyArgs(added)...)

	var updated int64
	if err := r.querier.QueryRow(ctx, query, args...).Scan(&updated); err != nil {
		r.logger.Error("Failed to update transaction", "id", next.ID.String(), "error", err)
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	if updated == 0 {
		return transfer.ErrConcurrentModification{TransactionID: next.ID}
	}

	return nil
}

// List returns a page of transactions without history, newest first
func (r *TransactionRepository) List(ctx context.Context, filter transfer.ListFilter, limit, offset int) ([]*transfer.Transaction, error) {
	where, args := filterClause(filter)
	query := fmt.Sprintf("%s%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d", selectTransaction, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list transactions", "user_id", filter.UserID, "error", err)
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// Count returns the number of transactions matching the filter
func (r *TransactionRepository) Count(ctx context.Context, filter transfer.ListFilter) (int64, error) {
	where, args := filterClause(filter)
	query := "SELECT COUNT(*) FROM bridge_transactions" + where

	var count int64
	if err := r.querier.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		r.logger.Error("Failed to count transactions", "user_id", filter.UserID, "error", err)
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// Stats aggregates a user's transfers. Fees, average amount and per-direction
// counts only consider completed transfers.
func (r *TransactionRepository) Stats(ctx context.Context, userID string) (*transfer.Stats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3),
			COUNT(*) FILTER (WHERE status = $2 AND direction = $4),
			COUNT(*) FILTER (WHERE status = $2 AND direction = $5),
			COALESCE(SUM(fee_total) FILTER (WHERE status = $2), 0),
			COALESCE(ROUND(AVG(settlement_amount) FILTER (WHERE status = $2), 2), 0)
		FROM bridge_transactions
		WHERE user_id = $1
	`

	var s transfer.Stats
	err := r.querier.QueryRow(ctx, query,
		userID,
		shared.TransactionStatusCompleted,
		shared.TransactionStatusFailed,
		shared.DirectionWalletToMobile,
		shared.DirectionMobileToWallet,
	).Scan(
		&s.TotalTransactions,
		&s.CompletedTransactions,
		&s.FailedTransactions,
		&s.WalletToMobile,
		&s.MobileToWallet,
		&s.TotalFees,
		&s.AverageAmount,
	)
	if err != nil {
		r.logger.Error("Failed to get transaction stats", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get transaction stats: %w", err)
	}
	return &s, nil
}

// ListExpiredPending returns PENDING transactions whose confirmation code expired at or before now
func (r *TransactionRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*transfer.Transaction, error) {
	query := selectTransaction + `
		WHERE status = $1 AND otp_expires_at <= $2
		ORDER BY otp_expires_at ASC
		LIMIT $3`

	rows, err := r.querier.Query(ctx, query, shared.TransactionStatusPending, now, limit)
	if err != nil {
		r.logger.Error("Failed to list expired pending transactions", "error", err)
		return nil, fmt.Errorf("failed to list expired pending transactions: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

func (r *TransactionRepository) collect(rows pgx.Rows) ([]*transfer.Transaction, error) {
	var out []*transfer.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			r.logger.Error("Failed to scan transaction", "error", err)
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over transactions", "error", err)
		return nil, fmt.Errorf("error iterating over transactions: %w", err)
	}
	return out, nil
}

func (r *TransactionRepository) history(ctx context.Context, id uuid.UUID) ([]transfer.StatusChange, error) {
	query := `
		SELECT version, status, message, changed_at
		FROM transaction_status_history
		WHERE transaction_id = $1
		ORDER BY version ASC
	`

	rows, err := r.querier.Query(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to get status history", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get status history: %w", err)
	}
	defer rows.Close()

	var history []transfer.StatusChange
	for rows.Next() {
		var h transfer.StatusChange
		if err := rows.Scan(&h.Version, &h.Status, &h.Message, &h.At); err != nil {
			r.logger.Error("Failed to scan status history", "id", id.String(), "error", err)
			return nil, fmt.Errorf("failed to scan status history: %w", err)
		}
		history = append(history, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over status history: %w", err)
	}
	return history, nil
}

func scanTransaction(row rowScanner) (*transfer.Transaction, error) {
	var t transfer.Transaction
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Direction,
		&t.SourceAmount,
		&t.SourceCurrency,
		&t.DestinationAmount,
		&t.DestinationCurrency,
		&t.ExchangeRate,
		&t.Fee.Percentage,
		&t.Fee.Fixed,
		&t.Fee.Total,
		&t.Fee.Currency,
		&t.NetAmount,
		&t.SettlementAmount,
		&t.Status,
		&t.FailureReason,
		&t.StatusMessage,
		&t.Source.Provider,
		&t.Source.AccountIdentifier,
		&t.Source.ProviderTransactionID,
		&t.Source.Receipt,
		&t.Source.Status,
		&t.Source.LastError,
		&t.Destination.Provider,
		&t.Destination.AccountIdentifier,
		&t.Destination.ProviderTransactionID,
		&t.Destination.Receipt,
		&t.Destination.Status,
		&t.Destination.LastError,
		&t.OTP.CodeHash,
		&t.OTP.ExpiresAt,
		&t.OTP.Verified,
		&t.OTP.VerifiedAt,
		&t.OTP.Attempts,
		&t.Version,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.CompletedAt,
		&t.FailedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// transactionArgs returns values in transactionColumns order
func transactionArgs(t *transfer.Transaction) []interface{} {
	return []interface{}{
		t.ID,
		t.UserID,
		t.Direction,
		t.SourceAmount,
		t.SourceCurrency,
		t.DestinationAmount,
		t.DestinationCurrency,
		t.ExchangeRate,
		t.Fee.Percentage,
		t.Fee.Fixed,
		t.Fee.Total,
		t.Fee.Currency,
		t.NetAmount,
		t.SettlementAmount,
		t.Status,
		t.FailureReason,
		t.StatusMessage,
		t.Source.Provider,
		t.Source.AccountIdentifier,
		t.Source.ProviderTransactionID,
		t.Source.Receipt,
		t.Source.Status,
		t.Source.LastError,
		t.Destination.Provider,
		t.Destination.AccountIdentifier,
		t.Destination.ProviderTransactionID,
		t.Destination.Receipt,
		t.Destination.Status,
		t.Destination.LastError,
		t.OTP.CodeHash,
		t.OTP.ExpiresAt,
		t.OTP.Verified,
		t.OTP.VerifiedAt,
		t.OTP.Attempts,
		t.Version,
		t.CreatedAt,
		t.UpdatedAt,
		t.CompletedAt,
		t.FailedAt,
	}
}

// historyArgs splits entries into the column arrays consumed by unnest
func historyArgs(entries []transfer.StatusChange) []interface{} {
	versions := make([]int, 0, len(entries))
	statuses := make([]string, 0, len(entries))
	messages := make([]string, 0, len(entries))
	changedAt := make([]time.Time, 0, len(entries))
	for _, h := range entries {
		versions = append(versions, h.Version)
		statuses = append(statuses, string(h.Status))
		messages = append(messages, h.Message)
		changedAt = append(changedAt, h.At)
	}
	return []interface{}{versions, statuses, messages, changedAt}
}

// filterClause builds the WHERE clause and its arguments for a listing
func filterClause(f transfer.ListFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Direction != "" {
		add("direction = $%d", f.Direction)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
