package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/google/uuid"
)

// exportPageSize is how many rows Export reads per query
const exportPageSize = 500

var exportHeader = []string{
	"transaction_id", "created_at", "direction", "status", "failure_reason",
	"source_amount", "source_currency", "destination_amount", "destination_currency",
	"exchange_rate", "fee_total", "fee_currency", "net_amount", "completed_at",
}

// TransactionQueryServiceImpl implements the TransactionQueryService interface
type TransactionQueryServiceImpl struct {
	transactions transfer.Repository
	logger       *slog.Logger
}

var _ TransactionQueryService = (*TransactionQueryServiceImpl)(nil)

// NewTransactionQueryService creates a new transaction query service
func NewTransactionQueryService(logger *slog.Logger, transactions transfer.Repository) *TransactionQueryServiceImpl {
	return &TransactionQueryServiceImpl{
		transactions: transactions,
		logger:       logger,
	}
}

// List returns one page of matching transactions and the total count
func (s *TransactionQueryServiceImpl) List(ctx context.Context, filter transfer.ListFilter, page, perPage int) ([]*transfer.Transaction, int64, error) {
	offset := (page - 1) * perPage

	items, err := s.transactions.List(ctx, filter, perPage, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.transactions.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

// Get returns a single transaction with its history. Another user's transaction is reported as not found.
func (s *TransactionQueryServiceImpl) Get(ctx context.Context, userID string, transactionID uuid.UUID) (*transfer.Transaction, error) {
	tx, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID {
		return nil, transfer.ErrTransactionNotFound{TransactionID: transactionID}
	}
	return tx, nil
}

func (s *TransactionQueryServiceImpl) Stats(ctx context.Context, userID string) (*transfer.Stats, error) {
	return s.transactions.Stats(ctx, userID)
}

// Export streams every matching transaction as CSV, one page at a time
func (s *TransactionQueryServiceImpl) Export(ctx context.Context, filter transfer.ListFilter, w io.Writer) error {
	out := csv.NewWriter(w)
	if err := out.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}

	rows := 0
	for offset := 0; ; offset += exportPageSize {
		items, err := s.transactions.List(ctx, filter, exportPageSize, offset)
		if err != nil {
			s.logger.Error("Failed to read transactions for export", "user_id", filter.UserID, "offset", offset, "error", err)
			return err
		}
		for _, tx := range items {
			if err := out.Write(exportRow(tx)); err != nil {
				return fmt.Errorf("failed to write export row: %w", err)
			}
		}
		rows += len(items)
		if len(items) < exportPageSize {
			break
		}
	}

	out.Flush()
	if err := out.Error(); err != nil {
		return fmt.Errorf("failed to flush export: %w", err)
	}

	s.logger.Info("Transactions exported", "user_id", filter.UserID, "rows", rows)
	return nil
}

func exportRow(tx *transfer.Transaction) []string {
	completedAt := ""
	if tx.CompletedAt != nil {
		completedAt = tx.CompletedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		tx.ID.String(),
		tx.CreatedAt.UTC().Format(time.RFC3339),
		string(tx.Direction),
		string(tx.Status),
		string(tx.FailureReason),
		tx.SourceAmount.StringFixed(2),
		tx.SourceCurrency,
		tx.DestinationAmount.StringFixed(2),
		tx.DestinationCurrency,
		tx.ExchangeRate.StringFixed(4),
		tx.Fee.Total.StringFixed(2),
		tx.Fee.Currency,
		tx.NetAmount.StringFixed(2),
		completedAt,
	}
}
