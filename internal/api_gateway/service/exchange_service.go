package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/exchange-bridge/internal/domain/audit"
	"github.com/exchange-bridge/internal/domain/limits"
	"github.com/exchange-bridge/internal/domain/otp"
	"github.com/exchange-bridge/internal/domain/quote"
	"github.com/exchange-bridge/internal/domain/sagajob"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/exchange-bridge/internal/platform/messaging/producers"
	"github.com/exchange-bridge/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	otpChannel  = "sms"
	otpTemplate = "otp"

	// conflictRetries bounds read-modify-write retries for user-driven writes
	conflictRetries = 3
)

// RateLister exposes the configured currency pairs
type RateLister interface {
	Pairs() []quote.Rate
}

// ExchangeDependencies groups the collaborators of ExchangeServiceImpl
type ExchangeDependencies struct {
	DB            persistence.TxRunner
	Transactions  transfer.Repository
	Jobs          sagajob.Repository
	Ledger        *limits.Ledger
	Gate          *otp.Gate
	Calculator    *quote.Calculator
	Rates         RateLister
	Audit         audit.Recorder
	SagaRequests  producers.MessagePublisher
	Notifications producers.MessagePublisher
}

// ExchangeServiceImpl implements the ExchangeService interface
type ExchangeServiceImpl struct {
	db            persistence.TxRunner
	transactions  transfer.Repository
	jobs          sagajob.Repository
	ledger        *limits.Ledger
	gate          *otp.Gate
	calculator    *quote.Calculator
	rates         RateLister
	audit         audit.Recorder
	sagaRequests  producers.MessagePublisher
	notifications producers.MessagePublisher
	now           func() time.Time
	logger        *slog.Logger
}

var _ ExchangeService = (*ExchangeServiceImpl)(nil)

// NewExchangeService creates a new exchange service
func NewExchangeService(logger *slog.Logger, deps ExchangeDependencies) *ExchangeServiceImpl {
	return &ExchangeServiceImpl{
		db:            deps.DB,
		transactions:  deps.Transactions,
		jobs:          deps.Jobs,
		ledger:        deps.Ledger,
		gate:          deps.Gate,
		calculator:    deps.Calculator,
		rates:         deps.Rates,
		audit:         deps.Audit,
		sagaRequests:  deps.SagaRequests,
		notifications: deps.Notifications,
		now:           time.Now,
		logger:        logger,
	}
}

// Quote prices the transfer and reports whether it fits the caller's limits
func (s *ExchangeServiceImpl) Quote(ctx context.Context, userID string, direction shared.Direction, amount decimal.Decimal) (*QuoteResult, error) {
	q, err := s.calculator.Quote(ctx, direction, amount)
	if err != nil {
		return nil, err
	}

	decision, err := s.ledger.Check(ctx, userID, q.SettlementAmount)
	if err != nil {
		s.logger.Error("Failed to check limits", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to check limits: %w", err)
	}
	return &QuoteResult{Quote: q, Limits: decision}, nil
}

func (s *ExchangeServiceImpl) Rates(_ context.Context) []quote.Rate {
	return s.rates.Pairs()
}

// Initiate creates a PENDING transfer and sends its confirmation code
func (s *ExchangeServiceImpl) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error) {
	logger := s.logger.With("user_id", req.UserID, "correlation_id", req.CorrelationID)

	q, err := s.calculator.Quote(ctx, req.Direction, req.Amount)
	if err != nil {
		return nil, err
	}

	decision, err := s.ledger.Check(ctx, req.UserID, q.SettlementAmount)
	if err != nil {
		logger.Error("Failed to check limits", "error", err)
		return nil, fmt.Errorf("failed to check limits: %w", err)
	}
	if err := decision.Err(); err != nil {
		return nil, err
	}

	code, err := s.gate.Issue()
	if err != nil {
		logger.Error("Failed to issue confirmation code", "error", err)
		return nil, err
	}

	now := s.now().UTC()
	tx, err := transfer.New(transfer.NewParams{
		UserID:    req.UserID,
		Direction: req.Direction,
		Amounts:   q.Amounts,
		Source: transfer.LegEndpoint{
			Provider:          string(req.Direction.SourceNetwork()),
			AccountIdentifier: req.SourceAccount,
		},
		Destination: transfer.LegEndpoint{
			Provider:          string(req.Direction.DestinationNetwork()),
			AccountIdentifier: req.DestinationAccount,
		},
		OTPHash:      code.Hash,
		OTPExpiresAt: code.ExpiresAt,
	}, now)
	if err != nil {
		return nil, shared.ValidationError{Message: err.Error()}
	}

	if err := s.transactions.Create(ctx, tx); err != nil {
		logger.Error("Failed to create transaction", "error", err)
		return nil, err
	}
	logger = logger.With("transaction_id", tx.ID.String())

	s.sendCode(ctx, tx, code, req.CorrelationID)
	s.audit.Record(ctx, audit.NewEvent(audit.ActionTransactionInitiated, tx.UserID, tx.ID, map[string]string{
		"direction":     string(tx.Direction),
		"source_amount": tx.SourceAmount.StringFixed(2),
		"currency":      tx.SourceCurrency,
	}).WithCorrelationID(req.CorrelationID))

	logger.Info("Transaction initiated",
		"direction", tx.Direction,
		"source_amount", tx.SourceAmount.String(),
		"net_amount", tx.NetAmount.String())

	return &InitiateResult{Transaction: tx, OTPExpiresAt: code.ExpiresAt}, nil
}

// Confirm verifies the code and, in one database transaction, moves the transfer to
// PROCESSING, reserves limit capacity and enqueues the durable saga job. The Kafka
// kick-off published afterwards only shortens the wait for the job poller.
func (s *ExchangeServiceImpl) Confirm(ctx context.Context, userID string, transactionID uuid.UUID, code, correlationID string) (*transfer.Transaction, error) {
	logger := s.logger.With("user_id", userID, "transaction_id", transactionID.String(), "correlation_id", correlationID)

	var (
		confirmed *transfer.Transaction
		rejected  *transfer.Transaction
		codeErr   error
	)
	err := s.db.ExecuteTx(ctx, func(dbTx pgx.Tx) error {
		transactions := s.transactions.WithTx(dbTx)

		current, err := s.owned(ctx, transactions, userID, transactionID)
		if err != nil {
			return err
		}

		next, err := s.gate.Verify(*current, code)
		var otpErr shared.OTPError
		if errors.As(err, &otpErr) {
			// the failed attempt or the expiry is committed on its own
			if next != nil {
				if err := transactions.Update(ctx, next); err != nil {
					return err
				}
			}
			rejected, codeErr = next, err
			return nil
		}
		if err != nil {
			return err
		}

		if err := transactions.Update(ctx, next); err != nil {
			return err
		}

		decision, err := s.ledger.WithTx(dbTx).Admit(ctx, userID, transactionID, next.SettlementAmount)
		if err != nil {
			return err
		}
		if err := decision.Err(); err != nil {
			return err
		}

		if err := s.jobs.WithTx(dbTx).Enqueue(ctx, sagajob.NewJob(transactionID, correlationID, s.now().UTC())); err != nil {
			return err
		}
		confirmed = next
		return nil
	})
	if err != nil {
		var limitErr shared.LimitExceededError
		if errors.As(err, &limitErr) {
			logger.Info("Confirmation rejected by limits", "error", err)
		} else {
			logger.Error("Failed to confirm transaction", "error", err)
		}
		return nil, err
	}

	if codeErr != nil {
		details := map[string]string{"reason": codeErr.Error()}
		if rejected != nil {
			details["attempts"] = strconv.Itoa(rejected.OTP.Attempts)
			details["status"] = string(rejected.Status)
		}
		s.audit.Record(ctx, audit.NewEvent(audit.ActionTransactionOTPFailed, userID, transactionID, details).
			WithCorrelationID(correlationID))
		logger.Info("Confirmation code rejected", "error", codeErr)
		return nil, codeErr
	}

	s.audit.Record(ctx, audit.NewEvent(audit.ActionTransactionOTPVerified, userID, transactionID, nil).
		WithCorrelationID(correlationID))

	request := &shared.SagaRequest{
		TransactionID: transactionID,
		UserID:        userID,
		CorrelationID: correlationID,
		Timestamp:     s.now().UTC(),
	}
	if err := s.sagaRequests.Publish(ctx, transactionID.String(), request); err != nil {
		// the job is durable; the poller starts it
		logger.Warn("Failed to publish saga request, leaving it to the job poller", "error", err)
	}

	logger.Info("Transaction confirmed")
	return confirmed, nil
}

// ResendOTP replaces the confirmation code and sends the new one
func (s *ExchangeServiceImpl) ResendOTP(ctx context.Context, userID string, transactionID uuid.UUID, correlationID string) (*InitiateResult, error) {
	var code *otp.Code
	tx, err := s.mutate(ctx, userID, transactionID, func(current transfer.Transaction) (*transfer.Transaction, error) {
		next, c, err := s.gate.Reissue(current)
		if err != nil {
			return nil, err
		}
		code = c
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	s.sendCode(ctx, tx, code, correlationID)
	s.logger.Info("Confirmation code reissued", "transaction_id", transactionID.String(), "correlation_id", correlationID)
	return &InitiateResult{Transaction: tx, OTPExpiresAt: code.ExpiresAt}, nil
}

// Cancel ends a PENDING transfer on the user's request
func (s *ExchangeServiceImpl) Cancel(ctx context.Context, userID string, transactionID uuid.UUID, correlationID string) (*transfer.Transaction, error) {
	tx, err := s.mutate(ctx, userID, transactionID, func(current transfer.Transaction) (*transfer.Transaction, error) {
		next, err := current.Cancel(shared.FailureReasonUserCancelled, "Cancelled by user", s.now().UTC())
		if err != nil {
			return nil, err
		}
		return &next, nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.NewEvent(audit.ActionTransactionCancelled, userID, transactionID, map[string]string{
		"reason": string(tx.FailureReason),
	}).WithCorrelationID(correlationID))
	s.logger.Info("Transaction cancelled", "transaction_id", transactionID.String(), "correlation_id", correlationID)
	return tx, nil
}

// Status returns the caller's transfer with its full history
func (s *ExchangeServiceImpl) Status(ctx context.Context, userID string, transactionID uuid.UUID) (*transfer.Transaction, error) {
	return s.owned(ctx, s.transactions, userID, transactionID)
}

// owned loads a transaction and hides it from anyone but its owner
func (s *ExchangeServiceImpl) owned(ctx context.Context, repo transfer.Repository, userID string, transactionID uuid.UUID) (*transfer.Transaction, error) {
	tx, err := repo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID {
		return nil, transfer.ErrTransactionNotFound{TransactionID: transactionID}
	}
	return tx, nil
}

// mutate applies fn to the latest version and persists it, retrying on version conflicts
func (s *ExchangeServiceImpl) mutate(ctx context.Context, userID string, transactionID uuid.UUID, fn func(transfer.Transaction) (*transfer.Transaction, error)) (*transfer.Transaction, error) {
	var lastErr error
	for attempt := 1; attempt <= conflictRetries; attempt++ {
		current, err := s.owned(ctx, s.transactions, userID, transactionID)
		if err != nil {
			return nil, err
		}
		next, err := fn(*current)
		if err != nil {
			return nil, err
		}

		err = s.transactions.Update(ctx, next)
		if err == nil {
			return next, nil
		}
		var conflict transfer.ErrConcurrentModification
		if !errors.As(err, &conflict) {
			return nil, err
		}
		s.logger.Debug("Version conflict, retrying", "transaction_id", transactionID.String(), "attempt", attempt)
		lastErr = err
	}
	return nil, lastErr
}

func (s *ExchangeServiceImpl) sendCode(ctx context.Context, tx *transfer.Transaction, code *otp.Code, correlationID string) {
	request := shared.NotificationRequest{
		UserID:   tx.UserID,
		Channel:  otpChannel,
		Template: otpTemplate,
		Params: map[string]string{
			"code":       code.Plain,
			"expires_at": code.ExpiresAt.UTC().Format(time.RFC3339),
		},
		TransactionID: tx.ID,
		CorrelationID: correlationID,
		Timestamp:     s.now().UTC(),
	}
	if err := s.notifications.Publish(ctx, tx.UserID, request); err != nil {
		// the user can ask for the code again
		s.logger.Error("Failed to publish confirmation code notification",
			"transaction_id", tx.ID.String(), "error", err)
	}
}
