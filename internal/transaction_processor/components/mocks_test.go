package components

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/exchange-bridge/internal/domain/audit"
	"github.com/exchange-bridge/internal/domain/limits"
	"github.com/exchange-bridge/internal/domain/sagajob"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/exchange-bridge/internal/providers"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newProcessingTransaction builds a verified 100 USD wallet-to-mobile transfer in PROCESSING
func newProcessingTransaction(t *testing.T) transfer.Transaction {
	t.Helper()
	now := time.Now().UTC()
	tx, err := transfer.New(transfer.NewParams{
		UserID:    "user-1",
		Direction: shared.DirectionWalletToMobile,
		Amounts: transfer.Amounts{
			SourceAmount:        decimal.NewFromInt(100),
			SourceCurrency:      "USD",
			DestinationAmount:   decimal.NewFromInt(6350),
			DestinationCurrency: "MZN",
			ExchangeRate:        decimal.RequireFromString("63.5"),
			Fee: transfer.Fee{
				Percentage: decimal.NewFromInt(2),
				Fixed:      decimal.RequireFromString("0.5"),
				Total:      decimal.RequireFromString("2.5"),
				Currency:   "USD",
			},
			NetAmount:        decimal.RequireFromString("6191.25"),
			SettlementAmount: decimal.NewFromInt(100),
		},
		Source:       transfer.LegEndpoint{Provider: string(shared.NetworkEWallet), AccountIdentifier: "buyer@example.com"},
		Destination:  transfer.LegEndpoint{Provider: string(shared.NetworkMobileMoney), AccountIdentifier: "258841234567"},
		OTPHash:      "hash",
		OTPExpiresAt: now.Add(5 * time.Minute),
	}, now)
	require.NoError(t, err)

	confirmed, err := tx.VerifyOTP(now)
	require.NoError(t, err)
	return confirmed
}

// newAwaitingDestination advances a transfer to the point where only the credit is outstanding
func newAwaitingDestination(t *testing.T) transfer.Transaction {
	t.Helper()
	now := time.Now().UTC()
	tx := newProcessingTransaction(t)

	tx, err := tx.BeginLeg(transfer.LegSource, now)
	require.NoError(t, err)
	tx, err = tx.CompleteLeg(transfer.LegSource, "PAY-1", now)
	require.NoError(t, err)
	tx, err = tx.BeginLeg(transfer.LegDestination, now)
	require.NoError(t, err)
	return tx
}

// MockTransactionRepo mocks transfer.Repository
type MockTransactionRepo struct {
	mock.Mock
}

func (m *MockTransactionRepo) Create(ctx context.Context, tx *transfer.Transaction) error {
	return m.Called(ctx, tx).Error(0)
}

func (m *MockTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*transfer.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transfer.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) GetByLegReference(ctx context.Context, provider, reference string) (*transfer.Transaction, error) {
	args := m.Called(ctx, provider, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transfer.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) Update(ctx context.Context, next *transfer.Transaction) error {
	return m.Called(ctx, next).Error(0)
}

func (m *MockTransactionRepo) List(ctx context.Context, filter transfer.ListFilter, limit, offset int) ([]*transfer.Transaction, error) {
	args := m.Called(ctx, filter, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*transfer.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) Count(ctx context.Context, filter transfer.ListFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTransactionRepo) Stats(ctx context.Context, userID string) (*transfer.Stats, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transfer.Stats), args.Error(1)
}

func (m *MockTransactionRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*transfer.Transaction, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*transfer.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) WithTx(pgx.Tx) transfer.Repository { return m }

// MockLimitRepo mocks limits.Repository
type MockLimitRepo struct {
	mock.Mock
}

func (m *MockLimitRepo) Refresh(ctx context.Context, userID string, defaults limits.Defaults, w limits.Window) (*limits.State, error) {
	args := m.Called(ctx, userID, defaults, w)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*limits.State), args.Error(1)
}

func (m *MockLimitRepo) Reserve(ctx context.Context, userID string, transactionID uuid.UUID, amount decimal.Decimal) (bool, error) {
	args := m.Called(ctx, userID, transactionID, amount)
	return args.Bool(0), args.Error(1)
}

func (m *MockLimitRepo) CommitHold(ctx context.Context, transactionID uuid.UUID) (bool, error) {
	args := m.Called(ctx, transactionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLimitRepo) ReleaseHold(ctx context.Context, transactionID uuid.UUID) (bool, error) {
	args := m.Called(ctx, transactionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLimitRepo) GetHold(ctx context.Context, transactionID uuid.UUID) (*limits.Hold, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*limits.Hold), args.Error(1)
}

func (m *MockLimitRepo) WithTx(pgx.Tx) limits.Repository { return m }

// MockJobRepo mocks sagajob.Repository
type MockJobRepo struct {
	mock.Mock
}

func (m *MockJobRepo) Enqueue(ctx context.Context, job *sagajob.Job) error {
	return m.Called(ctx, job).Error(0)
}

func (m *MockJobRepo) Get(ctx context.Context, id uuid.UUID) (*sagajob.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sagajob.Job), args.Error(1)
}

func (m *MockJobRepo) GetRunnable(ctx context.Context, now time.Time, limit int) ([]*sagajob.Job, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*sagajob.Job), args.Error(1)
}

func (m *MockJobRepo) AcquireLease(ctx context.Context, id uuid.UUID, owner string, until, now time.Time) (bool, error) {
	args := m.Called(ctx, id, owner, until, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobRepo) Release(ctx context.Context, id uuid.UUID, owner string) error {
	return m.Called(ctx, id, owner).Error(0)
}

func (m *MockJobRepo) Park(ctx context.Context, id uuid.UUID, owner string, attempts int, next time.Time, lastError string) error {
	return m.Called(ctx, id, owner, attempts, next, lastError).Error(0)
}

func (m *MockJobRepo) Wake(ctx context.Context, id uuid.UUID, now time.Time) error {
	return m.Called(ctx, id, now).Error(0)
}

func (m *MockJobRepo) MarkDone(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockJobRepo) Escalate(ctx context.Context, id uuid.UUID, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

func (m *MockJobRepo) WithTx(pgx.Tx) sagajob.Repository { return m }

// MockNotifier mocks service.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) StatusChanged(ctx context.Context, before, after *transfer.Transaction, correlationID string) {
	m.Called(ctx, before, after, correlationID)
}

func (m *MockNotifier) RaiseCase(ctx context.Context, tx *transfer.Transaction, reason shared.ReconciliationReason, correlationID string) error {
	return m.Called(ctx, tx, reason, correlationID).Error(0)
}

func (m *MockNotifier) Mismatch(ctx context.Context, event *shared.ProviderEvent, mismatch shared.ReconciliationMismatchError) {
	m.Called(ctx, event, mismatch)
}

// MockPublisher mocks producers.MessagePublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, key string, value interface{}) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

// MockRecorder mocks audit.Recorder
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, event *audit.Event) {
	m.Called(ctx, event)
}

// MockAdapter mocks providers.Adapter
type MockAdapter struct {
	mock.Mock
	name       string
	idempotent bool
}

func (m *MockAdapter) Name() string          { return m.name }
func (m *MockAdapter) IdempotentByKey() bool { return m.idempotent }

func (m *MockAdapter) Debit(ctx context.Context, req providers.Request) (*providers.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.Result), args.Error(1)
}

func (m *MockAdapter) Credit(ctx context.Context, req providers.Request) (*providers.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.Result), args.Error(1)
}

func (m *MockAdapter) QueryStatus(ctx context.Context, reference string) (*providers.Result, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.Result), args.Error(1)
}
