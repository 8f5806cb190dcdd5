package service

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/exchange-bridge/internal/domain/audit"
	"github.com/exchange-bridge/internal/domain/limits"
	"github.com/exchange-bridge/internal/domain/sagajob"
	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

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

type MockJobRepo struct {
	mock.Mock
	sagajob.Repository
}

func (m *MockJobRepo) Enqueue(ctx context.Context, job *sagajob.Job) error {
	return m.Called(ctx, job).Error(0)
}

func (m *MockJobRepo) WithTx(pgx.Tx) sagajob.Repository { return m }

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, key string, value interface{}) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, event *audit.Event) {
	m.Called(ctx, event)
}
