package saga_poller

import (
	"context"
	"time"

	"github.com/exchange-bridge/internal/domain/sagajob"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/exchange-bridge/internal/transaction_processor/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"
)

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

// MockSagaSubmitter mocks service.SagaSubmitter
type MockSagaSubmitter struct {
	mock.Mock
}

func (m *MockSagaSubmitter) Submit(ctx context.Context, request *shared.SagaRequest) error {
	return m.Called(ctx, request).Error(0)
}

// MockStateWriter runs the mutation against a fixed current state
type MockStateWriter struct {
	mock.Mock
	current map[uuid.UUID]transfer.Transaction
}

func (m *MockStateWriter) Apply(ctx context.Context, t service.Transition) (*service.Outcome, error) {
	m.Called(ctx, t.TransactionID)
	next, err := t.Mutate(m.current[t.TransactionID])
	if err != nil {
		return nil, err
	}
	return &service.Outcome{Transaction: &next, Changed: true}, nil
}

// MockTransactionRepo mocks the listing side of transfer.Repository
type MockTransactionRepo struct {
	mock.Mock
	transfer.Repository
}

func (m *MockTransactionRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*transfer.Transaction, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*transfer.Transaction), args.Error(1)
}
