package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

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

// newConfirmedTransaction builds a verified WALLET_TO_MOBILE transfer in PROCESSING
func newConfirmedTransaction(t *testing.T) *transfer.Transaction {
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
	return &confirmed
}

// memStore is an in-memory transaction store whose Apply serializes writers
// the way the version check does in PostgreSQL
type memStore struct {
	mu      sync.Mutex
	txs     map[uuid.UUID]transfer.Transaction
	jobs    *memJobs
	applied int
}

func newMemStore(jobs *memJobs, txs ...*transfer.Transaction) *memStore {
	s := &memStore{txs: make(map[uuid.UUID]transfer.Transaction), jobs: jobs}
	for _, tx := range txs {
		s.txs[tx.ID] = *tx
	}
	return s
}

func (s *memStore) get(id uuid.UUID) transfer.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs[id]
}

func (s *memStore) Apply(_ context.Context, t Transition) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.txs[t.TransactionID]
	if !ok {
		return nil, transfer.ErrTransactionNotFound{TransactionID: t.TransactionID}
	}
	next, err := t.Mutate(current)
	if errors.Is(err, transfer.ErrAlreadyTerminal) || errors.Is(err, transfer.ErrLegAlreadySettled) {
		return &Outcome{Transaction: &current, Changed: false}, nil
	}
	if err != nil {
		return nil, err
	}
	s.txs[t.TransactionID] = next
	s.applied++
	if next.IsTerminal() && s.jobs != nil {
		_ = s.jobs.MarkDone(context.Background(), t.TransactionID)
	}
	return &Outcome{Transaction: &next, Changed: true}, nil
}

func (s *memStore) Create(context.Context, *transfer.Transaction) error { return nil }

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*transfer.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return nil, transfer.ErrTransactionNotFound{TransactionID: id}
	}
	return &tx, nil
}

func (s *memStore) GetByLegReference(_ context.Context, provider, reference string) (*transfer.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.txs {
		if _, ok := tx.LegByReference(provider, reference); ok {
			return &tx, nil
		}
	}
	return nil, transfer.ErrLegReferenceNotFound{Provider: provider, Reference: reference}
}

func (s *memStore) Update(context.Context, *transfer.Transaction) error { return nil }
func (s *memStore) List(context.Context, transfer.ListFilter, int, int) ([]*transfer.Transaction, error) {
	return nil, nil
}
func (s *memStore) Count(context.Context, transfer.ListFilter) (int64, error) { return 0, nil }
func (s *memStore) Stats(context.Context, string) (*transfer.Stats, error)   { return nil, nil }
func (s *memStore) ListExpiredPending(context.Context, time.Time, int) ([]*transfer.Transaction, error) {
	return nil, nil
}
func (s *memStore) WithTx(pgx.Tx) transfer.Repository { return s }

// memJobs keeps saga jobs with the same lease rules as the SQL statements
type memJobs struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]sagajob.Job
	parkErr error
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: make(map[uuid.UUID]sagajob.Job)}
}

func (r *memJobs) get(id uuid.UUID) sagajob.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id]
}

func (r *memJobs) put(job sagajob.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.TransactionID] = job
}

func (r *memJobs) Enqueue(_ context.Context, job *sagajob.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.TransactionID]; !ok {
		r.jobs[job.TransactionID] = *job
	}
	return nil
}

func (r *memJobs) Get(_ context.Context, id uuid.UUID) (*sagajob.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, sagajob.ErrJobNotFound{TransactionID: id}
	}
	return &job, nil
}

func (r *memJobs) GetRunnable(_ context.Context, now time.Time, limit int) ([]*sagajob.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*sagajob.Job
	for _, job := range r.jobs {
		if job.IsFinished() || job.NextAttemptAt.After(now) || job.LeasedAt(now) {
			continue
		}
		j := job
		out = append(out, &j)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memJobs) AcquireLease(_ context.Context, id uuid.UUID, owner string, until, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.IsFinished() {
		return false, nil
	}
	if job.LeasedAt(now) && job.LockedBy != owner {
		return false, nil
	}
	job.LockedBy = owner
	job.LockedUntil = &until
	job.Status = shared.SagaJobStatusRunnable
	r.jobs[id] = job
	return true, nil
}

func (r *memJobs) Release(_ context.Context, id uuid.UUID, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok && job.LockedBy == owner {
		job.LockedBy, job.LockedUntil = "", nil
		r.jobs[id] = job
	}
	return nil
}

func (r *memJobs) Park(_ context.Context, id uuid.UUID, owner string, attempts int, next time.Time, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.parkErr != nil {
		return r.parkErr
	}
	job, ok := r.jobs[id]
	if !ok || job.LockedBy != owner || job.IsFinished() {
		return nil
	}
	job.Status = shared.SagaJobStatusParked
	job.Attempts = attempts
	job.NextAttemptAt = next
	job.LastError = lastError
	job.LockedBy, job.LockedUntil = "", nil
	r.jobs[id] = job
	return nil
}

func (r *memJobs) Wake(_ context.Context, id uuid.UUID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok && job.Status != shared.SagaJobStatusDone {
		job.Status = shared.SagaJobStatusRunnable
		job.Attempts = 0
		job.NextAttemptAt = now
		r.jobs[id] = job
	}
	return nil
}

func (r *memJobs) MarkDone(_ context.Context, id uuid.UUID) error {
	return r.finish(id, shared.SagaJobStatusDone, "")
}

func (r *memJobs) Escalate(_ context.Context, id uuid.UUID, reason string) error {
	return r.finish(id, shared.SagaJobStatusEscalated, reason)
}

func (r *memJobs) finish(id uuid.UUID, status shared.SagaJobStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok && !job.IsFinished() {
		job.Status = status
		if reason != "" {
			job.LastError = reason
		}
		job.LockedBy, job.LockedUntil = "", nil
		r.jobs[id] = job
	}
	return nil
}

func (r *memJobs) WithTx(pgx.Tx) sagajob.Repository { return r }

// MockLegExecutor mocks the LegExecutor interface
type MockLegExecutor struct {
	mock.Mock
}

func (m *MockLegExecutor) Execute(ctx context.Context, tx transfer.Transaction, kind transfer.LegKind) (*providers.Result, error) {
	args := m.Called(ctx, tx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.Result), args.Error(1)
}

func (m *MockLegExecutor) Resolve(ctx context.Context, tx transfer.Transaction, kind transfer.LegKind) (*providers.Result, error) {
	args := m.Called(ctx, tx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.Result), args.Error(1)
}

// MockNotifier mocks the Notifier interface
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) StatusChanged(ctx context.Context, before, after *transfer.Transaction, correlationID string) {
	m.Called(ctx, before, after, correlationID)
}

func (m *MockNotifier) RaiseCase(ctx context.Context, tx *transfer.Transaction, reason shared.ReconciliationReason, correlationID string) error {
	args := m.Called(ctx, tx, reason, correlationID)
	return args.Error(0)
}

func (m *MockNotifier) Mismatch(ctx context.Context, event *shared.ProviderEvent, mismatch shared.ReconciliationMismatchError) {
	m.Called(ctx, event, mismatch)
}
