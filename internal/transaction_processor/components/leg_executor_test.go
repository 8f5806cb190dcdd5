package components

import (
	"context"
	"testing"
	"time"

	"github.com/exchange-bridge/internal/domain/audit"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/exchange-bridge/internal/providers"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newLegExecutorFixture(idempotent bool) (*LegExecutorImpl, *MockAdapter, *MockAdapter, *MockRecorder) {
	wallet := &MockAdapter{name: string(shared.NetworkEWallet), idempotent: idempotent}
	mobile := &MockAdapter{name: string(shared.NetworkMobileMoney), idempotent: idempotent}
	recorder := &MockRecorder{}
	recorder.On("Record", mock.Anything, mock.MatchedBy(func(e *audit.Event) bool {
		return e.Action == audit.ActionExternalAPICall
	}))

	executor := NewLegExecutor(providers.NewRegistry(wallet, mobile), recorder, time.Second, newTestLogger())
	return executor, wallet, mobile, recorder
}

func TestLegExecutor_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("source leg debits the source amount", func(t *testing.T) {
		executor, wallet, _, recorder := newLegExecutorFixture(true)
		tx := newProcessingTransaction(t)

		wallet.On("Debit", mock.Anything, providers.Request{
			Reference: tx.Source.ProviderTransactionID,
			Account:   "buyer@example.com",
			Amount:    decimal.NewFromInt(100),
			Currency:  "USD",
		}).Return(&providers.Result{State: providers.LegStateCompleted, Receipt: "PAY-1"}, nil).Once()

		result, err := executor.Execute(ctx, tx, transfer.LegSource)
		require.NoError(t, err)
		assert.Equal(t, "PAY-1", result.Receipt)
		wallet.AssertExpectations(t)
		recorder.AssertNumberOfCalls(t, "Record", 1)
	})

	t.Run("destination leg credits the net amount", func(t *testing.T) {
		executor, _, mobile, _ := newLegExecutorFixture(true)
		tx := newAwaitingDestination(t)

		mobile.On("Credit", mock.Anything, mock.MatchedBy(func(req providers.Request) bool {
			return req.Reference == tx.Destination.ProviderTransactionID &&
				req.Amount.Equal(decimal.RequireFromString("6191.25")) &&
				req.Currency == "MZN"
		})).Return(&providers.Result{State: providers.LegStatePending}, nil).Once()

		result, err := executor.Execute(ctx, tx, transfer.LegDestination)
		require.NoError(t, err)
		assert.Equal(t, providers.LegStatePending, result.State)
		mobile.AssertExpectations(t)
	})

	t.Run("calls carry a deadline", func(t *testing.T) {
		executor, wallet, _, _ := newLegExecutorFixture(true)
		tx := newProcessingTransaction(t)

		wallet.On("Debit", mock.MatchedBy(func(c context.Context) bool {
			_, ok := c.Deadline()
			return ok
		}), mock.Anything).Return(nil, context.DeadlineExceeded).Once()

		_, err := executor.Execute(ctx, tx, transfer.LegSource)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		wallet.AssertExpectations(t)
	})

	t.Run("unknown provider", func(t *testing.T) {
		executor, _, _, _ := newLegExecutorFixture(true)
		tx := newProcessingTransaction(t)
		tx.Source.Provider = "bank"

		_, err := executor.Execute(ctx, tx, transfer.LegSource)
		assert.ErrorContains(t, err, `no adapter registered for provider "bank"`)
	})
}

func TestLegExecutor_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the provider status without reissuing", func(t *testing.T) {
		executor, _, mobile, _ := newLegExecutorFixture(true)
		tx := newAwaitingDestination(t)

		mobile.On("QueryStatus", mock.Anything, tx.Destination.ProviderTransactionID).
			Return(&providers.Result{State: providers.LegStateCompleted, Receipt: "MP-1"}, nil).Once()

		result, err := executor.Resolve(ctx, tx, transfer.LegDestination)
		require.NoError(t, err)
		assert.Equal(t, "MP-1", result.Receipt)
		mobile.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
	})

	t.Run("reissues under the same reference when idempotent", func(t *testing.T) {
		executor, _, mobile, _ := newLegExecutorFixture(true)
		tx := newAwaitingDestination(t)

		mobile.On("QueryStatus", mock.Anything, tx.Destination.ProviderTransactionID).
			Return(&providers.Result{State: providers.LegStateNotFound}, nil).Once()
		mobile.On("Credit", mock.Anything, mock.MatchedBy(func(req providers.Request) bool {
			return req.Reference == tx.Destination.ProviderTransactionID
		})).Return(&providers.Result{State: providers.LegStateCompleted, Receipt: "MP-2"}, nil).Once()

		result, err := executor.Resolve(ctx, tx, transfer.LegDestination)
		require.NoError(t, err)
		assert.Equal(t, "MP-2", result.Receipt)
		mobile.AssertExpectations(t)
	})

	t.Run("never reissues without idempotency", func(t *testing.T) {
		executor, _, mobile, _ := newLegExecutorFixture(false)
		tx := newAwaitingDestination(t)

		mobile.On("QueryStatus", mock.Anything, tx.Destination.ProviderTransactionID).
			Return(&providers.Result{State: providers.LegStateNotFound}, nil).Once()

		result, err := executor.Resolve(ctx, tx, transfer.LegDestination)
		require.NoError(t, err)
		assert.Equal(t, providers.LegStateNotFound, result.State)
		mobile.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
	})
}
