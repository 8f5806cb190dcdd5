package components

import (
	"context"
	"log/slog"
	"time"

	"github.com/exchange-bridge/internal/domain/audit"
	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/exchange-bridge/internal/providers"
	"github.com/exchange-bridge/internal/transaction_processor/service"
)

type LegExecutorImpl struct {
	registry    *providers.Registry
	audit       audit.Recorder
	callTimeout time.Duration
	logger      *slog.Logger
}

var _ service.LegExecutor = (*LegExecutorImpl)(nil)

func NewLegExecutor(registry *providers.Registry, recorder audit.Recorder, callTimeout time.Duration, logger *slog.Logger) *LegExecutorImpl {
	return &LegExecutorImpl{
		registry:    registry,
		audit:       recorder,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// Execute issues the leg's debit or credit under the leg reference
func (e *LegExecutorImpl) Execute(ctx context.Context, tx transfer.Transaction, kind transfer.LegKind) (*providers.Result, error) {
	leg := tx.Leg(kind)
	adapter, err := e.registry.Get(leg.Provider)
	if err != nil {
		return nil, err
	}
	return e.call(ctx, tx, kind, adapter)
}

// Resolve asks the provider what happened to an in-flight leg. The operation is
// reissued only when the provider never saw the reference and repeating it
// under the same reference cannot move money twice.
func (e *LegExecutorImpl) Resolve(ctx context.Context, tx transfer.Transaction, kind transfer.LegKind) (*providers.Result, error) {
	leg := tx.Leg(kind)
	adapter, err := e.registry.Get(leg.Provider)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	result, err := adapter.QueryStatus(callCtx, leg.ProviderTransactionID)
	cancel()
	e.record(ctx, tx, kind, "query_status", result, err)
	if err != nil {
		return nil, err
	}

	if result.State == providers.LegStateNotFound && adapter.IdempotentByKey() {
		e.logger.Info("Provider has no record of leg, reissuing",
			"transaction_id", tx.ID.String(),
			"leg", string(kind),
			"reference", leg.ProviderTransactionID,
		)
		return e.call(ctx, tx, kind, adapter)
	}
	return result, nil
}

func (e *LegExecutorImpl) call(ctx context.Context, tx transfer.Transaction, kind transfer.LegKind, adapter providers.Adapter) (*providers.Result, error) {
	leg := tx.Leg(kind)
	req := providers.Request{Reference: leg.ProviderTransactionID, Account: leg.AccountIdentifier}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	var (
		result    *providers.Result
		err       error
		operation string
	)
	if kind == transfer.LegSource {
		req.Amount, req.Currency = tx.SourceAmount, tx.SourceCurrency
		operation = "debit"
		result, err = adapter.Debit(callCtx, req)
	} else {
		// the destination receives the quoted amount net of fees
		req.Amount, req.Currency = tx.NetAmount, tx.DestinationCurrency
		operation = "credit"
		result, err = adapter.Credit(callCtx, req)
	}

	e.record(ctx, tx, kind, operation, result, err)
	return result, err
}

func (e *LegExecutorImpl) record(ctx context.Context, tx transfer.Transaction, kind transfer.LegKind, operation string, result *providers.Result, err error) {
	leg := tx.Leg(kind)
	details := map[string]string{
		"provider":  leg.Provider,
		"operation": operation,
		"leg":       string(kind),
		"reference": leg.ProviderTransactionID,
	}
	switch {
	case err != nil:
		details["error"] = err.Error()
	case result != nil:
		details["state"] = string(result.State)
		if result.Receipt != "" {
			details["receipt"] = result.Receipt
		}
		if result.Code != "" {
			details["code"] = result.Code
		}
	}

	e.logger.Debug("Provider call finished",
		"transaction_id", tx.ID.String(),
		"provider", leg.Provider,
		"operation", operation,
		"error", err,
	)
	e.audit.Record(ctx, audit.NewEvent(audit.ActionExternalAPICall, tx.UserID, tx.ID, details))
}
