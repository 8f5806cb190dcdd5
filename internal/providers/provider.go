// Package providers defines the contract every payment network adapter fulfils
// and the classification of adapter failures.
package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// LegState is the provider's view of an operation
type LegState string

const (
	LegStatePending   LegState = "PENDING" // accepted, outcome arrives by callback
	LegStateCompleted LegState = "COMPLETED"
	LegStateFailed    LegState = "FAILED"
	LegStateNotFound  LegState = "NOT_FOUND" // the provider never saw the reference
)

// Request is a debit or credit keyed by the leg reference
type Request struct {
	Reference string
	Account   string
	Amount    decimal.Decimal
	Currency  string
}

// Result is the provider's answer to a debit, credit or status query
type Result struct {
	State   LegState
	Receipt string
	Code    string
	Message string
}

// Adapter is a payment network. Debit and Credit return a ProviderError of kind
// REJECTED when the provider refused the operation; any other error means the
// outcome is unknown.
type Adapter interface {
	Name() string
	Debit(ctx context.Context, req Request) (*Result, error)
	Credit(ctx context.Context, req Request) (*Result, error)
	QueryStatus(ctx context.Context, reference string) (*Result, error)

	// IdempotentByKey reports whether repeating a call with the same reference
	// is guaranteed not to move money twice
	IdempotentByKey() bool
}

// Classify turns any adapter error into a ProviderError
func Classify(provider string, err error) shared.ProviderError {
	var pe shared.ProviderError
	if errors.As(err, &pe) {
		if pe.Provider == "" {
			pe.Provider = provider
		}
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.ProviderError{Kind: shared.ProviderTimeout, Provider: provider, Err: err}
	}
	return shared.ProviderError{Kind: shared.ProviderUnknown, Provider: provider, Err: err}
}

// Registry resolves adapters by provider name
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", name)
	}
	return a, nil
}
