// Package sandbox is a local stand-in for both payment networks. Every operation
// is persisted in a bolt file keyed by its leg reference, so repeating a call
// with the same reference returns the stored outcome instead of moving money twice.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/exchange-bridge/internal/config"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/providers"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Operation is the kind of money movement recorded
type Operation string

const (
	OperationDebit  Operation = "DEBIT"
	OperationCredit Operation = "CREDIT"
)

// Record is one persisted operation
type Record struct {
	Reference string             `json:"reference"`
	Operation Operation          `json:"operation"`
	Account   string             `json:"account"`
	Amount    decimal.Decimal    `json:"amount"`
	Currency  string             `json:"currency"`
	State     providers.LegState `json:"state"`
	Receipt   string             `json:"receipt,omitempty"`
	Code      string             `json:"code,omitempty"`
	Message   string             `json:"message,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

func (r *Record) result() *providers.Result {
	return &providers.Result{State: r.State, Receipt: r.Receipt, Code: r.Code, Message: r.Message}
}

// Rules decide how the sandbox answers
type Rules struct {
	RejectAccounts       []string
	UnresponsiveAccounts []string
	RejectAbove          decimal.Decimal
	Latency              time.Duration
}

// RulesFromConfig maps provider settings onto sandbox rules
func RulesFromConfig(cfg config.ProvidersConfig) Rules {
	return Rules{
		RejectAccounts:       cfg.RejectAccounts,
		UnresponsiveAccounts: cfg.UnresponsiveAccounts,
		RejectAbove:          cfg.RejectAbove,
		Latency:              cfg.SandboxLatency,
	}
}

// Open opens (or creates) the sandbox database shared by all sandbox adapters
func Open(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open sandbox database: %w", err)
	}
	return db, nil
}

// Adapter implements providers.Adapter for one network
type Adapter struct {
	db            *bolt.DB
	name          string
	receiptPrefix string
	rules         Rules
	logger        *slog.Logger
}

var _ providers.Adapter = (*Adapter)(nil)

// NewAdapter creates the bucket for the network if needed
func NewAdapter(db *bolt.DB, network shared.Network, rules Rules, logger *slog.Logger) (*Adapter, error) {
	name := string(network)
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox bucket %s: %w", name, err)
	}

	prefix := "EW"
	if network == shared.NetworkMobileMoney {
		prefix = "MM"
	}
	return &Adapter{
		db:            db,
		name:          name,
		receiptPrefix: prefix,
		rules:         rules,
		logger:        logger.With("provider", name),
	}, nil
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) IdempotentByKey() bool { return true }

func (a *Adapter) Debit(ctx context.Context, req providers.Request) (*providers.Result, error) {
	return a.apply(ctx, OperationDebit, req)
}

func (a *Adapter) Credit(ctx context.Context, req providers.Request) (*providers.Result, error) {
	return a.apply(ctx, OperationCredit, req)
}

func (a *Adapter) QueryStatus(ctx context.Context, reference string) (*providers.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := a.get(reference)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &providers.Result{State: providers.LegStateNotFound}, nil
	}
	return rec.result(), nil
}

func (a *Adapter) apply(ctx context.Context, op Operation, req providers.Request) (*providers.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Reference == "" {
		return nil, fmt.Errorf("sandbox %s: reference is required", a.name)
	}

	rec, created, err := a.createOnce(op, req)
	if err != nil {
		return nil, err
	}
	logger := a.logger.With("reference", req.Reference, "operation", string(op))
	if created {
		logger.Info("Sandbox operation recorded", "state", string(rec.State), "amount", req.Amount.String())
	} else {
		logger.Info("Sandbox operation replayed", "state", string(rec.State))
	}

	// the operation is already applied; the caller may still never hear about it
	if contains(a.rules.UnresponsiveAccounts, req.Account) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if a.rules.Latency > 0 {
		select {
		case <-time.After(a.rules.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if rec.State == providers.LegStateFailed {
		return nil, shared.ProviderError{
			Kind:     shared.ProviderRejected,
			Provider: a.name,
			Code:     rec.Code,
			Err:      errors.New(rec.Message),
		}
	}
	return rec.result(), nil
}

// createOnce stores the outcome for a new reference or returns the stored one
func (a *Adapter) createOnce(op Operation, req providers.Request) (*Record, bool, error) {
	var result Record
	created := false

	err := a.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(a.name))

		if existing := b.Get([]byte(req.Reference)); existing != nil {
			return json.Unmarshal(existing, &result)
		}

		rec := a.decide(op, req)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		result = *rec
		created = true
		return b.Put([]byte(req.Reference), data)
	})
	if err != nil {
		return nil, false, fmt.Errorf("sandbox %s: failed to record operation: %w", a.name, err)
	}
	return &result, created, nil
}

func (a *Adapter) decide(op Operation, req providers.Request) *Record {
	rec := &Record{
		Reference: req.Reference,
		Operation: op,
		Account:   req.Account,
		Amount:    req.Amount,
		Currency:  req.Currency,
		CreatedAt: time.Now().UTC(),
	}
	switch {
	case contains(a.rules.RejectAccounts, req.Account):
		rec.State = providers.LegStateFailed
		rec.Code = "ACCOUNT_DECLINED"
		rec.Message = "account declined by provider"
	case a.rules.RejectAbove.IsPositive() && req.Amount.GreaterThan(a.rules.RejectAbove):
		rec.State = providers.LegStateFailed
		rec.Code = "AMOUNT_LIMIT"
		rec.Message = "amount above provider limit"
	default:
		rec.State = providers.LegStateCompleted
		rec.Receipt = a.receiptPrefix + "-" + strings.ToUpper(uuid.NewString()[:8])
	}
	return rec
}

func (a *Adapter) get(reference string) (*Record, error) {
	var rec *Record
	err := a.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(a.name)).Get([]byte(reference))
		if v == nil {
			return nil
		}
		rec = &Record{}
		return json.Unmarshal(v, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox %s: failed to read operation: %w", a.name, err)
	}
	return rec, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
