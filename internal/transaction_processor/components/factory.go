package components

import (
	"fmt"
	"log/slog"

	"github.com/exchange-bridge/internal/config"
	"github.com/exchange-bridge/internal/domain/audit"
	"github.com/exchange-bridge/internal/domain/limits"
	"github.com/exchange-bridge/internal/domain/sagajob"
	"github.com/exchange-bridge/internal/domain/transfer"
	"github.com/exchange-bridge/internal/platform/messaging/producers"
	"github.com/exchange-bridge/internal/platform/persistence"
	"github.com/exchange-bridge/internal/providers"
	"github.com/exchange-bridge/internal/transaction_processor/service"
)

// Dependencies are the infrastructure handles the processor services are built from
type Dependencies struct {
	DB             persistence.TxRunner
	Transactions   transfer.Repository
	Limits         limits.Repository
	Jobs           sagajob.Repository
	Audit          audit.Recorder
	Notifications  producers.MessagePublisher
	Reconciliation producers.MessagePublisher
	Providers      *providers.Registry
}

// Services is the wired processor
type Services struct {
	Writer     *StateWriterImpl
	Saga       *service.SagaServiceImpl
	Pool       *service.WorkerPoolSagaService
	Reconciler *service.ReconcilerImpl
}

// CreateSagaServices wires the state writer, orchestrator, worker pool and reconciler.
// owner identifies this process in saga job leases.
func CreateSagaServices(deps Dependencies, cfg *config.Config, owner string, logger *slog.Logger) (*Services, error) {
	ledger, err := limits.NewLedger(deps.Limits, cfg.Limits, logger.With("component", "limit_ledger"))
	if err != nil {
		return nil, err
	}

	notifier := NewNotifier(deps.Audit, deps.Notifications, deps.Reconciliation, logger.With("component", "notifier"))
	writer := NewStateWriter(
		deps.DB,
		deps.Transactions,
		ledger,
		deps.Jobs,
		notifier,
		cfg.SagaJobs.ConflictRetries,
		logger.With("component", "state_writer"),
	)
	legs := NewLegExecutor(deps.Providers, deps.Audit, cfg.Providers.CallTimeout, logger.With("component", "leg_executor"))

	saga := service.NewSagaService(
		deps.Jobs,
		deps.Transactions,
		writer,
		legs,
		notifier,
		cfg.SagaJobs,
		owner,
		logger.With("component", "saga"),
	)

	pool, err := service.NewWorkerPoolSagaService(
		saga,
		service.WorkerPoolConfig{Size: cfg.WorkerPool.Size},
		logger.With("component", "worker_pool"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create saga worker pool: %w", err)
	}
	logger.Info("Created worker pool saga service", "pool_size", cfg.WorkerPool.Size, "owner", owner)

	reconciler := service.NewReconciler(deps.Transactions, deps.Jobs, writer, notifier, logger.With("component", "reconciler"))

	return &Services{
		Writer:     writer,
		Saga:       saga,
		Pool:       pool,
		Reconciler: reconciler,
	}, nil
}
