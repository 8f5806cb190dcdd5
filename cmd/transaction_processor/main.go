package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/exchange-bridge/internal/config"
	"github.com/exchange-bridge/internal/data/mongo"
	"github.com/exchange-bridge/internal/data/postgres"
	"github.com/exchange-bridge/internal/domain/audit"
	"github.com/exchange-bridge/internal/domain/shared"
	"github.com/exchange-bridge/internal/logger"
	"github.com/exchange-bridge/internal/platform/messaging/consumers"
	"github.com/exchange-bridge/internal/platform/messaging/producers"
	"github.com/exchange-bridge/internal/platform/persistence"
	"github.com/exchange-bridge/internal/providers"
	"github.com/exchange-bridge/internal/providers/sandbox"
	"github.com/exchange-bridge/internal/transaction_processor/components"
	"github.com/exchange-bridge/internal/transaction_processor/consumer"
	"github.com/exchange-bridge/internal/transaction_processor/saga_poller"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("transaction_processor")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Transaction Processor",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Initialize sandbox provider adapters
	sandboxDB, err := sandbox.Open(cfg.Providers.SandboxDBPath)
	if err != nil {
		log.Error("Failed to open sandbox provider store", "error", err)
		os.Exit(1)
	}
	rules := sandbox.RulesFromConfig(cfg.Providers)
	ewallet, err := sandbox.NewAdapter(sandboxDB, shared.NetworkEWallet, rules, log)
	if err != nil {
		log.Error("Failed to initialize e-wallet adapter", "error", err)
		os.Exit(1)
	}
	mobileMoney, err := sandbox.NewAdapter(sandboxDB, shared.NetworkMobileMoney, rules, log)
	if err != nil {
		log.Error("Failed to initialize mobile money adapter", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka producers
	reconciliationProducer, err := producers.NewTopicProducer(appCtx, log, &cfg.Kafka, cfg.Kafka.ReconciliationTopic, producers.ProducerOptions{RequireAll: true})
	if err != nil {
		log.Error("Failed to initialize reconciliation producer", "error", err)
		os.Exit(1)
	}
	notificationProducer, err := producers.NewTopicProducer(appCtx, log, &cfg.Kafka, cfg.Kafka.NotificationTopic, producers.ProducerOptions{Async: true})
	if err != nil {
		log.Error("Failed to initialize notification producer", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka DLQ producer
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	// dlqProducer is nil when no DLQ topic is configured; keep the interface nil too
	var dlq producers.DeadLetterPublisher
	if dlqProducer != nil {
		dlq = dlqProducer
	}

	// Initialize repositories
	auditRepo := mongo.NewAuditRepository(log, mongoDB.Database())
	if err := auditRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to create audit indexes", "error", err)
		os.Exit(1)
	}
	jobRepo := postgres.NewSagaJobRepository(log, postgresDB)
	transactionRepo := postgres.NewTransactionRepository(log, postgresDB)

	hostname, _ := os.Hostname()
	owner := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	services, err := components.CreateSagaServices(components.Dependencies{
		DB:             postgresDB,
		Transactions:   transactionRepo,
		Limits:         postgres.NewLimitRepository(log, postgresDB),
		Jobs:           jobRepo,
		Audit:          audit.NewRecorder(auditRepo, log.With("component", "audit")),
		Notifications:  notificationProducer,
		Reconciliation: reconciliationProducer,
		Providers:      providers.NewRegistry(ewallet, mobileMoney),
	}, cfg, owner, log)
	if err != nil {
		log.Error("Failed to create saga services", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka consumers
	sagaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka, cfg.Kafka.SagaRequestTopic)
	eventConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka, cfg.Kafka.ProviderEventTopic)
	sagaHandler := consumer.NewSagaRequestHandler(log.With("component", "saga_consumer"), services.Pool, dlq)
	eventHandler := consumer.NewProviderEventHandler(log.With("component", "event_consumer"), services.Reconciler, dlq)

	// Initialize background loops
	poller := saga_poller.NewPoller(&cfg.SagaJobs, jobRepo, services.Pool, log.With("component", "saga_poller"))
	sweeper := saga_poller.NewExpirySweeper(&cfg.Expiry, transactionRepo, services.Writer, log.With("component", "expiry_sweeper"))

	// Create error channel for service errors
	errChan := make(chan error, 2)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	if err := sagaConsumer.Subscribe(appCtx, sagaHandler.HandleMessage); err != nil {
		errChan <- fmt.Errorf("saga request consumer error: %w", err)
	}
	if err := eventConsumer.Subscribe(appCtx, eventHandler.HandleMessage); err != nil {
		errChan <- fmt.Errorf("provider event consumer error: %w", err)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		poller.Start(appCtx)
	}()
	go func() {
		defer wg.Done()
		sweeper.Start(appCtx)
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Consumers first so no new runs are submitted
	if err = sagaConsumer.Close(); err != nil {
		log.Error("Error closing saga request consumer", "error", err)
	}
	if err = eventConsumer.Close(); err != nil {
		log.Error("Error closing provider event consumer", "error", err)
	}

	// Wait for the poller and sweeper
	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	// Interrupted runs keep their lease and are resumed by the next poller
	services.Pool.Shutdown(time.Until(deadline(shutdownCtx)))

	if dlqProducer != nil {
		if err = dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
		}
	}
	if err = reconciliationProducer.Close(); err != nil {
		log.Error("Error closing reconciliation producer", "error", err)
	}
	if err = notificationProducer.Close(); err != nil {
		log.Error("Error closing notification producer", "error", err)
	}

	if err = sandboxDB.Close(); err != nil {
		log.Error("Error closing sandbox provider store", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Close MongoDB connection
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serviceErr != nil {
		log.Error("Transaction Processor shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Transaction Processor shutdown completed with errors")
	} else {
		log.Info("Transaction Processor shutdown completed successfully")
	}
}

func deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now()
}
