package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/exchange-bridge/internal/api_gateway"
	"github.com/exchange-bridge/internal/api_gateway/service"
	"github.com/exchange-bridge/internal/config"
	"github.com/exchange-bridge/internal/data/mongo"
	"github.com/exchange-bridge/internal/data/postgres"
	"github.com/exchange-bridge/internal/domain/audit"
	"github.com/exchange-bridge/internal/domain/limits"
	"github.com/exchange-bridge/internal/domain/otp"
	"github.com/exchange-bridge/internal/domain/quote"
	"github.com/exchange-bridge/internal/logger"
	"github.com/exchange-bridge/internal/platform/messaging/producers"
	"github.com/exchange-bridge/internal/platform/persistence"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

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

	// Saga kick-offs wait for all replicas; the durable job already covers a lost message
	sagaProducer, err := producers.NewTopicProducer(appCtx, log, &cfg.Kafka, cfg.Kafka.SagaRequestTopic, producers.ProducerOptions{RequireAll: true})
	if err != nil {
		log.Error("Failed to initialize saga request producer", "error", err)
		os.Exit(1)
	}

	// Webhooks are acked only after the event is durable in Kafka
	eventProducer, err := producers.NewTopicProducer(appCtx, log, &cfg.Kafka, cfg.Kafka.ProviderEventTopic, producers.ProducerOptions{RequireAll: true})
	if err != nil {
		log.Error("Failed to initialize provider event producer", "error", err)
		os.Exit(1)
	}

	notificationProducer, err := producers.NewTopicProducer(appCtx, log, &cfg.Kafka, cfg.Kafka.NotificationTopic, producers.ProducerOptions{Async: true})
	if err != nil {
		log.Error("Failed to initialize notification producer", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	transactionRepo := postgres.NewTransactionRepository(log, postgresDB)
	limitRepo := postgres.NewLimitRepository(log, postgresDB)
	jobRepo := postgres.NewSagaJobRepository(log, postgresDB)
	auditRepo := mongo.NewAuditRepository(log, mongoDB.Database())
	if err := auditRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to create audit indexes", "error", err)
		os.Exit(1)
	}
	recorder := audit.NewRecorder(auditRepo, log.With("component", "audit"))

	// Initialize domain components
	ledger, err := limits.NewLedger(limitRepo, cfg.Limits, log.With("component", "limit_ledger"))
	if err != nil {
		log.Error("Failed to initialize limit ledger", "error", err)
		os.Exit(1)
	}
	rates := quote.NewStaticRateSource(cfg.Exchange)

	// Initialize services
	exchangeService := service.NewExchangeService(log.With("component", "exchange_service"), service.ExchangeDependencies{
		DB:            postgresDB,
		Transactions:  transactionRepo,
		Jobs:          jobRepo,
		Ledger:        ledger,
		Gate:          otp.NewGate(cfg.OTP),
		Calculator:    quote.NewCalculator(rates, cfg.Exchange),
		Rates:         rates,
		Audit:         recorder,
		SagaRequests:  sagaProducer,
		Notifications: notificationProducer,
	})
	queryService := service.NewTransactionQueryService(log, transactionRepo)
	webhookService := service.NewWebhookService(log.With("component", "webhooks"), eventProducer, recorder)

	// Initialize REST server
	server := api_gateway.NewServer(log, cfg, exchangeService, queryService, webhookService)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Stop accepting requests before closing what handlers depend on
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	for name, p := range map[string]producers.MessagePublisher{
		"saga_requests":   sagaProducer,
		"provider_events": eventProducer,
		"notifications":   notificationProducer,
	} {
		if closeErr := p.Close(); closeErr != nil {
			log.Error("Error closing Kafka producer", "producer", name, "error", closeErr)
			err = closeErr
		}
	}

	postgresDB.Close()

	if closeErr := mongoDB.Close(shutdownCtx); closeErr != nil {
		log.Error("Error closing MongoDB connection", "error", closeErr)
		err = closeErr
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
