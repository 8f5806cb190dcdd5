// Package config provides configuration structures and validation for the bridge.
// It handles environment-based configuration for both binaries including server
// settings, database connections, message queues, exchange pricing and limits.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration with settings for all components.
// Each field represents a major subsystem's configuration and is validated during
// application startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	SagaJobs    SagaJobsConfig
	WorkerPool  WorkerPoolConfig
	Exchange    ExchangeConfig
	Limits      LimitsConfig
	OTP         OTPConfig
	Providers   ProvidersConfig
	Expiry      ExpiryConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or text
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers             string
	SagaRequestTopic    string // Saga kick-offs published after confirm
	ProviderEventTopic  string // Normalized webhook callbacks
	ReconciliationTopic string // Cases for manual reconciliation
	NotificationTopic   string // OTP and outcome notifications
	NumPartitions       int    // Number of partitions for topics
	ReplicationFactor   int    // Replication factor for topics
	ConsumerGroup       string
	MinBytes            int
	MaxBytes            int
	MaxWait             time.Duration
	StartOffset         int64
	DLQTopic            string // Topic for Dead Letter Queue
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// SagaJobsConfig contains durable saga job configuration
type SagaJobsConfig struct {
	PollingInterval    time.Duration
	BatchSize          int
	LeaseTTL           time.Duration // How long a run owns its job before another worker may take over
	ResolveBackoff     time.Duration // Initial delay before probing a leg with an unknown outcome
	MaxResolveBackoff  time.Duration
	MaxResolveAttempts int // Unresolved probes before the job is escalated
	ConflictRetries    int // Read-modify-write retries on version conflicts
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int // Maximum number of workers in the pool
}

// ExchangeConfig contains rate and fee settings
type ExchangeConfig struct {
	RateUSDToMZN        decimal.Decimal
	RateMZNToUSD        decimal.Decimal
	FeePercentage       decimal.Decimal
	FixedFee            decimal.Decimal // In the settlement currency
	MinimumAmount       decimal.Decimal
	SettlementCurrency  string
	EWalletCurrency     string
	MobileMoneyCurrency string
	QuoteValidity       time.Duration
}

// LimitsConfig contains per-user spending limit settings
type LimitsConfig struct {
	DefaultDaily  decimal.Decimal
	DefaultWeekly decimal.Decimal
	Timezone      string // Calendar used for daily and weekly resets
}

// OTPConfig contains confirmation code settings
type OTPConfig struct {
	TTL         time.Duration
	MaxAttempts int
	HashCost    int
}

// ProvidersConfig contains provider adapter settings
type ProvidersConfig struct {
	CallTimeout          time.Duration // Deadline for a single provider call
	SandboxDBPath        string
	RejectAccounts       []string        // Sandbox accounts that are always declined
	UnresponsiveAccounts []string        // Sandbox accounts whose calls are applied but never answered in time
	RejectAbove          decimal.Decimal // Sandbox declines amounts above this, zero disables
	SandboxLatency       time.Duration
}

// ExpiryConfig contains PENDING expiry sweep settings
type ExpiryConfig struct {
	SweepInterval time.Duration
	BatchSize     int
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate Logging config
	if f := strings.ToLower(c.Logging.Format); f != "" && f != "json" && f != "text" {
		validationErrors = append(validationErrors, "LOG_FORMAT must be json or text")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.SagaRequestTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_SAGA_REQUEST_TOPIC is required")
	}
	if c.Kafka.ProviderEventTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_PROVIDER_EVENT_TOPIC is required")
	}
	if c.Kafka.ReconciliationTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_RECONCILIATION_TOPIC is required")
	}
	if c.Kafka.NotificationTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_NOTIFICATION_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}
	if c.Kafka.DLQTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DLQ_TOPIC is required")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate SagaJobs config
	if c.SagaJobs.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "SAGA_POLLING_INTERVAL must be greater than 0")
	}
	if c.SagaJobs.BatchSize <= 0 {
		validationErrors = append(validationErrors, "SAGA_BATCH_SIZE must be greater than 0")
	}
	if c.SagaJobs.LeaseTTL <= c.Providers.CallTimeout {
		validationErrors = append(validationErrors, "SAGA_LEASE_TTL must be greater than PROVIDER_CALL_TIMEOUT")
	}
	if c.SagaJobs.ResolveBackoff <= 0 {
		validationErrors = append(validationErrors, "SAGA_RESOLVE_BACKOFF must be greater than 0")
	}
	if c.SagaJobs.MaxResolveBackoff < c.SagaJobs.ResolveBackoff {
		validationErrors = append(validationErrors, "SAGA_MAX_RESOLVE_BACKOFF must not be less than SAGA_RESOLVE_BACKOFF")
	}
	if c.SagaJobs.MaxResolveAttempts <= 0 {
		validationErrors = append(validationErrors, "SAGA_MAX_RESOLVE_ATTEMPTS must be greater than 0")
	}
	if c.SagaJobs.ConflictRetries <= 0 {
		validationErrors = append(validationErrors, "SAGA_CONFLICT_RETRIES must be greater than 0")
	}

	// Validate WorkerPool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	// Validate Exchange config
	if !c.Exchange.RateUSDToMZN.IsPositive() {
		validationErrors = append(validationErrors, "EXCHANGE_RATE_USD_MZN must be a positive decimal")
	}
	if !c.Exchange.RateMZNToUSD.IsPositive() {
		validationErrors = append(validationErrors, "EXCHANGE_RATE_MZN_USD must be a positive decimal")
	}
	if c.Exchange.FeePercentage.IsNegative() || c.Exchange.FeePercentage.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		validationErrors = append(validationErrors, "EXCHANGE_FEE_PERCENTAGE must be between 0 and 100")
	}
	if c.Exchange.FixedFee.IsNegative() {
		validationErrors = append(validationErrors, "EXCHANGE_FIXED_FEE must not be negative")
	}
	if !c.Exchange.MinimumAmount.IsPositive() {
		validationErrors = append(validationErrors, "EXCHANGE_MINIMUM_AMOUNT must be a positive decimal")
	}
	if c.Exchange.SettlementCurrency == "" || c.Exchange.EWalletCurrency == "" || c.Exchange.MobileMoneyCurrency == "" {
		validationErrors = append(validationErrors, "EXCHANGE_*_CURRENCY values are required")
	}
	if c.Exchange.QuoteValidity <= 0 {
		validationErrors = append(validationErrors, "EXCHANGE_QUOTE_VALIDITY must be greater than 0")
	}

	// Validate Limits config
	if !c.Limits.DefaultDaily.IsPositive() {
		validationErrors = append(validationErrors, "LIMITS_DEFAULT_DAILY must be a positive decimal")
	}
	if c.Limits.DefaultWeekly.LessThan(c.Limits.DefaultDaily) {
		validationErrors = append(validationErrors, "LIMITS_DEFAULT_WEEKLY must not be less than LIMITS_DEFAULT_DAILY")
	}
	if _, err := time.LoadLocation(c.Limits.Timezone); err != nil {
		validationErrors = append(validationErrors, "LIMITS_TIMEZONE must be a valid IANA time zone")
	}

	// Validate OTP config
	if c.OTP.TTL <= 0 {
		validationErrors = append(validationErrors, "OTP_TTL must be greater than 0")
	}
	if c.OTP.MaxAttempts <= 0 {
		validationErrors = append(validationErrors, "OTP_MAX_ATTEMPTS must be greater than 0")
	}
	if c.OTP.HashCost < 4 || c.OTP.HashCost > 31 {
		validationErrors = append(validationErrors, "OTP_HASH_COST must be between 4 and 31")
	}

	// Validate Providers config
	if c.Providers.CallTimeout <= 0 {
		validationErrors = append(validationErrors, "PROVIDER_CALL_TIMEOUT must be greater than 0")
	}
	if c.Providers.SandboxDBPath == "" {
		validationErrors = append(validationErrors, "SANDBOX_DB_PATH is required")
	}
	if c.Providers.RejectAbove.IsNegative() {
		validationErrors = append(validationErrors, "SANDBOX_REJECT_ABOVE must not be negative")
	}

	// Validate Expiry config
	if c.Expiry.SweepInterval <= 0 {
		validationErrors = append(validationErrors, "EXPIRY_SWEEP_INTERVAL must be greater than 0")
	}
	if c.Expiry.BatchSize <= 0 {
		validationErrors = append(validationErrors, "EXPIRY_BATCH_SIZE must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
