// Package config provides configuration structures and validation for the
// transfer gateway and processor. Values come from an optional .env file
// overlaid by environment variables.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

// Config holds the complete application configuration with settings for all components.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	WorkerPool  WorkerPoolConfig
	Retry       RetryConfig
	Rates       RatesConfig
	Fees        FeesConfig
	Ledger      LedgerConfig
	MPesa       MPesaConfig
	Checkout    CheckoutConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers           string
	CommandTopic      string // Transfer commands consumed by the processor
	StatusTopic       string // Status events fanned out by the gateway
	NumPartitions     int
	ReplicationFactor int
	ConsumerGroup     string // Processor group for the command topic
	StatusGroupPrefix string // Gateway instances each join their own group
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	StartOffset       int64
	DLQTopic          string
}

// PostgresConfig contains PostgreSQL configuration for the retry task store
type PostgresConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string

	// StatementTimeout bounds every query, so a stuck claim cannot hold
	// FOR UPDATE row locks past the sweep interval.
	StatementTimeout  time.Duration
	HealthCheckPeriod time.Duration
	ApplicationName   string // Reported in pg_stat_activity
}

// MongoDBConfig contains MongoDB configuration for the transfer store
type MongoDBConfig struct {
	URI                 string
	Database            string
	TransfersCollection string
	Timeout             time.Duration
	MaxPoolSize         uint64
	MinPoolSize         uint64
	MaxConnIdleTime     time.Duration

	// ServerSelectionTimeout caps how long an operation waits for a primary
	// during an election before the command is redelivered.
	ServerSelectionTimeout time.Duration
	AppName                string
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int // Maximum number of workers in the pool
}

// RetryConfig governs automatic payout retries and the durable task poller.
type RetryConfig struct {
	MaxRetries   int           // Retry budget stamped on new transfers
	BaseDelay    time.Duration // First backoff step
	MaxDelay     time.Duration // Backoff ceiling
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int           // Poller attempts per task before it is marked failed
	Lease        time.Duration // A claimed task is reclaimable after this long
	// SweepInterval and StaleAfter drive the in-flight sweep that re-dispatches
	// transfers whose advance command was lost.
	SweepInterval time.Duration
	StaleAfter    time.Duration
}

// RatesConfig contains exchange-rate source and cache settings
type RatesConfig struct {
	BridgeTTL      time.Duration
	LocalTTL       time.Duration
	BridgeFallback decimal.Decimal // USD price of one bridge-asset unit when the oracle was never reached
	OracleURL      string
	AssetID        string
	FXURL          string
	HTTPTimeout    time.Duration
}

// FeesConfig contains fee parameters applied at creation
type FeesConfig struct {
	NetworkFeeUSD       decimal.Decimal
	PlatformFeePercent  decimal.Decimal
	BenchmarkFeePercent decimal.Decimal // Typical remittance cost used to report savings
}

// LedgerConfig contains ledger-transfer client settings
type LedgerConfig struct {
	BaseURL        string
	APIKey         string
	PartnerAddress string
	Timeout        time.Duration
}

// MPesaConfig contains mobile-money payout client settings
type MPesaConfig struct {
	BaseURL            string
	ConsumerKey        string
	ConsumerSecret     string
	ShortCode          string
	InitiatorName      string
	SecurityCredential string
	CommandID          string
	ResultURL          string
	TimeoutURL         string
	Timeout            time.Duration
}

// CheckoutConfig contains card-capture webhook settings
type CheckoutConfig struct {
	WebhookSecret string
}

// validate performs validation of all configuration values
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
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.CommandTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_COMMAND_TOPIC is required")
	}
	if c.Kafka.StatusTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_STATUS_TOPIC is required")
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
	if c.Postgres.MinConns > c.Postgres.MaxConns {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS cannot exceed POSTGRES_MAX_CONNS")
	}
	if c.Postgres.StatementTimeout < 0 {
		validationErrors = append(validationErrors, "POSTGRES_STATEMENT_TIMEOUT cannot be negative")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.TransfersCollection == "" {
		validationErrors = append(validationErrors, "MONGO_TRANSFERS_COLLECTION is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.ServerSelectionTimeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_SERVER_SELECTION_TIMEOUT must be greater than 0")
	}

	// Validate WorkerPool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	// Validate Retry config
	if c.Retry.MaxRetries < 0 {
		validationErrors = append(validationErrors, "RETRY_MAX_RETRIES must not be negative")
	}
	if c.Retry.BaseDelay <= 0 {
		validationErrors = append(validationErrors, "RETRY_BASE_DELAY must be greater than 0")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		validationErrors = append(validationErrors, "RETRY_MAX_DELAY must not be less than RETRY_BASE_DELAY")
	}
	if c.Retry.PollInterval <= 0 {
		validationErrors = append(validationErrors, "RETRY_POLL_INTERVAL must be greater than 0")
	}
	if c.Retry.BatchSize <= 0 {
		validationErrors = append(validationErrors, "RETRY_BATCH_SIZE must be greater than 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		validationErrors = append(validationErrors, "RETRY_MAX_ATTEMPTS must be greater than 0")
	}
	if c.Retry.SweepInterval <= 0 {
		validationErrors = append(validationErrors, "RETRY_SWEEP_INTERVAL must be greater than 0")
	}

	// Validate Rates and fees
	if c.Rates.BridgeTTL <= 0 {
		validationErrors = append(validationErrors, "RATES_BRIDGE_TTL must be greater than 0")
	}
	if c.Rates.LocalTTL <= 0 {
		validationErrors = append(validationErrors, "RATES_LOCAL_TTL must be greater than 0")
	}
	if !c.Rates.BridgeFallback.IsPositive() {
		validationErrors = append(validationErrors, "RATES_BRIDGE_FALLBACK must be greater than 0")
	}
	if c.Fees.NetworkFeeUSD.IsNegative() || c.Fees.PlatformFeePercent.IsNegative() {
		validationErrors = append(validationErrors, "FEES_* must not be negative")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}

// RequireProviders reports the first missing provider credential or address.
// The processor refuses to start without them.
func (c *Config) RequireProviders() error {
	required := []struct {
		setting string
		value   string
	}{
		{"RATES_ORACLE_URL", c.Rates.OracleURL},
		{"LEDGER_BASE_URL", c.Ledger.BaseURL},
		{"LEDGER_API_KEY", c.Ledger.APIKey},
		{"LEDGER_PARTNER_ADDRESS", c.Ledger.PartnerAddress},
		{"MPESA_BASE_URL", c.MPesa.BaseURL},
		{"MPESA_CONSUMER_KEY", c.MPesa.ConsumerKey},
		{"MPESA_CONSUMER_SECRET", c.MPesa.ConsumerSecret},
		{"MPESA_SHORT_CODE", c.MPesa.ShortCode},
		{"MPESA_RESULT_URL", c.MPesa.ResultURL},
		{"MPESA_TIMEOUT_URL", c.MPesa.TimeoutURL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return transfer.ConfigurationError{Setting: r.setting}
		}
	}
	return nil
}

// RequireWebhookSecret is the gateway's startup check for signed webhooks.
func (c *Config) RequireWebhookSecret() error {
	if strings.TrimSpace(c.Checkout.WebhookSecret) == "" {
		return transfer.ConfigurationError{Setting: "CHECKOUT_WEBHOOK_SECRET"}
	}
	return nil
}
