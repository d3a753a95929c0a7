// Package config provides configuration structures and validation for the coin ledger
// binaries. Values come from an optional .env file and the process environment and are
// validated once at startup.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration. Each field represents a
// subsystem (HTTP server, databases, event stream, ledger policy) and is validated
// during application startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Redis       RedisConfig
	Outbox      OutboxConfig
	WorkerPool  WorkerPoolConfig
	Ledger      LedgerConfig
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
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
	RequestTimeout  time.Duration // Upper bound for a single ledger mutation
}

// KafkaConfig contains Kafka configuration for the ledger event stream
type KafkaConfig struct {
	Brokers           string
	EventsTopic       string
	NumPartitions     int
	ReplicationFactor int
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	DLQTopic          string
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Minimum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration for the audit archive
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// RedisConfig contains the advisory balance cache configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
}

// OutboxConfig contains outbox relay configuration
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int // Maximum number of workers in the pool
}

// LedgerConfig contains coin ledger policy settings
type LedgerConfig struct {
	RegistrationBonus int64         // Coins granted once on account creation
	StrictReasons     bool          // Reject admin reasons missing from the catalog
	DefaultPageSize   int           // History page size when none is requested
	MaxPageSize       int           // Upper bound for a history page
	BalanceCacheTTL   time.Duration // Lifetime of an advisory cached balance
}

// problems accumulates configuration violations so they are reported together
type problems []string

func (p *problems) check(ok bool, msg string) {
	if !ok {
		*p = append(*p, msg)
	}
}

func (p *problems) required(key, value string) {
	p.check(value != "", key+" is required")
}

func (p *problems) positive(key string, ok bool) {
	p.check(ok, key+" must be greater than 0")
}

// validate checks every section and reports all violations at once
func (c *Config) validate() error {
	var p problems

	p.positive("SERVER_PORT", c.Server.Port > 0)
	p.positive("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout > 0)
	p.positive("SERVER_READ_TIMEOUT", c.Server.ReadTimeout > 0)
	p.positive("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout > 0)
	p.positive("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout > 0)
	p.positive("SERVER_REQUEST_TIMEOUT", c.Server.RequestTimeout > 0)

	p.required("KAFKA_BROKERS", c.Kafka.Brokers)
	p.required("KAFKA_EVENTS_TOPIC", c.Kafka.EventsTopic)
	p.required("KAFKA_CONSUMER_GROUP", c.Kafka.ConsumerGroup)
	p.positive("KAFKA_CONSUMER_MIN_BYTES", c.Kafka.MinBytes > 0)
	p.check(c.Kafka.MaxBytes >= c.Kafka.MinBytes && c.Kafka.MaxBytes > 0,
		"KAFKA_CONSUMER_MAX_BYTES must be greater than 0 and not lower than KAFKA_CONSUMER_MIN_BYTES")
	p.positive("KAFKA_CONSUMER_MAX_WAIT", c.Kafka.MaxWait > 0)
	p.check(c.Kafka.DLQTopic == "" || c.Kafka.DLQTopic != c.Kafka.EventsTopic,
		"KAFKA_DLQ_TOPIC must differ from KAFKA_EVENTS_TOPIC")

	p.required("POSTGRES_URL", c.Postgres.URL)
	p.positive("POSTGRES_MAX_CONNS", c.Postgres.MaxConns > 0)
	p.check(c.Postgres.MinConns > 0 && c.Postgres.MinConns <= c.Postgres.MaxConns,
		"POSTGRES_MIN_CONNS must be greater than 0 and not above POSTGRES_MAX_CONNS")
	p.positive("POSTGRES_MAX_CONN_LIFETIME", c.Postgres.ConnMaxLifetime > 0)
	p.positive("POSTGRES_MAX_CONN_IDLE_TIME", c.Postgres.ConnMaxIdleTime > 0)

	p.required("MONGO_URI", c.MongoDB.URI)
	p.required("MONGO_DATABASE", c.MongoDB.Database)
	p.positive("MONGO_TIMEOUT", c.MongoDB.Timeout > 0)
	p.positive("MONGO_MAX_POOL_SIZE", c.MongoDB.MaxPoolSize > 0)

	p.required("REDIS_ADDR", c.Redis.Addr)
	p.positive("REDIS_TIMEOUT", c.Redis.Timeout > 0)

	p.positive("OUTBOX_POLLING_INTERVAL", c.Outbox.PollingInterval > 0)
	p.positive("OUTBOX_BATCH_SIZE", c.Outbox.BatchSize > 0)
	p.positive("OUTBOX_MAX_RETRY_ATTEMPTS", c.Outbox.MaxRetryAttempts > 0)

	p.positive("WORKER_POOL_SIZE", c.WorkerPool.Size > 0)

	p.check(c.Ledger.RegistrationBonus >= 0, "LEDGER_REGISTRATION_BONUS cannot be negative")
	p.positive("LEDGER_DEFAULT_PAGE_SIZE", c.Ledger.DefaultPageSize > 0)
	p.check(c.Ledger.MaxPageSize >= c.Ledger.DefaultPageSize,
		"LEDGER_MAX_PAGE_SIZE must not be lower than LEDGER_DEFAULT_PAGE_SIZE")
	p.positive("LEDGER_BALANCE_CACHE_TTL", c.Ledger.BalanceCacheTTL > 0)

	if len(p) > 0 {
		return errors.New(strings.Join(p, ", "))
	}
	return nil
}
