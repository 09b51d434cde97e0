// config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	LedgerModeLocal  = "local"
	LedgerModeRemote = "remote"

	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Server         ServerConfig
	StoreDriver    string
	MigrateOnStart bool
	Database       DatabaseConfig // transaction store
	LedgerDatabase DatabaseConfig // balance store
	Redis          RedisConfig
	Kafka          KafkaConfig
	Ledger         LedgerConfig
	UserService    UserServiceConfig
	Reconciler     ReconcilerConfig
	Billing        BillingConfig
}

type ServerConfig struct {
	Port     string
	GRPCAddr string
	Env      string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// DSN renders the connection string understood by pgxpool.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// LedgerConfig selects where the ledger-of-record lives. In local mode this process
// owns the balance store and serves it to other services; in remote mode it calls
// another instance over HTTP.
type LedgerConfig struct {
	Mode      string
	URL       string
	APIKey    string
	APISecret string
	// Timeout bounds a whole ledger call, retries included. AttemptTimeout
	// bounds a single HTTP attempt within it.
	Timeout         time.Duration
	AttemptTimeout  time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	FinalizeTimeout time.Duration
}

// PerAttemptTimeout returns AttemptTimeout, or Timeout split evenly across
// the attempts when it is unset.
func (c LedgerConfig) PerAttemptTimeout() time.Duration {
	if c.AttemptTimeout > 0 {
		return c.AttemptTimeout
	}
	attempts := c.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	return c.Timeout / time.Duration(attempts)
}

type UserServiceConfig struct {
	URL     string
	Timeout time.Duration
}

type ReconcilerConfig struct {
	Enabled    bool
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
	LockTTL    time.Duration
}

type BillingConfig struct {
	UnitPrice decimal.Decimal
	Currency  string
}

func Load(logger *zap.Logger) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnv("SERVER_PORT", "8030"),
			GRPCAddr: getEnv("GRPC_ADDR", ":8031"),
			Env:      getEnv("ENVIRONMENT", "development"),
		},
		StoreDriver:    getEnv("STORE_DRIVER", StoreDriverPostgres),
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", true),
		Database:       loadDatabase("DB_", "booking_payments"),
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "redis:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			CacheTTL: getEnvDuration("REDIS_CACHE_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Brokers: getEnvSlice("KAFKA_BROKERS", []string{"kafka:9092"}),
			Topic:   getEnv("KAFKA_PAYMENT_TOPIC", "payment-events"),
		},
		Ledger: LedgerConfig{
			Mode:            strings.ToLower(getEnv("LEDGER_MODE", LedgerModeLocal)),
			URL:             strings.TrimRight(getEnv("LEDGER_URL", ""), "/"),
			APIKey:          getEnv("LEDGER_API_KEY", ""),
			APISecret:       getEnv("LEDGER_API_SECRET", ""),
			Timeout:         getEnvDuration("LEDGER_TIMEOUT", 5*time.Second),
			AttemptTimeout:  getEnvDuration("LEDGER_ATTEMPT_TIMEOUT", 0),
			MaxRetries:      getEnvInt("LEDGER_MAX_RETRIES", 3),
			RetryBackoff:    getEnvDuration("LEDGER_RETRY_BACKOFF", 200*time.Millisecond),
			FinalizeTimeout: getEnvDuration("LEDGER_FINALIZE_TIMEOUT", 10*time.Second),
		},
		UserService: UserServiceConfig{
			URL:     strings.TrimRight(getEnv("USER_SERVICE_URL", ""), "/"),
			Timeout: getEnvDuration("USER_SERVICE_TIMEOUT", 3*time.Second),
		},
		Reconciler: ReconcilerConfig{
			Enabled:    getEnvBool("RECONCILER_ENABLED", true),
			Interval:   getEnvDuration("RECONCILER_INTERVAL", 30*time.Second),
			StaleAfter: getEnvDuration("RECONCILER_STALE_AFTER", 2*time.Minute),
			BatchSize:  getEnvInt("RECONCILER_BATCH_SIZE", 100),
			LockTTL:    getEnvDuration("RECONCILER_LOCK_TTL", 30*time.Second),
		},
		Billing: BillingConfig{
			Currency: getEnv("BILLING_CURRENCY", "MXN"),
		},
	}

	// The balance store defaults to the transaction store's server but is
	// addressed separately: the two are never written in one DB transaction.
	cfg.LedgerDatabase = loadDatabase("LEDGER_DB_", cfg.Database.DBName)
	if os.Getenv("LEDGER_DB_HOST") == "" {
		cfg.LedgerDatabase.Host = cfg.Database.Host
		cfg.LedgerDatabase.Port = cfg.Database.Port
		cfg.LedgerDatabase.User = cfg.Database.User
		cfg.LedgerDatabase.Password = cfg.Database.Password
	}

	unitPrice, err := decimal.NewFromString(getEnv("BILLING_UNIT_PRICE", "1.00"))
	if err != nil {
		return nil, fmt.Errorf("invalid BILLING_UNIT_PRICE: %w", err)
	}
	cfg.Billing.UnitPrice = unitPrice

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Server.Env),
		zap.String("store_driver", cfg.StoreDriver),
		zap.String("ledger_mode", cfg.Ledger.Mode),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
		zap.Bool("kafka_enabled", cfg.Kafka.Enabled),
		zap.Bool("reconciler_enabled", cfg.Reconciler.Enabled))

	if cfg.Ledger.Mode == LedgerModeLocal && cfg.Ledger.APISecret == "" {
		logger.Warn("LEDGER_API_SECRET is empty, ledger routes will not be mounted")
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.Ledger.Mode {
	case LedgerModeLocal:
	case LedgerModeRemote:
		if c.Ledger.URL == "" {
			return fmt.Errorf("LEDGER_URL is required when LEDGER_MODE=%s", LedgerModeRemote)
		}
		if c.Ledger.APIKey == "" || c.Ledger.APISecret == "" {
			return fmt.Errorf("LEDGER_API_KEY and LEDGER_API_SECRET are required when LEDGER_MODE=%s", LedgerModeRemote)
		}
	default:
		return fmt.Errorf("unknown LEDGER_MODE %q", c.Ledger.Mode)
	}

	if c.Ledger.Timeout <= 0 {
		return fmt.Errorf("LEDGER_TIMEOUT must be positive")
	}
	if c.Ledger.AttemptTimeout > c.Ledger.Timeout {
		return fmt.Errorf("LEDGER_ATTEMPT_TIMEOUT must not exceed LEDGER_TIMEOUT")
	}
	if c.Billing.UnitPrice.IsNegative() {
		return fmt.Errorf("BILLING_UNIT_PRICE must not be negative")
	}
	return nil
}

func loadDatabase(prefix, defaultName string) DatabaseConfig {
	return DatabaseConfig{
		Host:     getEnv(prefix+"HOST", "localhost"),
		Port:     getEnv(prefix+"PORT", "5432"),
		User:     getEnv(prefix+"USER", "postgres"),
		Password: getEnv(prefix+"PASSWORD", ""),
		DBName:   getEnv(prefix+"NAME", defaultName),
		SSLMode:  getEnv(prefix+"SSL_MODE", "disable"),
		MaxConns: int32(getEnvInt(prefix+"MAX_CONNS", 20)),
		MinConns: int32(getEnvInt(prefix+"MIN_CONNS", 2)),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolVal, err := strconv.ParseBool(value)
		if err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intVal, err := strconv.Atoi(value)
		if err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
