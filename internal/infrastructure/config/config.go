package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment  string             `mapstructure:"environment"`
	LogLevel     string             `mapstructure:"log_level"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Erasure      ErasureConfig      `mapstructure:"erasure"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Verification VerificationConfig `mapstructure:"verification"`
	KMS          KMSConfig          `mapstructure:"kms"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	DataMapTTL int    `mapstructure:"data_map_ttl"` // Seconds a cached data map stays valid
}

// ErasureConfig controls grace periods, certificate retention and the
// secrets the compliance engine signs and hashes with.
type ErasureConfig struct {
	DefaultGracePeriodHours  int    `mapstructure:"default_grace_period_hours"`
	MinimumGracePeriodHours  int    `mapstructure:"minimum_grace_period_hours"`
	MaximumGracePeriodHours  int    `mapstructure:"maximum_grace_period_hours"`
	CertificateRetentionDays int    `mapstructure:"certificate_retention_days"`
	CertificateSigningKey    string `mapstructure:"certificate_signing_key"`
	SubjectHashSalt          string `mapstructure:"subject_hash_salt"`
}

type SchedulerConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	PollIntervalSeconds     int  `mapstructure:"poll_interval_seconds"`
	BatchSize               int  `mapstructure:"batch_size"`
	MaxConcurrency          int  `mapstructure:"max_concurrency"`
	MaxRetryAttempts        int  `mapstructure:"max_retry_attempts"`
	RetryDelayBaseSeconds   int  `mapstructure:"retry_delay_base_seconds"`
	UseExponentialBackoff   bool `mapstructure:"use_exponential_backoff"`
	CertificateCleanupHours int  `mapstructure:"certificate_cleanup_hours"`
	HoldSweepMinutes        int  `mapstructure:"hold_sweep_minutes"`
	ShutdownTimeoutSeconds  int  `mapstructure:"shutdown_timeout_seconds"`
}

type VerificationConfig struct {
	VerifyKeyManagementSystem bool `mapstructure:"verify_key_management_system"`
	VerifyAuditLog            bool `mapstructure:"verify_audit_log"`
	VerifyDecryptionFailure   bool `mapstructure:"verify_decryption_failure"`
}

type KMSConfig struct {
	Provider        string `mapstructure:"provider"` // "local"
	BreakerEnabled  bool   `mapstructure:"breaker_enabled"`
	BreakerMaxFails int    `mapstructure:"breaker_max_fails"`
	BreakerTimeout  int    `mapstructure:"breaker_timeout"` // Seconds the breaker stays open
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set defaults
	setDefaults()

	// Read from config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Override specific environment variables
	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Build database URL if not provided
	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	// Validate required fields
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "erasure_service")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", 300)

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.data_map_ttl", 300) // 5 minutes

	// Erasure policy defaults
	viper.SetDefault("erasure.default_grace_period_hours", 168) // 7 days
	viper.SetDefault("erasure.minimum_grace_period_hours", 24)
	viper.SetDefault("erasure.maximum_grace_period_hours", 720) // 30 days
	viper.SetDefault("erasure.certificate_retention_days", 2557) // 7 years

	// Scheduler defaults
	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.poll_interval_seconds", 60)
	viper.SetDefault("scheduler.batch_size", 25)
	viper.SetDefault("scheduler.max_concurrency", 4)
	viper.SetDefault("scheduler.max_retry_attempts", 3)
	viper.SetDefault("scheduler.retry_delay_base_seconds", 300) // 5 minutes
	viper.SetDefault("scheduler.use_exponential_backoff", true)
	viper.SetDefault("scheduler.certificate_cleanup_hours", 24)
	viper.SetDefault("scheduler.hold_sweep_minutes", 60)
	viper.SetDefault("scheduler.shutdown_timeout_seconds", 30)

	// Verification defaults
	viper.SetDefault("verification.verify_key_management_system", true)
	viper.SetDefault("verification.verify_audit_log", true)
	viper.SetDefault("verification.verify_decryption_failure", true)

	// KMS defaults
	viper.SetDefault("kms.provider", "local")
	viper.SetDefault("kms.breaker_enabled", true)
	viper.SetDefault("kms.breaker_max_fails", 5)
	viper.SetDefault("kms.breaker_timeout", 60)
}

func overrideFromEnv() {
	// Database
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		viper.Set("database.url", dbURL)
	}

	// Redis
	if redisURL := os.Getenv("REDIS_HOST"); redisURL != "" {
		viper.Set("redis.host", redisURL)
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		viper.Set("redis.password", redisPassword)
	}

	// Signing and hashing secrets
	if signingKey := os.Getenv("ERASURE_CERTIFICATE_SIGNING_KEY"); signingKey != "" {
		viper.Set("erasure.certificate_signing_key", signingKey)
	}
	if hashSalt := os.Getenv("ERASURE_SUBJECT_HASH_SALT"); hashSalt != "" {
		viper.Set("erasure.subject_hash_salt", hashSalt)
	}

	// Grace period policy
	if gracePeriod := os.Getenv("ERASURE_DEFAULT_GRACE_PERIOD_HOURS"); gracePeriod != "" {
		if h, err := strconv.Atoi(gracePeriod); err == nil {
			viper.Set("erasure.default_grace_period_hours", h)
		}
	}
	if retention := os.Getenv("ERASURE_CERTIFICATE_RETENTION_DAYS"); retention != "" {
		if d, err := strconv.Atoi(retention); err == nil {
			viper.Set("erasure.certificate_retention_days", d)
		}
	}

	// Scheduler
	if enabled := os.Getenv("ERASURE_SCHEDULER_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			viper.Set("scheduler.enabled", b)
		}
	}
	if pollInterval := os.Getenv("ERASURE_SCHEDULER_POLL_INTERVAL_SECONDS"); pollInterval != "" {
		if s, err := strconv.Atoi(pollInterval); err == nil {
			viper.Set("scheduler.poll_interval_seconds", s)
		}
	}
}

func validate(config *Config) error {
	if config.Erasure.CertificateSigningKey == "" {
		return fmt.Errorf("certificate signing key is required")
	}

	if config.Erasure.SubjectHashSalt == "" {
		return fmt.Errorf("subject hash salt is required")
	}

	if config.Database.URL == "" && (config.Database.Host == "" || config.Database.Name == "") {
		return fmt.Errorf("database configuration is incomplete")
	}

	if config.Erasure.MinimumGracePeriodHours > config.Erasure.MaximumGracePeriodHours {
		return fmt.Errorf("minimum grace period exceeds maximum")
	}

	if config.Scheduler.BatchSize <= 0 || config.Scheduler.MaxConcurrency <= 0 {
		return fmt.Errorf("scheduler batch size and concurrency must be positive")
	}

	return nil
}

// DefaultGracePeriod returns the configured default grace period as a duration
func (c *ErasureConfig) DefaultGracePeriod() time.Duration {
	return time.Duration(c.DefaultGracePeriodHours) * time.Hour
}

// MinimumGracePeriod returns the configured floor for grace period clamping
func (c *ErasureConfig) MinimumGracePeriod() time.Duration {
	return time.Duration(c.MinimumGracePeriodHours) * time.Hour
}

// MaximumGracePeriod returns the configured ceiling for grace period clamping
func (c *ErasureConfig) MaximumGracePeriod() time.Duration {
	return time.Duration(c.MaximumGracePeriodHours) * time.Hour
}

// CertificateRetention returns how long issued certificates are retained
func (c *ErasureConfig) CertificateRetention() time.Duration {
	return time.Duration(c.CertificateRetentionDays) * 24 * time.Hour
}
