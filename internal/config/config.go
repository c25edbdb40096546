// Package config provides configuration management for the idempotency
// shield service. Configuration is loaded from environment variables with
// sensible defaults. Supports multiple environments: dev, sandbox, audit, prod.
// In dev/test: loads .env files via godotenv
// In any environment: loads a YAML file when CONFIG_FILE is set
// A YAML file that loads is used on its own: environment variables and
// defaults are not merged over it.
package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// Environment constants
	EnvDevelopment = "dev"
	EnvSandbox     = "sandbox"
	EnvAudit       = "audit"
	EnvProduction  = "prod"
)

// Config holds all configuration for the idempotency shield service.
type Config struct {
	AppEnv      string            `mapstructure:"APP_ENV"`
	Server      ServerConfig      `mapstructure:",squash"`
	Database    DatabaseConfig    `mapstructure:",squash"`
	Redis       RedisConfig       `mapstructure:",squash"`
	Idempotency IdempotencyConfig `mapstructure:",squash"`
	Tracing     TracingConfig     `mapstructure:",squash"`
	Vault       VaultConfig       `mapstructure:",squash"`
	RateLimit   RateLimitConfig   `mapstructure:",squash"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `mapstructure:"SERVER_PORT"`
	Host string `mapstructure:"SERVER_HOST"`
	// AdminPort is read from ADMIN_PORT but not used by the server: the
	// admin routes are served on the main router.
	AdminPort string `mapstructure:"ADMIN_PORT"`
	// AdminToken guards the admin endpoints via a shared-secret header
	// instead of a full auth stack, since this service has no user identity
	// of its own to authenticate against.
	AdminToken string `mapstructure:"ADMIN_TOKEN"`
}

// DatabaseConfig holds PostgreSQL connection configuration, used only when
// Idempotency.Backend is "postgres".
type DatabaseConfig struct {
	Host     string `mapstructure:"DB_HOST"`
	Port     string `mapstructure:"DB_PORT"`
	User     string `mapstructure:"DB_USER"`
	Password string `mapstructure:"DB_PASSWORD"`
	Name     string `mapstructure:"DB_NAME"`
	SSLMode  string `mapstructure:"DB_SSLMODE"`
}

// RedisConfig holds Redis connection configuration, used when
// Idempotency.Backend is "redis" and/or for the event stream publisher.
type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`
	Port     string `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
}

// IdempotencyConfig holds the process-wide idempotency middleware settings
// from the external-interfaces table: which Store backend to realize, the
// header carrying the key, TTLs, body-size cap, and failure mode.
type IdempotencyConfig struct {
	// Backend selects the Store realization: "memory", "redis", or "postgres".
	Backend string `mapstructure:"IDEMPOTENCY_BACKEND"`

	// HeaderName is the HTTP header carrying the idempotency key.
	HeaderName string `mapstructure:"IDEMPOTENCY_HEADER_NAME"`

	// DefaultExpiryMinutes is the record TTL used when an endpoint's policy
	// doesn't override it.
	DefaultExpiryMinutes int `mapstructure:"IDEMPOTENCY_DEFAULT_EXPIRY_MINUTES"`

	// LockTTL bounds how long a stuck lock can wedge a key.
	LockTTL time.Duration `mapstructure:"IDEMPOTENCY_LOCK_TTL"`

	// WaitBudget is how long a contender retries lock acquisition before
	// giving up.
	WaitBudget time.Duration `mapstructure:"IDEMPOTENCY_WAIT_BUDGET"`

	// MaxBodySizeBytes upper-bounds the hashable request body.
	MaxBodySizeBytes int64 `mapstructure:"IDEMPOTENCY_MAX_BODY_SIZE_BYTES"`

	// FailOpen selects FailureMode: false (default) is fail-safe, true
	// degrades to "no idempotency guarantee" on store failure.
	FailOpen bool `mapstructure:"IDEMPOTENCY_FAIL_OPEN"`

	// StorageRetryCount / StorageRetryDelay configure the store-call retry
	// wrapper shared by every Store backend.
	StorageRetryCount int           `mapstructure:"IDEMPOTENCY_STORAGE_RETRY_COUNT"`
	StorageRetryDelay time.Duration `mapstructure:"IDEMPOTENCY_STORAGE_RETRY_DELAY"`

	// SweepInterval controls how often the background expiry sweeper runs
	// against a persistent backend. Zero disables the sweeper.
	SweepInterval time.Duration `mapstructure:"IDEMPOTENCY_SWEEP_INTERVAL"`
}

// RateLimitConfig holds the sliding-window rate limiter settings guarding the
// demo endpoints (/pay, /throw, /ping) against abusive retry storms, using
// the same Redis instance as the event stream when the idempotency backend
// doesn't already provide one.
type RateLimitConfig struct {
	// Enabled turns on RateLimitMiddleware for the demo endpoints.
	Enabled bool `mapstructure:"RATE_LIMIT_ENABLED"`

	// RequestsPerMinute caps requests per client IP within a one-minute
	// sliding window.
	RequestsPerMinute int `mapstructure:"RATE_LIMIT_REQUESTS_PER_MINUTE"`
}

// TracingConfig holds OpenTelemetry tracing configuration.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"OTEL_ENABLED"`
	OTLPEndpoint string  `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string  `mapstructure:"OTEL_SERVICE_NAME"`
	SampleRate   float64 `mapstructure:"OTEL_SAMPLE_RATE"`
}

// VaultConfig holds HashiCorp Vault configuration for secret management.
type VaultConfig struct {
	// Enabled determines if Vault integration is active.
	// In dev, typically false (use ENV vars).
	// In prod, should be true.
	Enabled bool `mapstructure:"VAULT_ENABLED"`

	// Addr is the Vault server address.
	Addr string `mapstructure:"VAULT_ADDR"`

	// Token is the Vault authentication token.
	Token string `mapstructure:"VAULT_TOKEN"`

	// SecretPath is the base path for secrets in Vault.
	SecretPath string `mapstructure:"VAULT_SECRET_PATH"`
}

// Load reads configuration from environment variables.
// Returns error if required variables are missing or invalid.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("ADMIN_PORT", "8081")
	v.SetDefault("ADMIN_TOKEN", "")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("IDEMPOTENCY_BACKEND", "memory")
	v.SetDefault("IDEMPOTENCY_HEADER_NAME", "Idempotency-Key")
	v.SetDefault("IDEMPOTENCY_DEFAULT_EXPIRY_MINUTES", 60)
	v.SetDefault("IDEMPOTENCY_LOCK_TTL", "30s")
	v.SetDefault("IDEMPOTENCY_WAIT_BUDGET", "0s")
	v.SetDefault("IDEMPOTENCY_MAX_BODY_SIZE_BYTES", 10*1024*1024)
	v.SetDefault("IDEMPOTENCY_FAIL_OPEN", false)
	v.SetDefault("IDEMPOTENCY_STORAGE_RETRY_COUNT", 0)
	v.SetDefault("IDEMPOTENCY_STORAGE_RETRY_DELAY", "200ms")
	v.SetDefault("IDEMPOTENCY_SWEEP_INTERVAL", "1h")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_SERVICE_NAME", "idempotency-shield")
	v.SetDefault("OTEL_SAMPLE_RATE", 1.0)
	v.SetDefault("VAULT_ENABLED", false)
	v.SetDefault("VAULT_ADDR", "http://localhost:8200")
	v.SetDefault("VAULT_SECRET_PATH", "secret/data/idempotency-shield")
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_REQUESTS_PER_MINUTE", 120)

	// Bind environment variables explicitly
	v.AutomaticEnv()

	envVars := []string{
		"APP_ENV",
		"SERVER_PORT", "SERVER_HOST", "ADMIN_PORT", "ADMIN_TOKEN",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
		"REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB",
		"IDEMPOTENCY_BACKEND", "IDEMPOTENCY_HEADER_NAME", "IDEMPOTENCY_DEFAULT_EXPIRY_MINUTES",
		"IDEMPOTENCY_LOCK_TTL", "IDEMPOTENCY_WAIT_BUDGET", "IDEMPOTENCY_MAX_BODY_SIZE_BYTES",
		"IDEMPOTENCY_FAIL_OPEN", "IDEMPOTENCY_STORAGE_RETRY_COUNT", "IDEMPOTENCY_STORAGE_RETRY_DELAY",
		"IDEMPOTENCY_SWEEP_INTERVAL",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SERVICE_NAME", "OTEL_SAMPLE_RATE",
		"VAULT_ENABLED", "VAULT_ADDR", "VAULT_TOKEN", "VAULT_SECRET_PATH",
		"RATE_LIMIT_ENABLED", "RATE_LIMIT_REQUESTS_PER_MINUTE",
	}
	for _, env := range envVars {
		_ = v.BindEnv(env)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadConfig loads configuration with support for .env files and YAML.
//
// In dev/test environments:
//   - Attempts to load .env.{env} file (e.g., .env.dev)
//   - Falls back to environment variables
//
// In every environment, if CONFIG_FILE is set:
//   - The YAML file is loaded and, on success, returned as-is; environment
//     variables and defaults are not applied on top of it
//   - If it fails to load, environment variables and defaults are used
//
// Supports DATABASE_URL and REDIS_URL for simplified configuration.
func LoadConfig(env string) (*Config, error) {
	if env == EnvDevelopment || env == "test" {
		envFile := fmt.Sprintf(".env.%s", env)
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to load %s: %v\n", envFile, err)
			}
		}
		_ = godotenv.Load()
	}

	configFile := os.Getenv("CONFIG_FILE")
	if configFile != "" {
		cfg, err := loadFromYAML(configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load YAML config from %s, falling back to env vars\n", configFile)
		} else {
			return cfg, nil
		}
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		parsedURL, err := url.Parse(dbURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL format: %w", err)
		}

		if parsedURL.User != nil {
			_ = os.Setenv("DB_USER", parsedURL.User.Username())
			if password, ok := parsedURL.User.Password(); ok {
				_ = os.Setenv("DB_PASSWORD", password)
			}
		}
		if parsedURL.Hostname() != "" {
			_ = os.Setenv("DB_HOST", parsedURL.Hostname())
		}
		if parsedURL.Port() != "" {
			_ = os.Setenv("DB_PORT", parsedURL.Port())
		}
		if len(parsedURL.Path) > 1 {
			_ = os.Setenv("DB_NAME", parsedURL.Path[1:])
		}
		if sslmode := parsedURL.Query().Get("sslmode"); sslmode != "" {
			_ = os.Setenv("DB_SSLMODE", sslmode)
		}
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		parsedURL, err := url.Parse(redisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL format: %w", err)
		}

		if parsedURL.Hostname() != "" {
			_ = os.Setenv("REDIS_HOST", parsedURL.Hostname())
		}
		if parsedURL.Port() != "" {
			_ = os.Setenv("REDIS_PORT", parsedURL.Port())
		}
		if parsedURL.User != nil {
			if password, ok := parsedURL.User.Password(); ok {
				_ = os.Setenv("REDIS_PASSWORD", password)
			}
		}
		if len(parsedURL.Path) > 1 {
			if db, err := strconv.Atoi(parsedURL.Path[1:]); err == nil {
				_ = os.Setenv("REDIS_DB", strconv.Itoa(db))
			}
		}
	}

	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if env == EnvDevelopment || env == "test" {
		if err := validateVaultPlaceholders(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadFromYAML loads configuration from a YAML file.
func loadFromYAML(filename string) (*Config, error) {
	if strings.Contains(filename, "..") {
		return nil, fmt.Errorf("invalid config file path: path traversal detected")
	}

	data, err := os.ReadFile(filename) // #nosec G304 -- filename is from CONFIG_FILE env var, validated above
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if cfg.AppEnv != "" {
		_ = os.Setenv("APP_ENV", cfg.AppEnv)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateVaultPlaceholders validates that Vault placeholders follow the
// expected format: vault://secret/path/to/key.
func validateVaultPlaceholders(cfg *Config) error {
	checkPlaceholder := func(value, fieldName string) error {
		if !strings.HasPrefix(value, "vault://") {
			return nil
		}

		parts := strings.Split(value, "://")
		if len(parts) != 2 || parts[1] == "" {
			return fmt.Errorf("%s has invalid Vault placeholder format (expected vault://secret/path/to/key)", fieldName)
		}

		return nil
	}

	if err := checkPlaceholder(cfg.Database.Password, "DB_PASSWORD"); err != nil {
		return err
	}
	if err := checkPlaceholder(cfg.Redis.Password, "REDIS_PASSWORD"); err != nil {
		return err
	}

	return nil
}

// Validate checks if the configuration is valid.
func Validate(cfg *Config) error {
	validEnvs := map[string]bool{
		EnvDevelopment: true,
		EnvSandbox:     true,
		EnvAudit:       true,
		EnvProduction:  true,
		"test":         true,
	}
	if !validEnvs[cfg.AppEnv] {
		return fmt.Errorf("invalid environment '%s': must be one of [dev, sandbox, audit, prod, test]", cfg.AppEnv)
	}

	switch cfg.Idempotency.Backend {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("invalid IDEMPOTENCY_BACKEND '%s': must be one of [memory, redis, postgres]", cfg.Idempotency.Backend)
	}

	if cfg.Idempotency.Backend == "postgres" {
		if cfg.Database.Host == "" {
			return fmt.Errorf("database host is required when IDEMPOTENCY_BACKEND=postgres")
		}
		if cfg.Database.Port == "" {
			return fmt.Errorf("database port is required when IDEMPOTENCY_BACKEND=postgres")
		}
		if cfg.Database.User == "" {
			return fmt.Errorf("database user is required when IDEMPOTENCY_BACKEND=postgres")
		}
		if cfg.Database.Name == "" {
			return fmt.Errorf("database name is required when IDEMPOTENCY_BACKEND=postgres")
		}
	}

	if strings.TrimSpace(cfg.Idempotency.HeaderName) == "" {
		return fmt.Errorf("IDEMPOTENCY_HEADER_NAME must not be empty")
	}
	if cfg.Idempotency.DefaultExpiryMinutes <= 0 {
		return fmt.Errorf("IDEMPOTENCY_DEFAULT_EXPIRY_MINUTES must be positive")
	}
	if cfg.Idempotency.LockTTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_LOCK_TTL must be positive")
	}
	if cfg.Idempotency.MaxBodySizeBytes <= 0 {
		return fmt.Errorf("IDEMPOTENCY_MAX_BODY_SIZE_BYTES must be positive")
	}

	return nil
}

// GetDatabaseURL returns the PostgreSQL connection string.
func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address in host:port format.
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// IsDevelopment returns true if running in development environment.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// IsSandbox returns true if running in sandbox environment.
func (c *Config) IsSandbox() bool {
	return c.AppEnv == EnvSandbox
}

// IsAudit returns true if running in audit environment.
func (c *Config) IsAudit() bool {
	return c.AppEnv == EnvAudit
}

// LoadSecretsFromVault loads sensitive configuration from HashiCorp Vault.
// This method should be called after Load() to override ENV-based secrets
// with Vault values.
//
// Secrets loaded from Vault:
//   - DB_PASSWORD: PostgreSQL password
//   - REDIS_PASSWORD: Redis password
//
// In development (Vault disabled): Falls back to environment variables.
// In production (Vault enabled): Fetches from Vault, fails if unavailable.
func (c *Config) LoadSecretsFromVault(ctx context.Context, vaultClient interface{}) error {
	// Type assertion to avoid circular import. The vaultClient should
	// implement GetSecret(ctx, path, key, envFallback) (string, error).
	type SecretGetter interface {
		GetSecret(ctx context.Context, path, key, envFallback string) (string, error)
		Enabled() bool
	}

	if vaultClient == nil {
		return nil
	}

	client, ok := vaultClient.(SecretGetter)
	if !ok {
		return fmt.Errorf("invalid vault client type")
	}

	if !client.Enabled() {
		return nil
	}

	basePath := c.Vault.SecretPath

	if c.Idempotency.Backend == "postgres" {
		dbPassword, err := client.GetSecret(ctx, basePath+"/database", "password", "DB_PASSWORD")
		if err != nil {
			return fmt.Errorf("failed to load database password from vault: %w", err)
		}
		c.Database.Password = dbPassword
	}

	redisPassword, err := client.GetSecret(ctx, basePath+"/redis", "password", "REDIS_PASSWORD")
	if err == nil {
		c.Redis.Password = redisPassword
	}

	if err := Validate(c); err != nil {
		return fmt.Errorf("config validation failed after loading vault secrets: %w", err)
	}

	return nil
}
