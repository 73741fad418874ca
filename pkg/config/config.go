package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leasehold/leasehold/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Auth          AuthConfig          `yaml:"auth"`
	Authz         AuthzConfig         `yaml:"authz"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
}

// RedisConfig holds Redis settings. An empty URL keeps the decision cache
// in process memory.
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
	PoolSize   int    `yaml:"pool_size"`
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	JWTIssuer string `yaml:"jwt_issuer"`
}

// AuthzConfig holds permission resolver settings
type AuthzConfig struct {
	// CacheTTL bounds how long a decision may be served from cache.
	// Zero disables caching.
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	CacheSize      int           `yaml:"cache_size"`
	FilterParallel int           `yaml:"filter_parallelism"`
}

// RateLimitConfig bounds request rates per caller. Limits are shared
// through Redis when it is configured.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// JobsConfig holds background job schedules
type JobsConfig struct {
	InvitationCleanupSchedule string        `yaml:"invitation_cleanup_schedule"`
	InvitationTTL             time.Duration `yaml:"invitation_ttl"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel string `yaml:"log_level"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	OTelEnabled        bool          `yaml:"otel_enabled"`
	OTelEndpoint       string        `yaml:"otel_endpoint"`
	OTelServiceName    string        `yaml:"otel_service_name"`
	OTelServiceVersion string        `yaml:"otel_service_version"`
	OTelInsecure       bool          `yaml:"otel_insecure"`
	OTelSampleRatio    float64       `yaml:"otel_sample_ratio"`
	OTelMetricInterval time.Duration `yaml:"otel_metric_interval"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns:    20,
			MinConns:    5,
			Timeout:     5 * time.Second,
			MaxLifetime: 30 * time.Minute,
			MaxIdleTime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			DB:         0,
			MaxRetries: 3,
			PoolSize:   10,
		},
		Auth: AuthConfig{
			JWTIssuer: "leasehold",
		},
		Authz: AuthzConfig{
			CacheTTL:       30 * time.Second,
			CacheSize:      10000,
			FilterParallel: 8,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 600,
			Burst:             50,
		},
		Jobs: JobsConfig{
			InvitationCleanupSchedule: "@hourly",
			InvitationTTL:             7 * 24 * time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "leasehold",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
			OTelMetricInterval: 30 * time.Second,
		},
	}
}

// LoadConfig builds configuration from defaults, the YAML file named by
// LEASEHOLD_CONFIG_FILE if set, and LEASEHOLD_* environment variables, in
// that order of precedence.
func LoadConfig() (*Config, error) {
	return Load(getEnv("LEASEHOLD_CONFIG_FILE", ""))
}

// Load builds configuration using path as the YAML overlay. An empty path
// skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("LEASEHOLD_HOST", c.Server.Host)
	c.Server.Port = getEnv("LEASEHOLD_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("LEASEHOLD_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("LEASEHOLD_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("LEASEHOLD_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("LEASEHOLD_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.URL = getEnv("LEASEHOLD_DATABASE_URL", c.Database.URL)
	c.Database.MaxConns = getEnvInt("LEASEHOLD_DATABASE_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvInt("LEASEHOLD_DATABASE_MIN_CONNS", c.Database.MinConns)
	c.Database.Timeout = getEnvDuration("LEASEHOLD_DATABASE_TIMEOUT", c.Database.Timeout)

	c.Redis.URL = getEnv("LEASEHOLD_REDIS_URL", c.Redis.URL)
	c.Redis.Password = getEnv("LEASEHOLD_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("LEASEHOLD_REDIS_DB", c.Redis.DB)
	c.Redis.MaxRetries = getEnvInt("LEASEHOLD_REDIS_MAX_RETRIES", c.Redis.MaxRetries)
	c.Redis.PoolSize = getEnvInt("LEASEHOLD_REDIS_POOL_SIZE", c.Redis.PoolSize)

	c.Auth.JWTSecret = getEnv("LEASEHOLD_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTIssuer = getEnv("LEASEHOLD_JWT_ISSUER", c.Auth.JWTIssuer)

	c.Authz.CacheTTL = getEnvDuration("LEASEHOLD_AUTHZ_CACHE_TTL", c.Authz.CacheTTL)
	c.Authz.CacheSize = getEnvInt("LEASEHOLD_AUTHZ_CACHE_SIZE", c.Authz.CacheSize)
	c.Authz.FilterParallel = getEnvInt("LEASEHOLD_AUTHZ_FILTER_PARALLELISM", c.Authz.FilterParallel)

	c.RateLimit.Enabled = getEnvBool("LEASEHOLD_RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.RequestsPerMinute = getEnvInt("LEASEHOLD_RATE_LIMIT_RPM", c.RateLimit.RequestsPerMinute)
	c.RateLimit.Burst = getEnvInt("LEASEHOLD_RATE_LIMIT_BURST", c.RateLimit.Burst)

	c.Jobs.InvitationCleanupSchedule = getEnv("LEASEHOLD_INVITATION_CLEANUP_SCHEDULE", c.Jobs.InvitationCleanupSchedule)
	c.Jobs.InvitationTTL = getEnvDuration("LEASEHOLD_INVITATION_TTL", c.Jobs.InvitationTTL)

	c.Observability.LogLevel = getEnv("LEASEHOLD_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.MetricsEnabled = getEnvBool("LEASEHOLD_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.OTelEnabled = getEnvBool("LEASEHOLD_OTEL_ENABLED", c.Observability.OTelEnabled)
	c.Observability.OTelEndpoint = getEnv("LEASEHOLD_OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.OTelServiceName = getEnv("LEASEHOLD_OTEL_SERVICE_NAME", c.Observability.OTelServiceName)
	c.Observability.OTelServiceVersion = getEnv("LEASEHOLD_OTEL_SERVICE_VERSION", c.Observability.OTelServiceVersion)
	c.Observability.OTelInsecure = getEnvBool("LEASEHOLD_OTEL_INSECURE", c.Observability.OTelInsecure)
	c.Observability.OTelSampleRatio = getEnvFloat("LEASEHOLD_OTEL_SAMPLE_RATIO", c.Observability.OTelSampleRatio)
	c.Observability.OTelMetricInterval = getEnvDuration("LEASEHOLD_OTEL_METRIC_INTERVAL", c.Observability.OTelMetricInterval)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database URL is required"))
	}
	if c.Database.MaxConns > 0 && c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, errors.New("database min conns must not exceed max conns"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT secret is required"))
	}
	if c.Authz.CacheTTL < 0 {
		errs = append(errs, errors.New("authz cache TTL must not be negative"))
	}
	if c.Authz.CacheTTL > 0 && c.Authz.CacheSize <= 0 {
		errs = append(errs, errors.New("authz cache size must be positive when caching is enabled"))
	}
	if c.Authz.FilterParallel <= 0 {
		errs = append(errs, errors.New("authz filter parallelism must be positive"))
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("rate limit requests per minute must be positive when enabled"))
	}
	if c.Jobs.InvitationTTL <= 0 {
		errs = append(errs, errors.New("invitation TTL must be positive"))
	}
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			errs = append(errs, errors.New("OpenTelemetry endpoint is required when OTel is enabled"))
		}
		if c.Observability.OTelServiceName == "" {
			errs = append(errs, errors.New("OpenTelemetry service name is required when OTel is enabled"))
		}
	}

	return errors.Join(errs...)
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
