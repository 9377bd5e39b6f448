// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq scheduler and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	// GetSchedulerMetricsAddr is where the scheduler serves /metrics. Empty disables it.
	GetSchedulerMetricsAddr() string
}

// DispatchConfig provides settings for outbound lead-outcome delivery.
type DispatchConfig interface {
	GetDispatchWebhookTimeout() time.Duration
	GetDispatchSweepInterval() time.Duration
	GetDispatchSweepBatchSize() int
	GetDispatchSweepConcurrency() int
	GetDispatchUserAgent() string
	GetPhoneDefaultRegion() string
}

// GoogleSheetsConfig provides service-account credentials for spreadsheet append targets.
type GoogleSheetsConfig interface {
	GetGoogleSheetsCredentialsFile() string
	GetGoogleSheetsCredentialsJSON() string
	IsGoogleSheetsEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                         string
	HTTPAddr                    string
	DatabaseURL                 string
	MigrationsEnabled           bool
	JWTAccessSecret             string
	CORSAllowAll                bool
	CORSOrigins                 []string
	CORSAllowCreds              bool
	RedisURL                    string
	RedisTLSInsecure            bool
	AsynqQueueName              string
	AsynqConcurrency            int
	SchedulerMetricsAddr        string
	DispatchWebhookTimeout      time.Duration
	DispatchSweepInterval       time.Duration
	DispatchSweepBatchSize      int
	DispatchSweepConcurrency    int
	DispatchUserAgent           string
	PhoneDefaultRegion          string
	GoogleSheetsCredentialsFile string
	GoogleSheetsCredentialsJSON string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool  { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string  { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int   { return c.AsynqConcurrency }
func (c *Config) GetSchedulerMetricsAddr() string {
	return c.SchedulerMetricsAddr
}

// DispatchConfig implementation
func (c *Config) GetDispatchWebhookTimeout() time.Duration { return c.DispatchWebhookTimeout }
func (c *Config) GetDispatchSweepInterval() time.Duration  { return c.DispatchSweepInterval }
func (c *Config) GetDispatchSweepBatchSize() int           { return c.DispatchSweepBatchSize }
func (c *Config) GetDispatchSweepConcurrency() int         { return c.DispatchSweepConcurrency }
func (c *Config) GetDispatchUserAgent() string             { return c.DispatchUserAgent }
func (c *Config) GetPhoneDefaultRegion() string            { return c.PhoneDefaultRegion }

// GoogleSheetsConfig implementation
func (c *Config) GetGoogleSheetsCredentialsFile() string { return c.GoogleSheetsCredentialsFile }
func (c *Config) GetGoogleSheetsCredentialsJSON() string { return c.GoogleSheetsCredentialsJSON }
func (c *Config) IsGoogleSheetsEnabled() bool {
	return c.GoogleSheetsCredentialsFile != "" || c.GoogleSheetsCredentialsJSON != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                         getEnv("APP_ENV", "development"),
		HTTPAddr:                    getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:                 getEnv("DATABASE_URL", ""),
		MigrationsEnabled:           strings.EqualFold(getEnv("MIGRATIONS_ENABLED", "true"), "true"),
		JWTAccessSecret:             getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:                corsAllowAll,
		CORSOrigins:                 corsOrigins,
		CORSAllowCreds:              strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:                    getEnv("REDIS_URL", ""),
		RedisTLSInsecure:            strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:              getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:            mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		SchedulerMetricsAddr:        getEnv("SCHEDULER_METRICS_ADDR", ":9091"),
		DispatchWebhookTimeout:      mustDuration(getEnv("DISPATCH_WEBHOOK_TIMEOUT", "30s")),
		DispatchSweepInterval:       mustDuration(getEnv("DISPATCH_SWEEP_INTERVAL", "1m")),
		DispatchSweepBatchSize:      mustInt(getEnv("DISPATCH_SWEEP_BATCH", "100")),
		DispatchSweepConcurrency:    mustInt(getEnv("DISPATCH_SWEEP_CONCURRENCY", "4")),
		DispatchUserAgent:           getEnv("DISPATCH_USER_AGENT", "lead-dispatch/1.0"),
		PhoneDefaultRegion:          strings.ToUpper(getEnv("PHONE_DEFAULT_REGION", "NL")),
		GoogleSheetsCredentialsFile: getEnv("GOOGLE_SHEETS_CREDENTIALS_FILE", ""),
		GoogleSheetsCredentialsJSON: getEnv("GOOGLE_SHEETS_CREDENTIALS_JSON", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if c.DispatchWebhookTimeout <= 0 {
		return fmt.Errorf("DISPATCH_WEBHOOK_TIMEOUT must be a positive duration")
	}
	if c.DispatchSweepInterval <= 0 {
		return fmt.Errorf("DISPATCH_SWEEP_INTERVAL must be a positive duration")
	}
	if c.DispatchSweepBatchSize < 1 {
		return fmt.Errorf("DISPATCH_SWEEP_BATCH must be at least 1")
	}
	if c.DispatchSweepConcurrency < 1 {
		return fmt.Errorf("DISPATCH_SWEEP_CONCURRENCY must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
