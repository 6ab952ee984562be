// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Cache    CacheConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	IDs      IDConfig
	Schema   SchemaConfig
	Audit    AuditConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080" validate:"min=1,max=65535"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s" validate:"gte=0"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s" validate:"gte=0"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s" validate:"gte=0"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s" validate:"gt=0"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s" validate:"gt=0"`

	// MaxBodyBytes caps JSON request bodies (default: 1MB)
	MaxBodyBytes int64 `env:"SERVER_MAX_BODY_BYTES" default:"1048576" validate:"gt=0"`
}

// StorageConfig selects and tunes the table backend.
type StorageConfig struct {
	// Driver is memory, csv or postgres (default: memory)
	Driver string `env:"STORAGE_DRIVER" default:"memory" validate:"oneof=memory csv postgres"`

	// Dir holds one CSV file per table for the csv driver (default: data)
	Dir string `env:"STORAGE_DIR" default:"data"`

	// DatabaseURL is the PostgreSQL connection string, required for the postgres driver.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20" validate:"gt=0"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"4" validate:"gte=0"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// MaxConcurrentWrites bounds parallel mutations (default: 8)
	MaxConcurrentWrites int `env:"STORAGE_MAX_CONCURRENT_WRITES" default:"8" validate:"gt=0"`

	// WriteWait is how long a mutation waits for a slot (default: 10s)
	WriteWait time.Duration `env:"STORAGE_WRITE_WAIT" default:"10s" validate:"gt=0"`
}

// CacheConfig tunes the materialized-table cache.
type CacheConfig struct {
	// TableTTL is how long a decoded table snapshot is reused; 0 disables it (default: 30s)
	TableTTL time.Duration `env:"CACHE_TABLE_TTL" default:"30s" validate:"gte=0"`

	// TableSize is the cache size in bytes; freecache needs at least 512KB (default: 8MB)
	TableSize int `env:"CACHE_TABLE_SIZE" default:"8388608" validate:"min=524288"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// WriteLimit is requests per minute for mutating endpoints (default: 30)
	WriteLimit int `env:"RATE_LIMIT_WRITES" default:"30"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES" validate:"dive,cidr"`

	// RequireAPIKey enables X-API-Key authentication on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`

	// RequireActor rejects writes without an X-User-Email header (default: false)
	RequireActor bool `env:"REQUIRE_ACTOR" default:"false"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
}

// IDConfig selects the primary-key generator.
type IDConfig struct {
	// Strategy is uuid or ulid (default: uuid)
	Strategy string `env:"ID_STRATEGY" default:"uuid" validate:"oneof=uuid ulid"`
}

// SchemaConfig points at deployment-defined entity schemas.
type SchemaConfig struct {
	// File is a YAML schema file; empty uses the built-in credentialing schemas
	File string `env:"SCHEMA_FILE"`
}

// AuditConfig controls where audit events go.
type AuditConfig struct {
	// Table also appends events to the AuditLog table (default: true)
	Table bool `env:"AUDIT_TABLE" default:"true"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
