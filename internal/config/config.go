// Package config loads application settings from environment variables with
// defaults, and validates them at startup so misconfiguration fails fast.
package config

import (
	"net"
	"strconv"
	"time"

	"github.com/JonMunkholm/csvcrypt/internal/crypt"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Transform TransformConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout bounds reading the request, including the upload body.
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"5m"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware deadline for a request (default: 5m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"5m"`
}

// DatabaseConfig holds the optional run history database.
// Without a URL, history is kept in memory.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// TransformConfig holds batch run settings.
type TransformConfig struct {
	// MaxFileSize is the maximum upload size in bytes (default: 10MB)
	MaxFileSize int64 `env:"TRANSFORM_MAX_FILE_SIZE" default:"10485760"`

	// MaxConcurrent is the maximum number of runs processed at once (default: 5)
	MaxConcurrent int `env:"TRANSFORM_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long a run waits for a slot (default: 30s)
	MaxWaitTime time.Duration `env:"TRANSFORM_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the deadline for a single run (default: 5m)
	Timeout time.Duration `env:"TRANSFORM_TIMEOUT" default:"5m"`

	// Workers is the number of rows transformed concurrently within a run.
	// 1 processes rows strictly one after another.
	Workers int `env:"TRANSFORM_WORKERS" default:"1"`

	// PreviewRows is the number of data rows shown before a run (default: 5)
	PreviewRows int `env:"TRANSFORM_PREVIEW_ROWS" default:"5"`

	// ResultTTL is how long a result stays downloadable (default: 30m)
	ResultTTL time.Duration `env:"TRANSFORM_RESULT_TTL" default:"30m"`

	// SweepInterval is how often expired results are dropped (default: 1m)
	SweepInterval time.Duration `env:"TRANSFORM_SWEEP_INTERVAL" default:"1m"`

	// HistoryRetention is how long run history is kept; 0 keeps it forever
	HistoryRetention time.Duration `env:"TRANSFORM_HISTORY_RETENTION" default:"720h"`

	// DefaultColumn is the target column offered in the console (default: phone)
	DefaultColumn string `env:"TRANSFORM_DEFAULT_COLUMN" default:"phone"`

	// DefaultKey and DefaultIV prefill the console form. Empty values use the
	// built-in defaults.
	DefaultKey string `env:"CIPHER_DEFAULT_KEY"`
	DefaultIV  string `env:"CIPHER_DEFAULT_IV"`
}

// Params returns the default cipher parameters.
func (c *TransformConfig) Params() crypt.Params {
	p := crypt.DefaultParams()
	if c.DefaultKey != "" {
		p.Key = c.DefaultKey
	}
	if c.DefaultIV != "" {
		p.IV = c.DefaultIV
	}
	return p
}

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// TransformLimit is requests per minute for preview and transform (default: 20)
	TransformLimit int `env:"RATE_LIMIT_TRANSFORM" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
