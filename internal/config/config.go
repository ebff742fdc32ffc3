// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"

	catalog "github.com/eugener/libris/internal"
	"github.com/eugener/libris/internal/circuitbreaker"
)

// Config is the top-level libris configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	API       APIConfig       `yaml:"api"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	External  ExternalConfig  `yaml:"external"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig selects and configures the catalog store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`    // "sqlite" or "postgres"
	DSN      string `yaml:"dsn"`       // file path / ":memory:" for sqlite, URL for postgres
	MaxConns int    `yaml:"max_conns"` // postgres pool size
}

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// CacheConfig holds list cache settings.
type CacheConfig struct {
	Backend     string        `yaml:"backend"` // "memory" or "redis"
	MaxSize     int           `yaml:"max_size"`
	TTL         time.Duration `yaml:"ttl"`
	RedisURL    string        `yaml:"redis_url"`
	RedisPrefix string        `yaml:"redis_prefix"`
}

// APIConfig holds API contract settings.
type APIConfig struct {
	DefaultVersion   string           `yaml:"default_version"`
	DefaultPageLimit int              `yaml:"default_page_limit"`
	RateLimits       map[string]int64 `yaml:"rate_limits"` // role -> requests per minute, 0 = unlimited
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	JWTSecret string     `yaml:"jwt_secret"` // empty disables JWT auth
	JWTIssuer string     `yaml:"jwt_issuer"`
	Keys      []KeyEntry `yaml:"keys"`
}

// KeyEntry is an API key seed in the config file.
type KeyEntry struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"` // plaintext, hashed on bootstrap
	Role string `yaml:"role"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// ExternalConfig configures the external document passthrough.
type ExternalConfig struct {
	GitHubBaseURL string                `yaml:"github_base_url"`
	GitHubRepo    string                `yaml:"github_repo"` // owner/name
	GitHubToken   string                `yaml:"github_token"`
	Timeout       time.Duration         `yaml:"timeout"`
	DNSRefresh    time.Duration         `yaml:"dns_refresh"`
	Breaker       circuitbreaker.Config `yaml:"breaker"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// LoadDotEnv loads variables from a .env file into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Defaults returns the configuration used for keys absent from the file.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    "libris.db",
		},
		Cache: CacheConfig{
			Backend:     CacheMemory,
			MaxSize:     10_000,
			TTL:         10 * time.Minute,
			RedisPrefix: "libris:",
		},
		API: APIConfig{
			DefaultVersion:   "1.0",
			DefaultPageLimit: 3,
			RateLimits:       map[string]int64{"user": 600},
		},
		Auth: AuthConfig{
			JWTIssuer: "libris",
		},
		External: ExternalConfig{
			GitHubBaseURL: "https://api.github.com",
			GitHubRepo:    "symfony/symfony-docs",
			Timeout:       10 * time.Second,
			DNSRefresh:    5 * time.Minute,
			Breaker:       circuitbreaker.DefaultConfig(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads and parses a YAML config file, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver))
	}
	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			errs = append(errs, errors.New("cache.redis_url: required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl: must be positive"))
	}
	for role, rpm := range c.API.RateLimits {
		if !catalog.ValidRole(role) {
			errs = append(errs, fmt.Errorf("api.rate_limits: unknown role %q", role))
		}
		if rpm < 0 {
			errs = append(errs, fmt.Errorf("api.rate_limits.%s: must not be negative", role))
		}
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
