// Package config loads gateway configuration from an optional YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full gateway configuration.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	Environment string `yaml:"environment"`

	RootDomain       string            `yaml:"root_domain"`
	SubdomainAliases map[string]string `yaml:"subdomain_aliases"`

	UpstreamURL string `yaml:"upstream_url"`
	BackendURL  string `yaml:"backend_url"`

	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Session   SessionConfig   `yaml:"session"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	ExemptRoutes []string `yaml:"exempt_routes"`
}

// StorageConfig selects and configures the durable storage backend.
type StorageConfig struct {
	Backend       string `yaml:"backend"` // memory, redis or postgres
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	MigrationsDir string `yaml:"migrations_dir"`
}

// CacheConfig tunes the TTL cache.
type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// SessionConfig tunes in-memory session bookkeeping.
type SessionConfig struct {
	// IdleTTL is how long a session record may sit untouched before the
	// periodic sweep evicts it from memory. Durable state is unaffected.
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

// LogConfig tunes logging output.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RateLimitConfig tunes the per-IP limiter on authentication endpoints.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Default returns the baseline configuration for local development.
func Default() Config {
	return Config{
		ListenAddr:  ":8080",
		Environment: "development",
		RootDomain:  "wozif.store",
		SubdomainAliases: map[string]string{
			"test": "test-store",
		},
		UpstreamURL: "http://localhost:3000",
		BackendURL:  "http://localhost:9000/api",
		Storage: StorageConfig{
			Backend:       "memory",
			RedisAddr:     "localhost:6379",
			MigrationsDir: "migrations",
		},
		Cache: CacheConfig{
			TTL:           5 * time.Minute,
			SweepInterval: 5 * time.Minute,
		},
		Session: SessionConfig{
			IdleTTL: 30 * time.Minute,
		},
		Log: LogConfig{Level: "info"},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// it exists), then environment overrides. A missing file is not an error; a
// malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults + env only.
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays WOZIF_* environment variables.
func applyEnv(cfg *Config) {
	setString(&cfg.ListenAddr, "WOZIF_LISTEN_ADDR")
	setString(&cfg.Environment, "WOZIF_ENVIRONMENT")
	setString(&cfg.RootDomain, "WOZIF_ROOT_DOMAIN")
	setString(&cfg.UpstreamURL, "WOZIF_UPSTREAM_URL")
	setString(&cfg.BackendURL, "WOZIF_BACKEND_URL")
	setString(&cfg.Storage.Backend, "WOZIF_STORAGE_BACKEND")
	setString(&cfg.Storage.RedisAddr, "WOZIF_REDIS_ADDR")
	setString(&cfg.Storage.RedisPassword, "WOZIF_REDIS_PASSWORD")
	setInt(&cfg.Storage.RedisDB, "WOZIF_REDIS_DB")
	setString(&cfg.Storage.PostgresDSN, "WOZIF_POSTGRES_DSN")
	setString(&cfg.Storage.MigrationsDir, "WOZIF_MIGRATIONS_DIR")
	setDuration(&cfg.Cache.TTL, "WOZIF_CACHE_TTL")
	setDuration(&cfg.Cache.SweepInterval, "WOZIF_CACHE_SWEEP_INTERVAL")
	setDuration(&cfg.Session.IdleTTL, "WOZIF_SESSION_IDLE_TTL")
	setFloat(&cfg.RateLimit.RequestsPerSecond, "WOZIF_RATE_LIMIT_RPS")
	setInt(&cfg.RateLimit.Burst, "WOZIF_RATE_LIMIT_BURST")
	setString(&cfg.Log.Level, "WOZIF_LOG_LEVEL")
	if v := os.Getenv("WOZIF_LOG_JSON"); v != "" {
		cfg.Log.JSON = v == "true" || v == "1"
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Validate rejects configurations the gateway cannot run with.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen_addr is required")
	}
	if c.RootDomain == "" {
		return fmt.Errorf("config: root_domain is required")
	}
	if c.UpstreamURL == "" {
		return fmt.Errorf("config: upstream_url is required")
	}
	if c.BackendURL == "" {
		return fmt.Errorf("config: backend_url is required")
	}
	switch c.Storage.Backend {
	case "memory":
	case "redis":
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("config: redis_addr is required for the redis backend")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("config: cache ttl must be positive")
	}
	if c.Cache.SweepInterval <= 0 {
		return fmt.Errorf("config: cache sweep_interval must be positive")
	}
	if c.Session.IdleTTL <= 0 {
		return fmt.Errorf("config: session idle_ttl must be positive")
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("config: rate_limit requests_per_second must be positive")
	}
	if c.RateLimit.Burst <= 0 {
		return fmt.Errorf("config: rate_limit burst must be positive")
	}
	return nil
}

// IsProduction reports whether the gateway runs with production hardening.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}
