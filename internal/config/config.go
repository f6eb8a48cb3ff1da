package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config holds all configuration for the apihub server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Upstream UpstreamConfig
	Ledger   LedgerConfig
	Stats    StatsConfig
	Webhook  WebhookConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// UpstreamConfig describes the OpenAI-compatible provider requests are proxied to.
// An empty APIKey is allowed at startup; each proxied request then fails as not configured.
type UpstreamConfig struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	DefaultModel    string
	PlaygroundModel string
}

type LedgerConfig struct {
	WriteTimeout time.Duration
}

type StatsConfig struct {
	CacheTTL time.Duration
}

type WebhookConfig struct {
	TestTimeout time.Duration
}

// AuthConfig controls management-route protection and API key hashing.
type AuthConfig struct {
	AdminToken  string
	KeyHashCost int
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("APIHUB_PORT", 8080),
			Env:  envString("APIHUB_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Upstream: UpstreamConfig{
			BaseURL:         strings.TrimRight(envString("UPSTREAM_BASE_URL", "https://gptunnel.ru/v1"), "/"),
			APIKey:          os.Getenv("GPTUNNEL_API_KEY"),
			Timeout:         envDuration("UPSTREAM_TIMEOUT", 30*time.Second),
			DefaultModel:    envString("UPSTREAM_DEFAULT_MODEL", "gpt-4o-mini"),
			PlaygroundModel: envString("PLAYGROUND_DEFAULT_MODEL", "gpt-4"),
		},
		Ledger: LedgerConfig{
			WriteTimeout: envDuration("LEDGER_WRITE_TIMEOUT", 3*time.Second),
		},
		Stats: StatsConfig{
			CacheTTL: envDuration("STATS_CACHE_TTL", 30*time.Second),
		},
		Webhook: WebhookConfig{
			TestTimeout: envDuration("WEBHOOK_TEST_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			AdminToken:  os.Getenv("ADMIN_TOKEN"),
			KeyHashCost: envInt("KEY_HASH_COST", bcrypt.DefaultCost),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("APIHUB_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if !strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
		return fmt.Errorf("DATABASE_URL must start with postgres:// or postgresql://")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !strings.HasPrefix(c.Upstream.BaseURL, "http://") && !strings.HasPrefix(c.Upstream.BaseURL, "https://") {
		return fmt.Errorf("UPSTREAM_BASE_URL must start with http:// or https://, got %q", c.Upstream.BaseURL)
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}

	if c.Ledger.WriteTimeout <= 0 {
		return fmt.Errorf("LEDGER_WRITE_TIMEOUT must be positive")
	}
	if c.Stats.CacheTTL < 0 {
		return fmt.Errorf("STATS_CACHE_TTL must not be negative")
	}
	if c.Webhook.TestTimeout <= 0 {
		return fmt.Errorf("WEBHOOK_TEST_TIMEOUT must be positive")
	}

	if c.Auth.KeyHashCost < bcrypt.MinCost || c.Auth.KeyHashCost > bcrypt.MaxCost {
		return fmt.Errorf("KEY_HASH_COST must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, c.Auth.KeyHashCost)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// envDuration accepts Go duration strings ("30s") or bare seconds ("30").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
