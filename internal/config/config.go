package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds all configuration values
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Payment     PaymentConfig
	Planner     PlannerConfig
	Marketplace MarketplaceConfig
	Backends    BackendsConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	Env            string
	Version        string
	PublicURL      string // externally visible base URL, used in payment quotes
	AllowedOrigins []string
}

// DatabaseConfig holds usage-ledger store configuration. SQLite (WAL) is the
// default; a non-empty PostgresURL switches the ledger to postgres.
type DatabaseConfig struct {
	SQLitePath  string
	PostgresURL string
}

// SQLiteDSN returns the sqlite DSN with write-ahead logging enabled.
func (c DatabaseConfig) SQLiteDSN() string {
	return "file:" + c.SQLitePath + "?_journal_mode=WAL&_busy_timeout=5000"
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	Password string
}

// PaymentConfig holds the x402 payment surface configuration.
type PaymentConfig struct {
	PayoutAddress    string
	FacilitatorURL   string
	Network          string
	Asset            string
	TestBypassKey    string
	TrustedPeers     []string // CIDR blocks allowed to use the bypass key
	BackendBypassKey string   // credential sent to native/partner backends
	ReplayTTL        time.Duration
}

// PlannerConfig holds the chain-planner LLM configuration.
type PlannerConfig struct {
	APIKey string
	Model  string
}

// MarketplaceConfig holds the external discovery marketplace configuration.
type MarketplaceConfig struct {
	URL string
}

// BackendsConfig holds the base URL the native capability endpoints are
// templated from.
type BackendsConfig struct {
	BaseURL string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      getEnv("SERVER_PORT", "8402"),
			Env:       getEnv("SERVER_ENV", "development"),
			Version:   getEnv("GATEWAY_VERSION", "1.0.0"),
			PublicURL: getEnv("PUBLIC_URL", "http://localhost:8402"),
			AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{
				"https://pylon.dev",
				"https://www.pylon.dev",
				"http://localhost:3000",
				"http://localhost:8402",
			}),
		},
		Database: DatabaseConfig{
			SQLitePath:  getEnv("SQLITE_PATH", "pylon-usage.db"),
			PostgresURL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Payment: PaymentConfig{
			PayoutAddress:    getEnv("PAYOUT_ADDRESS", ""),
			FacilitatorURL:   getEnv("FACILITATOR_URL", "https://x402.org/facilitator"),
			Network:          getEnv("PAYMENT_NETWORK", "base"),
			Asset:            getEnv("PAYMENT_ASSET", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), // USDC on Base
			TestBypassKey:    getEnv("TEST_BYPASS_KEY", ""),
			TrustedPeers:     getEnvAsSlice("TRUSTED_PEERS", []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8"}),
			BackendBypassKey: getEnv("BACKEND_BYPASS_KEY", ""),
			ReplayTTL:        getEnvAsDuration("REPLAY_TTL", 5*time.Minute),
		},
		Planner: PlannerConfig{
			APIKey: getEnv("PLANNER_API_KEY", ""),
			Model:  getEnv("PLANNER_MODEL", "claude-3-5-haiku-latest"),
		},
		Marketplace: MarketplaceConfig{
			URL: getEnv("MARKETPLACE_URL", "https://x402.org/facilitator/discovery/resources"),
		},
		Backends: BackendsConfig{
			BaseURL: getEnv("BACKENDS_BASE_URL", "http://localhost:9402"),
		},
	}
}

// Validate checks values that would make the gateway misbehave at run time.
func (c *Config) Validate() error {
	if c.Payment.PayoutAddress == "" {
		return fmt.Errorf("PAYOUT_ADDRESS is required")
	}
	if !common.IsHexAddress(c.Payment.PayoutAddress) {
		return fmt.Errorf("PAYOUT_ADDRESS %q is not a valid address", c.Payment.PayoutAddress)
	}
	if c.Payment.FacilitatorURL == "" {
		return fmt.Errorf("FACILITATOR_URL is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
