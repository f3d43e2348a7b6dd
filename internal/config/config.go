// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/orca-network/explorer/internal/network"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Chain access
	RPCTimeout         time.Duration // per attempt
	RPCRetries         int
	SummaryConcurrency int

	// Networks
	Testnet NetworkSettings
	Ganache NetworkSettings

	// Live feed
	FeedEnabled      bool
	FeedPollInterval time.Duration

	// Security
	RateLimitRPM int
	CORSOrigins  []string

	// Tracing
	OTLPEndpoint string
}

// NetworkSettings are the overridable parts of one network.
type NetworkSettings struct {
	Enabled            bool
	RPCURL             string
	IdentityRegistry   string
	ReputationRegistry string
	ValidationRegistry string
	StartBlock         int64
	LogChunkSize       int64
}

const (
	DefaultPort               = "8080"
	DefaultEnv                = "development"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultRPCTimeout         = 10 * time.Second
	DefaultRPCRetries         = 2
	DefaultSummaryConcurrency = 8
	DefaultFeedPollInterval   = 15 * time.Second
	DefaultRateLimitRPM       = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:          getEnv("LOG_FORMAT", DefaultLogFormat),
		RPCTimeout:         getEnvDuration("RPC_TIMEOUT", DefaultRPCTimeout),
		RPCRetries:         int(getEnvInt64("RPC_RETRIES", DefaultRPCRetries)),
		SummaryConcurrency: int(getEnvInt64("SUMMARY_CONCURRENCY", DefaultSummaryConcurrency)),
		Testnet:            loadNetwork("TESTNET", network.TestnetDefaults()),
		Ganache:            loadNetwork("GANACHE", network.GanacheDefaults()),
		FeedEnabled:        getEnvBool("FEED_ENABLED", true),
		FeedPollInterval:   getEnvDuration("FEED_POLL_INTERVAL", DefaultFeedPollInterval),
		RateLimitRPM:       int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		CORSOrigins:        getEnvList("CORS_ALLOWED_ORIGINS"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadNetwork(prefix string, def network.Config) NetworkSettings {
	return NetworkSettings{
		Enabled:            getEnvBool(prefix+"_ENABLED", true),
		RPCURL:             getEnv(prefix+"_RPC_URL", def.RPCURL),
		IdentityRegistry:   getEnv(prefix+"_IDENTITY_REGISTRY", def.IdentityRegistry.Hex()),
		ReputationRegistry: getEnv(prefix+"_REPUTATION_REGISTRY", def.ReputationRegistry.Hex()),
		ValidationRegistry: getEnv(prefix+"_VALIDATION_REGISTRY", def.ValidationRegistry.Hex()),
		StartBlock:         getEnvInt64(prefix+"_START_BLOCK", 0),
		LogChunkSize:       getEnvInt64(prefix+"_LOG_CHUNK_SIZE", 0),
	}
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("RPC_TIMEOUT must be positive")
	}
	if c.RPCRetries < 1 {
		return fmt.Errorf("RPC_RETRIES must be at least 1")
	}
	if c.SummaryConcurrency < 1 {
		return fmt.Errorf("SUMMARY_CONCURRENCY must be at least 1")
	}
	if c.FeedEnabled && c.FeedPollInterval <= 0 {
		return fmt.Errorf("FEED_POLL_INTERVAL must be positive")
	}

	if !c.Testnet.Enabled && !c.Ganache.Enabled {
		return fmt.Errorf("at least one of TESTNET_ENABLED and GANACHE_ENABLED must be true")
	}

	for name, n := range map[string]NetworkSettings{"TESTNET": c.Testnet, "GANACHE": c.Ganache} {
		if !n.Enabled {
			continue
		}
		if n.StartBlock < 0 {
			return fmt.Errorf("%s_START_BLOCK must not be negative, got %d", name, n.StartBlock)
		}
		if n.LogChunkSize < 0 {
			return fmt.Errorf("%s_LOG_CHUNK_SIZE must not be negative, got %d", name, n.LogChunkSize)
		}
		if n.RPCURL == "" {
			return fmt.Errorf("%s_RPC_URL is required", name)
		}
		for field, addr := range map[string]string{
			"IDENTITY_REGISTRY":   n.IdentityRegistry,
			"REPUTATION_REGISTRY": n.ReputationRegistry,
			"VALIDATION_REGISTRY": n.ValidationRegistry,
		} {
			if !common.IsHexAddress(addr) {
				return fmt.Errorf("%s_%s must be a hex address, got %q", name, field, addr)
			}
		}
	}

	return nil
}

// Networks returns the enabled networks, testnet first.
func (c *Config) Networks() []network.Config {
	var out []network.Config
	if c.Testnet.Enabled {
		out = append(out, c.Testnet.apply(network.TestnetDefaults()))
	}
	if c.Ganache.Enabled {
		out = append(out, c.Ganache.apply(network.GanacheDefaults()))
	}
	return out
}

func (n NetworkSettings) apply(base network.Config) network.Config {
	base.RPCURL = n.RPCURL
	base.IdentityRegistry = common.HexToAddress(n.IdentityRegistry)
	base.ReputationRegistry = common.HexToAddress(n.ReputationRegistry)
	base.ValidationRegistry = common.HexToAddress(n.ValidationRegistry)
	base.StartBlock = uint64(n.StartBlock)
	base.LogChunkSize = uint64(n.LogChunkSize)
	return base
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
