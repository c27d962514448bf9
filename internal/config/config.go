// Package config loads application configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"whale-allocator/internal/decision"
	"whale-allocator/internal/discovery"
	"whale-allocator/internal/lifecycle"
	"whale-allocator/internal/profitability"
	"whale-allocator/internal/scoring"
)

// Run modes.
const (
	ModeLive   = "LIVE"    // block watcher, real intents
	ModeDryRun = "DRY_RUN" // block + mempool watchers, simulated intents
	ModeTest   = "TEST"    // stub/block watcher, simulated intents
)

// Config is the full application configuration.
type Config struct {
	Mode string `yaml:"mode"`

	RPCEndpoint string `yaml:"rpc_endpoint"`
	WSEndpoint  string `yaml:"ws_endpoint"`

	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
	UseMemory     bool   `yaml:"use_memory"`

	ListenAddr string `yaml:"listen_addr"`

	Routers        []string `yaml:"routers"`
	EthPriceUSD    float64  `yaml:"eth_price_usd"`
	PollIntervalMs int      `yaml:"poll_interval_ms"`
	StartBlock     int64    `yaml:"start_block"`
	Shards         int      `yaml:"shards"`

	Discovery discovery.Config `yaml:"discovery"`
	Lifecycle lifecycle.Config `yaml:"lifecycle"`
	Scoring   scoring.Weights  `yaml:"scoring"`
	Sizing    SizingConfig     `yaml:"sizing"`

	Profitability ProfitabilityConfig `yaml:"profitability"`
}

// SizingConfig is the YAML form of the capital parameters.
type SizingConfig struct {
	CapitalUSD       float64 `yaml:"capital_usd"`
	BaseRisk         float64 `yaml:"base_risk"`
	MaxAllocationUSD float64 `yaml:"max_allocation_usd"`
	MinTradeValueUSD float64 `yaml:"min_trade_value_usd"`
}

// ProfitabilityConfig configures the optional bootstrap validator.
type ProfitabilityConfig struct {
	Enabled     bool                   `yaml:"enabled"`
	BaseURL     string                 `yaml:"base_url"`
	APIKey      string                 `yaml:"api_key"`
	Criteria    profitability.Criteria `yaml:"criteria"`
	CacheTTLMin int                    `yaml:"cache_ttl_min"`
}

// CacheTTL returns the verdict cache lifetime.
func (p ProfitabilityConfig) CacheTTL() time.Duration {
	return time.Duration(p.CacheTTLMin) * time.Minute
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Mode:           ModeDryRun,
		ListenAddr:     ":8080",
		EthPriceUSD:    2500,
		PollIntervalMs: 3000,
		Shards:         8,
		Discovery:      discovery.Config{Enabled: true},
		Lifecycle: lifecycle.Config{
			MinTrades:        20,
			MinTokens:        5,
			SweepIntervalMin: 15,
		},
		Scoring: scoring.DefaultWeights(),
		Sizing: SizingConfig{
			CapitalUSD:       10_000,
			BaseRisk:         0.5,
			MaxAllocationUSD: 1_000,
			MinTradeValueUSD: 100,
		},
		Profitability: ProfitabilityConfig{
			Criteria:    profitability.DefaultCriteria(),
			CacheTTLMin: 60,
		},
	}
}

// PollInterval returns the block polling period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// Load reads the config file (if path is non-empty), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secrets and endpoints from the environment, so they
// never have to live in the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("ALLOCATOR_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("ETH_RPC_ENDPOINT"); v != "" {
		c.RPCEndpoint = v
	}
	if v := os.Getenv("ETH_WS_ENDPOINT"); v != "" {
		c.WSEndpoint = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		c.ClickHouseDSN = v
	}
	if v := os.Getenv("PROFITABILITY_API_KEY"); v != "" {
		c.Profitability.APIKey = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	c.Mode = strings.ToUpper(c.Mode)
	switch c.Mode {
	case ModeLive, ModeDryRun, ModeTest:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}

	if c.Mode != ModeTest && c.RPCEndpoint == "" {
		return fmt.Errorf("rpc_endpoint is required in %s mode", c.Mode)
	}
	if c.Mode == ModeDryRun && c.WSEndpoint == "" {
		return fmt.Errorf("ws_endpoint is required in %s mode", c.Mode)
	}
	if !c.UseMemory && c.PostgresDSN == "" {
		return fmt.Errorf("postgres_dsn is required unless use_memory is set")
	}
	if c.EthPriceUSD <= 0 {
		return fmt.Errorf("eth_price_usd must be positive")
	}
	if c.Shards <= 0 {
		return fmt.Errorf("shards must be positive")
	}
	return nil
}

// CapitalConfig converts the YAML sizing block into decision parameters.
func (c *Config) CapitalConfig() decision.CapitalConfig {
	cc := decision.DefaultCapitalConfig()
	if c.Sizing.CapitalUSD > 0 {
		cc.CapitalUSD = decimal.NewFromFloat(c.Sizing.CapitalUSD)
	}
	if c.Sizing.BaseRisk > 0 {
		cc.BaseRisk = decimal.NewFromFloat(c.Sizing.BaseRisk)
	}
	if c.Sizing.MaxAllocationUSD > 0 {
		cc.MaxAllocationUSD = decimal.NewFromFloat(c.Sizing.MaxAllocationUSD)
	}
	if c.Sizing.MinTradeValueUSD > 0 {
		cc.MinTradeValueUSD = decimal.NewFromFloat(c.Sizing.MinTradeValueUSD)
	}
	return cc
}
