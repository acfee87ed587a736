// Package config provides configuration management for the trading application.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Storage StorageConfig `mapstructure:"storage"`
	Gate    GateConfig    `mapstructure:"gate"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Agents  []AgentConfig `mapstructure:"agents"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
	Path    string `mapstructure:"path"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // "sqlite" or "file"
	Path    string `mapstructure:"path"`
}

// GateConfig configures the global execution admission gate.
type GateConfig struct {
	MaxConcurrent  int     `mapstructure:"max_concurrent"`
	TimeoutSeconds float64 `mapstructure:"timeout_seconds"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// AgentConfig holds the immutable per-run configuration of one agent.
type AgentConfig struct {
	ID       string         `mapstructure:"id"`
	Name     string         `mapstructure:"name"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Strategy StrategyConfig `mapstructure:"strategy"`
}

// ExchangeConfig holds exchange collaborator configuration.
type ExchangeConfig struct {
	Type           string  `mapstructure:"type"` // "paper" ships in-repo
	APIKey         string  `mapstructure:"api_key"`
	APISecret      string  `mapstructure:"api_secret"`
	Testnet        bool    `mapstructure:"testnet"`
	InitialBalance float64 `mapstructure:"initial_balance"`
}

// LLMConfig holds decision-model configuration.
type LLMConfig struct {
	Provider      string `mapstructure:"provider"`
	Model         string `mapstructure:"model"`
	APIKey        string `mapstructure:"api_key"`
	BaseURL       string `mapstructure:"base_url"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
}

// StrategyConfig holds the per-agent strategy settings.
type StrategyConfig struct {
	ScanIntervalMinutes int               `mapstructure:"scan_interval_minutes"`
	DefaultCoins        []string          `mapstructure:"default_coins"`
	MaxAccountUsagePct  float64           `mapstructure:"max_account_usage_pct"`
	CustomPrompts       map[string]string `mapstructure:"custom_prompts"`
	Risk                RiskConfig        `mapstructure:"risk_management"`
	AdvancedOrders      AdvancedOrders    `mapstructure:"advanced_orders"`
}

// RiskConfig holds the multi-layered risk bounds enforced by the sizer.
type RiskConfig struct {
	MaxPositions                   int     `mapstructure:"max_positions"`
	MaxLeverage                    int     `mapstructure:"max_leverage"`
	MaxPositionSizePct             float64 `mapstructure:"max_position_size_pct"`
	MaxTotalPositionPct            float64 `mapstructure:"max_total_position_pct"`
	MaxSingleTradePct              float64 `mapstructure:"max_single_trade_pct"`
	MaxSingleTradeWithPositionsPct float64 `mapstructure:"max_single_trade_with_positions_pct"`
	StopLossPct                    float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct                  float64 `mapstructure:"take_profit_pct"`
	MinQuantity                    float64 `mapstructure:"min_quantity"`
	FormattingSafetyFactor         float64 `mapstructure:"formatting_safety_factor"`
}

// AdvancedOrders toggles protective order placement after an open.
// Take-profit and stop-loss are each independently toggled.
type AdvancedOrders struct {
	EnableTakeProfit bool    `mapstructure:"enable_take_profit"`
	TakeProfitPct    float64 `mapstructure:"take_profit_pct"`
	EnableStopLoss   bool    `mapstructure:"enable_stop_loss"`
	StopLossPct      float64 `mapstructure:"stop_loss_pct"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/perp-trader"
	}
	return filepath.Join(home, ".config", "perp-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyEnvOverrides(cfg)
	applyAgentDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file", true)
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.path", filepath.Join(DefaultConfigDir(), "data"))
	v.SetDefault("gate.max_concurrent", 1)
	v.SetDefault("gate.timeout_seconds", 300)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9100")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		for i := range cfg.Agents {
			if cfg.Agents[i].LLM.APIKey == "" {
				cfg.Agents[i].LLM.APIKey = v
			}
		}
	}
	if v := os.Getenv("TRADER_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("TRADER_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
}

func applyAgentDefaults(cfg *Config) {
	for i := range cfg.Agents {
		a := &cfg.Agents[i]
		if a.Strategy.ScanIntervalMinutes <= 0 {
			a.Strategy.ScanIntervalMinutes = 3
		}
		if a.Strategy.MaxAccountUsagePct <= 0 {
			a.Strategy.MaxAccountUsagePct = 100
		}
		a.Strategy.Risk = a.Strategy.Risk.WithDefaults()
		if a.LLM.Provider == "" {
			a.LLM.Provider = "openai"
		}
		if a.LLM.MaxConcurrent <= 0 {
			a.LLM.MaxConcurrent = 1
		}
		if a.Exchange.Type == "" {
			a.Exchange.Type = "paper"
		}
	}
}

// WithDefaults fills in the documented default values for any risk bound
// left unset.
func (r RiskConfig) WithDefaults() RiskConfig {
	if r.MaxTotalPositionPct <= 0 {
		r.MaxTotalPositionPct = 80
	}
	if r.MaxSingleTradePct <= 0 {
		r.MaxSingleTradePct = 50
	}
	if r.MaxSingleTradeWithPositionsPct <= 0 {
		r.MaxSingleTradeWithPositionsPct = 30
	}
	if r.MinQuantity <= 0 {
		r.MinQuantity = 0.001
	}
	if r.FormattingSafetyFactor <= 0 {
		r.FormattingSafetyFactor = 0.95
	}
	if r.MaxLeverage <= 0 {
		r.MaxLeverage = 10
	}
	return r
}

// AgentByID returns the configuration for one agent.
func (c *Config) AgentByID(id string) (AgentConfig, bool) {
	for _, a := range c.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentConfig{}, false
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Storage.Backend != "sqlite" && c.Storage.Backend != "file" {
		return fmt.Errorf("invalid storage backend: %s (must be 'sqlite' or 'file')", c.Storage.Backend)
	}
	if c.Gate.MaxConcurrent < 1 {
		return fmt.Errorf("gate.max_concurrent must be at least 1")
	}
	if c.Gate.TimeoutSeconds <= 0 {
		return fmt.Errorf("gate.timeout_seconds must be positive")
	}

	seen := make(map[string]bool)
	for _, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent id must not be empty")
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent id: %s", a.ID)
		}
		seen[a.ID] = true

		r := a.Strategy.Risk
		for name, pct := range map[string]float64{
			"max_total_position_pct":              r.MaxTotalPositionPct,
			"max_single_trade_pct":                r.MaxSingleTradePct,
			"max_single_trade_with_positions_pct": r.MaxSingleTradeWithPositionsPct,
		} {
			if pct <= 0 || pct > 100 {
				return fmt.Errorf("agent %s: %s must be in (0, 100]", a.ID, name)
			}
		}
		if r.FormattingSafetyFactor <= 0 || r.FormattingSafetyFactor > 1 {
			return fmt.Errorf("agent %s: formatting_safety_factor must be in (0, 1]", a.ID)
		}
		if len(a.Strategy.DefaultCoins) == 0 {
			return fmt.Errorf("agent %s: default_coins must not be empty", a.ID)
		}
	}

	return nil
}
