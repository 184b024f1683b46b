// Package config loads the application configuration from YAML and applies
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the trading assistant.
type Config struct {
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
	Alpaca  Alpaca  `yaml:"alpaca"`
	Trading Trading `yaml:"trading"`
	Risk    Risk    `yaml:"risk"`
	Advisor Advisor `yaml:"advisor"`
	Logging Logging `yaml:"logging"`
}

// Server holds the HTTP listener configuration.
type Server struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	WebhookPassphrase string `yaml:"webhook_passphrase"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Trading selects the underlying, its price proxy, and execution mode.
type Trading struct {
	Underlying      string  `yaml:"underlying"`
	OptionRoot      string  `yaml:"option_root"`
	ProxySymbol     string  `yaml:"proxy_symbol"`
	ProxyMultiplier float64 `yaml:"proxy_multiplier"`
	Executor        string  `yaml:"executor"` // "alpaca", "simulator", or "" for advisory-only
	MonitorInterval int     `yaml:"monitor_interval_seconds"`
	AutoExit        *bool   `yaml:"auto_exit_enabled"` // pointer so an explicit false survives defaulting
}

// Risk defines account sizing and loss limits.
type Risk struct {
	AccountSize      float64 `yaml:"account_size"`
	MaxRiskPerTrade  float64 `yaml:"max_risk_per_trade"`
	MaxDailyRisk     float64 `yaml:"max_daily_risk"`
	MaxOpenPositions int     `yaml:"max_open_positions"`
}

// Advisor configures the optional LLM second-opinion layer.
type Advisor struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML file at path, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a usable configuration without a file on disk.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/journal.db"
	}
	if cfg.Alpaca.BaseURL == "" {
		cfg.Alpaca.BaseURL = "https://paper-api.alpaca.markets"
	}
	if cfg.Trading.Underlying == "" {
		cfg.Trading.Underlying = "SPX"
	}
	if cfg.Trading.OptionRoot == "" {
		cfg.Trading.OptionRoot = "SPXW"
	}
	if cfg.Trading.ProxySymbol == "" {
		cfg.Trading.ProxySymbol = "SPY"
	}
	if cfg.Trading.ProxyMultiplier == 0 {
		cfg.Trading.ProxyMultiplier = 10
	}
	if cfg.Trading.MonitorInterval == 0 {
		cfg.Trading.MonitorInterval = 30
	}
	if cfg.Trading.AutoExit == nil {
		on := true
		cfg.Trading.AutoExit = &on
	}
	if cfg.Risk.AccountSize == 0 {
		cfg.Risk.AccountSize = 25000
	}
	if cfg.Risk.MaxRiskPerTrade == 0 {
		cfg.Risk.MaxRiskPerTrade = 0.02
	}
	if cfg.Risk.MaxDailyRisk == 0 {
		cfg.Risk.MaxDailyRisk = 0.06
	}
	if cfg.Risk.MaxOpenPositions == 0 {
		cfg.Risk.MaxOpenPositions = 3
	}
	if cfg.Advisor.Model == "" {
		cfg.Advisor.Model = "gpt-4o-mini"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("WEBHOOK_PASSPHRASE"); v != "" {
		cfg.Server.WebhookPassphrase = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	// Canonical Alpaca SDK names take priority.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Advisor.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.Advisor.Model = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Advisor.BaseURL = v
	}

	if v := os.Getenv("AUTO_EXIT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Trading.AutoExit = &b
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func validate(cfg *Config) error {
	if cfg.Risk.MaxRiskPerTrade < 0 || cfg.Risk.MaxRiskPerTrade > 1 {
		return fmt.Errorf("risk.max_risk_per_trade %v out of range (0, 1]", cfg.Risk.MaxRiskPerTrade)
	}
	if cfg.Risk.MaxDailyRisk < 0 || cfg.Risk.MaxDailyRisk > 1 {
		return fmt.Errorf("risk.max_daily_risk %v out of range (0, 1]", cfg.Risk.MaxDailyRisk)
	}
	switch cfg.Trading.Executor {
	case "", "alpaca", "simulator":
	default:
		return fmt.Errorf("trading.executor %q unknown (want alpaca, simulator, or empty)", cfg.Trading.Executor)
	}
	return nil
}
