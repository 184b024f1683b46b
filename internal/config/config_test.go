package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Trading.ProxySymbol != "SPY" || cfg.Trading.ProxyMultiplier != 10 {
		t.Errorf("proxy defaults = %s x%v, want SPY x10", cfg.Trading.ProxySymbol, cfg.Trading.ProxyMultiplier)
	}
	if cfg.Trading.OptionRoot != "SPXW" {
		t.Errorf("OptionRoot = %q, want SPXW", cfg.Trading.OptionRoot)
	}
	if cfg.Risk.MaxRiskPerTrade != 0.02 || cfg.Risk.MaxOpenPositions != 3 {
		t.Errorf("risk defaults = %+v", cfg.Risk)
	}
	if cfg.Trading.MonitorInterval != 30 {
		t.Errorf("MonitorInterval = %d, want 30", cfg.Trading.MonitorInterval)
	}
	if cfg.Trading.AutoExit == nil || !*cfg.Trading.AutoExit {
		t.Errorf("AutoExit default = %v, want true", cfg.Trading.AutoExit)
	}
}

func TestAutoExitCanBeDisabled(t *testing.T) {
	cfg, err := Load(writeConfig(t, "trading:\n  auto_exit_enabled: false\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Trading.AutoExit == nil || *cfg.Trading.AutoExit {
		t.Errorf("AutoExit = %v, want explicit false to survive defaults", cfg.Trading.AutoExit)
	}
}

func TestLoadFullFile(t *testing.T) {
	body := `
server:
  port: 8090
  webhook_passphrase: hunter2
storage:
  data_dir: /tmp/stonks
trading:
  executor: simulator
  proxy_multiplier: 10
risk:
  account_size: 50000
  max_risk_per_trade: 0.01
advisor:
  model: gpt-4o
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.WebhookPassphrase != "hunter2" {
		t.Errorf("WebhookPassphrase = %q", cfg.Server.WebhookPassphrase)
	}
	if cfg.Trading.Executor != "simulator" {
		t.Errorf("Executor = %q, want simulator", cfg.Trading.Executor)
	}
	if cfg.Risk.AccountSize != 50000 || cfg.Risk.MaxRiskPerTrade != 0.01 {
		t.Errorf("risk = %+v", cfg.Risk)
	}
	if cfg.Advisor.Model != "gpt-4o" {
		t.Errorf("Model = %q, want gpt-4o", cfg.Advisor.Model)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "from-env")
	t.Setenv("APCA_API_KEY_ID", "canonical")
	t.Setenv("WEBHOOK_PASSPHRASE", "secret")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "alpaca:\n  api_key: from-file\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Alpaca.APIKey != "canonical" {
		t.Errorf("APIKey = %q, want canonical SDK name to win", cfg.Alpaca.APIKey)
	}
	if cfg.Server.WebhookPassphrase != "secret" {
		t.Errorf("WebhookPassphrase = %q", cfg.Server.WebhookPassphrase)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestValidateRejectsBadExecutor(t *testing.T) {
	if _, err := Load(writeConfig(t, "trading:\n  executor: robinhood\n")); err == nil {
		t.Error("Load should reject an unknown executor")
	}
}

func TestValidateRejectsBadRisk(t *testing.T) {
	if _, err := Load(writeConfig(t, "risk:\n  max_risk_per_trade: 1.5\n")); err == nil {
		t.Error("Load should reject a risk fraction above 1")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load of a missing file should fail")
	}
}
