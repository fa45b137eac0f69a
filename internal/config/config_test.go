package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Engine.BaseSize = 0
	cfg.Risk.DailyLossCap = 0
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	for _, want := range []string{"unknown mode", "base_size", "daily_loss_cap", "redis: addr"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateLiveTradingNeedsCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Engine.DryRun = false

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("expected credential error, got %v", err)
	}

	cfg.Polymarket.ApiKey = "k"
	cfg.Polymarket.ApiSecret = "s"
	cfg.Polymarket.ApiPassphrase = "p"
	cfg.Polymarket.Address = "0xabc"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("credentialed live config must validate: %v", err)
	}
}

func TestValidateFixedProfileNeedsEntryCeiling(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.Profile = "fixed"
	cfg.Engine.MaxEntryPrice = 0

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "max_entry_price") {
		t.Fatalf("expected max_entry_price error, got %v", err)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "monitor"
log_level = "debug"

[engine]
poll_interval = "5s"
hedge_timeout = "30s"
base_size = 25.0
templates = ["Bitcoin Up or Down - 15 minute"]

[risk]
daily_loss_cap = 100.0
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != "monitor" || cfg.LogLevel != "debug" {
		t.Fatalf("top-level overrides not applied: %+v", cfg)
	}
	if cfg.Engine.PollInterval.Duration != 5*time.Second {
		t.Fatalf("poll_interval = %v", cfg.Engine.PollInterval.Duration)
	}
	if cfg.Engine.HedgeTimeout.Duration != 30*time.Second {
		t.Fatalf("hedge_timeout = %v", cfg.Engine.HedgeTimeout.Duration)
	}
	if cfg.Engine.BaseSize != 25 {
		t.Fatalf("base_size = %v", cfg.Engine.BaseSize)
	}
	if len(cfg.Engine.Templates) != 1 {
		t.Fatalf("templates = %v", cfg.Engine.Templates)
	}
	if cfg.Risk.DailyLossCap != 100 {
		t.Fatalf("daily_loss_cap = %v", cfg.Risk.DailyLossCap)
	}
	// Untouched sections keep their defaults.
	if cfg.Risk.PerMarketCap != 250 {
		t.Fatalf("per_market_cap = %v, want default 250", cfg.Risk.PerMarketCap)
	}
	if cfg.Polymarket.GammaHost == "" {
		t.Fatal("gamma_host default lost")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("UPDOWN_MODE", "server")
	t.Setenv("UPDOWN_ENGINE_POLL_INTERVAL", "20s")
	t.Setenv("UPDOWN_RISK_DAILY_LOSS_CAP", "750")
	t.Setenv("UPDOWN_ENGINE_TEMPLATES", "A, B ,C")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Mode != "server" {
		t.Fatalf("mode = %q", cfg.Mode)
	}
	if cfg.Engine.PollInterval.Duration != 20*time.Second {
		t.Fatalf("poll_interval = %v", cfg.Engine.PollInterval.Duration)
	}
	if cfg.Risk.DailyLossCap != 750 {
		t.Fatalf("daily_loss_cap = %v", cfg.Risk.DailyLossCap)
	}
	if got := cfg.Engine.Templates; len(got) != 3 || got[1] != "B" {
		t.Fatalf("templates = %v", got)
	}
}
