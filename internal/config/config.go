// Package config defines the top-level configuration for the up/down bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by UPDOWN_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Engine     EngineConfig     `toml:"engine"`
	Risk       RiskConfig       `toml:"risk"`
	Oracle     OracleConfig     `toml:"oracle"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
	LogFile    LogFileConfig    `toml:"log_file"`
}

// PolymarketConfig holds Polymarket API endpoints and CLOB credentials.
type PolymarketConfig struct {
	GammaHost     string `toml:"gamma_host"`
	ClobHost      string `toml:"clob_host"`
	WsHost        string `toml:"ws_host"`
	Address       string `toml:"address"`
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
}

// EngineConfig holds the decision loop and state machine parameters.
type EngineConfig struct {
	PollInterval     duration `toml:"poll_interval"`
	FetchConcurrency int      `toml:"fetch_concurrency"`

	// Profile selects the entry gate: "timing" uses the microstructure
	// classifier alone; "fixed" additionally caps the entry ask at
	// max_entry_price.
	Profile string `toml:"profile"`

	VolatilityCeiling float64 `toml:"volatility_ceiling"`
	DepthAccelFloor   float64 `toml:"depth_accel_floor"`
	SpreadDriftBand   float64 `toml:"spread_drift_band"`
	SafetyMargin      float64 `toml:"safety_margin"`
	SlippagePenalty   float64 `toml:"slippage_penalty"`
	SpreadLimit       float64 `toml:"spread_limit"`

	HedgeTimeout  duration `toml:"hedge_timeout"`
	BaseSize      float64  `toml:"base_size"`
	MaxEntryPrice float64  `toml:"max_entry_price"`

	// Templates are the exact market questions the bot will trade.
	Templates []string `toml:"templates"`

	// DryRun replaces the live executor with a paper-fill executor.
	DryRun bool `toml:"dry_run"`
}

// RiskConfig holds the guardrail limits, in dollars.
type RiskConfig struct {
	DailyLossCap     float64 `toml:"daily_loss_cap"`
	PerMarketCap     float64 `toml:"per_market_cap"`
	MaxTotalNotional float64 `toml:"max_total_notional"`
}

// OracleConfig selects and configures the approval oracle.
type OracleConfig struct {
	// Kind selects the oracle: "rules" or "ollama".
	Kind    string   `toml:"kind"`
	BaseURL string   `toml:"base_url"`
	Model   string   `toml:"model"`
	Timeout duration `toml:"timeout"`

	// MinMispricing is the rules oracle's minimum edge to approve, dollars.
	MinMispricing float64 `toml:"min_mispricing"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the daily
// archive job.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	ApiToken    string   `toml:"api_token"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
}

// LogFileConfig holds optional rotating-file log output parameters.
type LogFileConfig struct {
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "45s", "15s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "45s" or "5m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost: "https://gamma-api.polymarket.com",
			ClobHost:  "https://clob.polymarket.com",
			WsHost:    "wss://ws-subscriptions-clob.polymarket.com",
		},
		Engine: EngineConfig{
			PollInterval:      duration{15 * time.Second},
			FetchConcurrency:  8,
			Profile:           "timing",
			VolatilityCeiling: 0.18,
			DepthAccelFloor:   0.05,
			SpreadDriftBand:   0.02,
			SafetyMargin:      0.01,
			SlippagePenalty:   0.005,
			SpreadLimit:       0.02,
			HedgeTimeout:      duration{45 * time.Second},
			BaseSize:          100,
			MaxEntryPrice:     0.35,
			Templates: []string{
				"Bitcoin Up or Down - 15 minute",
				"Ethereum Up or Down - 15 minute",
				"Solana Up or Down - 15 minute",
			},
			DryRun: true,
		},
		Risk: RiskConfig{
			DailyLossCap:     500,
			PerMarketCap:     250,
			MaxTotalNotional: 1000,
		},
		Oracle: OracleConfig{
			Kind:          "rules",
			BaseURL:       "http://localhost:11434",
			Model:         "llama3.1",
			Timeout:       duration{10 * time.Second},
			MinMispricing: 0.02,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "updownbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "updownbot-data",
			ForcePathStyle: true,
			RetentionDays:  7,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Mode:     "full",
		LogLevel: "info",
		LogFile: LogFileConfig{
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
	"server":  true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validProfiles enumerates the accepted values for EngineConfig.Profile.
var validProfiles = map[string]bool{
	"timing": true,
	"fixed":  true,
}

// validOracles enumerates the accepted values for OracleConfig.Kind.
var validOracles = map[string]bool{
	"rules":  true,
	"ollama": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Polymarket endpoints
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	// Credentials are required only when orders actually leave the process.
	if !c.Engine.DryRun && (c.Mode == "trade" || c.Mode == "full") {
		if c.Polymarket.ApiKey == "" || c.Polymarket.ApiSecret == "" || c.Polymarket.ApiPassphrase == "" {
			errs = append(errs, "polymarket: api_key, api_secret, and api_passphrase are required for live trading")
		}
		if c.Polymarket.Address == "" {
			errs = append(errs, "polymarket: address is required for live trading")
		}
	}

	// Engine
	if c.Engine.PollInterval.Duration <= 0 {
		errs = append(errs, "engine: poll_interval must be > 0")
	}
	if c.Engine.FetchConcurrency < 1 {
		errs = append(errs, "engine: fetch_concurrency must be >= 1")
	}
	if !validProfiles[strings.ToLower(c.Engine.Profile)] {
		errs = append(errs, fmt.Sprintf("engine: unknown profile %q (valid: timing, fixed)", c.Engine.Profile))
	}
	if c.Engine.VolatilityCeiling <= 0 {
		errs = append(errs, "engine: volatility_ceiling must be > 0")
	}
	if c.Engine.SpreadDriftBand <= 0 {
		errs = append(errs, "engine: spread_drift_band must be > 0")
	}
	if c.Engine.SafetyMargin < 0 || c.Engine.SafetyMargin >= 1 {
		errs = append(errs, "engine: safety_margin must be in [0, 1)")
	}
	if c.Engine.HedgeTimeout.Duration <= 0 {
		errs = append(errs, "engine: hedge_timeout must be > 0")
	}
	if c.Engine.BaseSize <= 0 {
		errs = append(errs, "engine: base_size must be > 0")
	}
	if strings.EqualFold(c.Engine.Profile, "fixed") && c.Engine.MaxEntryPrice <= 0 {
		errs = append(errs, "engine: max_entry_price must be > 0 for the fixed profile")
	}
	if len(c.Engine.Templates) == 0 {
		errs = append(errs, "engine: templates must list at least one market question")
	}

	// Risk
	if c.Risk.DailyLossCap <= 0 {
		errs = append(errs, "risk: daily_loss_cap must be > 0")
	}
	if c.Risk.PerMarketCap <= 0 {
		errs = append(errs, "risk: per_market_cap must be > 0")
	}
	if c.Risk.MaxTotalNotional > 0 && c.Risk.MaxTotalNotional < c.Risk.PerMarketCap {
		errs = append(errs, "risk: max_total_notional must be >= per_market_cap")
	}

	// Oracle
	if !validOracles[strings.ToLower(c.Oracle.Kind)] {
		errs = append(errs, fmt.Sprintf("oracle: unknown kind %q (valid: rules, ollama)", c.Oracle.Kind))
	}
	if strings.EqualFold(c.Oracle.Kind, "ollama") {
		if c.Oracle.BaseURL == "" {
			errs = append(errs, "oracle: base_url is required for the ollama oracle")
		}
		if c.Oracle.Model == "" {
			errs = append(errs, "oracle: model is required for the ollama oracle")
		}
	}
	if c.Oracle.Timeout.Duration <= 0 {
		errs = append(errs, "oracle: timeout must be > 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
