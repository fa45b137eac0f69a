package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies UPDOWN_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known UPDOWN_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "UPDOWN_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.ClobHost, "UPDOWN_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.WsHost, "UPDOWN_POLYMARKET_WS_HOST")
	setStr(&cfg.Polymarket.Address, "UPDOWN_POLYMARKET_ADDRESS")
	setStr(&cfg.Polymarket.ApiKey, "UPDOWN_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "UPDOWN_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.ApiPassphrase, "UPDOWN_POLYMARKET_API_PASSPHRASE")

	// ── Engine ──
	setDuration(&cfg.Engine.PollInterval, "UPDOWN_ENGINE_POLL_INTERVAL")
	setInt(&cfg.Engine.FetchConcurrency, "UPDOWN_ENGINE_FETCH_CONCURRENCY")
	setStr(&cfg.Engine.Profile, "UPDOWN_ENGINE_PROFILE")
	setFloat64(&cfg.Engine.VolatilityCeiling, "UPDOWN_ENGINE_VOLATILITY_CEILING")
	setFloat64(&cfg.Engine.DepthAccelFloor, "UPDOWN_ENGINE_DEPTH_ACCEL_FLOOR")
	setFloat64(&cfg.Engine.SpreadDriftBand, "UPDOWN_ENGINE_SPREAD_DRIFT_BAND")
	setFloat64(&cfg.Engine.SafetyMargin, "UPDOWN_ENGINE_SAFETY_MARGIN")
	setFloat64(&cfg.Engine.SlippagePenalty, "UPDOWN_ENGINE_SLIPPAGE_PENALTY")
	setFloat64(&cfg.Engine.SpreadLimit, "UPDOWN_ENGINE_SPREAD_LIMIT")
	setDuration(&cfg.Engine.HedgeTimeout, "UPDOWN_ENGINE_HEDGE_TIMEOUT")
	setFloat64(&cfg.Engine.BaseSize, "UPDOWN_ENGINE_BASE_SIZE")
	setFloat64(&cfg.Engine.MaxEntryPrice, "UPDOWN_ENGINE_MAX_ENTRY_PRICE")
	setStringSlice(&cfg.Engine.Templates, "UPDOWN_ENGINE_TEMPLATES")
	setBool(&cfg.Engine.DryRun, "UPDOWN_ENGINE_DRY_RUN")

	// ── Risk ──
	setFloat64(&cfg.Risk.DailyLossCap, "UPDOWN_RISK_DAILY_LOSS_CAP")
	setFloat64(&cfg.Risk.PerMarketCap, "UPDOWN_RISK_PER_MARKET_CAP")
	setFloat64(&cfg.Risk.MaxTotalNotional, "UPDOWN_RISK_MAX_TOTAL_NOTIONAL")

	// ── Oracle ──
	setStr(&cfg.Oracle.Kind, "UPDOWN_ORACLE_KIND")
	setStr(&cfg.Oracle.BaseURL, "UPDOWN_ORACLE_BASE_URL")
	setStr(&cfg.Oracle.Model, "UPDOWN_ORACLE_MODEL")
	setDuration(&cfg.Oracle.Timeout, "UPDOWN_ORACLE_TIMEOUT")
	setFloat64(&cfg.Oracle.MinMispricing, "UPDOWN_ORACLE_MIN_MISPRICING")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "UPDOWN_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "UPDOWN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "UPDOWN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "UPDOWN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "UPDOWN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "UPDOWN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "UPDOWN_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "UPDOWN_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "UPDOWN_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "UPDOWN_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "UPDOWN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "UPDOWN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "UPDOWN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "UPDOWN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "UPDOWN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "UPDOWN_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "UPDOWN_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "UPDOWN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "UPDOWN_S3_REGION")
	setStr(&cfg.S3.Bucket, "UPDOWN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "UPDOWN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "UPDOWN_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "UPDOWN_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "UPDOWN_S3_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "UPDOWN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "UPDOWN_SERVER_PORT")
	setStr(&cfg.Server.ApiToken, "UPDOWN_SERVER_API_TOKEN")
	setStringSlice(&cfg.Server.CORSOrigins, "UPDOWN_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "UPDOWN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "UPDOWN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "UPDOWN_NOTIFY_DISCORD_WEBHOOK_URL")

	// ── Log file ──
	setStr(&cfg.LogFile.Path, "UPDOWN_LOG_FILE_PATH")
	setInt(&cfg.LogFile.MaxSizeMB, "UPDOWN_LOG_FILE_MAX_SIZE_MB")
	setInt(&cfg.LogFile.MaxBackups, "UPDOWN_LOG_FILE_MAX_BACKUPS")
	setInt(&cfg.LogFile.MaxAgeDays, "UPDOWN_LOG_FILE_MAX_AGE_DAYS")

	// ── Top-level ──
	setStr(&cfg.Mode, "UPDOWN_MODE")
	setStr(&cfg.LogLevel, "UPDOWN_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
