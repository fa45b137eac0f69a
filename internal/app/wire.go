package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	s3blob "github.com/quarterhedge/updownbot/internal/blob/s3"
	"github.com/quarterhedge/updownbot/internal/cache/redis"
	"github.com/quarterhedge/updownbot/internal/config"
	"github.com/quarterhedge/updownbot/internal/crypto"
	"github.com/quarterhedge/updownbot/internal/domain"
	"github.com/quarterhedge/updownbot/internal/engine"
	"github.com/quarterhedge/updownbot/internal/executor"
	"github.com/quarterhedge/updownbot/internal/feed"
	"github.com/quarterhedge/updownbot/internal/micro"
	"github.com/quarterhedge/updownbot/internal/notify"
	"github.com/quarterhedge/updownbot/internal/oracle"
	"github.com/quarterhedge/updownbot/internal/platform/polymarket"
	"github.com/quarterhedge/updownbot/internal/position"
	"github.com/quarterhedge/updownbot/internal/risk"
	"github.com/quarterhedge/updownbot/internal/store/postgres"
	"github.com/quarterhedge/updownbot/internal/timing"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores (nil in modes without persistence)
	PositionStore   domain.PositionStore
	TransitionStore domain.TransitionStore
	FillStore       domain.FillStore

	// Caches
	SnapshotCache domain.SnapshotCache
	LedgerCache   domain.LedgerCache
	SignalBus     domain.SignalBus

	// Blob storage (nil unless S3 is enabled)
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	// Trading. Clob is set only for live sessions so shutdown can cancel
	// resting orders.
	Engine *engine.Engine
	Feed   *feed.MarketWS
	Clob   *polymarket.ClobClient

	// Notifications
	Notifier notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "trade", "server", "full":
		return true
	default:
		return false
	}
}

// needsEngine returns true for modes that run the decision loop.
func needsEngine(mode string) bool {
	return mode != "server"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.TransitionStore = postgres.NewTransitionStore(pool)
		deps.FillStore = postgres.NewFillStore(pool)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.SnapshotCache = redis.NewSnapshotCache(redisClient, 0)
	deps.LedgerCache = redis.NewLedgerCache(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (optional, needs the stores for archival) ---
	if cfg.S3.Enabled && deps.PositionStore != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.PositionStore,
			deps.FillStore,
			deps.TransitionStore,
			cfg.S3.RetentionDays,
			logger,
		)
	}

	// --- Notifications ---
	var notifiers notify.Multi
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		notifiers = append(notifiers, notify.NewTelegram(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		notifiers = append(notifiers, notify.NewDiscord(cfg.Notify.DiscordWebhookURL))
	}
	if len(notifiers) > 0 {
		deps.Notifier = notifiers
	} else {
		deps.Notifier = notify.Nop{}
	}

	// --- Engine and its collaborators ---
	if needsEngine(mode) {
		deps.Feed = feed.NewMarketWS(cfg.Polymarket.WsHost, deps.SnapshotCache, logger)
		deps.Engine = buildEngine(cfg, mode, deps, logger)
	}

	return deps, cleanup, nil
}

// buildEngine assembles the decision engine from configuration: market data
// clients, the approval oracle, the order executor, and the risk stack.
func buildEngine(cfg *config.Config, mode string, deps *Dependencies, logger *slog.Logger) *engine.Engine {
	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost)

	var auth *crypto.HMACAuth
	if cfg.Polymarket.ApiKey != "" {
		auth = &crypto.HMACAuth{
			Key:        cfg.Polymarket.ApiKey,
			Secret:     cfg.Polymarket.ApiSecret,
			Passphrase: cfg.Polymarket.ApiPassphrase,
		}
	}
	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, cfg.Polymarket.Address, auth)
	data := polymarket.NewMarketData(gamma, clob)

	var approver domain.Approver
	switch cfg.Oracle.Kind {
	case "ollama":
		approver = oracle.NewOllama(oracle.OllamaConfig{
			BaseURL: cfg.Oracle.BaseURL,
			Model:   cfg.Oracle.Model,
			Timeout: cfg.Oracle.Timeout.Duration,
		}, logger)
	default:
		approver = oracle.NewRules(oracle.RulesConfig{
			MinMispricing: cfg.Oracle.MinMispricing,
		}, logger)
	}

	// Monitor mode never sends real orders, whatever dry_run says.
	var submitter domain.OrderSubmitter
	if cfg.Engine.DryRun || mode == "monitor" {
		submitter = executor.NewPaper(logger)
	} else {
		submitter = executor.NewLive(clob, logger)
		// Kept for the shutdown cancel pass on live sessions.
		deps.Clob = clob
	}

	machineCfg := position.Config{
		BaseSize:        cfg.Engine.BaseSize,
		SafetyMargin:    cfg.Engine.SafetyMargin,
		DepthAccelFloor: cfg.Engine.DepthAccelFloor,
		HedgeTimeout:    cfg.Engine.HedgeTimeout.Duration,
		VolCeiling:      cfg.Engine.VolatilityCeiling,
		SpreadLimit:     cfg.Engine.SpreadLimit,
	}
	if strings.EqualFold(cfg.Engine.Profile, "fixed") {
		machineCfg.MaxEntryPrice = cfg.Engine.MaxEntryPrice
	}

	return engine.New(engine.Config{
		PollInterval:     cfg.Engine.PollInterval.Duration,
		FetchConcurrency: cfg.Engine.FetchConcurrency,
		SlippagePenalty:  cfg.Engine.SlippagePenalty,
		Machine:          machineCfg,
	}, engine.Deps{
		Logger:     logger,
		Data:       data,
		Tracker:    micro.NewTracker(),
		Classifier: timing.NewClassifier(classifierConfig(cfg)),
		Guardrail: risk.NewGuardrail(risk.Config{
			DailyLossCap:     cfg.Risk.DailyLossCap,
			PerMarketCap:     cfg.Risk.PerMarketCap,
			TotalNotionalCap: cfg.Risk.MaxTotalNotional,
		}, logger),
		Approver:  approver,
		Submitter: submitter,
		Clock:     domain.UTCClock{},
		Filter:    domain.ExactTitleFilter(cfg.Engine.Templates),

		Positions:   deps.PositionStore,
		Transitions: deps.TransitionStore,
		Fills:       deps.FillStore,
		Snapshots:   deps.SnapshotCache,
		LedgerCache: deps.LedgerCache,
		Bus:         deps.SignalBus,
		Notifier:    deps.Notifier,

		Universe: func(markets []domain.Market) {
			if err := deps.Feed.Track(markets); err != nil {
				logger.Warn("feed subscription update failed", slog.String("error", err.Error()))
			}
		},
	})
}

// classifierConfig maps the engine profile to classifier thresholds. The
// fixed profile trades on price level alone: its classifier is wide open and
// entries are bounded only by the state machine's entry price ceiling.
func classifierConfig(cfg *config.Config) timing.Config {
	if strings.EqualFold(cfg.Engine.Profile, "fixed") {
		return timing.Config{
			VolCeiling:      math.Inf(1),
			DepthAccelFloor: math.Inf(-1),
			SpreadDriftBand: math.Inf(1),
		}
	}
	return timing.Config{
		VolCeiling:      cfg.Engine.VolatilityCeiling,
		DepthAccelFloor: cfg.Engine.DepthAccelFloor,
		SpreadDriftBand: cfg.Engine.SpreadDriftBand,
	}
}
