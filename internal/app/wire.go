package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/whalewatch/internal/blob/s3"
	"github.com/alanyoungcy/whalewatch/internal/cache/redis"
	"github.com/alanyoungcy/whalewatch/internal/config"
	"github.com/alanyoungcy/whalewatch/internal/dedup"
	"github.com/alanyoungcy/whalewatch/internal/domain"
	"github.com/alanyoungcy/whalewatch/internal/notify"
	"github.com/alanyoungcy/whalewatch/internal/platform/hyperliquid"
	"github.com/alanyoungcy/whalewatch/internal/report"
	"github.com/alanyoungcy/whalewatch/internal/server/handler"
	"github.com/alanyoungcy/whalewatch/internal/store/postgres"
)

// signalStreamMaxLen bounds the durable signal stream.
const signalStreamMaxLen = 10000

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function. Optional fields are left nil when their backend is not
// configured.
type Dependencies struct {
	// Stores
	FillStore   domain.FillStore
	TraderStore domain.TraderStore
	AuditStore  domain.AuditStore
	SignalStore domain.SignalStore

	// Caches (Redis, optional)
	MarketCache domain.MarketContextCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Dedup is Redis-backed when Redis is enabled, in-process otherwise.
	Dedup domain.Deduper

	// Blob storage (S3, optional)
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	// Report sinks, local directory first.
	Sinks []report.Sink

	// Exchange
	Exchange *hyperliquid.Client

	// Notifications; Dispatcher is nil when no channel is configured.
	Notifier   *notify.Notifier
	Dispatcher *notify.Dispatcher

	// Health lists the backends pinged by the health endpoint.
	Health map[string]handler.Pinger
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Health: make(map[string]handler.Pinger)}

	// --- PostgreSQL ---
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
	deps.FillStore = postgres.NewFillStore(pool)
	deps.TraderStore = postgres.NewTraderStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)
	deps.SignalStore = postgres.NewSignalStore(pool)
	deps.Health["postgres"] = pgClient

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			URL:        cfg.Redis.URL,
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

		deps.MarketCache = redis.NewMarketContextCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Hyperliquid.SharedLimit, cfg.Hyperliquid.SharedWindow.Duration)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBusWithMaxLen(redisClient, signalStreamMaxLen)
		deps.Dedup = redis.NewDeduper(redisClient)
		deps.Health["redis"] = redisClient
	} else {
		deps.Dedup = dedup.NewMemory()
	}

	// --- S3 blob storage ---
	if cfg.Report.OutputDir != "" {
		deps.Sinks = append(deps.Sinks, report.NewDirSink(cfg.Report.OutputDir))
	}
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.AuditStore)
		deps.Sinks = append(deps.Sinks, deps.Archiver)
		deps.Health["s3"] = pingFunc(s3Client.Health)
	}

	// --- Exchange ---
	var hlOpts []hyperliquid.Option
	if deps.RateLimiter != nil && cfg.Hyperliquid.SharedLimit > 0 {
		hlOpts = append(hlOpts, hyperliquid.WithSharedLimiter(deps.RateLimiter))
	}
	deps.Exchange = hyperliquid.NewClient(hyperliquid.Config{
		APIURL:            cfg.Hyperliquid.APIURL,
		LeaderboardURL:    cfg.Hyperliquid.LeaderboardURL,
		Timeout:           cfg.Hyperliquid.Timeout.Duration,
		RequestsPerSecond: cfg.Hyperliquid.RequestsPerSecond,
		Burst:             cfg.Hyperliquid.Burst,
		MaxRetries:        cfg.Hyperliquid.MaxRetries,
	}, logger, hlOpts...)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		var tgOpts []notify.TelegramOption
		if cfg.Notify.TelegramProxy != "" {
			tgOpts = append(tgOpts, notify.WithTelegramProxy(cfg.Notify.TelegramProxy))
		}
		tg, err := notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, tgOpts...)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: telegram: %w", err)
		}
		senders = append(senders, tg)
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	if len(senders) > 0 {
		deps.Dispatcher = notify.NewDispatcher(deps.Notifier, cfg.Notify.MessageGap.Duration, logger)
	}

	return deps, cleanup, nil
}
