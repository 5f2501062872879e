package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/voltrade/voltbot/internal/blob/s3"
	"github.com/voltrade/voltbot/internal/cache/redis"
	"github.com/voltrade/voltbot/internal/config"
	"github.com/voltrade/voltbot/internal/domain"
	"github.com/voltrade/voltbot/internal/notify"
	"github.com/voltrade/voltbot/internal/platform/openai"
	"github.com/voltrade/voltbot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function. Nil fields mean the resource is not wired in this mode.
type Dependencies struct {
	// Stores (trade mode only)
	PositionStore domain.PositionStore
	AuditStore    domain.AuditStore

	// Caches
	Quotes      domain.LineCache
	Cooldown    domain.Cooldown
	RateLimiter domain.RateLimiter
	Bus         domain.Bus

	// Blob storage (archive enabled only)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.PositionArchiver

	// Advisory second opinion (advisory enabled only)
	Advisor domain.Advisor

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
// Monitor mode never opens positions, so it runs without one.
func needsPostgres(mode string) bool {
	return mode == "trade"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (positions must survive restarts in trade mode) ---
	if needsPostgres(cfg.Mode) {
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
		deps.AuditStore = postgres.NewAuditStore(pool)
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

	deps.Quotes = redis.NewLineCache(redisClient)
	deps.Cooldown = redis.NewCooldownGuard(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.Bus = redis.NewEventBus(redisClient)

	// --- S3 blob storage (only when archival is on) ---
	if cfg.Archive.Enabled {
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
		deps.BlobReader = s3blob.NewReader(s3Client)
		// Archiving writes happen only where positions close, so the archiver
		// itself needs the trade-mode stores; the reader alone still serves
		// the ops surface in monitor mode.
		if deps.PositionStore != nil {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.BlobReader, deps.AuditStore, cfg.Archive.Prefix)
		}
	}

	// --- Advisory ---
	if cfg.Advisory.Enabled {
		deps.Advisor = openai.NewClient(
			cfg.Advisory.BaseURL,
			cfg.Advisory.APIKey,
			cfg.Advisory.Model,
			cfg.Advisory.Timeout.Duration,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
