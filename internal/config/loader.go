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
// built-in defaults, applies VOLTBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known VOLTBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Feed ──
	setStr(&cfg.Feed.BaseURL, "VOLTBOT_FEED_BASE_URL")
	setStr(&cfg.Feed.APIKey, "VOLTBOT_FEED_API_KEY")
	setStr(&cfg.Feed.APIKey, "UNABATED_API_KEY") // compatibility alias
	setDuration(&cfg.Feed.PollInterval, "VOLTBOT_FEED_POLL_INTERVAL")
	setDuration(&cfg.Feed.RequestTimeout, "VOLTBOT_FEED_REQUEST_TIMEOUT")
	setInt(&cfg.Feed.MaxConsecutiveFailures, "VOLTBOT_FEED_MAX_CONSECUTIVE_FAILURES")

	// ── Engine ──
	setInt(&cfg.Engine.WindowSize, "VOLTBOT_ENGINE_WINDOW_SIZE")
	setDuration(&cfg.Engine.WindowMaxAge, "VOLTBOT_ENGINE_WINDOW_MAX_AGE")
	setInt(&cfg.Engine.EvalWorkers, "VOLTBOT_ENGINE_EVAL_WORKERS")

	// ── Trading ──
	setFloat64(&cfg.Trading.Bankroll, "VOLTBOT_TRADING_BANKROLL")
	setFloat64(&cfg.Trading.BaseSizePct, "VOLTBOT_TRADING_BASE_SIZE_PCT")
	setFloat64(&cfg.Trading.MaxSizePct, "VOLTBOT_TRADING_MAX_SIZE_PCT")
	setInt(&cfg.Trading.MaxPositions, "VOLTBOT_TRADING_MAX_POSITIONS")
	setFloat64(&cfg.Trading.StopLossMult, "VOLTBOT_TRADING_STOP_LOSS_MULT")
	setBool(&cfg.Trading.PregameEntries, "VOLTBOT_TRADING_PREGAME_ENTRIES")

	// ── Advisory ──
	setBool(&cfg.Advisory.Enabled, "VOLTBOT_ADVISORY_ENABLED")
	setStr(&cfg.Advisory.BaseURL, "VOLTBOT_ADVISORY_BASE_URL")
	setStr(&cfg.Advisory.APIKey, "VOLTBOT_ADVISORY_API_KEY")
	setStr(&cfg.Advisory.APIKey, "OPENAI_API_KEY") // compatibility alias
	setStr(&cfg.Advisory.Model, "VOLTBOT_ADVISORY_MODEL")
	setDuration(&cfg.Advisory.Timeout, "VOLTBOT_ADVISORY_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "VOLTBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "VOLTBOT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "VOLTBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "VOLTBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "VOLTBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "VOLTBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "VOLTBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "VOLTBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "VOLTBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "VOLTBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "VOLTBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "VOLTBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VOLTBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VOLTBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VOLTBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "VOLTBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "VOLTBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "VOLTBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VOLTBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "VOLTBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VOLTBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VOLTBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "VOLTBOT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "VOLTBOT_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Prefix, "VOLTBOT_ARCHIVE_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "VOLTBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "VOLTBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "VOLTBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "VOLTBOT_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VOLTBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VOLTBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "VOLTBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "VOLTBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "VOLTBOT_MODE")
	setStr(&cfg.LogLevel, "VOLTBOT_LOG_LEVEL")
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
