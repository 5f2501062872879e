// Package config defines the top-level configuration for the volatility bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by VOLTBOT_* environment variables.
type Config struct {
	Feed     FeedConfig              `toml:"feed"`
	Engine   EngineConfig            `toml:"engine"`
	Trading  TradingConfig           `toml:"trading"`
	Leagues  map[string]LeagueConfig `toml:"leagues"`
	Advisory AdvisoryConfig          `toml:"advisory"`
	Postgres PostgresConfig          `toml:"postgres"`
	Redis    RedisConfig             `toml:"redis"`
	S3       S3Config                `toml:"s3"`
	Archive  ArchiveConfig           `toml:"archive"`
	Report   ReportConfig            `toml:"report"`
	Server   ServerConfig            `toml:"server"`
	Notify   NotifyConfig            `toml:"notify"`
	Mode     string                  `toml:"mode"`
	LogLevel string                  `toml:"log_level"`
}

// FeedConfig holds the odds feed endpoint and polling policy.
type FeedConfig struct {
	BaseURL        string   `toml:"base_url"`
	APIKey         string   `toml:"api_key"`
	PollInterval   duration `toml:"poll_interval"`
	RequestTimeout duration `toml:"request_timeout"`
	BackoffMin     duration `toml:"backoff_min"`
	BackoffMax     duration `toml:"backoff_max"`
	BackoffFactor  float64  `toml:"backoff_factor"`
	// MaxConsecutiveFailures is how many transient poll failures in a row
	// force a full re-bootstrap instead of another retry.
	MaxConsecutiveFailures int `toml:"max_consecutive_failures"`
	// MaxBootstrapAttempts bounds re-bootstrap attempts before the loop halts
	// trading and alerts the operator.
	MaxBootstrapAttempts int `toml:"max_bootstrap_attempts"`
}

// EngineConfig holds volatility window and evaluation parameters.
type EngineConfig struct {
	WindowSize   int      `toml:"window_size"`
	WindowMaxAge duration `toml:"window_max_age"`
	// EvalWorkers caps the goroutines evaluating independent lines in
	// parallel within one cycle.
	EvalWorkers int `toml:"eval_workers"`
	// StalePriceAge is how old a line's last update may be before its price
	// no longer counts as a fresh exit price.
	StalePriceAge duration `toml:"stale_price_age"`
}

// TradingConfig holds bankroll, sizing, and risk-limit parameters.
type TradingConfig struct {
	Bankroll       float64  `toml:"bankroll"`
	BaseSizePct    float64  `toml:"base_size_pct"`
	MaxSizePct     float64  `toml:"max_size_pct"`
	MaxPositions   int      `toml:"max_positions"`
	MaxLeaguePct   float64  `toml:"max_league_pct"`
	MaxEventPct    float64  `toml:"max_event_pct"`
	StopLossMult   float64  `toml:"stop_loss_mult"`
	ReversionFrac  float64  `toml:"reversion_frac"`
	BlowoutPoints  int      `toml:"blowout_points"`
	ExitGrace      duration `toml:"exit_grace"`
	EntryCooldown  duration `toml:"entry_cooldown"`
	PregameEntries bool     `toml:"pregame_entries"`
}

// LeagueConfig is one row of the per-league parameter table. Thresholds are
// looked up by (league, bet type, period type); a league block provides the
// league-level defaults for that lookup.
type LeagueConfig struct {
	RegulationMinutes   float64 `toml:"regulation_minutes"`
	VolThresholdPct     float64 `toml:"vol_threshold_pct"`
	SizeMultiplier      float64 `toml:"size_multiplier"`
	MaxHoldMinutes      float64 `toml:"max_hold_minutes"`
	MinConfidence       float64 `toml:"min_confidence"`
	MinDispersion       float64 `toml:"min_dispersion"`
	DirectionConstraint string  `toml:"direction_constraint"` // both, sell_only, buy_only
}

// AdvisoryConfig holds the optional LLM advisory service parameters.
type AdvisoryConfig struct {
	Enabled       bool     `toml:"enabled"`
	BaseURL       string   `toml:"base_url"`
	APIKey        string   `toml:"api_key"`
	Model         string   `toml:"model"`
	Timeout       duration `toml:"timeout"`
	MinConfidence float64  `toml:"min_confidence"`
	// RateLimitPerMin caps advisory calls per minute across the process.
	RateLimitPerMin int `toml:"rate_limit_per_min"`
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls closed-position archival to object storage.
type ArchiveConfig struct {
	Enabled bool   `toml:"enabled"`
	Prefix  string `toml:"prefix"`
}

// ReportConfig holds periodic reporting intervals.
type ReportConfig struct {
	SummaryInterval duration `toml:"summary_interval"`
	PregameInterval duration `toml:"pregame_interval"`
	PregameTopN     int      `toml:"pregame_top_n"`
}

// ServerConfig holds the optional ops HTTP server parameters. APIKey guards
// every route except the health probe; RateLimit caps requests per client per
// minute when Redis is available, 0 disables the cap.
type ServerConfig struct {
	Enabled   bool   `toml:"enabled"`
	Port      int    `toml:"port"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	AlertCooldown     duration `toml:"alert_cooldown"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
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
// League rows carry the regulation lengths and thresholds the model was
// calibrated with; config may override any of them.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			BaseURL:                "https://partner-api.unabated.com/api",
			PollInterval:           duration{1 * time.Second},
			RequestTimeout:         duration{10 * time.Second},
			BackoffMin:             duration{5 * time.Second},
			BackoffMax:             duration{2 * time.Minute},
			BackoffFactor:          2.0,
			MaxConsecutiveFailures: 5,
			MaxBootstrapAttempts:   5,
		},
		Engine: EngineConfig{
			WindowSize:    32,
			WindowMaxAge:  duration{10 * time.Minute},
			EvalWorkers:   8,
			StalePriceAge: duration{30 * time.Second},
		},
		Trading: TradingConfig{
			Bankroll:       10_000,
			BaseSizePct:    0.05,
			MaxSizePct:     0.20,
			MaxPositions:   5,
			MaxLeaguePct:   0.40,
			MaxEventPct:    0.10,
			StopLossMult:   1.5,
			ReversionFrac:  0.3,
			BlowoutPoints:  14,
			ExitGrace:      duration{90 * time.Second},
			EntryCooldown:  duration{10 * time.Minute},
			PregameEntries: false,
		},
		Leagues: map[string]LeagueConfig{
			"nfl": {
				RegulationMinutes:   60,
				VolThresholdPct:     2.0,
				SizeMultiplier:      1.0,
				MaxHoldMinutes:      15,
				MinConfidence:       0.5,
				MinDispersion:       0.5,
				DirectionConstraint: "both",
			},
			"nba": {
				RegulationMinutes:   48,
				VolThresholdPct:     1.5,
				SizeMultiplier:      0.8,
				MaxHoldMinutes:      12,
				MinConfidence:       0.5,
				MinDispersion:       0.5,
				DirectionConstraint: "both",
			},
			"cbb": {
				RegulationMinutes:   40,
				VolThresholdPct:     1.8,
				SizeMultiplier:      0.6,
				MaxHoldMinutes:      10,
				MinConfidence:       0.5,
				MinDispersion:       0.5,
				DirectionConstraint: "both",
			},
		},
		Advisory: AdvisoryConfig{
			Enabled:         false,
			BaseURL:         "https://api.openai.com/v1",
			Model:           "gpt-4o",
			Timeout:         duration{8 * time.Second},
			MinConfidence:   0.7,
			RateLimitPerMin: 20,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "voltbot",
			User:          "voltbot",
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
			Endpoint:       "",
			Region:         "us-east-1",
			Bucket:         "voltbot-data",
			ForcePathStyle: false,
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Prefix:  "archive/positions",
		},
		Report: ReportConfig{
			SummaryInterval: duration{1 * time.Hour},
			PregameInterval: duration{30 * time.Minute},
			PregameTopN:     5,
		},
		Server: ServerConfig{
			Enabled:   false,
			Port:      8080,
			RateLimit: 120,
		},
		Notify: NotifyConfig{
			Events:        []string{"position_opened", "position_closed", "feed_error", "feed_recovered", "trading_halted", "summary", "pregame_summary"},
			AlertCooldown: duration{5 * time.Minute},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"trade":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validDirections = map[string]bool{
	"both":      true,
	"sell_only": true,
	"buy_only":  true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, trade)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Feed
	if c.Feed.BaseURL == "" {
		errs = append(errs, "feed: base_url must not be empty")
	}
	if c.Feed.APIKey == "" {
		errs = append(errs, "feed: api_key must be set (VOLTBOT_FEED_API_KEY)")
	}
	if c.Feed.PollInterval.Duration < time.Second {
		errs = append(errs, fmt.Sprintf("feed: poll_interval must be at least 1s, got %s", c.Feed.PollInterval.Duration))
	}
	if c.Feed.PollInterval.Duration > 15*time.Second {
		errs = append(errs, fmt.Sprintf("feed: poll_interval above 15s risks missing changes, got %s", c.Feed.PollInterval.Duration))
	}
	if c.Feed.BackoffFactor <= 1 {
		errs = append(errs, "feed: backoff_factor must be > 1")
	}
	if c.Feed.BackoffMin.Duration <= 0 || c.Feed.BackoffMax.Duration < c.Feed.BackoffMin.Duration {
		errs = append(errs, "feed: backoff_min must be positive and backoff_max >= backoff_min")
	}
	if c.Feed.MaxConsecutiveFailures < 1 {
		errs = append(errs, "feed: max_consecutive_failures must be >= 1")
	}

	// Engine
	if c.Engine.WindowSize < 2 {
		errs = append(errs, "engine: window_size must be >= 2 (volatility is undefined below two samples)")
	}
	if c.Engine.WindowMaxAge.Duration <= 0 {
		errs = append(errs, "engine: window_max_age must be positive")
	}
	if c.Engine.EvalWorkers < 1 {
		errs = append(errs, "engine: eval_workers must be >= 1")
	}

	// Trading — only bind in trade mode; monitor never opens positions.
	if strings.ToLower(c.Mode) == "trade" {
		if c.Trading.Bankroll <= 0 {
			errs = append(errs, "trading: bankroll must be > 0")
		}
		if c.Trading.BaseSizePct <= 0 || c.Trading.BaseSizePct > 1 {
			errs = append(errs, "trading: base_size_pct must be in (0, 1]")
		}
		if c.Trading.MaxSizePct < c.Trading.BaseSizePct {
			errs = append(errs, "trading: max_size_pct must be >= base_size_pct")
		}
		if c.Trading.MaxPositions < 1 {
			errs = append(errs, "trading: max_positions must be >= 1")
		}
		if c.Trading.StopLossMult <= 1 {
			errs = append(errs, "trading: stop_loss_mult must be > 1")
		}
		if c.Trading.ReversionFrac <= 0 || c.Trading.ReversionFrac >= 1 {
			errs = append(errs, "trading: reversion_frac must be in (0, 1)")
		}
		if c.Trading.ExitGrace.Duration < 0 {
			errs = append(errs, "trading: exit_grace must not be negative")
		}
		if strings.TrimSpace(c.Postgres.DSN) == "" && c.Postgres.Host == "" {
			errs = append(errs, "postgres: dsn or host required in trade mode (positions must survive restarts)")
		}
	}

	// Leagues
	for name, lc := range c.Leagues {
		if lc.RegulationMinutes <= 0 {
			errs = append(errs, fmt.Sprintf("leagues.%s: regulation_minutes must be > 0", name))
		}
		if lc.VolThresholdPct <= 0 {
			errs = append(errs, fmt.Sprintf("leagues.%s: vol_threshold_pct must be > 0", name))
		}
		if lc.MaxHoldMinutes <= 0 {
			errs = append(errs, fmt.Sprintf("leagues.%s: max_hold_minutes must be > 0", name))
		}
		if lc.DirectionConstraint != "" && !validDirections[lc.DirectionConstraint] {
			errs = append(errs, fmt.Sprintf("leagues.%s: direction_constraint %q (valid: both, sell_only, buy_only)", name, lc.DirectionConstraint))
		}
	}

	// Advisory
	if c.Advisory.Enabled {
		if c.Advisory.APIKey == "" {
			errs = append(errs, "advisory: api_key required when enabled (VOLTBOT_ADVISORY_API_KEY)")
		}
		if c.Advisory.Timeout.Duration <= 0 {
			errs = append(errs, "advisory: timeout must be positive")
		}
		if c.Advisory.MinConfidence < 0 || c.Advisory.MinConfidence > 1 {
			errs = append(errs, "advisory: min_confidence must be in [0, 1]")
		}
	}

	// Postgres pool shape
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be in [0, pool_max_conns]")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Archive
	if c.Archive.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "archive: s3.bucket must be set when archive is enabled")
	}

	// Server
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("server: rate_limit must be >= 0, got %d", c.Server.RateLimit))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
