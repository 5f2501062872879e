package domain

import (
	"context"
	"time"
)

// Quote is the last known market state for one line, small enough to survive
// in cache across feed outages and restarts.
type Quote struct {
	Points    float64
	Price     float64
	Prob      float64 // implied probability, 0..1
	UpdatedAt time.Time
}

// LineCache holds last-known quotes keyed by line identity. It backs risk
// monitoring while the feed is down and rehydration after a restart, so
// stop-loss and timeout checks never run blind.
type LineCache interface {
	SetQuote(ctx context.Context, line LineID, q Quote) error
	GetQuote(ctx context.Context, line LineID) (Quote, error)
	GetQuotes(ctx context.Context, lines []LineID) (map[LineID]Quote, error)
}

// Cooldown suppresses repeats of the same keyed action within a TTL.
// Acquire returns true exactly once per key per window.
type Cooldown interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage is a single entry read back from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// Bus publishes operational events: ephemeral pub/sub for live consumers and
// capped durable streams for tailing position history.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
