package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voltrade/voltbot/internal/domain"
)

// LineCache implements domain.LineCache using Redis hashes. Each line's last
// known quote lives at "quote:{lineKey}" with fields "points", "price",
// "prob", and "ts" (Unix nanoseconds). Entries carry a TTL so lines that
// stop quoting age out on their own.
type LineCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// quoteTTL keeps a quote recoverable across a feed outage or restart without
// letting dead lines accumulate.
const quoteTTL = 24 * time.Hour

// NewLineCache creates a LineCache backed by the given Client.
func NewLineCache(c *Client) *LineCache {
	return &LineCache{rdb: c.Underlying(), ttl: quoteTTL}
}

func quoteKey(line domain.LineID) string {
	return "quote:" + line.Key()
}

// SetQuote stores the last known quote for a line.
func (lc *LineCache) SetQuote(ctx context.Context, line domain.LineID, q domain.Quote) error {
	key := quoteKey(line)
	fields := map[string]interface{}{
		"points": strconv.FormatFloat(q.Points, 'f', -1, 64),
		"price":  strconv.FormatFloat(q.Price, 'f', -1, 64),
		"prob":   strconv.FormatFloat(q.Prob, 'f', -1, 64),
		"ts":     strconv.FormatInt(q.UpdatedAt.UnixNano(), 10),
	}

	pipe := lc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, lc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", line.Key(), err)
	}
	return nil
}

// GetQuote retrieves the last known quote for a line. Returns
// domain.ErrNotFound when nothing is cached.
func (lc *LineCache) GetQuote(ctx context.Context, line domain.LineID) (domain.Quote, error) {
	vals, err := lc.rdb.HGetAll(ctx, quoteKey(line)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", line.Key(), err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}
	q, err := parseQuote(vals)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", line.Key(), err)
	}
	return q, nil
}

// GetQuotes retrieves quotes for multiple lines in one pipeline. Lines with
// no cached quote are omitted from the result.
func (lc *LineCache) GetQuotes(ctx context.Context, lines []domain.LineID) (map[domain.LineID]domain.Quote, error) {
	if len(lines) == 0 {
		return map[domain.LineID]domain.Quote{}, nil
	}

	pipe := lc.rdb.Pipeline()
	cmds := make(map[domain.LineID]*redis.MapStringStringCmd, len(lines))
	for _, line := range lines {
		cmds[line] = pipe.HGetAll(ctx, quoteKey(line))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline: %w", err)
	}

	result := make(map[domain.LineID]domain.Quote, len(lines))
	for line, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		q, err := parseQuote(vals)
		if err != nil {
			continue
		}
		result[line] = q
	}
	return result, nil
}

func parseQuote(vals map[string]string) (domain.Quote, error) {
	var q domain.Quote
	var err error
	if q.Points, err = strconv.ParseFloat(vals["points"], 64); err != nil {
		return domain.Quote{}, fmt.Errorf("parse points: %w", err)
	}
	if q.Price, err = strconv.ParseFloat(vals["price"], 64); err != nil {
		return domain.Quote{}, fmt.Errorf("parse price: %w", err)
	}
	if q.Prob, err = strconv.ParseFloat(vals["prob"], 64); err != nil {
		return domain.Quote{}, fmt.Errorf("parse prob: %w", err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse ts: %w", err)
	}
	q.UpdatedAt = time.Unix(0, tsNano)
	return q, nil
}

// Compile-time interface check.
var _ domain.LineCache = (*LineCache)(nil)
