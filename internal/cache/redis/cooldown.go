package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voltrade/voltbot/internal/domain"
)

// CooldownGuard implements domain.Cooldown using SETNX with a TTL. The first
// acquire for a key wins; repeats within the window lose until the key
// expires. Unlike a lock there is no release: the window always runs out.
type CooldownGuard struct {
	rdb *redis.Client
}

// NewCooldownGuard creates a CooldownGuard backed by the given Client.
func NewCooldownGuard(c *Client) *CooldownGuard {
	return &CooldownGuard{rdb: c.Underlying()}
}

func cooldownKey(key string) string {
	return "cooldown:" + key
}

// Acquire returns true exactly once per key per TTL window.
func (cg *CooldownGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := cg.rdb.SetNX(ctx, cooldownKey(key), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: acquire cooldown %s: %w", key, err)
	}
	return ok, nil
}

// Compile-time interface check.
var _ domain.Cooldown = (*CooldownGuard)(nil)
