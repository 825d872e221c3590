package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// UnreadCache caches per-user unread notification counts in redis.
// Redis being unavailable is never an error: reads miss, writes are
// dropped, and callers fall back to the database.
type UnreadCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewUnreadCache(rdb *redis.Client, ttl time.Duration) *UnreadCache {
	return &UnreadCache{rdb: rdb, ttl: ttl}
}

func (c *UnreadCache) key(userID int64) string {
	return fmt.Sprintf("notif:unread:%d", userID)
}

func (c *UnreadCache) Get(ctx context.Context, userID int64) (int, bool) {
	if c == nil || c.rdb == nil {
		return 0, false
	}
	val, err := c.rdb.Get(ctx, c.key(userID)).Result()
	if err != nil {
		return 0, false
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, false
	}
	return count, true
}

func (c *UnreadCache) Set(ctx context.Context, userID int64, count int) {
	if c == nil || c.rdb == nil {
		return
	}
	_ = c.rdb.Set(ctx, c.key(userID), count, c.ttl).Err()
}

func (c *UnreadCache) Invalidate(ctx context.Context, userID int64) {
	if c == nil || c.rdb == nil {
		return
	}
	_ = c.rdb.Del(ctx, c.key(userID)).Err()
}
