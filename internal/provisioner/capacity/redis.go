package capacity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores counts in Redis so all provisioner processes share one
// view of server capacity.
type RedisCache struct {
	client redis.UniversalClient
}

// incrIfExists bumps the key only when it already exists, preserving its TTL.
// Returns [new_value, 1] or [0, 0] when absent.
var incrIfExists = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return {redis.call("INCRBY", KEYS[1], ARGV[1]), 1}
end
return {0, 0}
`)

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, serverID int64) (int, bool, error) {
	count, err := c.client.Get(ctx, Key(serverID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get %s: %w", Key(serverID), err)
	}
	return count, true, nil
}

func (c *RedisCache) Set(ctx context.Context, serverID int64, count int, ttl time.Duration) error {
	if err := c.client.Set(ctx, Key(serverID), count, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", Key(serverID), err)
	}
	return nil
}

func (c *RedisCache) Increment(ctx context.Context, serverID int64, delta int) (int, bool, error) {
	res, err := incrIfExists.Run(ctx, c.client, []string{Key(serverID)}, delta).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("redis incr %s: %w", Key(serverID), err)
	}
	if len(res) != 2 || res[1] == 0 {
		return 0, false, nil
	}
	return int(res[0]), true, nil
}

// Ping verifies connectivity at startup.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
