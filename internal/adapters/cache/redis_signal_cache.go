package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"freight-route-service/internal/platform/obs"
	"freight-route-service/internal/ports"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "freight:signal:"

// RedisSignalCache stores risk signal readings in Redis with per-key expiry.
type RedisSignalCache struct {
	client redis.Cmdable
	prefix string
}

func NewRedisSignalCache(client redis.Cmdable) *RedisSignalCache {
	return &RedisSignalCache{client: client, prefix: defaultKeyPrefix}
}

func (c *RedisSignalCache) Get(ctx context.Context, key string) (_ ports.SignalReading, _ bool, err error) {
	defer obs.Time(ctx, "signal.cache.redis.Get")(&err)

	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ports.SignalReading{}, false, nil
	}
	if err != nil {
		return ports.SignalReading{}, false, fmt.Errorf("redis signal cache get %q: %w", key, err)
	}

	var r ports.SignalReading
	if err := json.Unmarshal(raw, &r); err != nil {
		return ports.SignalReading{}, false, fmt.Errorf("redis signal cache get %q: decode: %w", key, err)
	}
	return r, true, nil
}

func (c *RedisSignalCache) Put(ctx context.Context, key string, r ports.SignalReading, ttl time.Duration) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("redis signal cache put %q: encode: %w", key, err)
	}
	if err := c.client.Set(ctx, c.prefix+key, b, ttl).Err(); err != nil {
		return fmt.Errorf("redis signal cache put %q: %w", key, err)
	}
	return nil
}
