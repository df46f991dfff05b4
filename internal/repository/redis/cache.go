package redisrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache is a JSON read-through cache for derived read models (event
// summaries, announcement lists). Capacity and schedule decisions are never
// taken from it.
type Cache struct {
	rdb *redis.Client
	sf  singleflight.Group
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{rdb: client}
}

// lookup reports a hit only for a present, decodable value. A corrupt entry
// is treated as a miss and will be overwritten by the next load.
func lookup[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var out T

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return out, false
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false
	}

	return out, true
}

// ReadThrough returns the cached value under key or calls load, stores its
// result for ttl and returns it. Concurrent misses on one key share a single
// load. Redis failures degrade to calling load directly.
func ReadThrough[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	load func(ctx context.Context) (T, error),
) (T, error) {
	if v, ok := lookup[T](ctx, c, key); ok {
		return v, nil
	}

	shared, err, _ := c.sf.Do(key, func() (any, error) {
		if v, ok := lookup[T](ctx, c, key); ok {
			return v, nil
		}

		v, err := load(ctx)
		if err != nil {
			return nil, err
		}

		if b, err := json.Marshal(v); err == nil {
			_ = c.rdb.Set(ctx, key, b, ttl).Err()
		}

		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	v, ok := shared.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("redisrepo.ReadThrough: unexpected %T for %s", shared, key)
	}

	return v, nil
}

// InvalidateEvent drops every read model derived from the event.
func (c *Cache) InvalidateEvent(ctx context.Context, eventID uuid.UUID) error {
	const op = "redisrepo.Cache.InvalidateEvent"

	if err := c.rdb.Del(ctx, KeyEventSummary(eventID), KeyEventAnnouncements(eventID)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
