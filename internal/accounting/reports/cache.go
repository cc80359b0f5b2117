package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionPrefix = "ledger:reports:version"
	bumpChannel        = "gl.bump"
)

// Cache wraps Redis based caching with per-period versioning. Bumping a
// period's version orphans every key built from the previous version.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func versionKey(periodID int64) string {
	return fmt.Sprintf("%s:%d", cacheVersionPrefix, periodID)
}

// Version returns the current version of a period, initialising when missing.
func (c *Cache) Version(ctx context.Context, periodID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ok, err := c.client.SetNX(ctx, versionKey(periodID), 1, 0).Result()
	if err != nil {
		return 0, err
	}
	if ok {
		return 1, nil
	}
	return c.client.Get(ctx, versionKey(periodID)).Int64()
}

// BuildKey composes the cache key with the current version of the period.
func (c *Cache) BuildKey(ctx context.Context, periodID int64, parts ...string) (string, error) {
	joined := strings.Join(append([]string{"ledger", "reports"}, parts...), ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx, periodID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d:v%d", joined, periodID, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c != nil && c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates a period by incrementing its version and publishing the
// new version on the bump channel.
func (c *Cache) Bump(ctx context.Context, periodID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, versionKey(periodID)).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, fmt.Sprintf("%d:%d", periodID, ver)).Err()
}
