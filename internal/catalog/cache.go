package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "consolidation:version"
	// BumpChannel carries cache invalidation notifications.
	BumpChannel = "consolidation.bump"
)

// ConsolidationCache wraps Redis based caching of the consolidated view with
// versioning controls. Writers never touch cached rows directly; they bump
// the version and let the next read (or the refresh job) repopulate.
type ConsolidationCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewConsolidationCache instantiates the cache helper.
func NewConsolidationCache(client *redis.Client, ttl time.Duration) *ConsolidationCache {
	return &ConsolidationCache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *ConsolidationCache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *ConsolidationCache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := "consolidation"
	for _, p := range parts {
		joined += ":" + p
	}
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// FetchView loads the cached consolidated view or populates it using the
// loader. A nil client degrades to calling the loader directly.
func (c *ConsolidationCache) FetchView(ctx context.Context, key string, loader func(context.Context) ([]ConsolidatedProduct, error)) ([]ConsolidatedProduct, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var view []ConsolidatedProduct
		if err := json.Unmarshal(raw, &view); err == nil {
			return view, nil
		}
		// Corrupt entry; fall through and repopulate.
	} else if err != redis.Nil {
		return nil, err
	}

	view, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(view)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		return nil, err
	}
	return view, nil
}

// Bump invalidates every cached key by advancing the version and notifies
// subscribers on the bump channel.
func (c *ConsolidationCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, cacheVersionKey).Err(); err != nil {
		return err
	}
	return c.client.Publish(ctx, BumpChannel, "bump").Err()
}
