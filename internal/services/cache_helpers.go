package services

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/black-bourne/educ-backend/internal/cache"
	"github.com/black-bourne/educ-backend/pkg/logger"
)

// listCache wraps a cache.Store with a versioned namespace so a whole family
// of keys can be invalidated at once. Listing keys embed the current version;
// bumping the version orphans every old entry, which then ages out by TTL.
// This works identically on the Redis and database backends, neither of which
// supports prefix deletion.
type listCache struct {
	store     cache.Store
	namespace string
	ttl       time.Duration
}

func newListCache(store cache.Store, namespace string, ttl time.Duration) *listCache {
	return &listCache{store: store, namespace: namespace, ttl: ttl}
}

func (c *listCache) versionKey() string {
	return c.namespace + ":ver"
}

func (c *listCache) version(ctx context.Context) string {
	if c.store == nil {
		return "0"
	}
	value, found, err := c.store.Get(ctx, c.versionKey())
	if err != nil || !found {
		return "0"
	}
	return string(value)
}

func (c *listCache) entryKey(ctx context.Context, suffix string) string {
	return c.namespace + ":v" + c.version(ctx) + ":" + suffix
}

// GetJSON loads and decodes a cached listing. A miss or a decode failure both
// report absent.
func (c *listCache) GetJSON(ctx context.Context, suffix string, out any) bool {
	if c.store == nil {
		return false
	}
	value, found, err := c.store.Get(ctx, c.entryKey(ctx, suffix))
	if err != nil || !found {
		return false
	}
	if err := json.Unmarshal(value, out); err != nil {
		return false
	}
	return true
}

// SetJSON encodes and stores a listing. Cache failures are logged, never
// surfaced: the response was already computed.
func (c *listCache) SetJSON(ctx context.Context, suffix string, value any) {
	if c.store == nil {
		return
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, c.entryKey(ctx, suffix), encoded, c.ttl); err != nil {
		logger.WithModule("cache").Warn("cache write failed",
			zap.String("namespace", c.namespace),
			zap.Error(err),
		)
	}
}

// Forget drops a single cached listing.
func (c *listCache) Forget(ctx context.Context, suffix string) {
	if c.store == nil {
		return
	}
	if err := c.store.Delete(ctx, c.entryKey(ctx, suffix)); err != nil {
		logger.WithModule("cache").Warn("cache delete failed",
			zap.String("namespace", c.namespace),
			zap.Error(err),
		)
	}
}

// Invalidate bumps the namespace version, orphaning every cached listing.
func (c *listCache) Invalidate(ctx context.Context) {
	if c.store == nil {
		return
	}
	next := time.Now().UTC().Format("20060102150405.000000000")
	if err := c.store.Set(ctx, c.versionKey(), []byte(next), 0); err != nil {
		logger.WithModule("cache").Warn("cache invalidation failed",
			zap.String("namespace", c.namespace),
			zap.Error(err),
		)
	}
}
