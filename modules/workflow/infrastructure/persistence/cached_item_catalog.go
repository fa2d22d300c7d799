package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/workflow-console/modules/workflow/domain/aggregates/assignment"
	"github.com/iota-uz/workflow-console/modules/workflow/infrastructure/persistence/models"
)

const catalogCachePrefix = "workflow:catalog:v1"

var errCacheMiss = errors.New("catalog cache miss")

type catalogCache interface {
	get(ctx context.Context, key string) ([]byte, error)
	set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	del(ctx context.Context, keys ...string) error
}

type redisCatalogCache struct {
	client *redis.Client
}

func (c redisCatalogCache) get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, errCacheMiss
	}
	return b, err
}

func (c redisCatalogCache) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c redisCatalogCache) del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// CachedItemCatalog serves ListItems from redis and falls back to the wrapped
// catalog on a miss. Redis failures are logged and never fail the read.
type CachedItemCatalog struct {
	inner  assignment.ItemCatalog
	cache  catalogCache
	ttl    time.Duration
	logger *logrus.Logger
}

func NewCachedItemCatalog(inner assignment.ItemCatalog, client *redis.Client, ttl time.Duration, logger *logrus.Logger) *CachedItemCatalog {
	return newCachedItemCatalog(inner, redisCatalogCache{client: client}, ttl, logger)
}

func newCachedItemCatalog(inner assignment.ItemCatalog, cache catalogCache, ttl time.Duration, logger *logrus.Logger) *CachedItemCatalog {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CachedItemCatalog{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func catalogKey(scopeID string) string {
	return fmt.Sprintf("%s:{%s}", catalogCachePrefix, scopeID)
}

func (c *CachedItemCatalog) ListItems(ctx context.Context, scopeID string) ([]assignment.Item, error) {
	key := catalogKey(scopeID)
	raw, err := c.cache.get(ctx, key)
	switch {
	case err == nil:
		var cached []models.CachedItem
		if jerr := json.Unmarshal(raw, &cached); jerr == nil {
			return FromCachedItems(cached), nil
		}
		c.logger.WithField("key", key).Warn("dropping undecodable catalog cache entry")
	case !errors.Is(err, errCacheMiss):
		c.logger.WithError(err).WithField("key", key).Warn("catalog cache read failed")
	}

	items, err := c.inner.ListItems(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(ToCachedItems(items))
	if err != nil {
		return items, nil
	}
	if err := c.cache.set(ctx, key, payload, c.ttl); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("catalog cache write failed")
	}
	return items, nil
}

// Invalidate drops the cached catalog of the given scopes.
func (c *CachedItemCatalog) Invalidate(ctx context.Context, scopeIDs ...string) error {
	if len(scopeIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(scopeIDs))
	for _, id := range scopeIDs {
		keys = append(keys, catalogKey(id))
	}
	return errors.Wrap(c.cache.del(ctx, keys...), "invalidate catalog cache")
}
