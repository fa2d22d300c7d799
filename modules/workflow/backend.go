package workflow

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/workflow-console/modules/workflow/domain/aggregates/assignment"
	"github.com/iota-uz/workflow-console/modules/workflow/infrastructure/persistence"
	"github.com/iota-uz/workflow-console/modules/workflow/seed"
	"github.com/iota-uz/workflow-console/pkg/configuration"
)

// Backend bundles the collaborators the assignment editor talks to for one
// storage flavour.
type Backend struct {
	Catalog assignment.ItemCatalog
	Reader  assignment.SequenceReader
	Gateway assignment.PersistenceGateway
	Search  assignment.ScopeSearchService
	Writer  seed.Writer

	cache *persistence.CachedItemCatalog
	redis *redis.Client
}

func NewBackend(opts configuration.WorkflowOptions, redisURL string, logger *logrus.Logger) (*Backend, error) {
	b := &Backend{}
	switch opts.Storage {
	case configuration.StorageMemory:
		repo := persistence.NewInmemRepository(opts.SearchLimit)
		b.Catalog, b.Reader, b.Gateway, b.Search, b.Writer = repo, repo, repo, repo, repo
	case configuration.StoragePostgres, "":
		clients := persistence.NewPgClientRepository(opts.SearchLimit)
		sequences := persistence.NewPgSequenceRepository()
		b.Catalog = persistence.NewPgCatalogRepository()
		b.Reader, b.Gateway = sequences, sequences
		b.Search, b.Writer = clients, clients
	default:
		return nil, fmt.Errorf("unknown workflow storage %q", opts.Storage)
	}

	if opts.CatalogCacheTTL > 0 && redisURL != "" {
		b.redis = newRedisClient(redisURL)
		b.cache = persistence.NewCachedItemCatalog(b.Catalog, b.redis, opts.CatalogCacheTTL, logger)
		b.Catalog = b.cache
	}
	return b, nil
}

func newRedisClient(url string) *redis.Client {
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	return redis.NewClient(opts)
}

// Invalidate drops cached catalogs of the given scopes. It is a no-op
// without a cache.
func (b *Backend) Invalidate(ctx context.Context, scopeIDs ...string) error {
	if b.cache == nil {
		return nil
	}
	return b.cache.Invalidate(ctx, scopeIDs...)
}

func (b *Backend) Close() error {
	if b.redis == nil {
		return nil
	}
	return b.redis.Close()
}
