package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/robert-malhotra/stac-composite/internal/composite"
)

// CachedService caches Fetch results of another CollectionService in an
// LRU. Reductions and aggregations are passed through.
type CachedService struct {
	inner  CollectionService
	cache  *lru.Cache[string, *composite.Collection]
	hits   atomic.Int64
	misses atomic.Int64
	logger *slog.Logger
}

var _ CollectionService = (*CachedService)(nil)

// NewCachedService wraps inner with a cache holding up to size fetch results.
func NewCachedService(inner CollectionService, size int, logger *slog.Logger) (*CachedService, error) {
	cache, err := lru.New[string, *composite.Collection](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedService{inner: inner, cache: cache, logger: logger}, nil
}

// Name returns the wrapped backend's name.
func (c *CachedService) Name() string {
	return c.inner.Name()
}

// Fetch implements CollectionService. Callers get their own record slice;
// grids are shared.
func (c *CachedService) Fetch(ctx context.Context, params FetchParams) (*composite.Collection, error) {
	key := params.CacheKey()
	if coll, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		c.logger.DebugContext(ctx, "fetch cache hit", slog.String("key", key))
		return cloneCollection(coll), nil
	}
	c.misses.Add(1)

	coll, err := c.inner.Fetch(ctx, params)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cloneCollection(coll))
	return coll, nil
}

// ReduceMean implements CollectionService.
func (c *CachedService) ReduceMean(ctx context.Context, records []composite.Record) (composite.Record, error) {
	return c.inner.ReduceMean(ctx, records)
}

// AggregateScalar implements CollectionService.
func (c *CachedService) AggregateScalar(ctx context.Context, records []composite.Record, field string) ([]float64, error) {
	return c.inner.AggregateScalar(ctx, records, field)
}

// Hits returns the number of cache hits.
func (c *CachedService) Hits() int64 { return c.hits.Load() }

// Misses returns the number of cache misses.
func (c *CachedService) Misses() int64 { return c.misses.Load() }

// Len returns the number of cached fetch results.
func (c *CachedService) Len() int { return c.cache.Len() }

func cloneCollection(coll *composite.Collection) *composite.Collection {
	records := make([]composite.Record, len(coll.Records))
	copy(records, coll.Records)
	return &composite.Collection{ID: coll.ID, Records: records}
}
