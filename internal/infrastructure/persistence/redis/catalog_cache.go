package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// CachedCatalog is a read-through cache in front of an admission.CatalogLookup.
// The whole catalog is cached as one snapshot since the source API serves it
// in a single page. Cache failures degrade to the source, never to an error.
type CachedCatalog struct {
	source admission.CatalogLookup
	cache  *Cache
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedCatalog wraps source with a snapshot cache stored under the dataset key.
func NewCachedCatalog(source admission.CatalogLookup, cache *Cache, dataset string, ttl time.Duration, logger *slog.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = TTLCatalogCache
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedCatalog{
		source: source,
		cache:  cache,
		key:    CatalogKey(dataset),
		ttl:    ttl,
		logger: logger,
	}
}

// ListPrograms returns the cached catalog, loading it from the source on a miss.
func (c *CachedCatalog) ListPrograms(ctx context.Context) ([]admission.CatalogProgram, error) {
	var programs []admission.CatalogProgram
	err := c.cache.Get(ctx, c.key, &programs)
	if err == nil {
		return programs, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn("catalog cache read failed", "key", c.key, "error", err)
	}

	programs, err = c.source.ListPrograms(ctx)
	if err != nil {
		return nil, err
	}

	if len(programs) > 0 {
		if err := c.cache.Set(ctx, c.key, programs, c.ttl); err != nil {
			c.logger.Warn("catalog cache write failed", "key", c.key, "error", err)
		}
	}
	return programs, nil
}

// LookupProgram serves the program from the cached snapshot and falls back
// to a direct source lookup when the snapshot does not contain it.
func (c *CachedCatalog) LookupProgram(ctx context.Context, id shared.ProgramID) (*admission.CatalogProgram, error) {
	programs, err := c.ListPrograms(ctx)
	if err == nil {
		for i := range programs {
			if programs[i].ID == id {
				p := programs[i]
				return &p, nil
			}
		}
	}
	return c.source.LookupProgram(ctx, id)
}

// Invalidate drops the cached snapshot.
func (c *CachedCatalog) Invalidate(ctx context.Context) error {
	return c.cache.Delete(ctx, c.key)
}
