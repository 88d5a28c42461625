package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
)

// CriteriaCache implements admission.CriteriaCache. Identical catalog
// attributes always resolve to identical criteria, so entries are keyed by
// the attribute fingerprint and never need explicit invalidation.
// Failures are logged here and still returned so the resolver can count them.
type CriteriaCache struct {
	cache  *Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCriteriaCache creates a new CriteriaCache. A non-positive ttl falls back
// to TTLCriteriaCache.
func NewCriteriaCache(cache *Cache, ttl time.Duration, logger *slog.Logger) *CriteriaCache {
	if ttl <= 0 {
		ttl = TTLCriteriaCache
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CriteriaCache{cache: cache, ttl: ttl, logger: logger.With("component", "criteria_cache")}
}

// GetCriteria returns cached criteria. A miss is reported as (nil, nil).
func (c *CriteriaCache) GetCriteria(ctx context.Context, fingerprint string) (*admission.Criteria, error) {
	var criteria admission.Criteria
	err := c.cache.Get(ctx, CriteriaKey(fingerprint), &criteria)
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		c.logger.Warn("criteria cache read failed", "fingerprint", fingerprint, "error", err)
		return nil, err
	}
	return &criteria, nil
}

// SetCriteria stores resolved criteria under the fingerprint.
func (c *CriteriaCache) SetCriteria(ctx context.Context, fingerprint string, criteria admission.Criteria) error {
	if err := c.cache.Set(ctx, CriteriaKey(fingerprint), criteria, c.ttl); err != nil {
		c.logger.Warn("criteria cache write failed", "fingerprint", fingerprint, "error", err)
		return err
	}
	return nil
}
