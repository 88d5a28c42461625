package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_OptionsFromURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "redis://:secret@cache.internal:6380/2"

	opts, err := cfg.Options()
	require.NoError(t, err)

	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, cfg.PoolSize, opts.PoolSize)
	assert.Equal(t, 3*time.Second, opts.ReadTimeout)
}

func TestConfig_OptionsFromParts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "redis"
	cfg.DB = 1

	opts, err := cfg.Options()
	require.NoError(t, err)

	assert.Equal(t, "redis:6379", opts.Addr)
	assert.Equal(t, 1, opts.DB)
}

func TestConfig_OptionsRejectsBadURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "http://not-redis"

	_, err := cfg.Options()
	assert.ErrorIs(t, err, ErrCacheConnection)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "criteria:abc", CriteriaKey("abc"))
	assert.Equal(t, "catalog:fr-esr-parcoursup", CatalogKey("fr-esr-parcoursup"))
	assert.Equal(t, "catalog:default", CatalogKey(""))
	assert.Equal(t, "lock:matching-run", LockKey(matchingRunResource))
}
