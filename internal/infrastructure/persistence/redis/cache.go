// Package redis backs the hub's shared state with Redis: the catalog
// snapshot, resolved admission criteria and the matching run lock.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss          = errors.New("cache: key not found")
	ErrCacheConnection    = errors.New("cache: connection failed")
	ErrCacheSerialization = errors.New("cache: serialization failed")
)

// Key namespaces and their default lifetimes.
const (
	PrefixCriteria = "criteria:"
	PrefixCatalog  = "catalog:"
	PrefixLock     = "lock:"

	TTLCriteriaCache   = 24 * time.Hour
	TTLCatalogCache    = time.Hour
	TTLDistributedLock = 15 * time.Minute
)

func CriteriaKey(fingerprint string) string { return PrefixCriteria + fingerprint }
func LockKey(resource string) string        { return PrefixLock + resource }

func CatalogKey(dataset string) string {
	if dataset == "" {
		dataset = "default"
	}
	return PrefixCatalog + dataset
}

// Config describes the connection. URL, when set, replaces Host, Port,
// Password and DB; the pool and timeout settings apply either way.
type Config struct {
	URL      string
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func (c Config) Addr() string { return net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) }

func (c Config) Options() (*redis.Options, error) {
	opts := &redis.Options{Addr: c.Addr(), Password: c.Password, DB: c.DB}
	if c.URL != "" {
		var err error
		if opts, err = redis.ParseURL(c.URL); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
		}
	}
	opts.PoolSize, opts.MinIdleConns, opts.MaxRetries = c.PoolSize, c.MinIdleConns, c.MaxRetries
	opts.DialTimeout, opts.ReadTimeout, opts.WriteTimeout = c.DialTimeout, c.ReadTimeout, c.WriteTimeout
	return opts, nil
}

// Cache stores JSON values. One client is shared by the criteria cache, the
// catalog snapshot, the run lock and the Redis event bus.
type Cache struct {
	client redis.UniversalClient
}

// NewCache connects and pings within DialTimeout.
func NewCache(cfg Config) (*Cache, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}
	return &Cache{client: client}, nil
}

func (c *Cache) Client() redis.UniversalClient  { return c.client }
func (c *Cache) Close() error                   { return c.client.Close() }
func (c *Cache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCacheSerialization, key, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get decodes the value into dest, or returns ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCacheSerialization, key, err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
