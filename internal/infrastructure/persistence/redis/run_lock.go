package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const matchingRunResource = "matching-run"

// releaseIfOwner deletes KEYS[1] only while it still holds ARGV[1].
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock implements admission.RunLock. The value is the owning run ID; the
// TTL bounds how long a crashed holder blocks other runs.
type RunLock struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

func NewRunLock(cache *Cache, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = TTLDistributedLock
	}
	return &RunLock{client: cache.Client(), key: LockKey(matchingRunResource), ttl: ttl}
}

// Acquire reports false when another run holds the lock.
func (l *RunLock) Acquire(ctx context.Context, runID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, runID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire run lock: %w", err)
	}
	return ok, nil
}

// Release is a no-op when the lock expired or belongs to another run.
func (l *RunLock) Release(ctx context.Context, runID string) error {
	if err := releaseIfOwner.Run(ctx, l.client, []string{l.key}, runID).Err(); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}
