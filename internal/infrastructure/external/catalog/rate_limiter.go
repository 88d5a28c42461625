package catalog

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// slowdown is applied to the refill rate on every 429 until Reset.
const slowdown = 0.8

type RateLimiterConfig struct {
	RequestsPerMinute int
	BurstSize         int
	// WaitTimeout caps how long Allow blocks; 0 waits as long as ctx allows.
	WaitTimeout time.Duration
}

// DefaultRateLimiterConfig stays well below the portal's anonymous quota.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{RequestsPerMinute: 30, BurstSize: 5, WaitTimeout: 30 * time.Second}
}

// RateLimitError means the wait for a request slot would exceed WaitTimeout.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// RateLimiter is a token bucket refilled continuously. A 429 from the
// portal empties it, blocks it for the advertised delay and slows refills.
type RateLimiter struct {
	burst    float64
	perSec   float64 // configured refill, restored by Reset
	maxWait  time.Duration
	mu       sync.Mutex
	rate     float64
	tokens   float64
	updated  time.Time
	blockEnd time.Time
}

func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRateLimiterConfig().RequestsPerMinute
	}
	rl := &RateLimiter{
		burst:   float64(max(cfg.BurstSize, 1)),
		perSec:  float64(cfg.RequestsPerMinute) / 60,
		maxWait: cfg.WaitTimeout,
	}
	rl.Reset()
	return rl
}

// Allow waits for a token.
func (rl *RateLimiter) Allow(ctx context.Context) error {
	var waited time.Duration
	for {
		wait := rl.take(time.Now())
		if wait == 0 {
			return nil
		}
		if rl.maxWait > 0 && waited+wait > rl.maxWait {
			return &RateLimitError{RetryAfter: wait}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			waited += wait
		}
	}
}

func (rl *RateLimiter) TryAllow() bool { return rl.take(time.Now()) == 0 }

// take consumes a token and returns 0, or returns how long until one could
// be available.
func (rl *RateLimiter) take(now time.Time) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Before(rl.blockEnd) {
		return rl.blockEnd.Sub(now)
	}
	rl.refill(now)
	if rl.tokens >= 1 {
		rl.tokens--
		return 0
	}
	secs := (1 - rl.tokens) / rl.rate
	return time.Duration(math.Ceil(secs * float64(time.Second)))
}

func (rl *RateLimiter) refill(now time.Time) {
	if elapsed := now.Sub(rl.updated).Seconds(); elapsed > 0 {
		rl.tokens = math.Min(rl.burst, rl.tokens+elapsed*rl.rate)
		rl.updated = now
	}
}

func (rl *RateLimiter) RecordRateLimitHit(retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.tokens = 0
	rl.blockEnd = time.Now().Add(retryAfter)
	rl.rate *= slowdown
}

// Reset lifts any block and restores the configured rate with a full bucket.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.rate, rl.tokens = rl.perSec, rl.burst
	rl.updated, rl.blockEnd = time.Now(), time.Time{}
}

type RateLimiterStatus struct {
	AvailableTokens float64
	MaxTokens       float64
	RefillRate      float64 // tokens per second
	BlockedUntil    time.Time
}

func (rl *RateLimiter) Status() RateLimiterStatus {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill(time.Now())
	return RateLimiterStatus{
		AvailableTokens: rl.tokens,
		MaxTokens:       rl.burst,
		RefillRate:      rl.rate,
		BlockedUntil:    rl.blockEnd,
	}
}
