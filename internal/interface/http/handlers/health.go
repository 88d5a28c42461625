package handlers

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthChecker backs /health and /ready.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
	AddCheck(name string, check HealthCheckFunc)
	RemoveCheck(name string)
}

// HealthCheckFunc returns nil when the dependency is usable.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the JSON body of both probes. Healthy ignores readiness
// checks; Ready takes every check into account.
type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Ready     bool                   `json:"ready"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

type CheckResult struct {
	Healthy     bool      `json:"healthy"`
	Message     string    `json:"message,omitempty"`
	Duration    string    `json:"duration,omitempty"`
	LastChecked time.Time `json:"last_checked,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPOSITE CHECKER
// ══════════════════════════════════════════════════════════════════════════════

type namedCheck struct {
	fn        HealthCheckFunc
	readiness bool
}

// CompositeHealthChecker runs its checks concurrently, each bounded by its
// own timeout, and aggregates them into one HealthStatus.
type CompositeHealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]namedCheck
	started time.Time
	version string
	timeout time.Duration
}

func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		checks:  make(map[string]namedCheck),
		started: time.Now(),
		version: version,
		timeout: 5 * time.Second,
	}
}

// SetTimeout bounds each individual check. Call it before serving traffic.
func (c *CompositeHealthChecker) SetTimeout(d time.Duration) { c.timeout = d }

func (c *CompositeHealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.add(name, namedCheck{fn: check})
}

// AddReadinessCheck registers a check whose failure only clears Ready. The
// catalog uses it: stored programs stay readable while the portal is down.
func (c *CompositeHealthChecker) AddReadinessCheck(name string, check HealthCheckFunc) {
	c.add(name, namedCheck{fn: check, readiness: true})
}

func (c *CompositeHealthChecker) add(name string, nc namedCheck) {
	c.mu.Lock()
	c.checks[name] = nc
	c.mu.Unlock()
}

func (c *CompositeHealthChecker) RemoveCheck(name string) {
	c.mu.Lock()
	delete(c.checks, name)
	c.mu.Unlock()
}

func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]namedCheck, len(c.checks))
	for name, nc := range c.checks {
		checks[name] = nc
	}
	c.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Ready:     true,
		Uptime:    time.Since(c.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}
	if len(checks) == 0 {
		status.Message = "No health checks registered"
		return status
	}

	var (
		mu      sync.Mutex
		results = make(map[string]CheckResult, len(checks))
		g       errgroup.Group
	)
	for name, nc := range checks {
		name, nc := name, nc
		g.Go(func() error {
			res := c.run(ctx, nc.fn)
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	for name, res := range results {
		if res.Healthy {
			continue
		}
		failed = append(failed, name)
		status.Ready = false
		if !checks[name].readiness {
			status.Healthy = false
		}
	}
	status.Checks = results

	if len(failed) == 0 {
		status.Message = "All checks passed"
	} else {
		slices.Sort(failed)
		status.Message = "Some checks failed: " + strings.Join(failed, ", ")
	}
	return status
}

func (c *CompositeHealthChecker) run(ctx context.Context, fn HealthCheckFunc) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	res := CheckResult{
		Healthy:     err == nil,
		Message:     "OK",
		Duration:    time.Since(start).Round(time.Millisecond).String(),
		LastChecked: time.Now().UTC(),
	}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// Pinger is satisfied by the Postgres connection, the Redis cache and the
// catalog client.
type Pinger interface {
	Ping(ctx context.Context) error
}

func NewCacheCheck(cache Pinger) HealthCheckFunc { return cache.Ping }

// NewCatalogCheck fails while the catalog breaker is open or the portal
// does not answer a zero-row query.
func NewCatalogCheck(catalog Pinger) HealthCheckFunc { return catalog.Ping }
