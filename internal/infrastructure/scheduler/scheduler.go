// Package scheduler runs the admissions hub background jobs: the scheduled
// matching run on a cron expression and the periodic catalog refresh on an
// interval. Schedules are evaluated in the hub's local zone (Europe/Paris).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/admissions-hub/admissions-hub/pkg/timeutil"
)

// Job is a unit of background work. Run receives a context cancelled on
// Stop or when the job timeout expires.
type Job interface {
	Name() string
	Description() string
	Run(ctx context.Context) error
}

// Schedule yields the first run strictly after t.
type Schedule interface {
	Next(t time.Time) time.Time
	String() string
}

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrNilSchedule             = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrJobNotFound             = errors.New("job not found")
	ErrJobRunning              = errors.New("job is already running")
	ErrJobPanic                = errors.New("job panicked")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

type SchedulerConfig struct {
	Logger   *slog.Logger
	Timezone *time.Location // timeutil.Zone() when nil

	MaxHistorySize    int
	MaxConcurrentJobs int
	JobTimeout        time.Duration // 0 means no limit

	EnableMetrics bool
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Logger:            slog.Default(),
		Timezone:          timeutil.Zone(),
		MaxHistorySize:    200,
		MaxConcurrentJobs: 2,
		JobTimeout:        10 * time.Minute,
		EnableMetrics:     true,
	}
}

func (c *SchedulerConfig) normalize() {
	def := DefaultSchedulerConfig()
	if c.Logger == nil {
		c.Logger = def.Logger
	}
	if c.Timezone == nil {
		c.Timezone = def.Timezone
	}
	if c.MaxHistorySize <= 0 {
		c.MaxHistorySize = def.MaxHistorySize
	}
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = def.MaxConcurrentJobs
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler ticks once a second and starts due jobs, at most
// MaxConcurrentJobs at a time. A job never overlaps with itself: a tick that
// finds it still running is skipped.
type Scheduler struct {
	cfg     SchedulerConfig
	log     *slog.Logger
	slots   *semaphore.Weighted
	metrics *SchedulerMetrics

	mu      sync.RWMutex
	entries map[string]*entry
	history []JobResult
	onDone  func(JobResult)

	// set while running
	cancel    context.CancelFunc
	ctx       context.Context
	startedAt time.Time
	wg        sync.WaitGroup
}

type entry struct {
	job      Job
	schedule Schedule
	enabled  bool
	busy     bool

	nextRun   time.Time
	lastRun   time.Time
	runCount  int64
	failCount int64
	last      *JobResult
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	cfg.normalize()
	s := &Scheduler{
		cfg:     cfg,
		log:     cfg.Logger.With("component", "scheduler"),
		slots:   semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs)),
		entries: make(map[string]*entry),
	}
	if cfg.EnableMetrics {
		s.metrics = NewSchedulerMetrics()
	}
	return s
}

func (s *Scheduler) now() time.Time { return time.Now().In(s.cfg.Timezone) }

func (s *Scheduler) Register(job Job, schedule Schedule) error {
	switch {
	case job == nil:
		return ErrNilJob
	case schedule == nil:
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}
	e := &entry{job: job, schedule: schedule, enabled: true, nextRun: schedule.Next(s.now())}
	s.entries[name] = e

	s.log.Info("job registered", "job", name, "schedule", schedule.String(), "next_run", e.nextRun.Format(time.RFC3339))
	return nil
}

func (s *Scheduler) Unregister(name string) error {
	return s.withEntry(name, func(*entry) { delete(s.entries, name) })
}

// EnableJob re-arms the job from the current time.
func (s *Scheduler) EnableJob(name string) error {
	return s.withEntry(name, func(e *entry) {
		e.enabled = true
		e.nextRun = e.schedule.Next(s.now())
	})
}

// DisableJob stops future ticks; an execution in progress continues.
func (s *Scheduler) DisableJob(name string) error {
	return s.withEntry(name, func(e *entry) { e.enabled = false })
}

func (s *Scheduler) withEntry(name string, fn func(*entry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	fn(e)
	return nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.ctx, s.cancel = loopCtx, cancel
	s.startedAt = time.Now()
	n := len(s.entries)
	s.mu.Unlock()

	s.log.Info("scheduler started", "jobs_count", n, "timezone", s.cfg.Timezone.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		tick := time.NewTicker(time.Second)
		defer tick.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case t := <-tick.C:
				s.dispatchDue(t.In(s.cfg.Timezone))
			}
		}
	}()
	return nil
}

// Stop cancels running jobs and waits for them.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return ErrSchedulerNotRunning
	}

	cancel()
	s.wg.Wait()
	s.log.Info("scheduler stopped", "uptime", time.Since(s.startedAt).Round(time.Second).String())
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancel != nil
}

// dispatchDue starts every enabled, idle job due at or before now and
// advances all due jobs to their next slot.
func (s *Scheduler) dispatchDue(now time.Time) {
	s.mu.Lock()
	var due []*entry
	for name, e := range s.entries {
		if !e.enabled || e.nextRun.IsZero() || e.nextRun.After(now) {
			continue
		}
		e.nextRun = e.schedule.Next(now)
		if e.busy {
			s.log.Warn("job still running, tick skipped", "job", name)
			continue
		}
		e.busy = true
		due = append(due, e)
	}
	ctx := s.ctx
	s.mu.Unlock()

	for _, e := range due {
		e := e
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release(e)
			if err := s.slots.Acquire(ctx, 1); err != nil {
				return
			}
			defer s.slots.Release(1)
			s.execute(ctx, e, false)
		}()
	}
}

func (s *Scheduler) release(e *entry) {
	s.mu.Lock()
	e.busy = false
	s.mu.Unlock()
}

// RunNow executes a job immediately, outside its schedule and the
// concurrency limit. It fails with ErrJobRunning if the job is busy.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*JobResult, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	switch {
	case !ok:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	case e.busy:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	e.busy = true
	s.mu.Unlock()
	defer s.release(e)

	res := s.execute(ctx, e, true)
	return &res, res.Error
}

// ══════════════════════════════════════════════════════════════════════════════
// INTROSPECTION
// ══════════════════════════════════════════════════════════════════════════════

type JobInfo struct {
	Name        string
	Description string
	Enabled     bool
	Running     bool
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	LastResult  *JobResult
}

func (e *entry) info() JobInfo {
	return JobInfo{
		Name:        e.job.Name(),
		Description: e.job.Description(),
		Enabled:     e.enabled,
		Running:     e.busy,
		Schedule:    e.schedule.String(),
		LastRun:     e.lastRun,
		NextRun:     e.nextRun,
		RunCount:    e.runCount,
		FailCount:   e.failCount,
		LastResult:  e.last,
	}
}

// ListJobs is sorted by job name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.entries))
	for _, e := range s.entries {
		infos = append(infos, e.info())
	}
	slices.SortFunc(infos, func(a, b JobInfo) int { return strings.Compare(a.Name, b.Name) })
	return infos
}

func (s *Scheduler) GetJobInfo(name string) (*JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	info := e.info()
	return &info, nil
}

// OnJobComplete installs a hook called after every execution, scheduled or
// manual.
func (s *Scheduler) OnJobComplete(fn func(JobResult)) {
	s.mu.Lock()
	s.onDone = fn
	s.mu.Unlock()
}

// Metrics is nil unless EnableMetrics was set.
func (s *Scheduler) Metrics() *SchedulerMetrics { return s.metrics }
