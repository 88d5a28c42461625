package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// JobResult describes one execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Manual      bool
	Error       error
}

func (s *Scheduler) execute(ctx context.Context, e *entry, manual bool) JobResult {
	name := e.job.Name()
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	s.log.Info("job started", "job", name, "manual", manual)
	res := JobResult{JobName: name, StartedAt: time.Now(), Manual: manual}
	res.Error = runGuarded(ctx, e.job)
	res.CompletedAt = time.Now()
	res.Duration = res.CompletedAt.Sub(res.StartedAt)
	res.Success = res.Error == nil

	if s.metrics != nil {
		s.metrics.RecordExecution(name, res.Duration, res.Success)
	}

	s.mu.Lock()
	e.lastRun = res.StartedAt
	e.runCount++
	if !res.Success {
		e.failCount++
	}
	e.last = &res
	s.history = append(s.history, res)
	if extra := len(s.history) - s.cfg.MaxHistorySize; extra > 0 {
		s.history = append(s.history[:0], s.history[extra:]...)
	}
	hook := s.onDone
	s.mu.Unlock()

	if res.Success {
		s.log.Info("job completed", "job", name, "duration", res.Duration.String())
	} else {
		s.log.Error("job failed", "job", name, "duration", res.Duration.String(), "error", res.Error)
	}
	if hook != nil {
		hook(res)
	}
	return res
}

// runGuarded converts a panic into ErrJobPanic.
func runGuarded(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrJobPanic, job.Name(), r)
		}
	}()
	return job.Run(ctx)
}

// GetHistory returns the last limit results, oldest first. limit <= 0
// returns everything kept.
func (s *Scheduler) GetHistory(limit int) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	return append([]JobResult(nil), s.history[n-limit:]...)
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

type SchedulerMetrics struct {
	mu         sync.Mutex
	executions int64
	failures   int64
	elapsed    time.Duration
	failedJobs map[string]int64
}

func NewSchedulerMetrics() *SchedulerMetrics {
	return &SchedulerMetrics{failedJobs: make(map[string]int64)}
}

func (m *SchedulerMetrics) RecordExecution(job string, d time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions++
	m.elapsed += d
	if !success {
		m.failures++
		m.failedJobs[job]++
	}
}

type MetricsSnapshot struct {
	TotalExecutions int64
	TotalFailures   int64
	SuccessRate     float64
	AverageDuration time.Duration
	FailuresByJob   map[string]int64
}

func (m *SchedulerMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		TotalExecutions: m.executions,
		TotalFailures:   m.failures,
		FailuresByJob:   make(map[string]int64, len(m.failedJobs)),
	}
	for job, n := range m.failedJobs {
		snap.FailuresByJob[job] = n
	}
	if m.executions > 0 {
		snap.AverageDuration = m.elapsed / time.Duration(m.executions)
		snap.SuccessRate = float64(m.executions-m.failures) / float64(m.executions)
	}
	return snap
}
