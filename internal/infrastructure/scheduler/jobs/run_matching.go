// Package jobs contains the scheduled jobs of the admissions hub.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN MATCHING JOB
// ══════════════════════════════════════════════════════════════════════════════

// MatchingFunc starts one matching run with the given trigger.
type MatchingFunc func(ctx context.Context, trigger string) (*admission.Run, error)

// RunMatchingJob runs the matching engine on a cron schedule.
// A run already in progress elsewhere is not an error: the tick is skipped.
type RunMatchingJob struct {
	run    MatchingFunc
	logger *slog.Logger

	lastRun atomic.Pointer[admission.Run]
	skipped atomic.Int64
}

// NewRunMatchingJob creates the job.
func NewRunMatchingJob(run MatchingFunc, logger *slog.Logger) *RunMatchingJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunMatchingJob{run: run, logger: logger}
}

// Name returns the job name.
func (j *RunMatchingJob) Name() string {
	return "run_matching"
}

// Description returns a human-readable description.
func (j *RunMatchingJob) Description() string {
	return "Runs the admission matching engine over all pending applications"
}

// Run executes one matching run.
func (j *RunMatchingJob) Run(ctx context.Context) error {
	run, err := j.run(ctx, admission.TriggerScheduled)
	if errors.Is(err, shared.ErrRunInProgress) {
		j.skipped.Add(1)
		j.logger.Info("matching run already in progress, skipping tick")
		return nil
	}
	if run != nil {
		j.lastRun.Store(run)
	}
	if err != nil {
		return fmt.Errorf("run_matching: %w", err)
	}

	j.logger.Info("scheduled matching run finished",
		"run_id", run.ID,
		"state", run.State,
		"rounds", run.Rounds,
		"processed", run.Processed,
	)
	return nil
}

// LastRun returns the last run started by this job, or nil.
func (j *RunMatchingJob) LastRun() *admission.Run {
	return j.lastRun.Load()
}

// Skipped returns how many ticks found another run holding the lock.
func (j *RunMatchingJob) Skipped() int64 {
	return j.skipped.Load()
}
