package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	name  string
	runs  atomic.Int32
	run   func(ctx context.Context) error
	block chan struct{}
}

func (j *fakeJob) Name() string        { return j.name }
func (j *fakeJob) Description() string { return "test job " + j.name }

func (j *fakeJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if j.run != nil {
		return j.run(ctx)
	}
	return nil
}

func newTestScheduler() *Scheduler {
	cfg := DefaultSchedulerConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.Timezone = time.UTC
	return NewScheduler(cfg)
}

func hourly(t *testing.T) Schedule {
	s, err := NewIntervalSchedule(time.Hour)
	require.NoError(t, err)
	return s
}

func TestScheduler_Register(t *testing.T) {
	s := newTestScheduler()

	assert.ErrorIs(t, s.Register(nil, hourly(t)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&fakeJob{name: "a"}, nil), ErrNilSchedule)

	require.NoError(t, s.Register(&fakeJob{name: "sync_catalog"}, hourly(t)))
	require.NoError(t, s.Register(&fakeJob{name: "run_matching"}, MustParseCron("@nightly")))
	assert.ErrorIs(t, s.Register(&fakeJob{name: "run_matching"}, hourly(t)), ErrJobAlreadyExists)

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "run_matching", jobs[0].Name)
	assert.Equal(t, "@nightly", jobs[0].Schedule)
	assert.True(t, jobs[0].Enabled)
	assert.False(t, jobs[0].NextRun.IsZero())

	require.NoError(t, s.DisableJob("sync_catalog"))
	info, err := s.GetJobInfo("sync_catalog")
	require.NoError(t, err)
	assert.False(t, info.Enabled)

	require.NoError(t, s.Unregister("sync_catalog"))
	_, err = s.GetJobInfo("sync_catalog")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, s.EnableJob("sync_catalog"), ErrJobNotFound)
}

func TestScheduler_RunNow(t *testing.T) {
	s := newTestScheduler()
	ok := &fakeJob{name: "ok"}
	failing := &fakeJob{name: "failing", run: func(context.Context) error { return errors.New("catalog down") }}
	panicking := &fakeJob{name: "panicking", run: func(context.Context) error { panic("boom") }}
	for _, j := range []*fakeJob{ok, failing, panicking} {
		require.NoError(t, s.Register(j, hourly(t)))
	}

	var completed atomic.Int32
	s.OnJobComplete(func(JobResult) { completed.Add(1) })

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Manual)

	_, err = s.RunNow(context.Background(), "failing")
	assert.EqualError(t, err, "catalog down")

	_, err = s.RunNow(context.Background(), "panicking")
	assert.ErrorIs(t, err, ErrJobPanic)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	assert.Equal(t, int32(3), completed.Load())
	history := s.GetHistory(0)
	require.Len(t, history, 3)
	assert.Equal(t, "ok", history[0].JobName)
	assert.Len(t, s.GetHistory(1), 1)

	snap := s.Metrics().Snapshot()
	assert.Equal(t, int64(3), snap.TotalExecutions)
	assert.Equal(t, int64(2), snap.TotalFailures)
	assert.InDelta(t, 1.0/3, snap.SuccessRate, 1e-9)
	assert.Equal(t, int64(1), snap.FailuresByJob["panicking"])

	info, err := s.GetJobInfo("failing")
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.RunCount)
	assert.Equal(t, int64(1), info.FailCount)
}

func TestScheduler_RunNowRefusesOverlap(t *testing.T) {
	s := newTestScheduler()
	job := &fakeJob{name: "run_matching", block: make(chan struct{})}
	require.NoError(t, s.Register(job, hourly(t)))

	done := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background(), "run_matching")
		done <- err
	}()
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err := s.RunNow(context.Background(), "run_matching")
	assert.ErrorIs(t, err, ErrJobRunning)

	close(job.block)
	assert.NoError(t, <-done)
}

func TestScheduler_DispatchDue(t *testing.T) {
	s := newTestScheduler()
	due := &fakeJob{name: "due"}
	disabled := &fakeJob{name: "disabled"}
	require.NoError(t, s.Register(due, hourly(t)))
	require.NoError(t, s.Register(disabled, hourly(t)))
	require.NoError(t, s.DisableJob("disabled"))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	later := time.Now().UTC().Add(2 * time.Hour)
	s.dispatchDue(later)
	require.Eventually(t, func() bool { return due.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	info, err := s.GetJobInfo("due")
	require.NoError(t, err)
	assert.True(t, info.NextRun.After(later))

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	assert.Zero(t, disabled.runs.Load())
}

func TestScheduler_JobTimeout(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.JobTimeout = 20 * time.Millisecond
	s := NewScheduler(cfg)

	job := &fakeJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.Register(job, hourly(t)))

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
