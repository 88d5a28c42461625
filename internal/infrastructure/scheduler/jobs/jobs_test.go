package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
	"github.com/admissions-hub/admissions-hub/internal/infrastructure/persistence/memory"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type countingPublisher struct{ events []shared.Event }

func (p *countingPublisher) Publish(e shared.Event) error {
	p.events = append(p.events, e)
	return nil
}

func TestRunMatchingJob(t *testing.T) {
	ctx := context.Background()

	var trigger string
	job := NewRunMatchingJob(func(_ context.Context, tr string) (*admission.Run, error) {
		trigger = tr
		run := admission.NewRun(tr)
		run.Complete(&admission.Outcome{State: admission.RunStateStabilized, Rounds: 1})
		return run, nil
	}, discardLogger)

	require.NoError(t, job.Run(ctx))
	assert.Equal(t, admission.TriggerScheduled, trigger)
	require.NotNil(t, job.LastRun())
	assert.Equal(t, admission.RunStateStabilized, job.LastRun().State)
}

func TestRunMatchingJob_SkipsWhenLocked(t *testing.T) {
	job := NewRunMatchingJob(func(context.Context, string) (*admission.Run, error) {
		return nil, shared.ErrRunInProgress
	}, discardLogger)

	assert.NoError(t, job.Run(context.Background()))
	assert.Equal(t, int64(1), job.Skipped())
	assert.Nil(t, job.LastRun())
}

func TestRunMatchingJob_KeepsFailedRun(t *testing.T) {
	failed := admission.NewRun(admission.TriggerScheduled)
	failed.Fail("boom")
	job := NewRunMatchingJob(func(context.Context, string) (*admission.Run, error) {
		return failed, errors.New("boom")
	}, discardLogger)

	assert.Error(t, job.Run(context.Background()))
	assert.Equal(t, failed, job.LastRun())
}

func TestSyncCatalogJob(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	derived, err := admission.NewProgram("but-info", admission.CatalogAttributes{Label: "BUT Informatique", Filiere: "BUT"}, 30, 0)
	require.NoError(t, err)
	require.NoError(t, store.Programs().Upsert(ctx, derived))

	manual, err := admission.NewProgram("licence-maths", admission.CatalogAttributes{Label: "Licence Mathématiques"}, 50, 5)
	require.NoError(t, err)
	manualCriteria := admission.Criteria{
		Subjects:       []admission.Subject{admission.SubjectMathematics},
		Weights:        map[admission.Subject]int{admission.SubjectMathematics: 5},
		MinimumAverage: 12,
		Tier:           admission.TierSelective,
	}
	require.NoError(t, manual.SetCriteria(manualCriteria))
	require.NoError(t, store.Programs().Upsert(ctx, manual))

	orphan, err := admission.NewProgram("gone", admission.CatalogAttributes{Label: "Licence Droit"}, 10, 0)
	require.NoError(t, err)
	require.NoError(t, store.Programs().Upsert(ctx, orphan))

	catalog := memory.NewCatalog(
		// now selective
		admission.CatalogProgram{ID: "but-info", Label: "BUT Informatique", Filiere: "BUT", AdmissionRate: admission.RatePtr(12)},
		admission.CatalogProgram{ID: "licence-maths", Label: "Licence Mathématiques et informatique"},
		admission.CatalogProgram{ID: "not-stored", Label: "BTS SIO"},
	)

	pub := &countingPublisher{}
	job := NewSyncCatalogJob(catalog, store.Programs(), pub, discardLogger)
	require.NoError(t, job.Run(ctx))

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.Fetched)
	assert.Equal(t, 2, stats.Updated)
	assert.Equal(t, 1, stats.Missing)

	got, err := store.Programs().GetByID(ctx, "but-info")
	require.NoError(t, err)
	assert.NotEqual(t, derived.CriteriaFingerprint, got.CriteriaFingerprint)
	assert.Equal(t, got.Attributes.Fingerprint(), got.CriteriaFingerprint)

	got, err = store.Programs().GetByID(ctx, "licence-maths")
	require.NoError(t, err)
	assert.Equal(t, "Licence Mathématiques et informatique", got.Attributes.Label)
	assert.Equal(t, manualCriteria.Subjects, got.Criteria.Subjects, "manual criteria are kept")
	assert.True(t, got.IsManuallyConfigured())

	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventCatalogSynced, pub.events[0].EventType())

	// second pass changes nothing
	require.NoError(t, job.Run(ctx))
	assert.Zero(t, job.LastStats().Updated)
	assert.Equal(t, 2, job.LastStats().Unchanged)
}
