package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
	"github.com/admissions-hub/admissions-hub/internal/infrastructure/persistence/memory"
)

func newRunMatching(t *testing.T, snapshot admission.Snapshot) (*RunMatchingHandler, *memory.Store, *recordingPublisher) {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.LoadSnapshot(snapshot))
	pub := &recordingPublisher{}
	h := NewRunMatchingHandler(
		store.Applications(), store.Programs(), store.Runs(), store.Lock(),
		pub, admission.NewMatcher(admission.DefaultMatcherConfig()), discardLogger,
	)
	return h, store, pub
}

func twoProgramSnapshot() admission.Snapshot {
	return admission.Snapshot{
		Programs: []admission.Program{mathProgram("A", 1, 0), mathProgram("B", 1, 0)},
		Applications: []admission.Application{
			pendingApp("x-a", "X", "A", 1, 18),
			pendingApp("x-b", "X", "B", 3, 18),
			pendingApp("y-b", "Y", "B", 1, 14),
		},
	}
}

func TestRunMatching_CommitsResultsAndPublishesEvents(t *testing.T) {
	ctx := context.Background()
	h, store, pub := newRunMatching(t, twoProgramSnapshot())

	res, err := h.Handle(ctx, RunMatchingCommand{Trigger: admission.TriggerScheduled})
	require.NoError(t, err)

	assert.Equal(t, admission.RunStateStabilized, res.Run.State)
	assert.Equal(t, 3, res.Run.Processed)
	assert.Equal(t, 2, res.Run.Offered)
	assert.Equal(t, 1, res.Run.AutoWithdrawn)
	assert.Equal(t, 3, res.Changed)

	for id, want := range map[string]admission.Status{
		"x-a": admission.StatusOffered,
		"x-b": admission.StatusWithdrawn,
		"y-b": admission.StatusOffered,
	} {
		app, err := store.Applications().GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, app.Status, id)
		assert.Equal(t, res.Run.ID, app.LastRunID, id)
	}

	latest, err := store.Runs().GetLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.Run.ID, latest.ID)
	assert.Equal(t, admission.TriggerScheduled, latest.Trigger)

	assert.Len(t, pub.ofType(shared.EventApplicationOffered), 2)
	withdrawn := pub.ofType(shared.EventApplicationAutoWithdrawn)
	require.Len(t, withdrawn, 1)
	assert.Equal(t, "x-b", withdrawn[0].AggregateID())
	assert.Equal(t, "x-a", withdrawn[0].Payload()["kept_application_id"])
	assert.Len(t, pub.ofType(shared.EventMatchingRunCompleted), 1)

	// the lock is released after the run
	ok, err := store.Lock().Acquire(ctx, "probe")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunMatching_RerunDoesNotRepeatOffers(t *testing.T) {
	ctx := context.Background()
	h, _, pub := newRunMatching(t, twoProgramSnapshot())

	_, err := h.Handle(ctx, RunMatchingCommand{})
	require.NoError(t, err)
	before := len(pub.ofType(shared.EventApplicationOffered))

	res, err := h.Handle(ctx, RunMatchingCommand{})
	require.NoError(t, err)

	assert.Equal(t, admission.RunStateStabilized, res.Run.State)
	assert.Equal(t, 1, res.Run.Rounds)
	assert.Equal(t, 2, res.Run.Processed)
	assert.Equal(t, 0, res.Changed, "identical results are rewritten but not counted")
	assert.Len(t, pub.ofType(shared.EventApplicationOffered), before)
}

func TestRunMatching_LockHeld(t *testing.T) {
	ctx := context.Background()
	h, store, _ := newRunMatching(t, twoProgramSnapshot())

	ok, err := store.Lock().Acquire(ctx, "other-run")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.Handle(ctx, RunMatchingCommand{})
	assert.ErrorIs(t, err, shared.ErrRunInProgress)
	assert.True(t, shared.IsConflict(err))

	_, err = store.Runs().GetLatest(ctx)
	assert.ErrorIs(t, err, shared.ErrRunNotFound)
}

func TestRunMatching_InvalidCapacityAbortsWithNothingProcessed(t *testing.T) {
	ctx := context.Background()
	snap := twoProgramSnapshot()
	snap.Programs[1] = mathProgram("B", 1, 2)
	h, store, pub := newRunMatching(t, snap)

	res, err := h.Handle(ctx, RunMatchingCommand{})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidCapacity)
	require.NotNil(t, res)
	assert.Equal(t, admission.RunStateFailed, res.Run.State)

	latest, err := store.Runs().GetLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, admission.RunStateFailed, latest.State)
	assert.Zero(t, latest.Processed)

	app, err := store.Applications().GetByID(ctx, "x-a")
	require.NoError(t, err)
	assert.Equal(t, admission.StatusPending, app.Status)
	assert.Empty(t, app.LastRunID)

	assert.Len(t, pub.ofType(shared.EventMatchingRunFailed), 1)
	assert.Empty(t, pub.ofType(shared.EventApplicationOffered))
}

func TestRunMatching_NothingToProcess(t *testing.T) {
	ctx := context.Background()
	h, store, pub := newRunMatching(t, admission.Snapshot{})

	res, err := h.Handle(ctx, RunMatchingCommand{})
	require.NoError(t, err)

	require.NotNil(t, res.Outcome)
	assert.True(t, res.Outcome.NothingToProcess)
	assert.Equal(t, admission.ReasonNothingToProcess, res.Run.Reason)
	assert.Zero(t, res.Run.Processed)

	latest, err := store.Runs().GetLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.Run.ID, latest.ID)
	assert.Len(t, pub.ofType(shared.EventMatchingRunCompleted), 1)
}
