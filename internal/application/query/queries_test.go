package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
	"github.com/admissions-hub/admissions-hub/internal/infrastructure/persistence/memory"
)

func TestListApplications(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.LoadSnapshot(admission.Snapshot{
		Programs: []admission.Program{mathProgram("A", 1), mathProgram("B", 1)},
		Applications: []admission.Application{
			{ID: "b", StudentID: studentX, ProgramID: "B", WishRank: 2, Status: admission.StatusWaitlisted, LastRunID: "r1"},
			{ID: "a", StudentID: studentX, ProgramID: "A", WishRank: 1},
		},
	}))

	list, err := NewListApplicationsHandler(store.Applications(), store.Programs()).Handle(ctx, studentX)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "Maths A", list[0].ProgramLabel)
	assert.Equal(t, "pending", list[0].Status)
	assert.False(t, list[0].Locked)

	assert.Equal(t, "pending", list[1].Status, "waitlist is shown as pending")
	assert.True(t, list[1].Locked)
}

func TestListApplications_Empty(t *testing.T) {
	store := memory.NewStore()
	list, err := NewListApplicationsHandler(store.Applications(), store.Programs()).
		Handle(context.Background(), studentX)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestSearchCatalog(t *testing.T) {
	ctx := context.Background()
	h := NewSearchCatalogHandler(catalogFixture())

	page, err := h.Handle(ctx, SearchCatalogQuery{Zone: "lyon"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, shared.DefaultPageSize, page.PageSize)
	assert.Len(t, page.ContractTypes, 2)

	page, err = h.Handle(ctx, SearchCatalogQuery{Zone: "lyon", Contract: "Public"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, shared.ProgramID("but-info-lyon"), page.Programs[0].ID)

	page, err = h.Handle(ctx, SearchCatalogQuery{PageSize: 3, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Len(t, page.Programs, 1)

	page, err = h.Handle(ctx, SearchCatalogQuery{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, page.Programs)
}

func TestComparePrograms(t *testing.T) {
	ctx := context.Background()
	h := NewCompareProgramsHandler(catalogFixture())

	rows, err := h.Handle(ctx, []string{"licence-droit-paris", "but-info-lyon", "licence-droit-paris"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, shared.ProgramID("licence-droit-paris"), rows[0].Program.ID)
	assert.Equal(t, shared.ProgramID("but-info-lyon"), rows[1].Program.ID)

	_, err = h.Handle(ctx, []string{"a", "b", "c", "d"})
	assert.ErrorIs(t, err, shared.ErrTooManyPrograms)

	_, err = h.Handle(ctx, []string{"but-info-lyon", "missing"})
	assert.ErrorIs(t, err, shared.ErrProgramNotFound)

	_, err = h.Handle(ctx, nil)
	assert.True(t, shared.IsValidation(err))
}

func TestLatestRun(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	h := NewLatestRunHandler(store.Runs())

	_, err := h.Handle(ctx)
	assert.ErrorIs(t, err, shared.ErrRunNotFound)

	run := admission.NewRun(admission.TriggerAdmin)
	run.Complete(&admission.Outcome{State: admission.RunStateStabilized, Rounds: 2, Processed: 5, Waitlisted: 3})
	require.NoError(t, store.Runs().Save(ctx, run))

	dto, err := h.Handle(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.ID, dto.ID)
	assert.Equal(t, 3, dto.Pending)
	assert.Equal(t, "stabilized", dto.Status)
}
