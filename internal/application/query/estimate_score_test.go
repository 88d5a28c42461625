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

func TestEstimateScore_StoredProgram(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedProfile(t, store, 15, false)
	p := mathProgram("A", 10)
	require.NoError(t, store.Programs().Upsert(ctx, &p))

	h := NewEstimateScoreHandler(store.Programs(), store.Students(), nil, nil, nil)

	dto, err := h.Handle(ctx, EstimateScoreQuery{StudentID: studentX, ProgramID: "A"})
	require.NoError(t, err)
	assert.True(t, dto.Admissible)
	assert.Equal(t, 1, dto.WishRank)
	// (15*50 + 100) * 1.1
	assert.Equal(t, 935, dto.Score)
	assert.Equal(t, map[string]int{"mathematiques": 1}, dto.Weights)
	assert.Empty(t, dto.MissingSubjects)

	dto, err = h.Handle(ctx, EstimateScoreQuery{StudentID: studentX, ProgramID: "A", WishRank: 2})
	require.NoError(t, err)
	assert.Equal(t, 924, dto.Score)
}

func TestEstimateScore_BelowMinimum(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedProfile(t, store, 8, true)
	p := mathProgram("A", 10)
	require.NoError(t, store.Programs().Upsert(ctx, &p))

	dto, err := NewEstimateScoreHandler(store.Programs(), store.Students(), nil, nil, nil).
		Handle(ctx, EstimateScoreQuery{StudentID: studentX, ProgramID: "A"})
	require.NoError(t, err)
	assert.False(t, dto.Admissible)
	assert.Zero(t, dto.Score)
	assert.Equal(t, admission.ReasonInsufficientGrade, dto.Reason)
}

func TestEstimateScore_FromCatalog(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedProfile(t, store, 14, false)
	h := NewEstimateScoreHandler(store.Programs(), store.Students(), catalogFixture(),
		admission.NewCriteriaResolver(store.Criteria()), nil)

	dto, err := h.Handle(ctx, EstimateScoreQuery{StudentID: studentX, ProgramID: "but-info-lyon"})
	require.NoError(t, err)
	assert.Equal(t, "BUT Informatique", dto.Label)
	assert.NotEmpty(t, dto.Subjects)
	assert.NotEmpty(t, dto.MissingSubjects, "only mathematics is graded")

	_, err = h.Handle(ctx, EstimateScoreQuery{StudentID: studentX, ProgramID: "unknown"})
	assert.ErrorIs(t, err, shared.ErrProgramNotFound)
}

func TestEstimateScore_Errors(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	h := NewEstimateScoreHandler(store.Programs(), store.Students(), nil, nil, nil)

	_, err := h.Handle(ctx, EstimateScoreQuery{StudentID: studentX, ProgramID: "A"})
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)

	_, err = h.Handle(ctx, EstimateScoreQuery{StudentID: "nope", ProgramID: "A"})
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = h.Handle(ctx, EstimateScoreQuery{StudentID: studentX, ProgramID: "A", WishRank: -2})
	assert.ErrorIs(t, err, shared.ErrInvalidWishRank)
}
