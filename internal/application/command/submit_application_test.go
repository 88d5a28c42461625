package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
	"github.com/admissions-hub/admissions-hub/internal/domain/student"
	"github.com/admissions-hub/admissions-hub/internal/infrastructure/persistence/memory"
)

func catalogFixture() *memory.Catalog {
	return memory.NewCatalog(
		admission.CatalogProgram{
			ID:            "but-info-lyon",
			Label:         "BUT Informatique",
			Filiere:       "BUT",
			City:          "Lyon",
			AdmissionRate: admission.RatePtr(35),
			Capacity:      40,
		},
		admission.CatalogProgram{
			ID:       "licence-droit-paris",
			Label:    "Licence Droit",
			Filiere:  "Licence",
			City:     "Paris",
			Capacity: 300,
		},
	)
}

func newSubmit(t *testing.T) (*SubmitApplicationHandler, *memory.Store, *recordingPublisher) {
	t.Helper()
	store := memory.NewStore()
	p, err := student.NewProfile(student.NewProfileParams{ID: studentX, Email: "x@example.fr"})
	require.NoError(t, err)
	require.NoError(t, store.Students().Save(context.Background(), p))

	pub := &recordingPublisher{}
	h := NewSubmitApplicationHandler(
		store.Students(), store.Applications(), store.Programs(), catalogFixture(),
		admission.NewCriteriaResolver(store.Criteria()),
		func(total int) int { return total / 10 },
		pub, discardLogger,
	)
	return h, store, pub
}

func TestSubmitApplication_ImportsProgramAndAssignsNextRank(t *testing.T) {
	ctx := context.Background()
	h, store, pub := newSubmit(t)

	first, err := h.Handle(ctx, SubmitApplicationCommand{StudentID: studentX, ProgramID: "but-info-lyon"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.WishRank)
	assert.Equal(t, admission.StatusPending, first.Status)

	program, err := store.Programs().GetByID(ctx, "but-info-lyon")
	require.NoError(t, err)
	assert.Equal(t, 40, program.TotalSeats)
	assert.Equal(t, 4, program.ReservedNeedSeats)
	assert.True(t, program.Criteria.HasSubjects())
	assert.NotEmpty(t, program.CriteriaFingerprint)

	second, err := h.Handle(ctx, SubmitApplicationCommand{StudentID: studentX, ProgramID: "licence-droit-paris"})
	require.NoError(t, err)
	assert.Equal(t, 2, second.WishRank)

	assert.Len(t, pub.ofType(shared.EventApplicationSubmitted), 2)
}

func TestSubmitApplication_Errors(t *testing.T) {
	ctx := context.Background()
	h, _, _ := newSubmit(t)

	_, err := h.Handle(ctx, SubmitApplicationCommand{StudentID: studentX, ProgramID: "but-info-lyon"})
	require.NoError(t, err)

	tests := []struct {
		name string
		cmd  SubmitApplicationCommand
		want error
	}{
		{"duplicate", SubmitApplicationCommand{StudentID: studentX, ProgramID: "but-info-lyon"}, shared.ErrAlreadyApplied},
		{"unknown program", SubmitApplicationCommand{StudentID: studentX, ProgramID: "nope"}, shared.ErrProgramNotFound},
		{"no profile", SubmitApplicationCommand{StudentID: studentY, ProgramID: "but-info-lyon"}, shared.ErrStudentNotFound},
		{"bad student id", SubmitApplicationCommand{StudentID: "x", ProgramID: "but-info-lyon"}, shared.ErrInvalidID},
		{"negative rank", SubmitApplicationCommand{StudentID: studentX, ProgramID: "licence-droit-paris", WishRank: -1}, shared.ErrInvalidWishRank},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
