package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("submit: %w", WrapError("catalog", "Request", ErrServiceUnavailable, "lookup failed", cause))

	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsExternalService(err))
	assert.False(t, IsValidation(err))
	assert.Equal(t, "submit: catalog.Request: lookup failed: connection reset", err.Error())
}

func TestErrorKinds(t *testing.T) {
	assert.True(t, IsNotFound(ErrProgramNotFound))
	assert.True(t, IsAlreadyExists(ErrAlreadyApplied))
	assert.True(t, IsConflict(ErrRunInProgress))
	assert.True(t, IsValidation(ErrInvalidWishRank))
	assert.True(t, IsValidation(ErrUnknownSubject))
	assert.False(t, IsValidation(ErrApplicationLocked))
	assert.ErrorIs(t, ErrApplicationLocked, ErrInvalidState)
}

func TestNewStudentID(t *testing.T) {
	id, err := NewStudentID("  0B6F7C3E-1D2A-4F5B-8C9D-0E1F2A3B4C5D ")
	require.NoError(t, err)
	assert.Equal(t, StudentID("0b6f7c3e-1d2a-4f5b-8c9d-0e1f2a3b4c5d"), id)
	assert.True(t, id.IsValid())

	for _, bad := range []string{"", "s1", "00000000-0000-0000-0000-000000000000"} {
		_, err := NewStudentID(bad)
		assert.ErrorIs(t, err, ErrInvalidID, bad)
	}
}

func TestNewProgramID(t *testing.T) {
	id, err := NewProgramID(" but-info-lyon ")
	require.NoError(t, err)
	assert.Equal(t, "but-info-lyon", id.String())

	_, err = NewProgramID("   ")
	assert.ErrorIs(t, err, ErrEmptyValue)
}

func TestNewGrade(t *testing.T) {
	g, err := NewGrade(14.5)
	require.NoError(t, err)
	assert.Equal(t, 14.5, g.Float64())

	_, err = NewGrade(20.5)
	assert.ErrorIs(t, err, ErrInvalidGrade)
	_, err = NewGrade(-1)
	assert.ErrorIs(t, err, ErrValueOutOfRange)
}

func TestPagination(t *testing.T) {
	tests := []struct {
		page, size          int
		wantLimit, wantOffs int
	}{
		{0, 0, DefaultPageSize, 0},
		{3, 10, 10, 20},
		{2, 500, MaxPageSize, MaxPageSize},
	}
	for _, tt := range tests {
		p := Pagination{Page: tt.page, PageSize: tt.size}
		assert.Equal(t, tt.wantLimit, p.Limit())
		assert.Equal(t, tt.wantOffs, p.Offset())
	}
	assert.Equal(t, Pagination{Page: 1, PageSize: DefaultPageSize}, NewPagination(-4, 0))
}

func TestEvents_Payload(t *testing.T) {
	e := NewMatchingRunCompletedEvent("run-1", "stabilized", 3, 12)
	e.Offered = 7

	var ev Event = e
	assert.Equal(t, EventMatchingRunCompleted, ev.EventType())
	assert.Equal(t, "run-1", ev.AggregateID())
	assert.False(t, ev.OccurredAt().IsZero())
	assert.Equal(t, 7, ev.Payload()["offered"])
	assert.Equal(t, 3, ev.Payload()["rounds"])

	w := NewApplicationAutoWithdrawnEvent("a2", "s1", "p2", "a1", "run-1", 2)
	assert.Equal(t, "a1", w.Payload()["kept_application_id"])
	assert.Equal(t, "a2", w.AggregateID())
}
