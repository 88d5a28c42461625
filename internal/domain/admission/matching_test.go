package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

func mathProgram(id string, total, reserved int) Program {
	return Program{
		ID: shared.ProgramID(id),
		Criteria: Criteria{
			Subjects:       []Subject{SubjectMathematics},
			Weights:        map[Subject]int{SubjectMathematics: 1},
			MinimumAverage: 10,
			Tier:           TierNormal,
		},
		TotalSeats:        total,
		ReservedNeedSeats: reserved,
	}
}

func pendingApp(id, student, program string, wishRank int, math float64) Application {
	return Application{
		ID:        id,
		StudentID: shared.StudentID(student),
		ProgramID: shared.ProgramID(program),
		WishRank:  wishRank,
		Grades:    Grades{SubjectMathematics: math},
		Status:    StatusPending,
	}
}

func statusOf(t *testing.T, o *Outcome, id string) Status {
	t.Helper()
	for _, a := range o.Applications {
		if a.ID == id {
			return a.Status
		}
	}
	t.Fatalf("application %s not in outcome", id)
	return ""
}

// Студент X получает предложения в обеих программах; менее желанное снимается
// и освобождает место для Y в следующем раунде.
func twoProgramSnapshot() Snapshot {
	return Snapshot{
		Programs: []Program{mathProgram("A", 1, 0), mathProgram("B", 1, 0)},
		Applications: []Application{
			pendingApp("x-a", "X", "A", 1, 18),
			pendingApp("x-b", "X", "B", 3, 18),
			pendingApp("y-b", "Y", "B", 1, 14),
		},
	}
}

func TestMatcher_AutoWithdrawKeepsBestWish(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig())

	o, err := m.Run(twoProgramSnapshot())
	require.NoError(t, err)

	assert.Equal(t, RunStateStabilized, o.State)
	assert.Equal(t, 3, o.Rounds)
	assert.Equal(t, []int{3, 1, 0}, o.ChangesPerRound)

	assert.Equal(t, StatusOffered, statusOf(t, o, "x-a"))
	assert.Equal(t, StatusWithdrawn, statusOf(t, o, "x-b"))
	assert.Equal(t, StatusOffered, statusOf(t, o, "y-b"))

	assert.Equal(t, 3, o.Processed)
	assert.Equal(t, 2, o.Offered)
	assert.Equal(t, 0, o.Pending())
	assert.Equal(t, 1, o.AutoWithdrawn)

	require.Len(t, o.Withdrawals, 1)
	w := o.Withdrawals[0]
	assert.Equal(t, "x-b", w.ApplicationID)
	assert.Equal(t, "x-a", w.KeptApplicationID)
	assert.Equal(t, 1, w.Round)
}

func TestMatcher_IdempotentAfterStabilization(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig())
	snap := twoProgramSnapshot()

	first, err := m.Run(snap)
	require.NoError(t, err)
	require.True(t, first.IsStable())

	second, err := m.Run(Snapshot{Programs: snap.Programs, Applications: first.Applications})
	require.NoError(t, err)

	assert.Equal(t, RunStateStabilized, second.State)
	assert.Equal(t, 1, second.Rounds)
	assert.Equal(t, []int{0}, second.ChangesPerRound)
	for i, a := range second.Applications {
		assert.Equal(t, first.Applications[i].Status, a.Status, a.ID)
	}
}

func TestMatcher_RoundLimitIsReportedNotFailed(t *testing.T) {
	m := NewMatcher(MatcherConfig{MaxRounds: 2})

	o, err := m.Run(twoProgramSnapshot())
	require.NoError(t, err)

	assert.Equal(t, RunStateRoundLimitReached, o.State)
	assert.Equal(t, 2, o.Rounds)
	assert.Equal(t, StatusOffered, statusOf(t, o, "y-b"))
}

func TestMatcher_AtMostOneOfferPerStudent(t *testing.T) {
	snap := Snapshot{
		Programs: []Program{mathProgram("A", 3, 0), mathProgram("B", 3, 0), mathProgram("C", 3, 0)},
	}
	students := []string{"s1", "s2", "s3", "s4"}
	for i, s := range students {
		for j, p := range []string{"A", "B", "C"} {
			// ранги желаний циклически сдвинуты между студентами
			rank := (i+j)%3 + 1
			snap.Applications = append(snap.Applications,
				pendingApp(s+"-"+p, s, p, rank, 12+float64(i)))
		}
	}

	o, err := NewMatcher(DefaultMatcherConfig()).Run(snap)
	require.NoError(t, err)
	assert.LessOrEqual(t, o.Rounds, DefaultMaxRounds)

	offers := map[shared.StudentID]int{}
	for _, a := range o.Applications {
		if a.Status == StatusOffered {
			offers[a.StudentID]++
		}
	}
	for s, n := range offers {
		assert.Equal(t, 1, n, "student %s", s)
	}
}

func TestMatcher_EqualWishRanksKeepEarliestApplication(t *testing.T) {
	snap := Snapshot{
		Programs: []Program{mathProgram("A", 1, 0), mathProgram("B", 1, 0)},
		Applications: []Application{
			pendingApp("x-b", "X", "B", 2, 15),
			pendingApp("x-a", "X", "A", 2, 15),
		},
	}

	o, err := NewMatcher(DefaultMatcherConfig()).Run(snap)
	require.NoError(t, err)

	assert.Equal(t, StatusOffered, statusOf(t, o, "x-b"))
	assert.Equal(t, StatusWithdrawn, statusOf(t, o, "x-a"))
}

func TestMatcher_InadmissibleIsRejectedAndWithdrawnIsIgnored(t *testing.T) {
	withdrawn := pendingApp("old", "Z", "A", 1, 20)
	withdrawn.Status = StatusWithdrawn

	snap := Snapshot{
		Programs: []Program{mathProgram("A", 5, 0)},
		Applications: []Application{
			pendingApp("weak", "W", "A", 1, 6),
			withdrawn,
		},
	}

	o, err := NewMatcher(DefaultMatcherConfig()).Run(snap)
	require.NoError(t, err)

	assert.Equal(t, StatusRejected, statusOf(t, o, "weak"))
	assert.Equal(t, StatusWithdrawn, statusOf(t, o, "old"))
	assert.Equal(t, 1, o.Processed)
	assert.Equal(t, 1, o.Rejected)
	assert.Equal(t, ReasonInsufficientGrade, o.Results["weak"].Reason)
	_, processed := o.Results["old"]
	assert.False(t, processed)
}

func TestMatcher_NothingToProcess(t *testing.T) {
	o, err := NewMatcher(DefaultMatcherConfig()).Run(Snapshot{Programs: []Program{mathProgram("A", 1, 0)}})
	require.NoError(t, err)

	assert.True(t, o.NothingToProcess)
	assert.Equal(t, ReasonNothingToProcess, o.Reason)
	assert.Equal(t, 0, o.Processed)
	assert.Equal(t, RunStateIdle, o.State)
}

func TestMatcher_SkipsProgramsWithoutSubjects(t *testing.T) {
	empty := mathProgram("E", 2, 0)
	empty.Criteria = Criteria{}

	snap := Snapshot{
		Programs: []Program{mathProgram("A", 1, 0), empty},
		Applications: []Application{
			pendingApp("a1", "S1", "A", 1, 15),
			pendingApp("e1", "S2", "E", 1, 15),
			pendingApp("u1", "S3", "U", 1, 15),
		},
	}

	o, err := NewMatcher(DefaultMatcherConfig()).Run(snap)
	require.NoError(t, err)

	assert.Equal(t, StatusOffered, statusOf(t, o, "a1"))
	assert.Equal(t, StatusPending, statusOf(t, o, "e1"))
	assert.Equal(t, StatusPending, statusOf(t, o, "u1"))
	require.Len(t, o.SkippedPrograms, 2)
	assert.Equal(t, SkipReasonNoSubjects, o.SkippedPrograms[0].Reason)
	assert.Equal(t, SkipReasonUnknownProgram, o.SkippedPrograms[1].Reason)
}

func TestMatcher_InvalidCapacityFailsBeforeProcessing(t *testing.T) {
	snap := twoProgramSnapshot()
	snap.Programs[0].ReservedNeedSeats = 5

	o, err := NewMatcher(DefaultMatcherConfig()).Run(snap)

	assert.Nil(t, o)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidCapacity)
}

func TestMatcher_DoesNotMutateSnapshot(t *testing.T) {
	snap := twoProgramSnapshot()

	_, err := NewMatcher(DefaultMatcherConfig()).Run(snap)
	require.NoError(t, err)

	for _, a := range snap.Applications {
		assert.Equal(t, StatusPending, a.Status)
		assert.Equal(t, 0, a.Score)
	}
}

// Предложение из пропущенной программы снимается, но сохраняет балл и позицию.
func TestMatcher_WithdrawnOfferFromSkippedProgramKeepsScores(t *testing.T) {
	old := pendingApp("x-old", "X", "GONE", 2, 15)
	old.Status = StatusOffered
	old.Score = 870
	old.WeightedAverage = 15
	old.Position = 3

	snap := Snapshot{
		Programs: []Program{mathProgram("A", 1, 0)},
		Applications: []Application{
			old,
			pendingApp("x-a", "X", "A", 1, 18),
		},
	}

	o, err := NewMatcher(DefaultMatcherConfig()).Run(snap)
	require.NoError(t, err)

	assert.Equal(t, StatusOffered, statusOf(t, o, "x-a"))
	assert.Equal(t, StatusWithdrawn, statusOf(t, o, "x-old"))

	res, ok := o.Results["x-old"]
	require.True(t, ok)
	assert.Equal(t, StatusWithdrawn, res.Status)
	assert.Equal(t, 870, res.Score)
	assert.Equal(t, 15.0, res.WeightedAverage)
	assert.Equal(t, 3, res.Position)
	assert.Equal(t, 1, res.Round)

	for _, a := range o.Applications {
		if a.ID == "x-old" {
			assert.Equal(t, 870, a.Score)
			assert.Equal(t, 3, a.Position)
		}
	}
	require.Len(t, o.Withdrawals, 1)
	assert.Equal(t, "x-a", o.Withdrawals[0].KeptApplicationID)
}
