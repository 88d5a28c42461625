package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(id string, score int, needBased bool) Candidate {
	return Candidate{
		Application: Application{ID: id, NeedBased: needBased},
		Result:      ScoreResult{Score: score, Admissible: score > 0},
	}
}

func statusesByID(allocs []Allocation) map[string]Status {
	out := make(map[string]Status, len(allocs))
	for _, a := range allocs {
		out[a.ApplicationID] = a.Status
	}
	return out
}

func TestAllocateSeats_ReservedQuotaThenGeneralPool(t *testing.T) {
	ranked := []Candidate{
		candidate("non-900", 900, false),
		candidate("need-700", 700, true),
		candidate("need-650", 650, true),
		candidate("non-500", 500, false),
	}

	allocs := AllocateSeats(ranked, 2, 1)

	got := statusesByID(allocs)
	assert.Equal(t, StatusOffered, got["need-700"])
	assert.Equal(t, StatusOffered, got["non-900"])
	assert.Equal(t, StatusWaitlisted, got["need-650"])
	assert.Equal(t, StatusWaitlisted, got["non-500"])

	for i, a := range allocs {
		assert.Equal(t, i+1, a.Position)
		assert.Equal(t, ranked[i].ApplicationID(), a.ApplicationID)
	}
	assert.True(t, allocs[1].ViaReservedQuota)
	assert.False(t, allocs[0].ViaReservedQuota)
}

func TestAllocateSeats_UnusedQuotaRollsIntoGeneralPool(t *testing.T) {
	ranked := []Candidate{
		candidate("a", 900, false),
		candidate("b", 800, false),
		candidate("c", 700, false),
	}

	got := statusesByID(AllocateSeats(ranked, 2, 2))

	assert.Equal(t, StatusOffered, got["a"])
	assert.Equal(t, StatusOffered, got["b"])
	assert.Equal(t, StatusWaitlisted, got["c"])
}

func TestAllocateSeats_OverflowNeedBasedCompetesOnScore(t *testing.T) {
	ranked := []Candidate{
		candidate("need-1", 950, true),
		candidate("need-2", 900, true),
		candidate("non-1", 850, false),
	}

	got := statusesByID(AllocateSeats(ranked, 2, 1))

	assert.Equal(t, StatusOffered, got["need-1"])
	assert.Equal(t, StatusOffered, got["need-2"])
	assert.Equal(t, StatusWaitlisted, got["non-1"])
}

func TestAllocateSeats_NeverExceedsCapacity(t *testing.T) {
	var ranked []Candidate
	for i := 0; i < 20; i++ {
		ranked = append(ranked, candidate(string(rune('a'+i)), 1000-i*10, i%3 == 0))
	}

	for total := 0; total <= 10; total++ {
		for reserved := 0; reserved <= total; reserved++ {
			allocs := AllocateSeats(ranked, total, reserved)
			offered, viaQuota := 0, 0
			for _, a := range allocs {
				if a.Status == StatusOffered {
					offered++
				}
				if a.ViaReservedQuota {
					viaQuota++
				}
			}
			assert.LessOrEqual(t, offered, total, "total=%d reserved=%d", total, reserved)
			assert.LessOrEqual(t, viaQuota, reserved, "total=%d reserved=%d", total, reserved)
		}
	}
}

func TestAllocateSeats_ZeroScoreIsRejected(t *testing.T) {
	ranked := []Candidate{
		candidate("a", 900, false),
		candidate("zero", 0, false),
	}

	got := statusesByID(AllocateSeats(ranked, 1, 0))

	assert.Equal(t, StatusOffered, got["a"])
	assert.Equal(t, StatusRejected, got["zero"])
}

func TestRankCandidates_ExcludesInadmissibleAndKeepsTieOrder(t *testing.T) {
	c := normalCriteria()
	same := Grades{SubjectMathematics: 14, SubjectFrench: 14, SubjectEnglish: 14}
	apps := []Application{
		{ID: "first", WishRank: 2, Grades: same},
		{ID: "weak", WishRank: 1, Grades: Grades{SubjectMathematics: 5}},
		{ID: "second", WishRank: 2, Grades: same},
		{ID: "best", WishRank: 1, Grades: same},
	}

	ranked, excluded := RankCandidates(c, apps)

	require.Len(t, ranked, 3)
	assert.Equal(t, "best", ranked[0].ApplicationID())
	assert.Equal(t, "first", ranked[1].ApplicationID())
	assert.Equal(t, "second", ranked[2].ApplicationID())
	assert.Equal(t, ranked[1].Result.Score, ranked[2].Result.Score)

	require.Len(t, excluded, 1)
	assert.Equal(t, "weak", excluded[0].ApplicationID())
	assert.Equal(t, ReasonInsufficientGrade, excluded[0].Result.Reason)
}

func TestRankCandidates_MissingWishRankCountsAsFirst(t *testing.T) {
	c := normalCriteria()
	grades := Grades{SubjectMathematics: 12, SubjectFrench: 12, SubjectEnglish: 12}

	ranked, _ := RankCandidates(c, []Application{{ID: "a", Grades: grades}})

	require.Len(t, ranked, 1)
	assert.Equal(t, 100, ranked[0].Result.RankBonus)
}
