package admission

import (
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// CANDIDATE RANKER
// ══════════════════════════════════════════════════════════════════════════════

// Candidate - заявка с результатом оценки для одной программы.
type Candidate struct {
	Application Application
	Result      ScoreResult
}

// ApplicationID возвращает идентификатор заявки кандидата.
func (c Candidate) ApplicationID() string {
	return c.Application.ID
}

// RankCandidates оценивает все заявки программы и возвращает допустимых
// кандидатов по убыванию балла. Недопустимые возвращаются отдельно, в исходном порядке.
// При равенстве баллов сохраняется исходный порядок заявок.
func RankCandidates(criteria Criteria, applications []Application) (ranked, excluded []Candidate) {
	ranked = make([]Candidate, 0, len(applications))
	for _, app := range applications {
		result := CalculateScore(app.Grades, criteria, app.EffectiveWishRank(), app.NeedBased)
		c := Candidate{Application: app, Result: result}
		if !result.Admissible {
			excluded = append(excluded, c)
			continue
		}
		ranked = append(ranked, c)
	}
	sortByScore(ranked)
	return ranked, excluded
}

func sortByScore(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Result.Score > candidates[j].Result.Score
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SEAT ALLOCATOR
// ══════════════════════════════════════════════════════════════════════════════

// Allocation - решение по одному кандидату программы.
type Allocation struct {
	ApplicationID string
	Status        Status
	// Position - место в общем рейтинге программы, с 1.
	Position int
	// ViaReservedQuota - место получено по квоте стипендиатов.
	ViaReservedQuota bool
}

// AllocateSeats распределяет места по отсортированному списку кандидатов.
//
// Сначала стипендиаты занимают зарезервированную квоту в порядке балла.
// Остальные стипендиаты объединяются со всеми прочими, пул пересортировывается,
// и места добираются до общей ёмкости. Неиспользованная квота переходит в общий пул.
// Результат возвращается в порядке входного списка.
func AllocateSeats(ranked []Candidate, totalSeats, reservedNeedSeats int) []Allocation {
	var needBased, others []Candidate
	for _, c := range ranked {
		if c.Application.NeedBased {
			needBased = append(needBased, c)
		} else {
			others = append(others, c)
		}
	}

	quota := clamp(reservedNeedSeats, 0, len(needBased))
	admitted := make(map[string]bool, len(ranked))
	reserved := make(map[string]bool, quota)
	for _, c := range needBased[:quota] {
		admitted[c.ApplicationID()] = true
		reserved[c.ApplicationID()] = true
	}

	pool := make([]Candidate, 0, len(needBased)-quota+len(others))
	pool = append(pool, needBased[quota:]...)
	pool = append(pool, others...)
	sortByScore(pool)

	remaining := clamp(totalSeats-quota, 0, len(pool))
	for _, c := range pool[:remaining] {
		admitted[c.ApplicationID()] = true
	}

	out := make([]Allocation, len(ranked))
	for i, c := range ranked {
		id := c.ApplicationID()
		status := StatusWaitlisted
		switch {
		case admitted[id]:
			status = StatusOffered
		case c.Result.Score <= 0:
			status = StatusRejected
		}
		out[i] = Allocation{
			ApplicationID:    id,
			Status:           status,
			Position:         i + 1,
			ViaReservedQuota: reserved[id],
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
