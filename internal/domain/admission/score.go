package admission

import (
	"math"

	"github.com/shopspring/decimal"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORE CALCULATOR
//
// Балл заявки (цель - 1000 при 20/20):
//   база        = средний × 50
//   ранг        = max(0, (11 - ранг желания) × 10)
//   стипендиат  = +50
//   уровень     = ×0.7 для elite при среднем < 14, ×1.1 для normal
// Множитель применяется ко всей сумме, округление только в конце.
// ══════════════════════════════════════════════════════════════════════════════

const (
	baseScorePerPoint = 50.0

	rankBonusCeiling = 11
	rankBonusStep    = 10

	NeedBasedBonus = 50

	elitePenaltyBelowAverage = 14.0
	elitePenaltyMultiplier   = 0.7
	normalTierMultiplier     = 1.1

	// ReasonInsufficientGrade - причина отказа при среднем ниже порога.
	ReasonInsufficientGrade = "insufficient grade"

	averageDisplayPlaces = 2
)

// ScoreResult - результат оценки одной заявки.
type ScoreResult struct {
	Score      int    `json:"score"`
	Admissible bool   `json:"admissible"`
	Reason     string `json:"reason,omitempty"`

	// WeightedAverage округлён до двух знаков для отображения.
	WeightedAverage float64 `json:"weighted_average"`
	RankBonus       int     `json:"rank_bonus"`
	NeedBonus       int     `json:"need_bonus"`
	Multiplier      float64 `json:"multiplier"`
}

// WeightedAverage считает средневзвешенный балл по профильным предметам.
// Незаполненная оценка даёт 0 в числителе, но её вес остаётся в знаменателе.
// Пустой набор предметов даёт 0.
func WeightedAverage(grades Grades, criteria Criteria) float64 {
	var sum, weights float64
	for _, s := range criteria.Subjects {
		w := float64(criteria.Weight(s))
		sum += grades.Get(s) * w
		weights += w
	}
	if weights <= 0 {
		return 0
	}
	return sum / weights
}

// RankBonus возвращает бонус за ранг желания: 100 для первого, минус 10
// за каждую позицию, 0 начиная с 11-го. Ранг ≤ 0 считается первым.
func RankBonus(wishRank int) int {
	if wishRank <= 0 {
		wishRank = DefaultWishRank
	}
	bonus := (rankBonusCeiling - wishRank) * rankBonusStep
	if bonus < 0 {
		return 0
	}
	return bonus
}

// TierMultiplier возвращает множитель уровня для данного среднего.
// Проверка elite не зависит от порога допуска и сохраняется как есть.
func TierMultiplier(tier Tier, average float64) float64 {
	switch tier {
	case TierElite:
		if average < elitePenaltyBelowAverage {
			return elitePenaltyMultiplier
		}
	case TierNormal:
		return normalTierMultiplier
	}
	return 1
}

// CalculateScore оценивает заявку по критериям программы.
// Недопуск - нормальный исход, а не ошибка.
func CalculateScore(grades Grades, criteria Criteria, wishRank int, needBased bool) ScoreResult {
	avg := WeightedAverage(grades, criteria)
	display := roundAverage(avg)

	if avg < criteria.EffectiveMinimum() {
		return ScoreResult{
			Score:           0,
			Admissible:      false,
			Reason:          ReasonInsufficientGrade,
			WeightedAverage: display,
		}
	}

	rankBonus := RankBonus(wishRank)
	needBonus := 0
	if needBased {
		needBonus = NeedBasedBonus
	}

	multiplier := TierMultiplier(criteria.EffectiveTier(), avg)
	score := (avg*baseScorePerPoint + float64(rankBonus) + float64(needBonus)) * multiplier

	return ScoreResult{
		Score:           int(math.Round(score)),
		Admissible:      true,
		WeightedAverage: display,
		RankBonus:       rankBonus,
		NeedBonus:       needBonus,
		Multiplier:      multiplier,
	}
}

func roundAverage(avg float64) float64 {
	return decimal.NewFromFloat(avg).Round(averageDisplayPlaces).InexactFloat64()
}
