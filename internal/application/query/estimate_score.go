// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
	"github.com/admissions-hub/admissions-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// ESTIMATE SCORE QUERY
// Оценка шансов студента на программу до подачи заявки: критерии программы,
// средневзвешенный балл и итоговый балл для гипотетического ранга желания.
// ══════════════════════════════════════════════════════════════════════════════

// EstimateScoreQuery - параметры оценки.
type EstimateScoreQuery struct {
	StudentID string
	ProgramID string

	// WishRank - гипотетический ранг желания, по умолчанию 1.
	WishRank int
}

// EstimateDTO - результат оценки.
type EstimateDTO struct {
	ProgramID string `json:"program_id"`
	Label     string `json:"label"`

	Category       string              `json:"category"`
	Tier           admission.Tier      `json:"tier"`
	MinimumAverage float64             `json:"minimum_average"`
	Subjects       []admission.Subject `json:"subjects"`
	Weights        map[string]int      `json:"weights"`

	WishRank  int  `json:"wish_rank"`
	NeedBased bool `json:"need_based"`

	admission.ScoreResult

	// MissingSubjects - профильные предметы без оценки в профиле.
	// Они считаются нулём, поэтому балл занижен.
	MissingSubjects []admission.Subject `json:"missing_subjects,omitempty"`
}

// EstimateScoreHandler обрабатывает EstimateScoreQuery.
type EstimateScoreHandler struct {
	programs admission.ProgramRepository
	students student.Repository
	catalog  admission.CatalogLookup
	criteria *admission.CriteriaResolver

	// liveLookup включает оценку по живому каталогу вместо сохранённой копии.
	liveLookup func() bool
}

// NewEstimateScoreHandler создаёт обработчик. liveLookup может быть nil:
// тогда каталог используется только для программ, которых нет в хранилище.
func NewEstimateScoreHandler(
	programs admission.ProgramRepository,
	students student.Repository,
	catalog admission.CatalogLookup,
	criteria *admission.CriteriaResolver,
	liveLookup func() bool,
) *EstimateScoreHandler {
	if liveLookup == nil {
		liveLookup = func() bool { return false }
	}
	return &EstimateScoreHandler{
		programs:   programs,
		students:   students,
		catalog:    catalog,
		criteria:   criteria,
		liveLookup: liveLookup,
	}
}

// Handle считает оценку.
func (h *EstimateScoreHandler) Handle(ctx context.Context, q EstimateScoreQuery) (*EstimateDTO, error) {
	studentID, err := shared.NewStudentID(q.StudentID)
	if err != nil {
		return nil, err
	}
	programID, err := shared.NewProgramID(q.ProgramID)
	if err != nil {
		return nil, err
	}
	rank := q.WishRank
	if rank < 0 {
		return nil, shared.ErrInvalidWishRank
	}
	if rank == 0 {
		rank = admission.DefaultWishRank
	}

	profile, err := h.students.GetByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("estimate_score: %w", err)
	}

	label, criteria, err := h.programCriteria(ctx, programID)
	if err != nil {
		return nil, fmt.Errorf("estimate_score: %w", err)
	}

	result := admission.CalculateScore(profile.Grades, criteria, rank, profile.NeedBased)

	dto := &EstimateDTO{
		ProgramID:      programID.String(),
		Label:          label,
		Category:       criteria.Category,
		Tier:           criteria.EffectiveTier(),
		MinimumAverage: criteria.EffectiveMinimum(),
		Subjects:       criteria.Subjects,
		Weights:        make(map[string]int, len(criteria.Subjects)),
		WishRank:       rank,
		NeedBased:      profile.NeedBased,
		ScoreResult:    result,
	}
	for _, s := range criteria.Subjects {
		dto.Weights[s.String()] = criteria.Weight(s)
		if !profile.Grades.Has(s) {
			dto.MissingSubjects = append(dto.MissingSubjects, s)
		}
	}
	return dto, nil
}

// programCriteria берёт критерии из хранилища, а при живом режиме или
// отсутствии программы выводит их из карточки каталога.
func (h *EstimateScoreHandler) programCriteria(ctx context.Context, id shared.ProgramID) (string, admission.Criteria, error) {
	stored, err := h.programs.GetByID(ctx, id)
	switch {
	case err == nil && (stored.IsManuallyConfigured() || !h.liveLookup() || h.catalog == nil):
		if !stored.IsManuallyConfigured() {
			stored.RefreshCriteria()
		}
		return stored.Attributes.Label, stored.Criteria, nil
	case err != nil && !errors.Is(err, shared.ErrProgramNotFound):
		return "", admission.Criteria{}, err
	case h.catalog == nil:
		return "", admission.Criteria{}, shared.ErrProgramNotFound
	}

	card, err := h.catalog.LookupProgram(ctx, id)
	if err != nil {
		return "", admission.Criteria{}, err
	}
	criteria, _ := h.criteria.Resolve(ctx, card.Attributes())
	return card.Label, criteria, nil
}
