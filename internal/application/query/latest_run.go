package query

import (
	"context"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
)

// RunDTO - отчёт о прогоне для администратора.
type RunDTO struct {
	*admission.Run

	// Pending - лист ожидания под внешним именем.
	Pending    int    `json:"pending"`
	DurationMS int64  `json:"duration_ms"`
	Status     string `json:"status"`
}

// LatestRunHandler отдаёт последний прогон.
type LatestRunHandler struct {
	runs admission.RunRepository
}

// NewLatestRunHandler создаёт обработчик.
func NewLatestRunHandler(runs admission.RunRepository) *LatestRunHandler {
	return &LatestRunHandler{runs: runs}
}

// Handle возвращает последний прогон или shared.ErrRunNotFound.
func (h *LatestRunHandler) Handle(ctx context.Context) (*RunDTO, error) {
	run, err := h.runs.GetLatest(ctx)
	if err != nil {
		return nil, err
	}
	return NewRunDTO(run), nil
}

// NewRunDTO строит отчёт из записи о прогоне.
func NewRunDTO(run *admission.Run) *RunDTO {
	return &RunDTO{
		Run:        run,
		Pending:    run.Waitlisted,
		DurationMS: run.Duration().Milliseconds(),
		Status:     run.State.String(),
	}
}
