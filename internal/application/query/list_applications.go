package query

import (
	"context"
	"fmt"
	"time"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST APPLICATIONS QUERY
// Заявки студента по возрастанию ранга желания. Лист ожидания снаружи
// показывается как "pending".
// ══════════════════════════════════════════════════════════════════════════════

// ApplicationDTO - заявка для студента.
type ApplicationDTO struct {
	ID           string `json:"id"`
	ProgramID    string `json:"program_id"`
	ProgramLabel string `json:"program_label,omitempty"`
	WishRank     int    `json:"wish_rank"`
	Status       string `json:"status"`

	Score           int     `json:"score"`
	WeightedAverage float64 `json:"weighted_average"`
	Position        int     `json:"position,omitempty"`

	// Locked - заявку уже обработал прогон, ранг менять нельзя.
	Locked      bool      `json:"locked"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// NewApplicationDTO строит DTO из заявки. label может быть пустым.
func NewApplicationDTO(app *admission.Application, label string) ApplicationDTO {
	return ApplicationDTO{
		ID:              app.ID,
		ProgramID:       app.ProgramID.String(),
		ProgramLabel:    label,
		WishRank:        app.WishRank,
		Status:          app.Status.External(),
		Score:           app.Score,
		WeightedAverage: app.WeightedAverage,
		Position:        app.Position,
		Locked:          app.IsLocked(),
		SubmittedAt:     app.SubmittedAt,
	}
}

// ListApplicationsHandler отдаёт заявки студента.
type ListApplicationsHandler struct {
	applications admission.ApplicationRepository
	programs     admission.ProgramRepository
}

// NewListApplicationsHandler создаёт обработчик.
func NewListApplicationsHandler(applications admission.ApplicationRepository, programs admission.ProgramRepository) *ListApplicationsHandler {
	return &ListApplicationsHandler{applications: applications, programs: programs}
}

// Handle возвращает заявки студента.
func (h *ListApplicationsHandler) Handle(ctx context.Context, studentID string) ([]ApplicationDTO, error) {
	sid, err := shared.NewStudentID(studentID)
	if err != nil {
		return nil, err
	}

	apps, err := h.applications.ListByStudent(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("list_applications: %w", err)
	}
	if len(apps) == 0 {
		return []ApplicationDTO{}, nil
	}

	labels, err := h.labels(ctx, apps)
	if err != nil {
		return nil, fmt.Errorf("list_applications: %w", err)
	}

	out := make([]ApplicationDTO, len(apps))
	for i, app := range apps {
		out[i] = NewApplicationDTO(app, labels[app.ProgramID])
	}
	return out, nil
}

func (h *ListApplicationsHandler) labels(ctx context.Context, apps []*admission.Application) (map[shared.ProgramID]string, error) {
	ids := make([]shared.ProgramID, 0, len(apps))
	for _, app := range apps {
		ids = append(ids, app.ProgramID)
	}
	programs, err := h.programs.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	labels := make(map[shared.ProgramID]string, len(programs))
	for _, p := range programs {
		labels[p.ID] = p.Attributes.Label
	}
	return labels, nil
}
