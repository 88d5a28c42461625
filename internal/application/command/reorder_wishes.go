package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REORDER WISHES COMMAND
// Студент задаёт новый порядок своих желаний. Ранг меняется только у заявок,
// которых ещё не касался ни один прогон.
// ══════════════════════════════════════════════════════════════════════════════

// ReorderWishesCommand - новый порядок желаний.
type ReorderWishesCommand struct {
	StudentID string

	// ApplicationIDs - все заявки студента в порядке предпочтения.
	// Первая получает ранг 1.
	ApplicationIDs []string
}

// ReorderWishesHandler обрабатывает ReorderWishesCommand.
type ReorderWishesHandler struct {
	applications admission.ApplicationRepository
	logger       *slog.Logger
}

// NewReorderWishesHandler создаёт обработчик.
func NewReorderWishesHandler(applications admission.ApplicationRepository, logger *slog.Logger) *ReorderWishesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReorderWishesHandler{
		applications: applications,
		logger:       logger.With("component", "reorder_wishes"),
	}
}

// Handle применяет порядок и возвращает заявки по возрастанию ранга.
// Заявка, чей ранг не меняется, может быть уже обработана прогоном.
func (h *ReorderWishesHandler) Handle(ctx context.Context, cmd ReorderWishesCommand) ([]*admission.Application, error) {
	studentID, err := shared.NewStudentID(cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("reorder_wishes: %w", err)
	}

	apps, err := h.applications.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("reorder_wishes: %w", err)
	}
	if len(cmd.ApplicationIDs) != len(apps) {
		return nil, shared.NewDomainError("admission", "ReorderWishes", shared.ErrInvalidInput,
			fmt.Sprintf("expected %d applications in the new order, got %d", len(apps), len(cmd.ApplicationIDs)))
	}

	byID := make(map[string]*admission.Application, len(apps))
	for _, app := range apps {
		byID[app.ID] = app
	}

	ranks := make(map[string]int)
	seen := make(map[string]struct{}, len(cmd.ApplicationIDs))
	for i, id := range cmd.ApplicationIDs {
		app, ok := byID[id]
		if !ok {
			return nil, shared.ErrApplicationNotFound
		}
		if _, dup := seen[id]; dup {
			return nil, shared.NewDomainError("admission", "ReorderWishes", shared.ErrInvalidInput,
				fmt.Sprintf("application %s listed twice", id))
		}
		seen[id] = struct{}{}

		rank := i + 1
		if app.WishRank == rank {
			continue
		}
		if err := app.ChangeWishRank(rank); err != nil {
			return nil, err
		}
		ranks[app.ID] = rank
	}

	if len(ranks) > 0 {
		if err := h.applications.UpdateWishRanks(ctx, studentID, ranks); err != nil {
			return nil, fmt.Errorf("reorder_wishes: %w", err)
		}
		h.logger.Info("wishes reordered", "student_id", studentID.String(), "changed", len(ranks))
	}

	ordered := make([]*admission.Application, len(cmd.ApplicationIDs))
	for i, id := range cmd.ApplicationIDs {
		ordered[i] = byID[id]
	}
	return ordered, nil
}
