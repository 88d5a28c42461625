package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
	"github.com/admissions-hub/admissions-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT APPLICATION COMMAND
// Студент подаёт заявку на программу каталога. Программа, которой ещё нет
// в хранилище, заводится из карточки каталога с ёмкостью по умолчанию.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitApplicationCommand - подача заявки.
type SubmitApplicationCommand struct {
	StudentID string
	ProgramID string

	// WishRank - ранг желания. 0 означает "следующий свободный".
	WishRank int
}

// Validate проверяет команду.
func (c SubmitApplicationCommand) Validate() error {
	if _, err := shared.NewStudentID(c.StudentID); err != nil {
		return err
	}
	if _, err := shared.NewProgramID(c.ProgramID); err != nil {
		return err
	}
	if c.WishRank < 0 {
		return shared.ErrInvalidWishRank
	}
	return nil
}

// SeatPolicy возвращает квоту стипендиатов для новой программы по её ёмкости.
type SeatPolicy func(totalSeats int) int

// SubmitApplicationHandler обрабатывает SubmitApplicationCommand.
type SubmitApplicationHandler struct {
	profiles     student.Repository
	applications admission.ApplicationRepository
	programs     admission.ProgramRepository
	catalog      admission.CatalogLookup
	criteria     *admission.CriteriaResolver
	reserve      SeatPolicy
	publisher    shared.EventPublisher
	logger       *slog.Logger
}

// NewSubmitApplicationHandler создаёт обработчик.
func NewSubmitApplicationHandler(
	profiles student.Repository,
	applications admission.ApplicationRepository,
	programs admission.ProgramRepository,
	catalog admission.CatalogLookup,
	criteria *admission.CriteriaResolver,
	reserve SeatPolicy,
	publisher shared.EventPublisher,
	logger *slog.Logger,
) *SubmitApplicationHandler {
	if reserve == nil {
		reserve = func(int) int { return 0 }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmitApplicationHandler{
		profiles:     profiles,
		applications: applications,
		programs:     programs,
		catalog:      catalog,
		criteria:     criteria,
		reserve:      reserve,
		publisher:    publisher,
		logger:       logger.With("component", "submit_application"),
	}
}

// Handle подаёт заявку.
func (h *SubmitApplicationHandler) Handle(ctx context.Context, cmd SubmitApplicationCommand) (*admission.Application, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("submit_application: %w", err)
	}
	studentID, _ := shared.NewStudentID(cmd.StudentID)
	programID, _ := shared.NewProgramID(cmd.ProgramID)

	if _, err := h.profiles.GetByID(ctx, studentID); err != nil {
		return nil, fmt.Errorf("submit_application: %w", err)
	}

	if err := h.ensureProgram(ctx, programID); err != nil {
		return nil, fmt.Errorf("submit_application: %w", err)
	}

	existing, err := h.applications.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("submit_application: %w", err)
	}
	maxRank := 0
	for _, app := range existing {
		if app.ProgramID == programID {
			return nil, shared.ErrAlreadyApplied
		}
		if app.WishRank > maxRank {
			maxRank = app.WishRank
		}
	}

	rank := cmd.WishRank
	if rank == 0 {
		rank = maxRank + 1
	}

	app, err := admission.NewApplication(studentID, programID, rank)
	if err != nil {
		return nil, fmt.Errorf("submit_application: %w", err)
	}
	if err := h.applications.Create(ctx, app); err != nil {
		return nil, fmt.Errorf("submit_application: %w", err)
	}

	h.logger.Info("application submitted",
		"application_id", app.ID,
		"student_id", studentID.String(),
		"program_id", programID.String(),
		"wish_rank", rank,
	)

	if h.publisher != nil {
		event := shared.NewApplicationSubmittedEvent(app.ID, studentID.String(), programID.String(), rank)
		if err := h.publisher.Publish(event); err != nil {
			h.logger.Warn("failed to publish event", "error", err)
		}
	}
	return app, nil
}

// ensureProgram проверяет, что программа известна, и заводит её из каталога.
func (h *SubmitApplicationHandler) ensureProgram(ctx context.Context, id shared.ProgramID) error {
	_, err := h.programs.GetByID(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, shared.ErrProgramNotFound) {
		return err
	}
	if h.catalog == nil {
		return shared.ErrProgramNotFound
	}

	card, err := h.catalog.LookupProgram(ctx, id)
	if err != nil {
		return err
	}

	program, err := admission.NewProgram(id, card.Attributes(), card.Capacity, h.reserve(card.Capacity))
	if err != nil {
		return err
	}
	if h.criteria != nil {
		c, _ := h.criteria.Resolve(ctx, program.Attributes)
		program.Criteria = c
	}
	if err := h.programs.Upsert(ctx, program); err != nil {
		return err
	}
	h.logger.Info("program imported from catalog",
		"program_id", id.String(),
		"total_seats", program.TotalSeats,
		"reserved_need_seats", program.ReservedNeedSeats,
		"tier", program.Criteria.EffectiveTier().String(),
	)
	return nil
}
