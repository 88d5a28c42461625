package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
	"github.com/admissions-hub/admissions-hub/internal/domain/student"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON AUTO WITHDRAWN HANDLER
// Письмо об автоматическом отзыве предложения в пользу лучшего желания.
// ═══════════════════════════════════════════════════════════════════════════

// OnAutoWithdrawnHandler обрабатывает application.auto_withdrawn.
type OnAutoWithdrawnHandler struct {
	students     student.Repository
	applications admission.ApplicationRepository
	programs     admission.ProgramRepository
	notifier     admission.Notifier
	enabled      FeatureGate
	logger       *slog.Logger

	timeout time.Duration
}

// NewOnAutoWithdrawnHandler создаёт обработчик.
func NewOnAutoWithdrawnHandler(
	students student.Repository,
	applications admission.ApplicationRepository,
	programs admission.ProgramRepository,
	notifier admission.Notifier,
	enabled FeatureGate,
	logger *slog.Logger,
) *OnAutoWithdrawnHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if enabled == nil {
		enabled = alwaysOn
	}
	return &OnAutoWithdrawnHandler{
		students:     students,
		applications: applications,
		programs:     programs,
		notifier:     notifier,
		enabled:      enabled,
		logger:       logger.With("handler", "on_auto_withdrawn"),
		timeout:      30 * time.Second,
	}
}

// Handle реализует shared.EventHandler.
func (h *OnAutoWithdrawnHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventApplicationAutoWithdrawn {
		return nil
	}

	studentID := payloadString(event, "student_id")
	if !h.enabled(studentID) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	profile, err := h.students.GetByID(ctx, shared.StudentID(studentID))
	if err != nil {
		return fmt.Errorf("on_auto_withdrawn: %w", err)
	}
	if !profile.HasEmail() {
		return nil
	}

	withdrawn := shared.ProgramID(payloadString(event, "program_id"))
	notice := admission.WithdrawalNotice{
		Email:            profile.Email,
		StudentName:      profile.DisplayName(),
		WithdrawnProgram: h.label(ctx, withdrawn),
		DecidedAt:        event.OccurredAt(),
	}

	keptID := payloadString(event, "kept_application_id")
	if kept, err := h.applications.GetByID(ctx, keptID); err == nil {
		notice.KeptProgram = h.label(ctx, kept.ProgramID)
	} else {
		h.logger.Warn("kept application not found", "application_id", keptID, "error", err)
		notice.KeptProgram = "un voeu mieux classé"
	}

	if err := h.notifier.NotifyWithdrawal(ctx, notice); err != nil {
		return fmt.Errorf("on_auto_withdrawn: %w", err)
	}

	h.logger.Info("withdrawal notification sent",
		"application_id", event.AggregateID(),
		"student_id", studentID,
		"kept_application_id", keptID,
	)
	return nil
}

func (h *OnAutoWithdrawnHandler) label(ctx context.Context, id shared.ProgramID) string {
	if p, err := h.programs.GetByID(ctx, id); err == nil && p.Attributes.Label != "" {
		return p.Attributes.Label
	}
	return id.String()
}
