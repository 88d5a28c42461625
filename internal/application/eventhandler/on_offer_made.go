package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
	"github.com/admissions-hub/admissions-hub/internal/domain/student"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON OFFER MADE HANDLER
// Письмо студенту, получившему предложение в прогоне.
// Студент без e-mail пропускается, это не ошибка.
// ═══════════════════════════════════════════════════════════════════════════

// OnOfferMadeHandler обрабатывает application.offered.
type OnOfferMadeHandler struct {
	students student.Repository
	programs admission.ProgramRepository
	catalog  admission.CatalogLookup
	notifier admission.Notifier
	enabled  FeatureGate
	logger   *slog.Logger

	timeout time.Duration
}

// NewOnOfferMadeHandler создаёт обработчик. catalog может быть nil:
// тогда в письме нет учреждения и города. enabled == nil означает "всегда".
func NewOnOfferMadeHandler(
	students student.Repository,
	programs admission.ProgramRepository,
	catalog admission.CatalogLookup,
	notifier admission.Notifier,
	enabled FeatureGate,
	logger *slog.Logger,
) *OnOfferMadeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if enabled == nil {
		enabled = alwaysOn
	}
	return &OnOfferMadeHandler{
		students: students,
		programs: programs,
		catalog:  catalog,
		notifier: notifier,
		enabled:  enabled,
		logger:   logger.With("handler", "on_offer_made"),
		timeout:  30 * time.Second,
	}
}

// Handle реализует shared.EventHandler.
func (h *OnOfferMadeHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventApplicationOffered {
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
		return fmt.Errorf("on_offer_made: %w", err)
	}
	if !profile.HasEmail() {
		h.logger.Debug("student has no e-mail, skipping", "student_id", studentID)
		return nil
	}

	programID := shared.ProgramID(payloadString(event, "program_id"))
	notice := admission.OfferNotice{
		Email:        profile.Email,
		StudentName:  profile.DisplayName(),
		ProgramLabel: programID.String(),
		Score:        payloadInt(event, "score"),
		Position:     payloadInt(event, "position"),
		DecidedAt:    event.OccurredAt(),
	}
	h.describeProgram(ctx, programID, &notice)

	if err := h.notifier.NotifyOffer(ctx, notice); err != nil {
		return fmt.Errorf("on_offer_made: %w", err)
	}

	h.logger.Info("offer notification sent",
		"application_id", event.AggregateID(),
		"student_id", studentID,
		"program_id", programID,
	)
	return nil
}

// describeProgram дополняет письмо названием, учреждением и городом.
// Ошибки поиска не мешают отправке.
func (h *OnOfferMadeHandler) describeProgram(ctx context.Context, id shared.ProgramID, n *admission.OfferNotice) {
	if p, err := h.programs.GetByID(ctx, id); err == nil && p.Attributes.Label != "" {
		n.ProgramLabel = p.Attributes.Label
	}
	if h.catalog == nil {
		return
	}
	card, err := h.catalog.LookupProgram(ctx, id)
	if err != nil {
		if !errors.Is(err, shared.ErrProgramNotFound) {
			h.logger.Warn("catalog lookup failed", "program_id", id, "error", err)
		}
		return
	}
	if card.Label != "" && n.ProgramLabel == id.String() {
		n.ProgramLabel = card.Label
	}
	n.Institution = card.Institution
	n.City = card.City
}
