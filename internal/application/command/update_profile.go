package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
	"github.com/admissions-hub/admissions-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE PROFILE COMMAND
// Оценки и признак стипендиата. Профиль создаётся при первом сохранении.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateProfileCommand - изменения профиля. nil-поля не меняются.
type UpdateProfileCommand struct {
	StudentID string

	Email      *string
	FirstName  *string
	LastName   *string
	City       *string
	PostalCode *string

	// Grades - изменения оценок по ключу предмета. nil удаляет оценку.
	Grades map[string]*float64

	NeedBased *bool
}

// UpdateProfileHandler обрабатывает UpdateProfileCommand.
type UpdateProfileHandler struct {
	profiles  student.Repository
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewUpdateProfileHandler создаёт обработчик.
func NewUpdateProfileHandler(profiles student.Repository, publisher shared.EventPublisher, logger *slog.Logger) *UpdateProfileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UpdateProfileHandler{
		profiles:  profiles,
		publisher: publisher,
		logger:    logger.With("component", "update_profile"),
	}
}

// Handle применяет изменения и сохраняет профиль.
// Некорректная оценка отклоняет всю команду.
func (h *UpdateProfileHandler) Handle(ctx context.Context, cmd UpdateProfileCommand) (*student.Profile, error) {
	studentID, err := shared.NewStudentID(cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("update_profile: %w", err)
	}

	profile, err := h.profiles.GetByID(ctx, studentID)
	if errors.Is(err, shared.ErrStudentNotFound) {
		profile, err = student.NewProfile(student.NewProfileParams{ID: studentID.String()})
	}
	if err != nil {
		return nil, fmt.Errorf("update_profile: %w", err)
	}

	if cmd.Email != nil {
		if err := profile.ChangeEmail(*cmd.Email); err != nil {
			return nil, err
		}
	}
	setString(&profile.FirstName, cmd.FirstName)
	setString(&profile.LastName, cmd.LastName)
	setString(&profile.City, cmd.City)
	setString(&profile.PostalCode, cmd.PostalCode)

	if len(cmd.Grades) > 0 {
		changes := make(map[admission.Subject]*float64, len(cmd.Grades))
		for key, value := range cmd.Grades {
			subject, err := admission.ParseSubject(key)
			if err != nil {
				return nil, err
			}
			changes[subject] = value
		}
		if err := profile.UpdateGrades(changes); err != nil {
			return nil, err
		}
	}
	if cmd.NeedBased != nil {
		profile.SetNeedBased(*cmd.NeedBased)
	}

	if err := h.profiles.Save(ctx, profile); err != nil {
		return nil, fmt.Errorf("update_profile: %w", err)
	}

	h.logger.Info("profile updated",
		"student_id", studentID.String(),
		"subjects", len(profile.Grades),
		"need_based", profile.NeedBased,
	)
	if h.publisher != nil {
		event := shared.NewProfileUpdatedEvent(studentID.String(), len(profile.Grades), profile.NeedBased)
		if err := h.publisher.Publish(event); err != nil {
			h.logger.Warn("failed to publish event", "error", err)
		}
	}
	return profile, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
