package student

import (
	"context"

	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции с профилями.
type Repository interface {
	// GetByID возвращает профиль.
	// Возвращает shared.ErrStudentNotFound, если профиль не найден.
	GetByID(ctx context.Context, id shared.StudentID) (*Profile, error)

	// GetByIDs возвращает профили по списку ID. Отсутствующие пропускаются.
	GetByIDs(ctx context.Context, ids []shared.StudentID) ([]*Profile, error)

	// Save создаёт или обновляет профиль вместе с оценками.
	Save(ctx context.Context, profile *Profile) error
}
