package admission

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status - состояние заявки в жизненном цикле.
type Status string

const (
	// StatusPending - заявка подана, прогон её ещё не обрабатывал.
	StatusPending Status = "pending"
	// StatusOffered - студенту предложено место.
	StatusOffered Status = "offered"
	// StatusWaitlisted - заявка допустима, но мест не хватило.
	StatusWaitlisted Status = "waitlisted"
	// StatusWithdrawn - предложение снято в пользу более приоритетного желания.
	StatusWithdrawn Status = "withdrawn"
	// StatusRejected - средний балл ниже порога.
	StatusRejected Status = "rejected"
)

// IsValid проверяет значение статуса.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusOffered, StatusWaitlisted, StatusWithdrawn, StatusRejected:
		return true
	}
	return false
}

// IsActive сообщает, участвует ли заявка в следующем раунде.
// Снятые и отклонённые заявки больше не рассматриваются.
func (s Status) IsActive() bool {
	switch s {
	case StatusPending, StatusOffered, StatusWaitlisted:
		return true
	}
	return false
}

// IsFinal сообщает, что статус больше не меняется движком.
func (s Status) IsFinal() bool {
	return s == StatusWithdrawn || s == StatusRejected
}

// External возвращает имя статуса для внешних потребителей.
// Лист ожидания снаружи называется "pending".
func (s Status) External() string {
	if s == StatusWaitlisted {
		return "pending"
	}
	return string(s)
}

// String возвращает строковое представление статуса.
func (s Status) String() string {
	return string(s)
}

// CanTransitionTo проверяет переход. Снятая заявка не возвращается.
func (s Status) CanTransitionTo(next Status) bool {
	if !next.IsValid() {
		return false
	}
	if s == StatusWithdrawn {
		return next == StatusWithdrawn
	}
	return true
}

// ParseStatus разбирает статус из хранилища.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", shared.WrapError("admission", "ParseStatus", shared.ErrInvalidInput,
			fmt.Sprintf("unknown status %q", raw), shared.ErrInvalidStatus)
	}
	return s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION
// ══════════════════════════════════════════════════════════════════════════════

// DefaultWishRank применяется, когда ранг желания не задан.
const DefaultWishRank = 1

// Application - заявка студента на программу.
// Оценки и признак стипендиата копируются из профиля при снятии снимка,
// чтобы движок работал без обращения к хранилищу.
type Application struct {
	ID        string           `json:"id" yaml:"id"`
	StudentID shared.StudentID `json:"student_id" yaml:"student_id"`
	ProgramID shared.ProgramID `json:"program_id" yaml:"program_id"`
	WishRank  int              `json:"wish_rank" yaml:"wish_rank"`
	NeedBased bool             `json:"need_based" yaml:"need_based"`
	Grades    Grades           `json:"grades" yaml:"grades"`
	Status    Status           `json:"status" yaml:"status"`

	Score           int     `json:"score" yaml:"score"`
	WeightedAverage float64 `json:"weighted_average" yaml:"weighted_average"`
	Position        int     `json:"position,omitempty" yaml:"position,omitempty"`

	// LastRunID - последний прогон, изменивший заявку. Пусто, пока прогонов не было.
	LastRunID   string    `json:"last_run_id,omitempty" yaml:"last_run_id,omitempty"`
	SubmittedAt time.Time `json:"submitted_at" yaml:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

// NewApplication создаёт заявку в статусе pending.
func NewApplication(studentID shared.StudentID, programID shared.ProgramID, wishRank int) (*Application, error) {
	if studentID.IsEmpty() {
		return nil, shared.NewDomainError("admission", "NewApplication", shared.ErrEmptyValue, "student ID cannot be empty")
	}
	if programID.IsEmpty() {
		return nil, shared.NewDomainError("admission", "NewApplication", shared.ErrEmptyValue, "program ID cannot be empty")
	}
	if wishRank <= 0 {
		return nil, shared.ErrInvalidWishRank
	}
	now := time.Now().UTC()
	return &Application{
		ID:          uuid.NewString(),
		StudentID:   studentID,
		ProgramID:   programID,
		WishRank:    wishRank,
		Status:      StatusPending,
		SubmittedAt: now,
		UpdatedAt:   now,
	}, nil
}

// EffectiveWishRank возвращает ранг желания, незаданный ранг равен 1.
func (a *Application) EffectiveWishRank() int {
	if a.WishRank <= 0 {
		return DefaultWishRank
	}
	return a.WishRank
}

// IsLocked сообщает, обрабатывал ли заявку хотя бы один прогон.
// Студент может менять только незатронутые заявки.
func (a *Application) IsLocked() bool {
	return a.LastRunID != "" || a.Status != StatusPending
}

// ChangeWishRank меняет ранг желания по запросу студента.
func (a *Application) ChangeWishRank(rank int) error {
	if a.IsLocked() {
		return shared.ErrApplicationLocked
	}
	if rank <= 0 {
		return shared.ErrInvalidWishRank
	}
	a.WishRank = rank
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// ApplyResult применяет итог прогона. Снятая заявка не возвращается в игру.
func (a *Application) ApplyResult(result MatchResult, runID string) error {
	if !a.Status.CanTransitionTo(result.Status) {
		return shared.WrapError("admission", "ApplyResult", shared.ErrStateTransition,
			fmt.Sprintf("application %s: %s -> %s", a.ID, a.Status, result.Status), shared.ErrStatusTransition)
	}
	a.Status = result.Status
	a.Score = result.Score
	a.WeightedAverage = result.WeightedAverage
	a.Position = result.Position
	a.LastRunID = runID
	a.UpdatedAt = time.Now().UTC()
	return nil
}
