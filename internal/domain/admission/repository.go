package admission

import (
	"context"

	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure слое (PostgreSQL, Redis, HTTP).
// ══════════════════════════════════════════════════════════════════════════════

// ApplicationRepository - источник заявок и приёмник результатов прогона.
type ApplicationRepository interface {
	// Create сохраняет новую заявку. Повторная заявка на ту же программу
	// возвращает shared.ErrAlreadyApplied.
	Create(ctx context.Context, app *Application) error

	// GetByID возвращает заявку по ID.
	GetByID(ctx context.Context, id string) (*Application, error)

	// ListByStudent возвращает заявки студента по возрастанию ранга желания.
	ListByStudent(ctx context.Context, studentID shared.StudentID) ([]*Application, error)

	// ListActive возвращает снимок активных заявок с оценками и признаком
	// стипендиата из профиля, в порядке подачи.
	ListActive(ctx context.Context) ([]Application, error)

	// UpdateWishRanks сохраняет новые ранги желаний студента.
	UpdateWishRanks(ctx context.Context, studentID shared.StudentID, ranks map[string]int) error

	// SaveRunResults атомарно записывает итог прогона: либо все заявки, либо ничего.
	SaveRunResults(ctx context.Context, run *Run, results []Application) error
}

// ProgramRepository - источник требований программ.
type ProgramRepository interface {
	// GetByID возвращает программу по ID.
	GetByID(ctx context.Context, id shared.ProgramID) (*Program, error)

	// ListByIDs возвращает программы по списку ID. Отсутствующие пропускаются.
	ListByIDs(ctx context.Context, ids []shared.ProgramID) ([]Program, error)

	// ListAll возвращает все известные программы.
	ListAll(ctx context.Context) ([]Program, error)

	// Upsert создаёт или обновляет программу.
	Upsert(ctx context.Context, program *Program) error
}

// RunRepository - журнал прогонов.
type RunRepository interface {
	// Save сохраняет запись о прогоне (в том числе неудачном).
	Save(ctx context.Context, run *Run) error

	// GetLatest возвращает последний прогон или shared.ErrRunNotFound.
	GetLatest(ctx context.Context) (*Run, error)
}

// CatalogLookup - чтение открытого каталога программ.
type CatalogLookup interface {
	// LookupProgram возвращает карточку программы или shared.ErrProgramNotFound.
	LookupProgram(ctx context.Context, id shared.ProgramID) (*CatalogProgram, error)

	// ListPrograms возвращает весь каталог в порядке источника.
	ListPrograms(ctx context.Context) ([]CatalogProgram, error)
}

// CriteriaCache - кеш выведенных критериев по отпечатку атрибутов.
type CriteriaCache interface {
	GetCriteria(ctx context.Context, fingerprint string) (*Criteria, error)
	SetCriteria(ctx context.Context, fingerprint string, criteria Criteria) error
}

// RunLock сериализует прогоны между процессами.
type RunLock interface {
	// Acquire возвращает false, если блокировка уже занята.
	Acquire(ctx context.Context, runID string) (bool, error)
	// Release освобождает блокировку, если она принадлежит runID.
	Release(ctx context.Context, runID string) error
}
