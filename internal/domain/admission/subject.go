// Package admission содержит ядро приёмной кампании: вывод критериев программы
// из атрибутов каталога, расчёт балла заявки, ранжирование кандидатов,
// распределение мест с квотой для стипендиатов и многораундовое сопоставление.
//
// Пакет не выполняет ввод-вывод: все данные приходят снимком, результаты
// возвращаются значениями. Сохранение и блокировки - забота вызывающего слоя.
package admission

import (
	"fmt"
	"sort"
	"strings"

	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Subject - ключ школьного предмета в профиле студента.
type Subject string

const (
	SubjectMathematics Subject = "mathematiques"
	SubjectPhysics     Subject = "physique"
	SubjectChemistry   Subject = "chimie"
	SubjectBiology     Subject = "svt"
	SubjectFrench      Subject = "francais"
	SubjectEnglish     Subject = "anglais"
	SubjectHistory     Subject = "histoire"
	SubjectGeography   Subject = "geographie"
	SubjectPhilosophy  Subject = "philosophie"
	SubjectSport       Subject = "sport"
	SubjectEconomics   Subject = "ses"
	SubjectEngineering Subject = "si"
)

// KnownSubjects - все предметы, которые может заполнить студент, в порядке формы профиля.
var KnownSubjects = []Subject{
	SubjectMathematics,
	SubjectPhysics,
	SubjectChemistry,
	SubjectBiology,
	SubjectFrench,
	SubjectEnglish,
	SubjectHistory,
	SubjectGeography,
	SubjectPhilosophy,
	SubjectSport,
	SubjectEconomics,
	SubjectEngineering,
}

// IsKnown проверяет, что предмет входит в справочник.
func (s Subject) IsKnown() bool {
	for _, known := range KnownSubjects {
		if s == known {
			return true
		}
	}
	return false
}

// String возвращает ключ предмета.
func (s Subject) String() string {
	return string(s)
}

// ParseSubject нормализует ключ предмета и проверяет его по справочнику.
func ParseSubject(raw string) (Subject, error) {
	s := Subject(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsKnown() {
		return "", shared.WrapError("admission", "ParseSubject", shared.ErrInvalidInput,
			fmt.Sprintf("unknown subject %q", raw), shared.ErrUnknownSubject)
	}
	return s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GRADES
// ══════════════════════════════════════════════════════════════════════════════

// Grades - разреженная карта оценок студента (шкала 0-20).
// Отсутствующий предмет означает, что оценка не заполнена.
type Grades map[Subject]float64

// Get возвращает оценку по предмету. Незаполненная оценка считается нулём.
func (g Grades) Get(s Subject) float64 {
	if g == nil {
		return 0
	}
	return g[s]
}

// Has сообщает, заполнена ли оценка.
func (g Grades) Has(s Subject) bool {
	_, ok := g[s]
	return ok
}

// Validate проверяет ключи и диапазон всех оценок.
func (g Grades) Validate() error {
	for subject, value := range g {
		if !subject.IsKnown() {
			return shared.WrapError("admission", "ValidateGrades", shared.ErrInvalidInput,
				fmt.Sprintf("unknown subject %q", subject), shared.ErrUnknownSubject)
		}
		if _, err := shared.NewGrade(value); err != nil {
			return shared.WrapError("admission", "ValidateGrades", shared.ErrValueOutOfRange,
				fmt.Sprintf("grade %.2f for %s is out of range", value, subject), err)
		}
	}
	return nil
}

// Clone возвращает независимую копию карты.
func (g Grades) Clone() Grades {
	if g == nil {
		return Grades{}
	}
	out := make(Grades, len(g))
	for k, v := range g {
		out[k] = v
	}
	return out
}

// Subjects возвращает заполненные предметы в алфавитном порядке.
func (g Grades) Subjects() []Subject {
	out := make([]Subject, 0, len(g))
	for s := range g {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
