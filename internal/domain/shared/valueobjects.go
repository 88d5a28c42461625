package shared

import (
	"strings"

	"github.com/google/uuid"
)

// StudentID - UUID профиля, выданный сервисом аутентификации. Хранится в
// нижнем регистре.
type StudentID string

func NewStudentID(id string) (StudentID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil || parsed == uuid.Nil {
		return "", NewDomainError("shared", "NewStudentID", ErrInvalidID, "invalid student ID format")
	}
	return StudentID(parsed.String()), nil
}

func (s StudentID) String() string { return string(s) }
func (s StudentID) IsEmpty() bool  { return s == "" }

// IsValid проверяет каноническую запись UUID.
func (s StudentID) IsValid() bool {
	parsed, err := uuid.Parse(string(s))
	return err == nil && parsed.String() == string(s)
}

// ProgramID - идентификатор записи открытого каталога; формат не проверяется.
type ProgramID string

func NewProgramID(id string) (ProgramID, error) {
	pid := ProgramID(strings.TrimSpace(id))
	if pid.IsEmpty() {
		return "", NewDomainError("shared", "NewProgramID", ErrEmptyValue, "program ID cannot be empty")
	}
	return pid, nil
}

func (p ProgramID) String() string { return string(p) }
func (p ProgramID) IsEmpty() bool  { return strings.TrimSpace(string(p)) == "" }

// Grade - оценка по шкале 0–20.
type Grade float64

const (
	MinGrade Grade = 0
	MaxGrade Grade = 20
)

func NewGrade(value float64) (Grade, error) {
	g := Grade(value)
	if !g.IsValid() {
		return 0, ErrInvalidGrade
	}
	return g, nil
}

func (g Grade) IsValid() bool    { return g >= MinGrade && g <= MaxGrade }
func (g Grade) Float64() float64 { return float64(g) }

// Pagination - страница выдачи каталога, нумерация с 1.
type Pagination struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NewPagination подставляет значения по умолчанию и ограничивает размер
// страницы.
func NewPagination(page, pageSize int) Pagination {
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return Pagination{Page: max(page, 1), PageSize: pageSize}
}

func (p Pagination) Limit() int  { return NewPagination(p.Page, p.PageSize).PageSize }
func (p Pagination) Offset() int { return (NewPagination(p.Page, p.PageSize).Page - 1) * p.Limit() }
