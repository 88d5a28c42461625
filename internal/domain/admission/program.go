package admission

import (
	"fmt"
	"time"

	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// Program - программа обучения с ёмкостью и критериями приёма.
// Критерии выводятся из атрибутов каталога один раз и кешируются
// вместе с отпечатком атрибутов; пересчёт только при их изменении.
type Program struct {
	ID                shared.ProgramID  `json:"id" yaml:"id"`
	Attributes        CatalogAttributes `json:"attributes" yaml:"attributes"`
	Criteria          Criteria          `json:"criteria" yaml:"criteria"`
	TotalSeats        int               `json:"total_seats" yaml:"total_seats"`
	ReservedNeedSeats int               `json:"reserved_need_seats" yaml:"reserved_need_seats"`

	// CriteriaFingerprint - отпечаток атрибутов, из которых выведены Criteria.
	// Пустой отпечаток означает вручную заданные критерии.
	CriteriaFingerprint string    `json:"criteria_fingerprint,omitempty" yaml:"criteria_fingerprint,omitempty"`
	UpdatedAt           time.Time `json:"updated_at" yaml:"-"`
}

// NewProgram создаёт программу и выводит критерии из атрибутов каталога.
func NewProgram(id shared.ProgramID, attrs CatalogAttributes, totalSeats, reservedNeedSeats int) (*Program, error) {
	if id.IsEmpty() {
		return nil, shared.NewDomainError("admission", "NewProgram", shared.ErrEmptyValue, "program ID cannot be empty")
	}
	p := &Program{
		ID:                id,
		Attributes:        attrs,
		TotalSeats:        totalSeats,
		ReservedNeedSeats: reservedNeedSeats,
		UpdatedAt:         time.Now().UTC(),
	}
	if err := p.ValidateCapacity(); err != nil {
		return nil, err
	}
	p.RefreshCriteria()
	return p, nil
}

// ValidateCapacity проверяет ёмкость. Квота больше общей ёмкости -
// ошибка конфигурации, значение не подрезается.
func (p *Program) ValidateCapacity() error {
	if p.TotalSeats < 0 || p.ReservedNeedSeats < 0 {
		return shared.WrapError("admission", "ValidateCapacity", shared.ErrNegativeValue,
			fmt.Sprintf("program %s: seat counts cannot be negative", p.ID), shared.ErrInvalidCapacity)
	}
	if p.ReservedNeedSeats > p.TotalSeats {
		return shared.WrapError("admission", "ValidateCapacity", shared.ErrInvalidInput,
			fmt.Sprintf("program %s: reserved need-based seats (%d) exceed total seats (%d)",
				p.ID, p.ReservedNeedSeats, p.TotalSeats), shared.ErrInvalidCapacity)
	}
	return nil
}

// Validate проверяет ёмкость и критерии программы перед прогоном.
func (p *Program) Validate() error {
	if err := p.ValidateCapacity(); err != nil {
		return err
	}
	if err := p.Criteria.Validate(); err != nil {
		return fmt.Errorf("program %s: %w", p.ID, err)
	}
	return nil
}

// RefreshCriteria пересчитывает критерии, если атрибуты изменились.
// Возвращает true, если критерии были пересчитаны.
func (p *Program) RefreshCriteria() bool {
	fp := p.Attributes.Fingerprint()
	if fp == p.CriteriaFingerprint && p.Criteria.HasSubjects() {
		return false
	}
	p.Criteria = ResolveCriteria(p.Attributes)
	p.CriteriaFingerprint = fp
	return true
}

// UpdateAttributes заменяет атрибуты каталога и при необходимости пересчитывает критерии.
func (p *Program) UpdateAttributes(attrs CatalogAttributes) bool {
	p.Attributes = attrs
	if p.IsManuallyConfigured() {
		return false
	}
	changed := p.RefreshCriteria()
	if changed {
		p.UpdatedAt = time.Now().UTC()
	}
	return changed
}

// SetCriteria задаёт критерии вручную (администратор). Отпечаток сбрасывается,
// чтобы синхронизация каталога не перезаписала ручные критерии.
func (p *Program) SetCriteria(c Criteria) error {
	if err := c.Validate(); err != nil {
		return err
	}
	p.Criteria = c
	p.CriteriaFingerprint = ""
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// IsManuallyConfigured сообщает, заданы ли критерии вручную.
func (p *Program) IsManuallyConfigured() bool {
	return p.CriteriaFingerprint == "" && p.Criteria.HasSubjects()
}
