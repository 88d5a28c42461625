package student

import (
	"net/mail"
	"strings"
	"time"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// Profile - профиль абитуриента.
type Profile struct {
	ID         shared.StudentID
	Email      string
	FirstName  string
	LastName   string
	City       string
	PostalCode string

	// Grades - разреженная карта оценок по шкале 0-20.
	Grades admission.Grades

	// NeedBased - студент получает социальную стипендию (boursier).
	NeedBased bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProfileParams - параметры создания профиля.
type NewProfileParams struct {
	ID         string
	Email      string
	FirstName  string
	LastName   string
	City       string
	PostalCode string
	NeedBased  bool
}

// NewProfile создаёт профиль с валидацией.
func NewProfile(p NewProfileParams) (*Profile, error) {
	id, err := shared.NewStudentID(p.ID)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, shared.ErrInvalidEmail
		}
	}
	now := time.Now().UTC()
	return &Profile{
		ID:         id,
		Email:      email,
		FirstName:  strings.TrimSpace(p.FirstName),
		LastName:   strings.TrimSpace(p.LastName),
		City:       strings.TrimSpace(p.City),
		PostalCode: strings.TrimSpace(p.PostalCode),
		Grades:     admission.Grades{},
		NeedBased:  p.NeedBased,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// DisplayName возвращает имя для писем и интерфейса.
func (p *Profile) DisplayName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return p.Email
	}
	return name
}

// UpdateGrades применяет изменения оценок. nil удаляет предмет из карты.
// Изменения применяются только если все значения корректны.
func (p *Profile) UpdateGrades(changes map[admission.Subject]*float64) error {
	next := p.Grades.Clone()
	for subject, value := range changes {
		if !subject.IsKnown() {
			return shared.ErrUnknownSubject
		}
		if value == nil {
			delete(next, subject)
			continue
		}
		g, err := shared.NewGrade(*value)
		if err != nil {
			return err
		}
		next[subject] = g.Float64()
	}
	p.Grades = next
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// SetNeedBased меняет признак стипендиата.
func (p *Profile) SetNeedBased(needBased bool) {
	if p.NeedBased == needBased {
		return
	}
	p.NeedBased = needBased
	p.UpdatedAt = time.Now().UTC()
}

// ChangeEmail меняет адрес для уведомлений. Пустая строка удаляет адрес.
func (p *Profile) ChangeEmail(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return shared.ErrInvalidEmail
		}
	}
	p.Email = email
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// HasEmail сообщает, можно ли отправить студенту письмо.
func (p *Profile) HasEmail() bool {
	return p.Email != ""
}
