// Package shared содержит общие для доменов ошибки, события и объекты-значения.
// Внешних зависимостей у пакета нет.
package shared

import (
	"errors"
	"fmt"
)

// Базовые виды ошибок. Интерфейсный слой выбирает HTTP-статус по виду,
// а не по конкретной ошибке.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	ErrConflict = errors.New("conflict")

	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError - ошибка с контекстом: где (Domain.Op), какого вида (Kind)
// и, возможно, из-за чего (Err). errors.Is находит как Kind, так и Err.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	msg := e.Domain + "." + e.Op + ": " + e.Message
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DomainError) Unwrap() []error {
	var errs []error
	for _, err := range []error{e.Kind, e.Err} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// Профиль студента
var (
	ErrStudentNotFound = NewDomainError("student", "Find", ErrNotFound, "student profile not found")
	ErrInvalidGrade    = NewDomainError("student", "Validate", ErrValueOutOfRange, "grade must be between 0 and 20")
	ErrUnknownSubject  = NewDomainError("student", "Validate", ErrInvalidInput, "unknown subject")
	ErrInvalidEmail    = NewDomainError("student", "Validate", ErrInvalidFormat, "invalid e-mail address")
)

// Заявки и распределение
var (
	ErrProgramNotFound     = NewDomainError("admission", "FindProgram", ErrNotFound, "program not found")
	ErrApplicationNotFound = NewDomainError("admission", "FindApplication", ErrNotFound, "application not found")
	ErrAlreadyApplied      = NewDomainError("admission", "Submit", ErrAlreadyExists, "student already applied to this program")
	ErrInvalidCapacity     = NewDomainError("admission", "Configure", ErrInvalidInput, "invalid seat capacity")
	ErrInvalidWishRank     = NewDomainError("admission", "Validate", ErrValueOutOfRange, "wish rank must be positive")
	ErrInvalidStatus       = NewDomainError("admission", "Validate", ErrInvalidInput, "unknown application status")
	ErrStatusTransition    = NewDomainError("admission", "UpdateStatus", ErrStateTransition, "withdrawn application cannot be reactivated")
	ErrApplicationLocked   = NewDomainError("admission", "Edit", ErrInvalidState, "application already processed by a matching run")
	ErrRunInProgress       = NewDomainError("admission", "RunMatching", ErrConflict, "a matching run is already in progress")
	ErrRunNotFound         = NewDomainError("admission", "FindRun", ErrNotFound, "no matching run recorded")
	ErrTooManyPrograms     = NewDomainError("admission", "Compare", ErrValueOutOfRange, "at most 3 programs can be compared")
)

// Внешние сервисы
var (
	ErrCatalogUnavailable     = NewDomainError("catalog", "Request", ErrServiceUnavailable, "program catalog is unavailable")
	ErrCatalogRateLimited     = NewDomainError("catalog", "Request", ErrRateLimited, "program catalog rate limit exceeded")
	ErrCatalogTimeout         = NewDomainError("catalog", "Request", ErrTimeout, "program catalog request timeout")
	ErrCatalogInvalidResponse = NewDomainError("catalog", "Parse", ErrInvalidFormat, "invalid response from program catalog")
	ErrMailDeliveryFailed     = NewDomainError("mail", "Send", ErrExternalService, "mail delivery failed")
)

func isAny(err error, kinds ...error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }
func IsConflict(err error) bool      { return errors.Is(err, ErrConflict) }

// IsValidation - ошибка во входных данных клиента.
func IsValidation(err error) bool {
	return isAny(err, ErrInvalidID, ErrInvalidInput, ErrEmptyValue, ErrNegativeValue, ErrValueOutOfRange)
}

// IsExternalService - сбой каталога или почты, а не наш.
func IsExternalService(err error) bool {
	return isAny(err, ErrExternalService, ErrServiceUnavailable, ErrTimeout, ErrRateLimited)
}
