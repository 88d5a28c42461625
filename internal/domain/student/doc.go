// Package student содержит профиль абитуриента: контактные данные,
// разреженную карту школьных оценок и признак стипендиата.
//
// Профиль - единственный источник оценок для расчёта балла. При снятии
// снимка прогона оценки и признак стипендиата копируются в заявки,
// поэтому изменение профиля после снятия снимка на текущий прогон не влияет.
//
// # Основные сущности
//
// Profile создаётся при первой регистрации:
//
//	profile, err := NewProfile(NewProfileParams{
//	    ID:        uuid.New().String(),
//	    Email:     "eleve@example.fr",
//	    FirstName: "Camille",
//	    LastName:  "Martin",
//	})
//
// Оценки обновляются целиком, значение nil удаляет предмет:
//
//	err := profile.UpdateGrades(map[admission.Subject]*float64{
//	    admission.SubjectMathematics: ptr(16),
//	    admission.SubjectSport:       nil,
//	})
//
// # Репозитории
//
// Repository определён здесь и реализуется в infrastructure/persistence/postgres.
package student
