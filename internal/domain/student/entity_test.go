package student

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

const testStudentID = "6f1c2b9e-4a57-4d8e-9c3a-2f0b7d1e5a90"

func grade(v float64) *float64 { return &v }

func TestNewProfile(t *testing.T) {
	p, err := NewProfile(NewProfileParams{
		ID:        testStudentID,
		Email:     " Camille.Martin@Example.fr ",
		FirstName: "Camille",
		LastName:  "Martin",
	})
	require.NoError(t, err)

	assert.Equal(t, "camille.martin@example.fr", p.Email)
	assert.Equal(t, "Camille Martin", p.DisplayName())
	assert.Empty(t, p.Grades)

	_, err = NewProfile(NewProfileParams{ID: "not-a-uuid"})
	assert.True(t, shared.IsValidation(err))

	_, err = NewProfile(NewProfileParams{ID: testStudentID, Email: "broken"})
	assert.ErrorIs(t, err, shared.ErrInvalidEmail)
}

func TestProfile_UpdateGrades(t *testing.T) {
	p, err := NewProfile(NewProfileParams{ID: testStudentID})
	require.NoError(t, err)

	require.NoError(t, p.UpdateGrades(map[admission.Subject]*float64{
		admission.SubjectMathematics: grade(16),
		admission.SubjectFrench:      grade(12.5),
	}))
	assert.Equal(t, 16.0, p.Grades.Get(admission.SubjectMathematics))

	require.NoError(t, p.UpdateGrades(map[admission.Subject]*float64{
		admission.SubjectFrench: nil,
	}))
	assert.False(t, p.Grades.Has(admission.SubjectFrench))
	assert.Equal(t, 0.0, p.Grades.Get(admission.SubjectFrench))
}

func TestProfile_UpdateGradesIsAllOrNothing(t *testing.T) {
	p, err := NewProfile(NewProfileParams{ID: testStudentID})
	require.NoError(t, err)
	require.NoError(t, p.UpdateGrades(map[admission.Subject]*float64{
		admission.SubjectMathematics: grade(10),
	}))

	err = p.UpdateGrades(map[admission.Subject]*float64{
		admission.SubjectMathematics: grade(14),
		admission.SubjectPhysics:     grade(21),
	})
	assert.ErrorIs(t, err, shared.ErrInvalidGrade)
	assert.Equal(t, 10.0, p.Grades.Get(admission.SubjectMathematics))

	err = p.UpdateGrades(map[admission.Subject]*float64{"latin": grade(12)})
	assert.ErrorIs(t, err, shared.ErrUnknownSubject)
}

func TestProfile_ChangeEmail(t *testing.T) {
	p, err := NewProfile(NewProfileParams{ID: testStudentID})
	require.NoError(t, err)
	assert.False(t, p.HasEmail())

	require.NoError(t, p.ChangeEmail(" Lea.Dubois@Example.fr"))
	assert.Equal(t, "lea.dubois@example.fr", p.Email)
	assert.True(t, p.HasEmail())

	assert.ErrorIs(t, p.ChangeEmail("not an address"), shared.ErrInvalidEmail)
	assert.Equal(t, "lea.dubois@example.fr", p.Email)

	require.NoError(t, p.ChangeEmail(""))
	assert.False(t, p.HasEmail())
}
