package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
	"github.com/admissions-hub/admissions-hub/internal/domain/student"
	"github.com/admissions-hub/admissions-hub/internal/infrastructure/persistence/memory"
)

const studentX = "0b6f7c3e-1d2a-4f5b-8c9d-0e1f2a3b4c5d"

func catalogFixture() *memory.Catalog {
	return memory.NewCatalog(
		admission.CatalogProgram{
			ID:          "but-info-lyon",
			Label:       "BUT Informatique",
			Institution: "IUT Lyon 1",
			Filiere:     "BUT",
			City:        "Lyon",
			Department:  "Rhône",
			Region:      "Auvergne-Rhône-Alpes",
			Contract:    "Public",
			Capacity:    40,
		},
		admission.CatalogProgram{
			ID:          "licence-droit-paris",
			Label:       "Licence Droit",
			Institution: "Université Paris 1",
			Filiere:     "Licence",
			City:        "Paris",
			Department:  "Paris",
			Region:      "Ile-de-France",
			Contract:    "Public",
			Capacity:    300,
		},
		admission.CatalogProgram{
			ID:          "bts-ndrc-lyon",
			Label:       "BTS Négociation et digitalisation",
			Institution: "Lycée La Martinière",
			Filiere:     "BTS",
			City:        "Lyon",
			Department:  "Rhône",
			Region:      "Auvergne-Rhône-Alpes",
			Contract:    "Privé sous contrat d'association",
			Capacity:    24,
		},
		admission.CatalogProgram{
			ID:      "cpge-mpsi-paris",
			Label:   "CPGE MPSI",
			Filiere: "CPGE",
			City:    "Paris",
		},
	)
}

func mathProgram(id string, total int) admission.Program {
	return admission.Program{
		ID:         shared.ProgramID(id),
		Attributes: admission.CatalogAttributes{Label: "Maths " + id},
		Criteria: admission.Criteria{
			Subjects:       []admission.Subject{admission.SubjectMathematics},
			Weights:        map[admission.Subject]int{admission.SubjectMathematics: 1},
			MinimumAverage: 10,
			Tier:           admission.TierNormal,
		},
		TotalSeats: total,
	}
}

func seedProfile(t *testing.T, store *memory.Store, math float64, needBased bool) {
	t.Helper()
	p, err := student.NewProfile(student.NewProfileParams{ID: studentX, NeedBased: needBased})
	require.NoError(t, err)
	require.NoError(t, p.UpdateGrades(map[admission.Subject]*float64{admission.SubjectMathematics: &math}))
	require.NoError(t, store.Students().Save(context.Background(), p))
}
