package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

func sampleCatalog() []CatalogProgram {
	return []CatalogProgram{
		{ID: "1", Label: "BUT Informatique", Institution: "IUT de Lyon", Filiere: "BUT", City: "Lyon", Department: "Rhône", Region: "Auvergne-Rhône-Alpes", Contract: "Public"},
		{ID: "2", Label: "CPGE MPSI", Institution: "Lycée du Parc", Filiere: "CPGE", City: "Lyon", Department: "Rhône", Region: "Auvergne-Rhône-Alpes", Contract: "Public", AdmissionRate: RatePtr(12)},
		{ID: "3", Label: "Licence Droit", Institution: "Université Catholique", Filiere: "Licence", City: "Angers", Department: "Maine-et-Loire", Region: "Pays de la Loire", Contract: "Privé sous contrat d'association"},
		{ID: "4", Label: "Bachelor Commerce", Institution: "École de Bordeaux", Filiere: "Ecole de commerce", City: "Bordeaux", Department: "Gironde", Region: "Nouvelle-Aquitaine", Contract: "Privé hors contrat"},
	}
}

func ids(programs []CatalogProgram) []shared.ProgramID {
	out := make([]shared.ProgramID, len(programs))
	for i, p := range programs {
		out[i] = p.ID
	}
	return out
}

func TestFilterCatalog(t *testing.T) {
	tests := []struct {
		name   string
		filter CatalogFilter
		want   []shared.ProgramID
	}{
		{"no filter keeps catalog order", CatalogFilter{}, []shared.ProgramID{"1", "2", "3", "4"}},
		{"term in label", CatalogFilter{Term: "informatique"}, []shared.ProgramID{"1"}},
		{"term in institution", CatalogFilter{Term: "LYCÉE"}, []shared.ProgramID{"2"}},
		{"term in filiere", CatalogFilter{Term: "licence"}, []shared.ProgramID{"3"}},
		{"zone in city", CatalogFilter{Zone: "lyon"}, []shared.ProgramID{"1", "2"}},
		{"zone in region", CatalogFilter{Zone: "aquitaine"}, []shared.ProgramID{"4"}},
		{"contract is exact", CatalogFilter{Contract: "Public"}, []shared.ProgramID{"1", "2"}},
		{"sort by city", CatalogFilter{Sort: SortCity}, []shared.ProgramID{"3", "4", "1", "2"}},
		{"sort alphabetically", CatalogFilter{Sort: SortAlphabetical}, []shared.ProgramID{"4", "1", "2", "3"}},
		{"combined", CatalogFilter{Term: "cpge", Zone: "rhône", Contract: "Public"}, []shared.ProgramID{"2"}},
		{"no match", CatalogFilter{Term: "médecine"}, []shared.ProgramID{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(FilterCatalog(sampleCatalog(), tt.filter)))
		})
	}
}

func TestParseCatalogSort(t *testing.T) {
	assert.Equal(t, SortAlphabetical, ParseCatalogSort("alphabetique"))
	assert.Equal(t, SortCity, ParseCatalogSort("Ville"))
	assert.Equal(t, SortRelevance, ParseCatalogSort("pertinence"))
	assert.Equal(t, SortRelevance, ParseCatalogSort(""))
}

func TestContractTypes(t *testing.T) {
	got := ContractTypes(sampleCatalog())
	assert.Equal(t, []string{"Privé hors contrat", "Privé sous contrat d'association", "Public"}, got)
}

func TestComparePrograms(t *testing.T) {
	catalog := sampleCatalog()

	rows, err := ComparePrograms(catalog[:2])
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "informatics", rows[0].Category)
	assert.Equal(t, TierNormal, rows[0].Tier)
	assert.Equal(t, TierElite, rows[1].Tier)
	assert.Equal(t, 15.0, rows[1].MinimumAverage)

	_, err = ComparePrograms(catalog)
	assert.ErrorIs(t, err, shared.ErrTooManyPrograms)
}
