package admission

import (
	"sort"
	"strings"

	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG PROGRAM
// ══════════════════════════════════════════════════════════════════════════════

// CatalogProgram - карточка программы из открытого каталога Parcoursup.
type CatalogProgram struct {
	ID          shared.ProgramID `json:"id"`
	Label       string           `json:"label"`
	Institution string           `json:"institution"`
	Filiere     string           `json:"filiere"`
	City        string           `json:"city"`
	Department  string           `json:"department"`
	Region      string           `json:"region"`

	// Contract - тип учреждения: "Public", "Privé sous contrat d'association" и т.п.
	Contract string `json:"contract"`

	AdmissionRate     *float64 `json:"admission_rate,omitempty"`
	SelectivityMarker string   `json:"selectivity_marker,omitempty"`
	Capacity          int      `json:"capacity"`
	Applicants        int      `json:"applicants"`
	Proposals         int      `json:"proposals"`

	// NeedBasedShare - доля стипендиатов среди принятых, в процентах.
	NeedBasedShare *float64 `json:"need_based_share,omitempty"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Attributes возвращает атрибуты, из которых выводятся критерии.
func (p CatalogProgram) Attributes() CatalogAttributes {
	return CatalogAttributes{
		Label:             p.Label,
		Filiere:           p.Filiere,
		AdmissionRate:     p.AdmissionRate,
		SelectivityMarker: p.SelectivityMarker,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SEARCH
// ══════════════════════════════════════════════════════════════════════════════

// CatalogSort - порядок выдачи поиска.
type CatalogSort string

const (
	// SortRelevance сохраняет порядок каталога.
	SortRelevance    CatalogSort = "relevance"
	SortAlphabetical CatalogSort = "alphabetical"
	SortCity         CatalogSort = "city"
)

// ParseCatalogSort разбирает порядок сортировки. Неизвестное значение - порядок каталога.
func ParseCatalogSort(raw string) CatalogSort {
	switch CatalogSort(strings.ToLower(strings.TrimSpace(raw))) {
	case SortAlphabetical, "alphabetique":
		return SortAlphabetical
	case SortCity, "ville":
		return SortCity
	}
	return SortRelevance
}

// CatalogFilter - фильтры поиска по каталогу. Пустое поле не фильтрует.
type CatalogFilter struct {
	// Term ищется в названии, учреждении и направлении.
	Term string
	// Zone ищется в городе, департаменте и регионе.
	Zone string
	// Contract - точное совпадение типа учреждения.
	Contract string
	Sort     CatalogSort
}

// FilterCatalog применяет фильтры и сортировку. Вход не изменяется.
func FilterCatalog(programs []CatalogProgram, f CatalogFilter) []CatalogProgram {
	term := normalizeText(f.Term)
	zone := normalizeText(f.Zone)
	contract := strings.TrimSpace(f.Contract)

	out := make([]CatalogProgram, 0, len(programs))
	for _, p := range programs {
		if term != "" &&
			!strings.Contains(normalizeText(p.Label), term) &&
			!strings.Contains(normalizeText(p.Institution), term) &&
			!strings.Contains(normalizeText(p.Filiere), term) {
			continue
		}
		if zone != "" &&
			!strings.Contains(normalizeText(p.City), zone) &&
			!strings.Contains(normalizeText(p.Department), zone) &&
			!strings.Contains(normalizeText(p.Region), zone) {
			continue
		}
		if contract != "" && p.Contract != contract {
			continue
		}
		out = append(out, p)
	}

	switch f.Sort {
	case SortAlphabetical:
		sort.SliceStable(out, func(i, j int) bool {
			return normalizeText(out[i].Label) < normalizeText(out[j].Label)
		})
	case SortCity:
		sort.SliceStable(out, func(i, j int) bool {
			return normalizeText(out[i].City) < normalizeText(out[j].City)
		})
	}
	return out
}

// ContractTypes возвращает различные типы учреждений каталога по алфавиту.
func ContractTypes(programs []CatalogProgram) []string {
	seen := make(map[string]bool)
	var types []string
	for _, p := range programs {
		if p.Contract == "" || seen[p.Contract] {
			continue
		}
		seen[p.Contract] = true
		types = append(types, p.Contract)
	}
	sort.Strings(types)
	return types
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPARISON
// ══════════════════════════════════════════════════════════════════════════════

// MaxComparedPrograms - сколько программ можно сравнить одновременно.
const MaxComparedPrograms = 3

// Comparison - строка сравнения: карточка каталога и выведенные критерии.
type Comparison struct {
	Program        CatalogProgram `json:"program"`
	Category       string         `json:"category"`
	Tier           Tier           `json:"tier"`
	MinimumAverage float64        `json:"minimum_average"`
	Subjects       []Subject      `json:"subjects"`
}

// ComparePrograms строит сравнение не более чем трёх программ в порядке запроса.
func ComparePrograms(programs []CatalogProgram) ([]Comparison, error) {
	if len(programs) > MaxComparedPrograms {
		return nil, shared.ErrTooManyPrograms
	}
	out := make([]Comparison, len(programs))
	for i, p := range programs {
		c := ResolveCriteria(p.Attributes())
		out[i] = Comparison{
			Program:        p,
			Category:       c.Category,
			Tier:           c.EffectiveTier(),
			MinimumAverage: c.EffectiveMinimum(),
			Subjects:       c.Subjects,
		}
	}
	return out, nil
}
