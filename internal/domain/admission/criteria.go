package admission

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SELECTIVITY TIER
// ══════════════════════════════════════════════════════════════════════════════

// Tier - уровень селективности программы.
type Tier string

const (
	// TierElite - подготовительные классы, гранд-эколь, доступ ниже 30%.
	TierElite Tier = "elite"
	// TierSelective - доступ ниже 60% или формация помечена как селективная.
	TierSelective Tier = "selective"
	// TierNormal - все остальные программы.
	TierNormal Tier = "normal"
)

// Пороги допуска по уровню. Фиксированная таблица, без интерполяции.
const (
	EliteMinimumAverage     = 15.0
	SelectiveMinimumAverage = 12.0
	NormalMinimumAverage    = 10.0

	// DefaultMinimumAverage применяется, когда порог не задан.
	DefaultMinimumAverage = NormalMinimumAverage
)

// Пороги доступа (в процентах) для определения уровня.
const (
	eliteAdmissionRateBelow     = 30.0
	selectiveAdmissionRateBelow = 60.0
)

// IsValid проверяет значение уровня.
func (t Tier) IsValid() bool {
	switch t {
	case TierElite, TierSelective, TierNormal:
		return true
	}
	return false
}

// MinimumAverage возвращает порог допуска для уровня.
func (t Tier) MinimumAverage() float64 {
	switch t {
	case TierElite:
		return EliteMinimumAverage
	case TierSelective:
		return SelectiveMinimumAverage
	default:
		return NormalMinimumAverage
	}
}

// String возвращает строковое представление уровня.
func (t Tier) String() string {
	return string(t)
}

// ParseTier разбирает уровень. Пустая строка означает normal.
func ParseTier(raw string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(raw)))
	if t == "" {
		return TierNormal, nil
	}
	if !t.IsValid() {
		return "", shared.NewDomainError("admission", "ParseTier", shared.ErrInvalidInput,
			fmt.Sprintf("unknown selectivity tier %q", raw))
	}
	return t, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG ATTRIBUTES
// ══════════════════════════════════════════════════════════════════════════════

// CatalogAttributes - сырые атрибуты программы из открытого каталога,
// из которых выводятся критерии приёма.
type CatalogAttributes struct {
	// Label - название формации (lib_for_voe_ins).
	Label string `json:"label" yaml:"label"`

	// Filiere - направление (fili), например "CPGE", "BUT", "Licence".
	Filiere string `json:"filiere" yaml:"filiere"`

	// AdmissionRate - доля принятых в процентах. nil, если каталог не публикует значение.
	AdmissionRate *float64 `json:"admission_rate,omitempty" yaml:"admission_rate,omitempty"`

	// SelectivityMarker - свободный текст селективности (select_form).
	SelectivityMarker string `json:"selectivity_marker,omitempty" yaml:"selectivity_marker,omitempty"`
}

// Fingerprint возвращает хеш атрибутов, влияющих на критерии.
// Одинаковые атрибуты всегда дают одинаковый отпечаток.
func (a CatalogAttributes) Fingerprint() string {
	rate := "-"
	if a.AdmissionRate != nil {
		rate = strconv.FormatFloat(*a.AdmissionRate, 'f', 4, 64)
	}
	h := xxhash.New()
	for _, part := range []string{
		normalizeText(a.Label),
		normalizeText(a.Filiere),
		rate,
		normalizeText(a.SelectivityMarker),
	} {
		_, _ = h.WriteString(part)
		_, _ = h.WriteString("\x1f")
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// RatePtr - помощник для литералов атрибутов.
func RatePtr(v float64) *float64 {
	return &v
}

// ══════════════════════════════════════════════════════════════════════════════
// CRITERIA
// ══════════════════════════════════════════════════════════════════════════════

// MaxImportantSubjects - максимум профильных предметов программы.
const MaxImportantSubjects = 3

// DefaultSubjectWeight применяется к предмету без явного коэффициента.
const DefaultSubjectWeight = 1

// positionalWeights - коэффициенты по позиции предмета: 5, 4, 2.
var positionalWeights = [MaxImportantSubjects]int{5, 4, 2}

// Criteria - критерии приёма программы.
type Criteria struct {
	Category       string          `json:"category" yaml:"category"`
	Subjects       []Subject       `json:"subjects" yaml:"subjects"`
	Weights        map[Subject]int `json:"weights" yaml:"weights"`
	MinimumAverage float64         `json:"minimum_average" yaml:"minimum_average"`
	Tier           Tier            `json:"tier" yaml:"tier"`
}

// Weight возвращает коэффициент предмета. Отсутствующий или нулевой
// коэффициент считается равным 1.
func (c Criteria) Weight(s Subject) int {
	if w, ok := c.Weights[s]; ok && w > 0 {
		return w
	}
	return DefaultSubjectWeight
}

// EffectiveMinimum возвращает порог допуска. Незаданный порог равен 10.
func (c Criteria) EffectiveMinimum() float64 {
	if c.MinimumAverage <= 0 {
		return DefaultMinimumAverage
	}
	return c.MinimumAverage
}

// EffectiveTier возвращает уровень. Незаданный уровень считается normal.
func (c Criteria) EffectiveTier() Tier {
	if c.Tier == "" {
		return TierNormal
	}
	return c.Tier
}

// HasSubjects сообщает, можно ли оценивать заявки по этим критериям.
func (c Criteria) HasSubjects() bool {
	return len(c.Subjects) > 0
}

// Validate проверяет вручную заданные критерии.
func (c Criteria) Validate() error {
	if len(c.Subjects) > MaxImportantSubjects {
		return shared.NewDomainError("admission", "ValidateCriteria", shared.ErrValueOutOfRange,
			fmt.Sprintf("at most %d important subjects allowed, got %d", MaxImportantSubjects, len(c.Subjects)))
	}
	seen := make(map[Subject]bool, len(c.Subjects))
	for _, s := range c.Subjects {
		if !s.IsKnown() {
			return shared.WrapError("admission", "ValidateCriteria", shared.ErrInvalidInput,
				fmt.Sprintf("unknown subject %q", s), shared.ErrUnknownSubject)
		}
		if seen[s] {
			return shared.NewDomainError("admission", "ValidateCriteria", shared.ErrInvalidInput,
				fmt.Sprintf("subject %q listed twice", s))
		}
		seen[s] = true
	}
	for s, w := range c.Weights {
		if w < 0 {
			return shared.NewDomainError("admission", "ValidateCriteria", shared.ErrNegativeValue,
				fmt.Sprintf("weight of %s cannot be negative", s))
		}
	}
	if c.MinimumAverage < 0 || c.MinimumAverage > float64(shared.MaxGrade) {
		return shared.NewDomainError("admission", "ValidateCriteria", shared.ErrValueOutOfRange,
			"minimum average must be between 0 and 20")
	}
	if c.Tier != "" && !c.Tier.IsValid() {
		return shared.NewDomainError("admission", "ValidateCriteria", shared.ErrInvalidInput,
			fmt.Sprintf("unknown selectivity tier %q", c.Tier))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CRITERIA RESOLVER
// ══════════════════════════════════════════════════════════════════════════════

// Ключевые слова категорий. Сравнение по подстроке без учёта регистра.
var (
	scienceKeywords = []string{
		"mathématique", "mathematique", "physique", "chimie",
		"ingénieur", "ingenieur", "mpsi", "pcsi", "ptsi",
	}
	informaticsKeywords = []string{
		"informatique", "numérique", "numerique", "mp2i", "cybersécurité", "cybersecurite",
	}
	economicsKeywords = []string{
		"économie", "economie", "économique", "economique",
		"gestion", "management", "commerce", "finance", "comptab", "marketing",
	}
	lawKeywords = []string{
		"droit", "science politique", "sciences politiques", "juridique",
	}
	healthKeywords = []string{
		"santé", "sante", "médecine", "medecine", "pharmacie", "infirmier",
		"biologie", "kinésithérapie", "kinesitherapie", "paramédical", "paramedical",
	}
	humanitiesKeywords = []string{
		"lettres", "langue", "histoire", "philosophie", "humanités", "humanites",
		"sciences humaines", "psychologie", "sociologie",
	}

	eliteTrackKeywords = []string{
		"cpge", "classe préparatoire", "classe preparatoire",
		"grande école", "grande ecole", "concours",
	}
	selectiveMarkerKeywords = []string{"sélective", "selective"}
	nonSelectiveMarker      = "non"
)

// subjectCategory связывает предикат по тексту программы с набором профильных предметов.
type subjectCategory struct {
	name     string
	keywords []string
	subjects []Subject
}

func (c subjectCategory) matches(text string) bool {
	return containsAny(text, c.keywords)
}

// subjectCategories проверяются по порядку, побеждает первая совпавшая.
var subjectCategories = []subjectCategory{
	{"science", scienceKeywords, []Subject{SubjectMathematics, SubjectPhysics, SubjectChemistry}},
	{"informatics", informaticsKeywords, []Subject{SubjectMathematics, SubjectEngineering, SubjectEnglish}},
	{"economics", economicsKeywords, []Subject{SubjectEconomics, SubjectMathematics, SubjectEnglish}},
	{"law", lawKeywords, []Subject{SubjectFrench, SubjectHistory, SubjectPhilosophy}},
	{"health", healthKeywords, []Subject{SubjectBiology, SubjectChemistry, SubjectPhysics}},
	{"humanities", humanitiesKeywords, []Subject{SubjectFrench, SubjectPhilosophy, SubjectHistory}},
}

var fallbackCategory = subjectCategory{
	name:     "general",
	subjects: []Subject{SubjectFrench, SubjectMathematics, SubjectEnglish},
}

// ResolveCriteria выводит критерии из атрибутов каталога.
// Чистая функция: одинаковые атрибуты всегда дают одинаковые критерии.
func ResolveCriteria(attrs CatalogAttributes) Criteria {
	text := normalizeText(attrs.Filiere + " " + attrs.Label)

	category := fallbackCategory
	for _, c := range subjectCategories {
		if c.matches(text) {
			category = c
			break
		}
	}

	subjects := make([]Subject, len(category.subjects))
	copy(subjects, category.subjects)
	weights := make(map[Subject]int, len(subjects))
	for i, s := range subjects {
		weights[s] = positionalWeights[i]
	}

	tier := resolveTier(text, attrs)
	return Criteria{
		Category:       category.name,
		Subjects:       subjects,
		Weights:        weights,
		MinimumAverage: tier.MinimumAverage(),
		Tier:           tier,
	}
}

func resolveTier(text string, attrs CatalogAttributes) Tier {
	if containsAny(text, eliteTrackKeywords) {
		return TierElite
	}
	if attrs.AdmissionRate != nil && *attrs.AdmissionRate < eliteAdmissionRateBelow {
		return TierElite
	}
	if attrs.AdmissionRate != nil && *attrs.AdmissionRate < selectiveAdmissionRateBelow {
		return TierSelective
	}
	if isSelectiveMarker(attrs.SelectivityMarker) {
		return TierSelective
	}
	return TierNormal
}

// isSelectiveMarker распознаёт "formation sélective", но не "formation non sélective".
func isSelectiveMarker(marker string) bool {
	m := normalizeText(marker)
	if !containsAny(m, selectiveMarkerKeywords) {
		return false
	}
	for _, word := range strings.Fields(m) {
		if word == nonSelectiveMarker {
			return false
		}
	}
	return true
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
