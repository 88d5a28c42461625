package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// CompareProgramsHandler сравнивает до трёх программ каталога в порядке запроса.
type CompareProgramsHandler struct {
	catalog admission.CatalogLookup
}

// NewCompareProgramsHandler создаёт обработчик.
func NewCompareProgramsHandler(catalog admission.CatalogLookup) *CompareProgramsHandler {
	return &CompareProgramsHandler{catalog: catalog}
}

// Handle возвращает строки сравнения. Повторы ID игнорируются.
func (h *CompareProgramsHandler) Handle(ctx context.Context, ids []string) ([]admission.Comparison, error) {
	unique := make([]shared.ProgramID, 0, len(ids))
	seen := make(map[shared.ProgramID]bool, len(ids))
	for _, raw := range ids {
		id := shared.ProgramID(strings.TrimSpace(raw))
		if id.IsEmpty() || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return nil, shared.NewDomainError("admission", "Compare", shared.ErrInvalidInput, "no program to compare")
	}
	if len(unique) > admission.MaxComparedPrograms {
		return nil, shared.ErrTooManyPrograms
	}

	programs := make([]admission.CatalogProgram, 0, len(unique))
	for _, id := range unique {
		p, err := h.catalog.LookupProgram(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("compare_programs: %s: %w", id, err)
		}
		programs = append(programs, *p)
	}
	return admission.ComparePrograms(programs)
}
