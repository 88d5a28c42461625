package query

import (
	"context"
	"fmt"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEARCH CATALOG QUERY
// Поиск по открытому каталогу: текст (название, учреждение, направление),
// зона (город, департамент, регион), тип учреждения и сортировка.
// ══════════════════════════════════════════════════════════════════════════════

// SearchCatalogQuery - параметры поиска.
type SearchCatalogQuery struct {
	Term     string
	Zone     string
	Contract string
	Sort     string
	Page     int
	PageSize int
}

// CatalogPageDTO - страница результатов.
type CatalogPageDTO struct {
	Programs []admission.CatalogProgram `json:"programs"`
	Total    int                        `json:"total"`
	Page     int                        `json:"page"`
	PageSize int                        `json:"page_size"`

	// ContractTypes - все типы учреждений каталога, для фильтра.
	ContractTypes []string `json:"contract_types"`
}

// SearchCatalogHandler обрабатывает SearchCatalogQuery.
type SearchCatalogHandler struct {
	catalog admission.CatalogLookup
}

// NewSearchCatalogHandler создаёт обработчик.
func NewSearchCatalogHandler(catalog admission.CatalogLookup) *SearchCatalogHandler {
	return &SearchCatalogHandler{catalog: catalog}
}

// Handle выполняет поиск.
func (h *SearchCatalogHandler) Handle(ctx context.Context, q SearchCatalogQuery) (*CatalogPageDTO, error) {
	all, err := h.catalog.ListPrograms(ctx)
	if err != nil {
		return nil, fmt.Errorf("search_catalog: %w", err)
	}

	found := admission.FilterCatalog(all, admission.CatalogFilter{
		Term:     q.Term,
		Zone:     q.Zone,
		Contract: q.Contract,
		Sort:     admission.ParseCatalogSort(q.Sort),
	})

	page := shared.NewPagination(q.Page, q.PageSize)
	start := page.Offset()
	if start > len(found) {
		start = len(found)
	}
	end := start + page.Limit()
	if end > len(found) {
		end = len(found)
	}

	return &CatalogPageDTO{
		Programs:      found[start:end],
		Total:         len(found),
		Page:          page.Page,
		PageSize:      page.PageSize,
		ContractTypes: admission.ContractTypes(all),
	}, nil
}
