package memory

import (
	"context"
	"sync"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// Catalog is a fixed admission.CatalogLookup, kept in source order.
type Catalog struct {
	mu       sync.RWMutex
	programs []admission.CatalogProgram
}

var _ admission.CatalogLookup = (*Catalog)(nil)

// NewCatalog creates a catalog holding programs.
func NewCatalog(programs ...admission.CatalogProgram) *Catalog {
	return &Catalog{programs: append([]admission.CatalogProgram(nil), programs...)}
}

// Replace swaps the catalog content.
func (c *Catalog) Replace(programs []admission.CatalogProgram) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.programs = append([]admission.CatalogProgram(nil), programs...)
}

// ListPrograms returns the whole catalog.
func (c *Catalog) ListPrograms(_ context.Context) ([]admission.CatalogProgram, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]admission.CatalogProgram(nil), c.programs...), nil
}

// LookupProgram returns one program or shared.ErrProgramNotFound.
func (c *Catalog) LookupProgram(_ context.Context, id shared.ProgramID) (*admission.CatalogProgram, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.programs {
		if c.programs[i].ID == id {
			p := c.programs[i]
			return &p, nil
		}
	}
	return nil, shared.ErrProgramNotFound
}
