package catalog

import (
	"errors"
	"strings"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAPPER - DTO to Domain Entity transformations
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNilDTO is returned when mapping a nil record.
	ErrNilDTO = errors.New("catalog: nil record")

	// ErrMissingRecordID is returned for records without an identifier.
	ErrMissingRecordID = errors.New("catalog: record has no id")
)

// Mapper handles transformation between catalog DTOs and domain entities.
// It keeps the dataset column names out of the admission domain.
type Mapper struct{}

// NewMapper creates a new Mapper instance.
func NewMapper() *Mapper {
	return &Mapper{}
}

// ProgramFromRecord converts one record to a catalog program.
func (m *Mapper) ProgramFromRecord(rec *RecordDTO) (*admission.CatalogProgram, error) {
	if rec == nil {
		return nil, ErrNilDTO
	}
	id := strings.TrimSpace(rec.RecordID)
	if id == "" {
		return nil, ErrMissingRecordID
	}

	f := rec.Fields
	region := strings.TrimSpace(f.Region)
	if region == "" {
		region = strings.TrimSpace(f.RegionShort)
	}

	p := &admission.CatalogProgram{
		ID:                shared.ProgramID(id),
		Label:             strings.TrimSpace(f.Label),
		Institution:       strings.TrimSpace(f.Institution),
		Filiere:           strings.TrimSpace(f.Filiere),
		City:              strings.TrimSpace(f.City),
		Department:        strings.TrimSpace(f.Department),
		Region:            region,
		Contract:          strings.TrimSpace(f.Contract),
		AdmissionRate:     f.AdmissionRate.Float64(),
		SelectivityMarker: strings.TrimSpace(f.SelectivityMarker),
		Capacity:          nonNegative(f.Capacity.Int()),
		Applicants:        nonNegative(f.Applicants.Int()),
		Proposals:         nonNegative(f.Proposals.Int()),
		NeedBasedShare:    f.NeedBasedShare.Float64(),
	}
	if len(f.Location) == 2 {
		lat, lon := f.Location[0], f.Location[1]
		p.Latitude, p.Longitude = &lat, &lon
	}
	return p, nil
}

// ProgramsFromRecords converts a page of records. Records without an id are
// skipped; the count of skipped records is returned for logging.
func (m *Mapper) ProgramsFromRecords(records []RecordDTO) ([]admission.CatalogProgram, int) {
	programs := make([]admission.CatalogProgram, 0, len(records))
	skipped := 0
	for i := range records {
		p, err := m.ProgramFromRecord(&records[i])
		if err != nil {
			skipped++
			continue
		}
		programs = append(programs, *p)
	}
	return programs, skipped
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
