package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRAM REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgramRepository implements admission.ProgramRepository for PostgreSQL.
// Derived criteria are stored as JSONB next to the fingerprint of the
// catalog attributes they were derived from.
type ProgramRepository struct {
	conn *Connection
}

// NewProgramRepository creates a new ProgramRepository.
func NewProgramRepository(conn *Connection) *ProgramRepository {
	return &ProgramRepository{conn: conn}
}

const selectProgramColumns = `
	SELECT id, label, filiere, admission_rate::float8, selectivity_marker,
		total_seats, reserved_need_seats, criteria, criteria_fingerprint, updated_at
	FROM programs
`

// GetByID returns a program by ID.
func (r *ProgramRepository) GetByID(ctx context.Context, id shared.ProgramID) (*admission.Program, error) {
	row := r.conn.QueryRow(ctx, selectProgramColumns+` WHERE id = $1`, id.String())
	return scanProgram(row)
}

// ListByIDs returns the programs with the given IDs. Unknown IDs are skipped.
func (r *ProgramRepository) ListByIDs(ctx context.Context, ids []shared.ProgramID) ([]admission.Program, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	return r.list(ctx, selectProgramColumns+` WHERE id = ANY($1) ORDER BY id`, raw)
}

// ListAll returns every known program ordered by ID.
func (r *ProgramRepository) ListAll(ctx context.Context) ([]admission.Program, error) {
	return r.list(ctx, selectProgramColumns+` ORDER BY id`)
}

func (r *ProgramRepository) list(ctx context.Context, query string, args ...interface{}) ([]admission.Program, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query programs: %w", err)
	}
	defer rows.Close()

	var programs []admission.Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		programs = append(programs, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate programs: %w", err)
	}
	return programs, nil
}

// Upsert creates or updates a program with its criteria.
func (r *ProgramRepository) Upsert(ctx context.Context, p *admission.Program) error {
	if err := p.ValidateCapacity(); err != nil {
		return err
	}

	criteria, err := json.Marshal(p.Criteria)
	if err != nil {
		return fmt.Errorf("failed to encode criteria: %w", err)
	}

	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO programs (
			id, label, filiere, admission_rate, selectivity_marker,
			total_seats, reserved_need_seats, criteria, criteria_fingerprint, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			label = EXCLUDED.label,
			filiere = EXCLUDED.filiere,
			admission_rate = EXCLUDED.admission_rate,
			selectivity_marker = EXCLUDED.selectivity_marker,
			total_seats = EXCLUDED.total_seats,
			reserved_need_seats = EXCLUDED.reserved_need_seats,
			criteria = EXCLUDED.criteria,
			criteria_fingerprint = EXCLUDED.criteria_fingerprint,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.conn.Exec(ctx, query,
		p.ID.String(),
		p.Attributes.Label,
		p.Attributes.Filiere,
		p.Attributes.AdmissionRate,
		p.Attributes.SelectivityMarker,
		p.TotalSeats,
		p.ReservedNeedSeats,
		criteria,
		p.CriteriaFingerprint,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert program: %w", err)
	}
	return nil
}

func scanProgram(row pgx.Row) (*admission.Program, error) {
	var p admission.Program
	var id string
	var criteria []byte

	err := row.Scan(
		&id,
		&p.Attributes.Label,
		&p.Attributes.Filiere,
		&p.Attributes.AdmissionRate,
		&p.Attributes.SelectivityMarker,
		&p.TotalSeats,
		&p.ReservedNeedSeats,
		&criteria,
		&p.CriteriaFingerprint,
		&p.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrProgramNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan program: %w", err)
	}

	p.ID = shared.ProgramID(id)
	if len(criteria) > 0 {
		if err := json.Unmarshal(criteria, &p.Criteria); err != nil {
			return nil, fmt.Errorf("failed to decode criteria of program %s: %w", id, err)
		}
	}
	return &p, nil
}
