// Package postgres implements the PostgreSQL persistence layer of the admissions hub.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
	"github.com/admissions-hub/admissions-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

const selectStudentColumns = `
	SELECT id::text, email, first_name, last_name, city, postal_code, need_based, created_at, updated_at
	FROM students
`

// GetByID returns a profile with its grades.
func (r *StudentRepository) GetByID(ctx context.Context, id shared.StudentID) (*student.Profile, error) {
	row := r.conn.QueryRow(ctx, selectStudentColumns+` WHERE id = $1`, id.String())
	p, err := scanProfile(row)
	if err != nil {
		return nil, err
	}

	grades, err := r.loadGrades(ctx, []string{id.String()})
	if err != nil {
		return nil, err
	}
	if g, ok := grades[p.ID]; ok {
		p.Grades = g
	}
	return p, nil
}

// GetByIDs returns profiles for the given IDs. Unknown IDs are skipped.
func (r *StudentRepository) GetByIDs(ctx context.Context, ids []shared.StudentID) ([]*student.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}

	rows, err := r.conn.Query(ctx, selectStudentColumns+` WHERE id = ANY($1) ORDER BY id`, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()

	var profiles []*student.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate students: %w", err)
	}

	grades, err := r.loadGrades(ctx, raw)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		if g, ok := grades[p.ID]; ok {
			p.Grades = g
		}
	}
	return profiles, nil
}

// Save upserts the profile and replaces its grade rows in one transaction.
func (r *StudentRepository) Save(ctx context.Context, p *student.Profile) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO students (id, email, first_name, last_name, city, postal_code, need_based, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				email = EXCLUDED.email,
				first_name = EXCLUDED.first_name,
				last_name = EXCLUDED.last_name,
				city = EXCLUDED.city,
				postal_code = EXCLUDED.postal_code,
				need_based = EXCLUDED.need_based,
				updated_at = EXCLUDED.updated_at
		`,
			p.ID.String(), p.Email, p.FirstName, p.LastName, p.City, p.PostalCode,
			p.NeedBased, p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.WrapError("student", "Save", shared.ErrAlreadyExists, "e-mail already registered", err)
			}
			return fmt.Errorf("failed to upsert student: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM student_grades WHERE student_id = $1`, p.ID.String()); err != nil {
			return fmt.Errorf("failed to clear grades: %w", err)
		}
		if len(p.Grades) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		subjects := p.Grades.Subjects()
		for _, s := range subjects {
			batch.Queue(`
				INSERT INTO student_grades (student_id, subject, grade, updated_at)
				VALUES ($1, $2, $3, $4)
			`, p.ID.String(), s.String(), p.Grades[s], p.UpdatedAt)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for range subjects {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("failed to insert grade: %w", err)
			}
		}
		return nil
	})
}

// loadGrades returns the grade maps of the given students.
func (r *StudentRepository) loadGrades(ctx context.Context, ids []string) (map[shared.StudentID]admission.Grades, error) {
	return loadGrades(ctx, r.conn, ids)
}

func loadGrades(ctx context.Context, q Querier, ids []string) (map[shared.StudentID]admission.Grades, error) {
	rows, err := q.Query(ctx, `
		SELECT student_id::text, subject, grade::float8
		FROM student_grades
		WHERE student_id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query grades: %w", err)
	}
	defer rows.Close()

	out := make(map[shared.StudentID]admission.Grades, len(ids))
	for rows.Next() {
		var sid, subject string
		var grade float64
		if err := rows.Scan(&sid, &subject, &grade); err != nil {
			return nil, fmt.Errorf("failed to scan grade: %w", err)
		}
		id := shared.StudentID(sid)
		if out[id] == nil {
			out[id] = admission.Grades{}
		}
		out[id][admission.Subject(subject)] = grade
	}
	return out, rows.Err()
}

func scanProfile(row pgx.Row) (*student.Profile, error) {
	var p student.Profile
	var id string
	var createdAt, updatedAt time.Time

	err := row.Scan(&id, &p.Email, &p.FirstName, &p.LastName, &p.City, &p.PostalCode,
		&p.NeedBased, &createdAt, &updatedAt)
	if IsNoRows(err) {
		return nil, shared.ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan student: %w", err)
	}

	p.ID = shared.StudentID(id)
	p.Grades = admission.Grades{}
	p.CreatedAt = createdAt
	p.UpdatedAt = updatedAt
	return &p, nil
}
