package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ApplicationRepository implements admission.ApplicationRepository for PostgreSQL.
type ApplicationRepository struct {
	conn *Connection
}

// NewApplicationRepository creates a new ApplicationRepository.
func NewApplicationRepository(conn *Connection) *ApplicationRepository {
	return &ApplicationRepository{conn: conn}
}

const selectApplicationColumns = `
	SELECT a.id::text, a.student_id::text, a.program_id, a.wish_rank, s.need_based, a.status,
		a.score, a.weighted_average, a.position, COALESCE(a.last_run_id::text, ''),
		a.submitted_at, a.updated_at
	FROM applications a
	JOIN students s ON s.id = a.student_id
`

// Create inserts a new application.
func (r *ApplicationRepository) Create(ctx context.Context, app *admission.Application) error {
	query := `
		INSERT INTO applications (id, student_id, program_id, wish_rank, status, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.conn.Exec(ctx, query,
		app.ID,
		app.StudentID.String(),
		app.ProgramID.String(),
		app.EffectiveWishRank(),
		app.Status.String(),
		app.SubmittedAt,
		app.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyApplied
		}
		if IsForeignKeyViolation(err) {
			return shared.WrapError("admission", "Create", shared.ErrNotFound,
				"student or program does not exist", err)
		}
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

// GetByID returns an application with the student's current grades.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*admission.Application, error) {
	row := r.conn.QueryRow(ctx, selectApplicationColumns+` WHERE a.id = $1`, id)
	app, err := scanApplication(row)
	if err != nil {
		return nil, err
	}
	if err := r.attachGrades(ctx, []*admission.Application{app}); err != nil {
		return nil, err
	}
	return app, nil
}

// ListByStudent returns a student's applications ordered by wish rank.
func (r *ApplicationRepository) ListByStudent(ctx context.Context, studentID shared.StudentID) ([]*admission.Application, error) {
	rows, err := r.conn.Query(ctx,
		selectApplicationColumns+` WHERE a.student_id = $1 ORDER BY a.wish_rank, a.submitted_at`,
		studentID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var apps []*admission.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate applications: %w", err)
	}

	if err := r.attachGrades(ctx, apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// ListActive returns the active applications in submission order, with the
// grades and need-based flag copied from each student's profile.
func (r *ApplicationRepository) ListActive(ctx context.Context) ([]admission.Application, error) {
	rows, err := r.conn.Query(ctx, selectApplicationColumns+`
		WHERE a.status IN ('pending', 'offered', 'waitlisted')
		ORDER BY a.submitted_at, a.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active applications: %w", err)
	}
	defer rows.Close()

	var apps []*admission.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate active applications: %w", err)
	}

	if err := r.attachGrades(ctx, apps); err != nil {
		return nil, err
	}

	out := make([]admission.Application, len(apps))
	for i, app := range apps {
		out[i] = *app
	}
	return out, nil
}

// UpdateWishRanks stores new wish ranks. Only applications that no run has
// touched yet can be reordered.
func (r *ApplicationRepository) UpdateWishRanks(ctx context.Context, studentID shared.StudentID, ranks map[string]int) error {
	if len(ranks) == 0 {
		return nil
	}
	now := time.Now().UTC()

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		ids := make([]string, 0, len(ranks))
		for id, rank := range ranks {
			ids = append(ids, id)
			batch.Queue(`
				UPDATE applications
				SET wish_rank = $3, updated_at = $4
				WHERE id = $1 AND student_id = $2
					AND status = 'pending' AND last_run_id IS NULL
			`, id, studentID.String(), rank, now)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for _, id := range ids {
			tag, err := br.Exec()
			if err != nil {
				return fmt.Errorf("failed to update wish rank of %s: %w", id, err)
			}
			if tag.RowsAffected() == 0 {
				return shared.WrapError("admission", "UpdateWishRanks", shared.ErrInvalidState,
					fmt.Sprintf("application %s cannot be reordered", id), shared.ErrApplicationLocked)
			}
		}
		return nil
	})
}

// SaveRunResults records the run and every application it changed in one
// transaction. The run row is written first since applications reference it.
func (r *ApplicationRepository) SaveRunResults(ctx context.Context, run *admission.Run, results []admission.Application) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if err := saveRun(ctx, tx, run); err != nil {
			return err
		}
		if len(results) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, app := range results {
			batch.Queue(`
				UPDATE applications
				SET status = $2, score = $3, weighted_average = $4, position = $5,
					last_run_id = $6, updated_at = $7
				WHERE id = $1
			`,
				app.ID,
				app.Status.String(),
				app.Score,
				app.WeightedAverage,
				app.Position,
				run.ID,
				app.UpdatedAt,
			)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for _, app := range results {
			tag, err := br.Exec()
			if err != nil {
				return fmt.Errorf("failed to save result of application %s: %w", app.ID, err)
			}
			if tag.RowsAffected() == 0 {
				return shared.WrapError("admission", "SaveRunResults", shared.ErrNotFound,
					fmt.Sprintf("application %s", app.ID), shared.ErrApplicationNotFound)
			}
		}
		return nil
	})
}

func (r *ApplicationRepository) attachGrades(ctx context.Context, apps []*admission.Application) error {
	if len(apps) == 0 {
		return nil
	}
	seen := make(map[shared.StudentID]bool, len(apps))
	ids := make([]string, 0, len(apps))
	for _, app := range apps {
		if !seen[app.StudentID] {
			seen[app.StudentID] = true
			ids = append(ids, app.StudentID.String())
		}
	}

	grades, err := loadGrades(ctx, r.conn, ids)
	if err != nil {
		return err
	}
	for _, app := range apps {
		// каждая заявка получает собственную копию
		app.Grades = grades[app.StudentID].Clone()
	}
	return nil
}

func scanApplication(row pgx.Row) (*admission.Application, error) {
	var app admission.Application
	var studentID, programID, status string

	err := row.Scan(
		&app.ID,
		&studentID,
		&programID,
		&app.WishRank,
		&app.NeedBased,
		&status,
		&app.Score,
		&app.WeightedAverage,
		&app.Position,
		&app.LastRunID,
		&app.SubmittedAt,
		&app.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrApplicationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}

	app.StudentID = shared.StudentID(studentID)
	app.ProgramID = shared.ProgramID(programID)
	app.Status = admission.Status(status)
	return &app, nil
}
