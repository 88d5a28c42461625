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
// MATCHING RUN REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// RunRepository implements admission.RunRepository for PostgreSQL.
type RunRepository struct {
	conn *Connection
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(conn *Connection) *RunRepository {
	return &RunRepository{conn: conn}
}

const upsertRunQuery = `
	INSERT INTO matching_runs (
		id, state, trigger, rounds, processed, offered, waitlisted,
		rejected, auto_withdrawn, reason, started_at, finished_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO UPDATE SET
		state = EXCLUDED.state,
		rounds = EXCLUDED.rounds,
		processed = EXCLUDED.processed,
		offered = EXCLUDED.offered,
		waitlisted = EXCLUDED.waitlisted,
		rejected = EXCLUDED.rejected,
		auto_withdrawn = EXCLUDED.auto_withdrawn,
		reason = EXCLUDED.reason,
		finished_at = EXCLUDED.finished_at
`

// Save records a run, including failed and empty ones.
func (r *RunRepository) Save(ctx context.Context, run *admission.Run) error {
	return saveRun(ctx, r.conn, run)
}

// GetLatest returns the most recently started run.
func (r *RunRepository) GetLatest(ctx context.Context) (*admission.Run, error) {
	query := `
		SELECT id::text, state, trigger, rounds, processed, offered, waitlisted,
			rejected, auto_withdrawn, reason, started_at, finished_at
		FROM matching_runs
		ORDER BY started_at DESC
		LIMIT 1
	`
	return scanRun(r.conn.QueryRow(ctx, query))
}

func saveRun(ctx context.Context, q Querier, run *admission.Run) error {
	var finishedAt *time.Time
	if !run.FinishedAt.IsZero() {
		finishedAt = &run.FinishedAt
	}

	_, err := q.Exec(ctx, upsertRunQuery,
		run.ID,
		run.State.String(),
		run.Trigger,
		run.Rounds,
		run.Processed,
		run.Offered,
		run.Waitlisted,
		run.Rejected,
		run.AutoWithdrawn,
		run.Reason,
		run.StartedAt,
		finishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save matching run: %w", err)
	}
	return nil
}

func scanRun(row pgx.Row) (*admission.Run, error) {
	var run admission.Run
	var state string
	var finishedAt *time.Time

	err := row.Scan(
		&run.ID,
		&state,
		&run.Trigger,
		&run.Rounds,
		&run.Processed,
		&run.Offered,
		&run.Waitlisted,
		&run.Rejected,
		&run.AutoWithdrawn,
		&run.Reason,
		&run.StartedAt,
		&finishedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan matching run: %w", err)
	}

	run.State = admission.RunState(state)
	if finishedAt != nil {
		run.FinishedAt = *finishedAt
	}
	return &run, nil
}
