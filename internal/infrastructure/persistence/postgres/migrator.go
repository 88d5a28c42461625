package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one embedded schema change. AppliedAt and IsApplied are
// filled by Migrator.Status.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// GetMigrations returns the embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_students", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_programs", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_applications", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_matching_runs", UpSQL: migration004Up, DownSQL: migration004Down},
		{Version: 5, Name: "create_matching_lock", UpSQL: migration005Up, DownSQL: migration005Down},
	}
}

const migrationsTable = "schema_migrations"

// Migrator applies and reverts the embedded migrations. Each migration runs
// in its own transaction together with its bookkeeping row.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator over GetMigrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}

	rows, err := m.conn.Query(ctx, `SELECT version, applied_at FROM `+migrationsTable)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// Migrate applies every pending migration in version order and stops at the
// first failure.
func (m *Migrator) Migrate(ctx context.Context) error {
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if mig.UpSQL == "" {
			return fmt.Errorf("%w: migration %d has no up SQL", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO `+migrationsTable+` (version, name) VALUES ($1, $2)`, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: %03d_%s: %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
	}
	return nil
}

// Rollback reverts the most recent applied migration. It returns the
// reverted migration, or nil when the schema is empty.
func (m *Migrator) Rollback(ctx context.Context) (*Migration, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	var target *Migration
	for i := len(m.migrations) - 1; i >= 0; i-- {
		if _, ok := applied[m.migrations[i].Version]; ok {
			target = &m.migrations[i]
			break
		}
	}
	if target == nil {
		return nil, nil
	}
	if target.DownSQL == "" {
		return nil, fmt.Errorf("%w: migration %d has no down SQL", ErrMigrationFailed, target.Version)
	}

	err = m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, target.DownSQL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM `+migrationsTable+` WHERE version = $1`, target.Version)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: rollback %03d_%s: %v", ErrMigrationFailed, target.Version, target.Name, err)
	}
	return target, nil
}

// Status lists every embedded migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	status := make([]Migration, len(m.migrations))
	copy(status, m.migrations)
	for i := range status {
		if at, ok := applied[status[i].Version]; ok {
			status[i].IsApplied = true
			status[i].AppliedAt = at
		}
	}
	return status, nil
}
