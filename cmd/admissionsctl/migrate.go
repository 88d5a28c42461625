package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/admissions-hub/admissions-hub/internal/infrastructure/persistence/postgres"
)

// migrator - то, что нужно командам migrate; в тестах подменяется.
type migrator interface {
	Migrate(ctx context.Context) error
	Rollback(ctx context.Context) (*postgres.Migration, error)
	Status(ctx context.Context) ([]postgres.Migration, error)
}

// openMigrator открывает соединение по --database-url. Переменная
// используется тестами.
var openMigrator = func(ctx context.Context, url string) (migrator, func(), error) {
	conn, err := postgres.NewConnectionFromURL(ctx, url, 2, 0)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewMigrator(conn), conn.Close, nil
}

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, revert or list database migrations",
		Long: `migrate manages the PostgreSQL schema shared by the API and the worker.
The database URL comes from --database-url, ADMISSIONS_DATABASE_URL or the
database-url key of the config file.`,
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")
	cmd.PersistentFlags().Duration("timeout", time.Minute, "overall timeout")
	_ = c.v.BindPFlag("database-url", cmd.PersistentFlags().Lookup("database-url"))
	_ = c.v.BindPFlag("migrate.timeout", cmd.PersistentFlags().Lookup("timeout"))

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: c.withMigrator(func(ctx context.Context, cmd *cobra.Command, m migrator) error {
				if err := m.Migrate(ctx); err != nil {
					return err
				}
				return c.printStatus(ctx, cmd.OutOrStdout(), m)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert the most recent migration",
			Args:  cobra.NoArgs,
			RunE: c.withMigrator(func(ctx context.Context, cmd *cobra.Command, m migrator) error {
				reverted, err := m.Rollback(ctx)
				if err != nil {
					return err
				}
				if reverted == nil {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), "nothing to revert")
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "reverted %03d_%s\n", reverted.Version, reverted.Name)
				return err
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			Args:  cobra.NoArgs,
			RunE: c.withMigrator(func(ctx context.Context, cmd *cobra.Command, m migrator) error {
				return c.printStatus(ctx, cmd.OutOrStdout(), m)
			}),
		},
	)
	return cmd
}

func (c *cli) withMigrator(fn func(context.Context, *cobra.Command, migrator) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		url := strings.TrimSpace(c.v.GetString("database-url"))
		if url == "" {
			return errors.New("database URL is required (--database-url or ADMISSIONS_DATABASE_URL)")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), c.v.GetDuration("migrate.timeout"))
		defer cancel()

		m, closeFn, err := openMigrator(ctx, url)
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		defer closeFn()
		return fn(ctx, cmd, m)
	}
}

// migrationView - строка статуса для JSON.
type migrationView struct {
	Version   int        `json:"version"`
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

func (c *cli) printStatus(ctx context.Context, w io.Writer, m migrator) error {
	format, err := c.output()
	if err != nil {
		return err
	}
	status, err := m.Status(ctx)
	if err != nil {
		return err
	}

	views := make([]migrationView, 0, len(status))
	for _, s := range status {
		v := migrationView{Version: s.Version, Name: s.Name, Applied: s.IsApplied}
		if s.IsApplied {
			at := s.AppliedAt
			v.AppliedAt = &at
		}
		views = append(views, v)
	}
	if format == outputJSON {
		return writeJSON(w, views)
	}

	rows := make([][]string, 0, len(views))
	for _, v := range views {
		applied := "-"
		if v.AppliedAt != nil {
			applied = v.AppliedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{fmt.Sprintf("%03d", v.Version), v.Name, applied})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("VERSION", "NAME", "APPLIED AT").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle
			}
			return cellStyle
		})
	_, err = fmt.Fprintln(w, t.Render())
	return err
}
