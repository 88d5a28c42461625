package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/infrastructure/persistence/postgres"
)

const snapshotYAML = `
programs:
  - id: but-info-lyon
    total_seats: 1
    reserved_need_seats: 0
    criteria:
      category: Informatique
      subjects: [mathematiques]
      weights: {mathematiques: 1}
      minimum_average: 10
      tier: normal
  - id: cpge-mpsi-paris
    total_seats: 2
    attributes:
      label: CPGE - MPSI
      filiere: CPGE
applications:
  - id: a1
    student_id: s1
    program_id: but-info-lyon
    wish_rank: 1
    grades: {mathematiques: 16}
  - id: a2
    student_id: s2
    program_id: but-info-lyon
    wish_rank: 1
    grades: {mathematiques: 12}
  - id: a3
    student_id: s3
    program_id: but-info-lyon
    wish_rank: 1
    grades: {mathematiques: 8}
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeSnapshot(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestMatch_JSON(t *testing.T) {
	path := writeSnapshot(t, "snapshot.yaml", snapshotYAML)

	out, err := execute(t, "match", "--input", path, "-o", "json")
	require.NoError(t, err)

	var res matchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, admission.TriggerCLI, res.Run.Trigger)
	assert.Equal(t, 3, res.Run.Processed)
	assert.Equal(t, 1, res.Run.Offered)

	statuses := make(map[string]admission.Status)
	for _, app := range res.Final {
		statuses[app.ID] = app.Status
	}
	assert.Equal(t, admission.StatusOffered, statuses["a1"])
	assert.Equal(t, admission.StatusWaitlisted, statuses["a2"])
	assert.Equal(t, admission.StatusRejected, statuses["a3"])

	// criteria of the attribute-only program are derived before the run
	require.Len(t, res.Programs, 2)
	assert.True(t, res.Programs[1].Criteria.HasSubjects())
	assert.NotEmpty(t, res.Programs[1].CriteriaFingerprint)
}

func TestMatch_Table(t *testing.T) {
	path := writeSnapshot(t, "snapshot.yml", snapshotYAML)

	out, err := execute(t, "match", "-i", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Matching run")
	assert.Contains(t, out, "but-info-lyon")
	assert.Contains(t, out, "offered")
}

func TestMatch_Errors(t *testing.T) {
	_, err := execute(t, "match")
	assert.ErrorContains(t, err, "--input is required")

	_, err = execute(t, "match", "--input", writeSnapshot(t, "snapshot.txt", "x"))
	assert.ErrorContains(t, err, "unsupported snapshot format")

	_, err = execute(t, "match", "--input", writeSnapshot(t, "snapshot.json", "{"))
	assert.ErrorContains(t, err, "parse snapshot")

	_, err = execute(t, "match", "--input", writeSnapshot(t, "snapshot.yaml", snapshotYAML), "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestCriteria(t *testing.T) {
	out, err := execute(t, "criteria", "--filiere", "CPGE", "--label", "CPGE - MPSI", "-o", "json")
	require.NoError(t, err)

	var view criteriaView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, admission.TierElite, view.Tier)
	assert.Equal(t, 15.0, view.Minimum)
	assert.Nil(t, view.Attributes.AdmissionRate)

	out, err = execute(t, "criteria", "--filiere", "Licence", "--label", "Licence - Droit", "--rate", "25")
	require.NoError(t, err)
	assert.Contains(t, out, "elite")
	assert.Contains(t, out, "SUBJECT")
}

type fakeMigrator struct {
	applied  map[int]bool
	reverted []int
}

func (f *fakeMigrator) Migrate(context.Context) error {
	for _, m := range postgres.GetMigrations() {
		f.applied[m.Version] = true
	}
	return nil
}

func (f *fakeMigrator) Rollback(context.Context) (*postgres.Migration, error) {
	all := postgres.GetMigrations()
	for i := len(all) - 1; i >= 0; i-- {
		if f.applied[all[i].Version] {
			delete(f.applied, all[i].Version)
			f.reverted = append(f.reverted, all[i].Version)
			return &all[i], nil
		}
	}
	return nil, nil
}

func (f *fakeMigrator) Status(context.Context) ([]postgres.Migration, error) {
	all := postgres.GetMigrations()
	for i := range all {
		if f.applied[all[i].Version] {
			all[i].IsApplied = true
			all[i].AppliedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		}
	}
	return all, nil
}

func withFakeMigrator(t *testing.T) *fakeMigrator {
	t.Helper()
	fake := &fakeMigrator{applied: map[int]bool{}}
	prev := openMigrator
	openMigrator = func(context.Context, string) (migrator, func(), error) {
		return fake, func() {}, nil
	}
	t.Cleanup(func() { openMigrator = prev })
	return fake
}

func TestMigrate(t *testing.T) {
	fake := withFakeMigrator(t)
	url := "postgres://localhost/admissions"

	out, err := execute(t, "migrate", "up", "--database-url", url, "-o", "json")
	require.NoError(t, err)
	var views []migrationView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, len(postgres.GetMigrations()))
	for _, v := range views {
		assert.True(t, v.Applied, v.Name)
	}

	out, err = execute(t, "migrate", "down", "--database-url", url)
	require.NoError(t, err)
	assert.Equal(t, "reverted 005_create_matching_lock\n", out)
	assert.Equal(t, []int{5}, fake.reverted)

	out, err = execute(t, "migrate", "status", "--database-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "create_matching_lock")
	assert.Contains(t, out, "2026-03-01T09:00:00Z")
}

func TestMigrate_RequiresURL(t *testing.T) {
	withFakeMigrator(t)
	t.Setenv("ADMISSIONS_DATABASE_URL", "")

	_, err := execute(t, "migrate", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")
}
