package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) LogEntry {
	t.Helper()
	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Level: LevelInfo})

	l.With(Component("http")).Info("offer made", RunID("run-1"), ProgramID("p1"), StudentID("s1"))

	entry := decode(t, &buf)
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "offer made", entry.Message)
	assert.Equal(t, "http", entry.Fields["component"])
	assert.Equal(t, "run-1", entry.Fields["run_id"])
	assert.Equal(t, "p1", entry.Fields["program_id"])
	assert.Equal(t, "s1", entry.Fields["student_id"])
}

func TestLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Level: LevelWarn})

	l.Info("ignored")
	assert.Zero(t, buf.Len())

	l.Warn("kept")
	assert.Equal(t, "WARN", decode(t, &buf).Level)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf})
	ctx := WithContext(context.Background(), l)

	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
