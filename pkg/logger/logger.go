// Package logger writes one JSON object per line for the HTTP layer.
// Application services and the worker log through log/slog instead.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level is the severity of an entry.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel accepts LOG_LEVEL values case-insensitively. Anything it does
// not recognise means info.
func ParseLevel(s string) Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "WARNING" {
		return LevelWarn
	}
	for lvl, name := range levelNames {
		if name == s {
			return lvl
		}
	}
	return LevelInfo
}

// ══════════════════════════════════════════════════════════════════════════════
// FIELDS
// ══════════════════════════════════════════════════════════════════════════════

// Field is one key/value pair of an entry. Later fields with the same key win.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field  { return Field{key, value} }
func Int(key string, value int) Field { return Field{key, value} }
func Any(key string, value any) Field { return Field{key, value} }

// Err stores the error message, not the error value, so it survives JSON.
func Err(err error) Field {
	if err == nil {
		return Field{"error", nil}
	}
	return Field{"error", err.Error()}
}

func Duration(key string, value time.Duration) Field { return Field{key, value.String()} }
func Time(key string, value time.Time) Field         { return Field{key, value.Format(time.RFC3339)} }

// Domain keys shared by handlers and middleware.
func RunID(id string) Field         { return String("run_id", id) }
func ProgramID(id string) Field     { return String("program_id", id) }
func StudentID(id string) Field     { return String("student_id", id) }
func ApplicationID(id string) Field { return String("application_id", id) }
func Component(name string) Field   { return String("component", name) }
func Latency(d time.Duration) Field { return Duration("latency", d) }

// ══════════════════════════════════════════════════════════════════════════════
// LOGGER
// ══════════════════════════════════════════════════════════════════════════════

// LogEntry is the line format.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Caller    string         `json:"caller,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

type Options struct {
	Output    io.Writer // os.Stdout when nil
	Level     Level
	AddCaller bool
}

func DefaultOptions() Options {
	return Options{Output: os.Stdout, Level: LevelInfo, AddCaller: true}
}

// Logger is immutable apart from its output; With returns a copy sharing
// the same writer and lock.
type Logger struct {
	out       *syncWriter
	level     Level
	addCaller bool
	fields    []Field
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) writeLine(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(append(b, '\n'))
}

func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Logger{
		out:       &syncWriter{w: opts.Output},
		level:     opts.Level,
		addCaller: opts.AddCaller,
	}
}

func Default() *Logger { return New(DefaultOptions()) }

func (l *Logger) With(fields ...Field) *Logger {
	child := *l
	child.fields = append(append(make([]Field, 0, len(l.fields)+len(fields)), l.fields...), fields...)
	return &child
}

// RequestIDKey is the field name the request ID middleware uses.
const RequestIDKey = "request_id"

func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.With(String(RequestIDKey, requestID))
}

func (l *Logger) Debug(msg string, fields ...Field) { l.write(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.write(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.write(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.write(LevelError, msg, fields) }

// write is always two frames below the caller of Debug/Info/Warn/Error.
func (l *Logger) write(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
	}
	if l.addCaller {
		if _, file, line, ok := runtime.Caller(2); ok {
			entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
		}
	}
	if n := len(l.fields) + len(fields); n > 0 {
		entry.Fields = make(map[string]any, n)
		for _, f := range l.fields {
			entry.Fields[f.Key] = f.Value
		}
		for _, f := range fields {
			entry.Fields[f.Key] = f.Value
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		data = []byte(fmt.Sprintf("%s [%s] %s (unencodable fields: %v)", entry.Timestamp, entry.Level, msg, err))
	}
	l.out.writeLine(data)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

type ctxKey struct{}

func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext falls back to Default when ctx carries no logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return Default()
}
