// Package logger provides a small structured logging facade over slog.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	callerSkipFrames = 3 // getCaller -> log -> logging method -> actual caller
)

// Logger defines the logging interface used across the service.
type Logger interface {
	Info(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Fatal(ctx context.Context, msg string, fields ...Field)

	Named(name string) Logger
	With(fields ...Field) Logger
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

// Field constructors.
func String(key, val string) Field                 { return Field{Key: key, Value: val} }
func Int(key string, val int) Field                { return Field{Key: key, Value: val} }
func Int64(key string, val int64) Field            { return Field{Key: key, Value: val} }
func Float64(key string, val float64) Field        { return Field{Key: key, Value: val} }
func Bool(key string, val bool) Field              { return Field{Key: key, Value: val} }
func Duration(key string, val time.Duration) Field { return Field{Key: key, Value: val} }
func Any(key string, val any) Field                { return Field{Key: key, Value: val} }
func Error(err error) Field                        { return Field{Key: "error", Value: err} }

type slogLogger struct {
	base *slog.Logger
}

func (l *slogLogger) Named(name string) Logger {
	return &slogLogger{base: l.base.With(slog.String("component", name))}
}

func (l *slogLogger) With(fields ...Field) Logger {
	args := make([]any, 0, len(fields))
	for _, a := range convertFields(fields) {
		args = append(args, a)
	}
	return &slogLogger{base: l.base.With(args...)}
}

func (l *slogLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelInfo, msg, fields)
}

func (l *slogLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelError, msg, fields)
}

func (l *slogLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelDebug, msg, fields)
}

func (l *slogLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelWarn, msg, fields)
}

func (l *slogLogger) Fatal(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelError, msg, fields)
	os.Exit(1)
}

func (l *slogLogger) log(ctx context.Context, level slog.Level, msg string, fields []Field) {
	if !l.base.Enabled(ctx, level) {
		return
	}
	fields = append(fields, String("source", getCaller()))
	l.base.LogAttrs(ctx, level, msg, convertFields(fields)...)
}

func convertFields(fields []Field) []slog.Attr {
	attrs := make([]slog.Attr, len(fields))
	for i, f := range fields {
		if err, ok := f.Value.(error); ok && err != nil {
			attrs[i] = slog.String(f.Key, err.Error())
			continue
		}
		attrs[i] = slog.Any(f.Key, f.Value)
	}
	return attrs
}

var (
	mu       sync.RWMutex
	global   Logger
	levelVar slog.LevelVar
)

// Options controls the handler created by InitWith.
type Options struct {
	JSON   bool
	Output io.Writer
}

// Init initializes the global logger with a text handler on stdout.
func Init() error {
	return InitWith(Options{})
}

// InitWith initializes the global logger with the given options.
func InitWith(opts Options) error {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	levelVar.Set(slog.LevelInfo)
	hopts := &slog.HandlerOptions{Level: &levelVar}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(out, hopts)
	} else {
		h = slog.NewTextHandler(out, hopts)
	}
	mu.Lock()
	global = &slogLogger{base: slog.New(h)}
	mu.Unlock()
	return nil
}

// getCaller returns the caller location as relative/path/file.go:line.
func getCaller() string {
	_, file, line, ok := runtime.Caller(callerSkipFrames)
	if !ok {
		return "unknown:0"
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	rel, err := filepath.Rel(cwd, file)
	if err != nil {
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return fmt.Sprintf("%s:%d", rel, line)
}

// Get returns the global logger. It panics when Init was never called.
func Get() Logger {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		panic("logger not initialized. Call logger.Init() first")
	}
	return global
}

// Named creates a named logger from the global one.
func Named(name string) Logger {
	return Get().Named(name)
}

// Sync flushes buffered log entries. slog does not buffer.
func Sync() error {
	return nil
}

// SetLevel updates the current logging level for the global handler.
func SetLevel(level slog.Level) { levelVar.Set(level) }

// SetLevelString parses and sets the logging level.
// Accepts: debug, info, warn/warning, error (case-insensitive).
func SetLevelString(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		SetLevel(slog.LevelDebug)
	case "", "info":
		SetLevel(slog.LevelInfo)
	case "warn", "warning":
		SetLevel(slog.LevelWarn)
	case "error":
		SetLevel(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %s", level)
	}
	return nil
}

// Nop returns a logger that discards everything. Handy in tests.
func Nop() Logger {
	return &slogLogger{base: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}
