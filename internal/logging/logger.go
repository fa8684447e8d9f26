package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logger *slog.Logger
	mu     sync.RWMutex
)

func init() {
	// Default: warnings and above to stderr. Configure() replaces this
	// once the config has been loaded.
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// Level represents a logging level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// ParseLevel parses a level string to Level.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func slogLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Configure configures the global logger with the given level and writer.
func Configure(level Level, w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	if w == nil {
		w = os.Stderr
	}

	logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slogLevel(level),
	}))
}

// Disable discards all logging output.
func Disable() {
	Configure(LevelError, io.Discard)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	current().Debug(msg, args...)
}

// Info logs an info message.
func Info(msg string, args ...any) {
	current().Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	current().Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	current().Error(msg, args...)
}

// With returns a new logger with the given attributes.
func With(args ...any) *slog.Logger {
	return current().With(args...)
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
