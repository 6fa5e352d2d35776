package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the process-wide logger. The helpers below fall back to a
// development logger on stdout when nothing initialized it.
var Logger *slog.Logger

// InitLogger initializes the global logger: JSON in production, text otherwise
func InitLogger(production bool) {
	InitLoggerWithLevel(production, slog.LevelInfo)
}

// InitLoggerWithLevel initializes the logger with a specific log level
func InitLoggerWithLevel(production bool, level slog.Level) {
	InitLoggerWithWriter(os.Stdout, production, level)
}

// InitLoggerWithWriter initializes the logger writing to w.
// The CLI logs to stderr so command output stays parseable.
func InitLoggerWithWriter(w io.Writer, production bool, level slog.Level) {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if production {
		handler = slog.NewJSONHandler(w, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func logger() *slog.Logger {
	if Logger == nil {
		InitLogger(false)
	}
	return Logger
}

func Info(msg string, args ...any)  { logger().Info(msg, args...) }
func Warn(msg string, args ...any)  { logger().Warn(msg, args...) }
func Error(msg string, args ...any) { logger().Error(msg, args...) }
func Debug(msg string, args ...any) { logger().Debug(msg, args...) }

// Fatal logs at error level and exits
func Fatal(msg string, args ...any) {
	logger().Error(msg, args...)
	os.Exit(1)
}

// WithProvider scopes a logger to one vendor
func WithProvider(provider string) *slog.Logger {
	return logger().With("provider", provider)
}

// WithCategory scopes a logger to one service category
func WithCategory(category string) *slog.Logger {
	return logger().With("category", category)
}

// WithKey scopes a logger to one stored key. Secrets never go through here.
func WithKey(id, provider, category string) *slog.Logger {
	return logger().With("key_id", id, "provider", provider, "category", category)
}

func WithError(err error) *slog.Logger {
	return logger().With("error", err)
}
