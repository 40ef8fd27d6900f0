package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger writes to stderr until Init runs, so failures before a command
// starts (flag parsing, config) are still reported.
var Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

// Init configures the process-wide logger. DEBUG=true lowers the level,
// LOG_FORMAT=json switches to the JSON handler.
func Init() {
	Logger = slog.New(newHandler(os.Stdout))
	slog.SetDefault(Logger)
}

func newHandler(w io.Writer) slog.Handler {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}
