package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Logger wraps slog.Logger so packages depend on one logging type.
type Logger struct {
	*slog.Logger
}

// ParseLevel maps LOG_LEVEL values onto slog levels. Unknown values mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// New creates a JSON logger on stdout with the specified level.
func New(level string) *Logger {
	return NewWithWriters(ParseLevel(level), os.Stdout)
}

// NewWithWriters fans JSON records out to every writer. The first writer is
// usually stdout; extra writers are log files or test buffers.
func NewWithWriters(level slog.Level, writers ...io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: level}
	if len(writers) == 0 {
		writers = []io.Writer{os.Stdout}
	}
	if len(writers) == 1 {
		return &Logger{Logger: slog.New(slog.NewJSONHandler(writers[0], opts))}
	}
	handlers := make([]slog.Handler, 0, len(writers))
	for _, w := range writers {
		handlers = append(handlers, slog.NewJSONHandler(w, opts))
	}
	return &Logger{Logger: slog.New(slogmulti.Fanout(handlers...))}
}

// NewCLI writes human readable text to stderr, for operator tools.
func NewCLI(level string) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: ParseLevel(level)})
	return &Logger{Logger: slog.New(handler)}
}

// OpenWithFile returns a stdout logger that also appends to path. If the file
// cannot be opened the stdout-only logger is returned with the error.
func OpenWithFile(level, path string) (*Logger, func() error, error) {
	noop := func() error { return nil }
	if strings.TrimSpace(path) == "" {
		return New(level), noop, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return New(level), noop, err
	}
	return NewWithWriters(ParseLevel(level), os.Stdout, file), file.Close, nil
}

// With returns a child logger carrying the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a logger with default settings
func Default() *Logger {
	return New("info")
}
