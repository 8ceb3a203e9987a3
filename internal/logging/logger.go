package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger bundles a slog.Logger with the optional log file it writes to.
type Logger struct {
	*slog.Logger
	file *os.File
}

// New creates a text logger that writes to stdout and, when filePath is set,
// appends to that file as well.
func New(filePath, level string) (*Logger, error) {
	return NewTo(os.Stdout, filePath, level)
}

// NewTo is New with a different console writer. The CLI logs to stderr so
// stdout stays clean for CSV.
func NewTo(console io.Writer, filePath, level string) (*Logger, error) {
	writers := []io.Writer{console}

	var file *os.File
	if filePath != "" {
		var err error
		file, err = os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	}

	h := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: ParseLevel(level)})
	return &Logger{Logger: slog.New(h), file: file}, nil
}

func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

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

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
