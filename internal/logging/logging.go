// Package logging builds the slog loggers used by the binaries.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// ParseLevel maps debug, info, warn and error to slog levels. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// Setup returns a logger writing text to stderr and, when logFile is set,
// JSON to that file as well. The returned cleanup closes the file.
func Setup(level slog.Level, logFile string) (*slog.Logger, func() error) {
	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	if logFile == "" {
		return slog.New(stderrHandler), func() error { return nil }
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := slog.New(stderrHandler)
		logger.Error("Failed to open log file, using stderr only.", "file", logFile, "error", err)
		return logger, func() error { return nil }
	}
	return NewFanout(os.Stderr, file, level), file.Close
}

// NewFanout writes text to human and JSON to machine.
func NewFanout(human, machine io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(human, &slog.HandlerOptions{Level: level}),
		slog.NewJSONHandler(machine, &slog.HandlerOptions{Level: level}),
	))
}

// NewFunctionLogger is the JSON logger used by deployed functions, where
// stdout is collected by Cloud Logging.
func NewFunctionLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
