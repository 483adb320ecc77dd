// Package logging provides the module's single leveled logger,
// configured from the UMF_LOG_LEVEL environment variable with the
// five levels spec.md §6 names: DEBUG, INFO, WARNING, ERROR, FATAL.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	once   sync.Once
	logger *slog.Logger
)

// Fatal is not one of slog's levels; UMF's FATAL is a custom level 12,
// above slog.LevelError, plus process termination at the call site
// (see Logger().Log + os.Exit in Fatalf below), covering spec.md's
// five-level enumeration.
const levelFatal = slog.Level(12)

func envLevel() slog.Level {
	switch strings.ToUpper(os.Getenv("UMF_LOG_LEVEL")) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "FATAL":
		return levelFatal
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Logger returns the process-wide logger, initialized lazily on first
// use from UMF_LOG_LEVEL.
func Logger() *slog.Logger {
	once.Do(func() {
		h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: envLevel()})
		logger = slog.New(h)
	})
	return logger
}

// Fatalf logs at FATAL and terminates the process, mirroring the
// teacher's own throw() for unrecoverable internal errors.
func Fatalf(msg string, args ...any) {
	Logger().Log(nil, levelFatal, msg, args...)
	os.Exit(1)
}
