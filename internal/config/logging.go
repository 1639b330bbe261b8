package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger builds the process logger: tinted text on stderr, plus a JSON
// stream appended to logFile when one is configured. The returned cleanup
// closes the log file and must be called before exit.
func SetupLogger(logFile string, level slog.Level) (*slog.Logger, func() error, error) {
	stderrHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})

	if logFile == "" {
		return slog.New(stderrHandler), func() error { return nil }, nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})

	logger := slog.New(slogmulti.Fanout(stderrHandler, fileHandler))
	return logger, file.Close, nil
}

// ParseLogLevel maps a config string to a slog level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
