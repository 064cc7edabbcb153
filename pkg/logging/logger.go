// Package logging configures structured JSON logging for cache and install
// operations. Logs are written to {cacheRoot}/logs/operations.log, one JSON
// entry per line, with no console output.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Setup creates a JSON logger writing under the cache root and installs it
// as the slog default so library packages log through it.
func Setup(cacheRoot string, level slog.Level) (*slog.Logger, error) {
	logsDir := filepath.Join(cacheRoot, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(logsDir, "operations.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	handler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// ParseLevel parses a log level string. Valid levels: "debug", "info",
// "warn", "error" (case-insensitive).
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %q (valid levels: debug, info, warn, error)", levelStr)
	}
}
