package config

import (
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger installs the process-wide slog logger: text to stderr, plus
// JSON to a file when LOG_FILE is set. Returns a cleanup func to close the file.
func SetupLogger(logFile, level string) func() error {
	lvl := parseLevel(level)

	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})

	if logFile == "" {
		slog.SetDefault(slog.New(stderrHandler))
		return func() error { return nil }
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.SetDefault(slog.New(stderrHandler))
		slog.Error("failed to open log file, using stderr only", "error", err, "file", logFile)
		return func() error { return nil }
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(slogmulti.Fanout(stderrHandler, fileHandler)))

	return file.Close
}

func parseLevel(level string) slog.Level {
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
