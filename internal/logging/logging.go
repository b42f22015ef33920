package logging

import (
	"io"
	"log/slog"
	"os"
)

// RecentCapacity is the number of diagnostic entries kept for the log panel.
const RecentCapacity = 20

var recent = NewRing(RecentCapacity, slog.LevelInfo)

// Init installs the default slog logger.
// LOG_LEVEL selects the output level (default: errors only) and LOG_FILE
// redirects output away from the terminal, which the room UI occupies.
// Every record at info or above is also kept in the Recent ring.
func Init() {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	var out io.Writer = os.Stderr
	if path := os.Getenv("LOG_FILE"); path != "" {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = f
		}
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(NewTee(handler, recent)))
}

// Recent returns the process-wide diagnostic ring.
func Recent() *Ring {
	return recent
}

func parseLevel(l string) slog.Level {
	switch l {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return slog.LevelError // default: production only shows errors
}
