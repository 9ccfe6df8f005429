package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// Init sets the process-wide slog default: JSON to stdout in production
// (so it lines up with the scan/process logs a container runtime collects),
// colorized tint output to stderr everywhere else (so a scan running in a
// terminal is readable while it's tailing a folder).
func Init(service string, env string, level slog.Level) *slog.Logger {
	var handler slog.Handler

	if env == "production" {
		opts := &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		}
		handler = slog.NewJSONHandler(os.Stdout, opts).
			WithAttrs([]slog.Attr{
				slog.String("service", service),
				slog.String("env", env),
			})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// ParseLevelFromEnv reads LOG_LEVEL, defaulting to info for an unset or
// unrecognized value.
func ParseLevelFromEnv() slog.Level {
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the process-wide logger set by Init.
func L() *slog.Logger {
	return slog.Default()
}
