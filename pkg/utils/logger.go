package utils

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

func ParseLogLevel(levelStr string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// NewLogger returns a text logger writing to w. Unknown levels fall back to INFO.
func NewLogger(w io.Writer, levelStr string) *slog.Logger {
	level, ok := ParseLogLevel(levelStr)

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006/01/02 15:04:05"))
				}
			}
			return a
		},
	}

	logger := slog.New(slog.NewTextHandler(w, opts))
	if !ok {
		logger.Warn("Invalid log level specified, defaulting to INFO.", "provided_level", levelStr)
	}
	return logger
}
