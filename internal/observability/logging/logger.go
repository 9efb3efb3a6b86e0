package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// maxValueLen caps string attributes; questions, prompts and model output
// would otherwise flood a log line.
const maxValueLen = 512

func NewJSONLogger(service, level string) *slog.Logger {
	return NewJSONLoggerTo(os.Stdout, service, level)
}

// NewJSONLoggerTo writes to w; stdio transports log to stderr so stdout stays protocol-only.
func NewJSONLoggerTo(w io.Writer, service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: truncateLong,
	})
	return slog.New(handler).With("service", service)
}

func truncateLong(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		return a
	}
	if s := a.Value.String(); len(s) > maxValueLen {
		cut := maxValueLen
		for cut > 0 && !isRuneStart(s[cut]) {
			cut--
		}
		a.Value = slog.StringValue(s[:cut] + "...(truncated)")
	}
	return a
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func parseLevel(level string) slog.Level {
	var lvl slog.Level
	switch l := strings.ToLower(strings.TrimSpace(level)); l {
	case "warning":
		lvl = slog.LevelWarn
	default:
		if err := lvl.UnmarshalText([]byte(l)); err != nil {
			lvl = slog.LevelInfo
		}
	}
	return lvl
}
