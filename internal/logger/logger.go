package logger

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"
)

// Fields is one structured log entry. Keys "ts" and "level" are filled in by the Logger.
type Fields map[string]any

// Logger writes one JSON object per line through a slog JSON handler. Children made with
// With share the parent's handler, so writes to one writer are serialized.
type Logger struct {
	sl        *slog.Logger
	loc       *time.Location
	component string
}

// New returns a Logger writing to w with timestamps in loc.
func New(w io.Writer, loc *time.Location) *Logger {
	if loc == nil {
		loc = time.UTC
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: replaceAttr(loc),
	})
	return &Logger{sl: slog.New(h), loc: loc}
}

// replaceAttr renames time to "ts" in loc, lowercases the level and drops an empty msg.
func replaceAttr(loc *time.Location) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}
		switch a.Key {
		case slog.TimeKey:
			return slog.String("ts", a.Value.Time().In(loc).Format(time.RFC3339Nano))
		case slog.LevelKey:
			if lvl, ok := a.Value.Any().(slog.Level); ok {
				return slog.String(slog.LevelKey, strings.ToLower(lvl.String()))
			}
		case slog.MessageKey:
			if a.Value.String() == "" {
				return slog.Attr{}
			}
		}
		return a
	}
}

// Stdout returns a Logger writing to standard output.
func Stdout(loc *time.Location) *Logger {
	return New(os.Stdout, loc)
}

// Discard returns a Logger that drops everything. Useful in tests.
func Discard() *Logger {
	return New(io.Discard, time.UTC)
}

// With returns a child logger that stamps every entry with the given component.
func (l *Logger) With(component string) *Logger {
	return &Logger{sl: l.sl, loc: l.loc, component: component}
}

// Location reports the time zone used for timestamps.
func (l *Logger) Location() *time.Location {
	return l.loc
}

func (l *Logger) Info(msg string, f Fields)  { l.write(slog.LevelInfo, msg, f) }
func (l *Logger) Warn(msg string, f Fields)  { l.write(slog.LevelWarn, msg, f) }
func (l *Logger) Error(msg string, f Fields) { l.write(slog.LevelError, msg, f) }

// Log writes a raw entry. Level comes from "level", else "error" when status is "error", else
// "info"; a "msg" field becomes the message.
func (l *Logger) Log(f Fields) {
	lvl := slog.LevelInfo
	if f["status"] == "error" {
		lvl = slog.LevelError
	}
	if s, ok := f["level"].(string); ok {
		lvl = parseLevel(s, lvl)
	}
	msg, _ := f["msg"].(string)
	l.write(lvl, msg, f)
}

func parseLevel(s string, def slog.Level) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return def
}

func (l *Logger) write(level slog.Level, msg string, f Fields) {
	attrs := make([]slog.Attr, 0, len(f)+1)
	if _, ok := f["component"]; !ok && l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	for _, k := range slices.Sorted(maps.Keys(f)) {
		if k == "ts" || k == slog.LevelKey || k == slog.MessageKey {
			continue
		}
		attrs = append(attrs, slog.Any(k, f[k]))
	}
	l.sl.LogAttrs(context.Background(), level, msg, attrs...)
}
