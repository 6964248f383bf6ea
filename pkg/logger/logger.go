package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a JSON logger on stdout. See NewWriter.
func New(appEnv, level string) *slog.Logger {
	return NewWriter(os.Stdout, appEnv, level)
}

// NewWriter returns a JSON logger writing to w. local and dev environments log
// at debug level; a non-empty level ("debug", "info", "warn", "error")
// overrides the environment default.
func NewWriter(w io.Writer, appEnv, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(appEnv, level)}))
}

// ParseLevel resolves the effective level. Unknown names keep the environment default.
func ParseLevel(appEnv, level string) slog.Level {
	out := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		out = slog.LevelDebug
	}
	if level = strings.TrimSpace(level); level != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(level)); err == nil {
			out = l
		}
	}
	return out
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the request logger stored by With or the gin middleware.
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
