// Package observability wraps log/slog with the per-session tagging
// spec's concurrency model calls for: every session worker logs
// through a logger already carrying session_id and protocol (WithRound
// adds round), so nothing downstream has to thread those through every
// call site.
//
// Grounded on original_source/backend/node/src/logging.rs's
// GridlockLogInitializer (a single process-wide tracing subscriber,
// JSON-formatted, initialized once at startup) — translated to log/slog
// since no pack repo imports a third-party structured logger for this
// role (DESIGN.md justifies the stdlib choice).
package observability

import (
	"context"
	"log/slog"
	"os"
)

// NewBase returns the process-wide JSON logger, written to stderr so
// stdout stays free for any CLI output (cmd/gridlocknode).
func NewBase(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// ForSession returns a logger tagged with the fields a session worker
// needs on every line: which session and which protocol. WithRound adds
// the round name.
func ForSession(base *slog.Logger, sessionID, protocol string) *slog.Logger {
	return base.With(slog.String("session_id", sessionID), slog.String("protocol", protocol))
}

// WithRound further tags a session logger with the current round name.
func WithRound(logger *slog.Logger, round string) *slog.Logger {
	return logger.With(slog.String("round", round))
}

type loggerKey struct{}

// IntoContext stashes a logger in ctx so deep call chains (protocol
// engines, mailbox collectors) can recover it without an explicit
// parameter, mirroring tracing's span-local subscriber.
func IntoContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext recovers the logger stashed by IntoContext, falling back
// to slog's default logger if none was stashed.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
