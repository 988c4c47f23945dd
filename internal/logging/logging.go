// Package logging provides a structured logger built on [log/slog].
// It is configured once at startup via [New] and distributed through
// context values using [WithLogger] / [FromContext].
//
// Environment variables:
//
//	LOG_LEVEL  = debug | info | warn | error  (default: info)
//	LOG_FORMAT = json | text                  (default: json)
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// contextKey is an unexported type for context keys in this package.
type contextKey struct{}

// Options controls handler construction. Zero values fall back to the
// environment (LOG_LEVEL / LOG_FORMAT) and os.Stderr.
type Options struct {
	// Level is the minimum severity ("debug", "info", "warn", "error").
	Level string
	// Format selects the handler ("json" or "text").
	Format string
	// Output is the destination writer.
	Output io.Writer
}

// New constructs a [*slog.Logger] from environment variables.
func New() *slog.Logger {
	return NewWithOptions(Options{})
}

// NewWithOptions constructs a [*slog.Logger] from explicit options, filling
// any empty field from the environment.
func NewWithOptions(o Options) *slog.Logger {
	if o.Level == "" {
		o.Level = os.Getenv("LOG_LEVEL")
	}
	if o.Format == "" {
		o.Format = os.Getenv("LOG_FORMAT")
	}
	if o.Output == nil {
		o.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(o.Level)}

	var handler slog.Handler
	if strings.ToLower(o.Format) == "text" {
		handler = slog.NewTextHandler(o.Output, opts)
	} else {
		handler = slog.NewJSONHandler(o.Output, opts)
	}

	return slog.New(handler)
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the [*slog.Logger] stored in ctx.
// If no logger is present it returns [slog.Default] so callers never
// need to nil-check.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// parseLevel converts a string to a [slog.Level], defaulting to Info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
