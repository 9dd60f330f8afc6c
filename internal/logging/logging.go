// Package logging provides structured logging for satmon.
//
// This package wraps the standard library's log/slog package to provide
// consistent logging across all components. It supports both text and JSON
// output formats, configurable log levels, and component-based loggers.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, false) // Text format
//	logging.Init(slog.LevelDebug, true) // JSON format for production
//
//	// Get a component logger
//	log := logging.Component("generator")
//	log.Info("backfill finished", "parameters", 12)
//
//	// Log with context
//	log.Error("append failed", "error", err, "parameter_id", id)
//
// Component loggers are usually package variables created before Init runs,
// so they resolve the process handler on every record instead of capturing
// it.
package logging

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync/atomic"
)

var current atomic.Pointer[slog.Logger]

func init() {
	Init(slog.LevelInfo, false)
}

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
func Init(level slog.Level, jsonFormat bool) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if jsonFormat {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	InitWithHandler(handler)
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	l := slog.New(handler)
	current.Store(l)
	slog.SetDefault(l)
}

// Logger returns the process logger.
func Logger() *slog.Logger {
	return current.Load()
}

// With returns a new logger with additional attributes.
// These attributes are included in every log entry from the returned logger.
func With(args ...any) *slog.Logger {
	return slog.New(lazyHandler{}).With(args...)
}

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
//
// Example:
//
//	log := logging.Component("manager")
//	log.Info("started") // Output: time=... level=INFO component=manager msg=started
func Component(name string) *slog.Logger {
	return With("component", name)
}

// lazyHandler replays its attributes and groups onto the current process
// handler for every record.
type lazyHandler struct {
	ops []func(slog.Handler) slog.Handler
}

func (h lazyHandler) resolve() slog.Handler {
	hd := current.Load().Handler()
	for _, op := range h.ops {
		hd = op(hd)
	}
	return hd
}

func (h lazyHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return current.Load().Handler().Enabled(ctx, level)
}

func (h lazyHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h lazyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return lazyHandler{ops: append(slices.Clip(h.ops), func(hd slog.Handler) slog.Handler {
		return hd.WithAttrs(attrs)
	})}
}

func (h lazyHandler) WithGroup(name string) slog.Handler {
	return lazyHandler{ops: append(slices.Clip(h.ops), func(hd slog.Handler) slog.Handler {
		return hd.WithGroup(name)
	})}
}

// WithContext returns a logger that includes context values.
// This is useful for request-scoped logging with trace IDs, etc.
func WithContext(ctx context.Context) *slog.Logger {
	var args []any
	if requestID, ok := ctx.Value(contextKeyRequestID).(string); ok {
		args = append(args, "request_id", requestID)
	}
	if satelliteID, ok := ctx.Value(contextKeySatelliteID).(string); ok {
		args = append(args, "satellite_id", satelliteID)
	}
	if len(args) == 0 {
		return current.Load()
	}
	return current.Load().With(args...)
}

// Context key types for type-safe context value extraction.
type contextKey int

const (
	contextKeyRequestID contextKey = iota
	contextKeySatelliteID
)

// ContextWithRequestID adds a request ID to the context for logging.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// ContextWithSatelliteID adds a satellite ID to the context for logging.
func ContextWithSatelliteID(ctx context.Context, satelliteID string) context.Context {
	return context.WithValue(ctx, contextKeySatelliteID, satelliteID)
}

// ParseLevel converts a config level name to a slog.Level.
// Unknown names fall back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// =============================================================================
// Convenience Functions
// =============================================================================

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	current.Load().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	current.Load().Info(msg, args...)
}

// Warn logs at warning level.
func Warn(msg string, args ...any) {
	current.Load().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	current.Load().Error(msg, args...)
}
