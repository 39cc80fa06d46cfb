// Package logger wraps log/slog with the attribute names used across the
// service.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
	TraceIDKey   contextKey = "trace_id"
)

// contextAttrs lists the context values copied onto a logger by WithContext.
var contextAttrs = []contextKey{RequestIDKey, UserIDKey, TraceIDKey}

type Logger struct {
	*slog.Logger
}

// New logs to stdout: text at debug level in development, JSON at info
// level everywhere else.
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

func NewWithWriter(env string, w io.Writer) *Logger {
	if strings.EqualFold(env, "development") {
		return &Logger{Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	}
	return &Logger{Logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))}
}

// Nop discards everything.
func Nop() *Logger {
	return NewWithWriter("production", io.Discard)
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.With(args...)}
}

// WithContext tags the logger with the request, user and trace ids found in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	var args []any
	for _, key := range contextAttrs {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			args = append(args, slog.String(string(key), v))
		}
	}
	if len(args) == 0 {
		return l
	}
	return l.with(args...)
}

func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error", slog.String("operation", operation), slog.String("error", err.Error()))
}

// OwnershipRaceLost records a conditional ownership write that did not apply
// because the lead changed hands after it was read.
func (l *Logger) OwnershipRaceLost(operation string, leadID string) {
	l.Warn("ownership_race_lost", slog.String("operation", operation), slog.String("lead_id", leadID))
}

// ChannelDeliveryFailed records one failed (recipient, channel) send.
func (l *Logger) ChannelDeliveryFailed(channel string, recipientID string, err error) {
	l.Warn("channel_delivery_failed",
		slog.String("channel", channel),
		slog.String("recipient_id", recipientID),
		slog.String("error", err.Error()),
	)
}

func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded", slog.String("client_ip", clientIP), slog.String("path", path))
}
