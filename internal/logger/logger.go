package logger

import (
	"context"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

type Logger struct {
	service  string
	hostname string
	handler  *slog.Logger
}

// New builds a JSON logger writing to stdout for the given service mode.
func New(service string) *Logger {
	return NewWithHandler(service, slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func NewWithHandler(service string, h slog.Handler) *Logger {
	hostname, _ := os.Hostname()

	return &Logger{
		service:  service,
		hostname: hostname,
		handler:  slog.New(h),
	}
}

// Discard returns a logger that drops every record. Used in tests.
func Discard() *Logger {
	return NewWithHandler("test", slog.NewJSONHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func (l *Logger) Info(action, message, requestID string, extra map[string]interface{}) {
	l.log(slog.LevelInfo, action, message, requestID, nil, extra)
}

func (l *Logger) Debug(action, message, requestID string, extra map[string]interface{}) {
	l.log(slog.LevelDebug, action, message, requestID, nil, extra)
}

func (l *Logger) Warn(action, message, requestID string, extra map[string]interface{}) {
	l.log(slog.LevelWarn, action, message, requestID, nil, extra)
}

func (l *Logger) Error(action, message, requestID string, err error, extra map[string]interface{}) {
	l.log(slog.LevelError, action, message, requestID, err, extra)
}

func (l *Logger) log(level slog.Level, action, message, requestID string, err error, extra map[string]interface{}) {
	attrs := []slog.Attr{
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
		slog.String("service", l.service),
		slog.String("hostname", l.hostname),
		slog.String("action", action),
		slog.String("request_id", requestID),
	}

	if err != nil {
		attrs = append(attrs, slog.Group("error",
			slog.String("msg", err.Error()),
			slog.String("stack", string(debug.Stack())),
		))
	}

	if len(extra) > 0 {
		details := make([]any, 0, len(extra)*2)
		for k, v := range extra {
			details = append(details, k, v)
		}
		attrs = append(attrs, slog.Group("details", details...))
	}

	l.handler.LogAttrs(context.TODO(), level, message, attrs...)
}

func GenerateRequestID() string {
	return uuid.NewString()
}

type requestIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the request id stored in ctx, or a fresh one.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return GenerateRequestID()
}
