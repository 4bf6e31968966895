package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ContextKey string

const (
	RequestIDKey  ContextKey = "request_id"
	ContractIDKey ContextKey = "contract_id"
	PrincipalKey  ContextKey = "principal"
)

type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// Init installs the process-wide slog logger writing to stdout.
func Init(cfg *Config) {
	slog.SetDefault(New(os.Stdout, cfg))
}

func New(w io.Writer, cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

func WithContractID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContractIDKey, id)
}

func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

// WithContext returns the default logger annotated with the ids carried by ctx.
func WithContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	for _, key := range []ContextKey{RequestIDKey, ContractIDKey, PrincipalKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			logger = logger.With(string(key), v)
		}
	}
	return logger
}

func Info(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...)
}

func Debug(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...)
}

func Warn(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...)
}

func Error(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
}
