// Package logger provides structured logging for the sequencer core.
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys.
type ContextKey string

const (
	// RequestIDKey is the context key for admin-API request IDs.
	RequestIDKey ContextKey = "request_id"
	// TransferIDKey is the context key for the transfer a log line concerns.
	TransferIDKey ContextKey = "transfer_id"
)

var (
	// Log is the global logger instance.
	Log zerolog.Logger
)

// Config holds logger configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string // time format for console output
}

// DefaultConfig returns sensible defaults for production, read from
// LOG_LEVEL/LOG_FORMAT env vars with a fallback.
func DefaultConfig() Config {
	return Config{
		Level:      getEnv("LOG_LEVEL", "info"),
		Format:     getEnv("LOG_FORMAT", "json"),
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global logger.
func Init(cfg Config) {
	var output io.Writer = os.Stdout

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: cfg.TimeFormat,
		}
	}

	Log = zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "sequencer").
		Logger()
}

// WithRequestID adds an admin-API request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithTransferID adds a transfer ID to the context.
func WithTransferID(ctx context.Context, transferID string) context.Context {
	return context.WithValue(ctx, TransferIDKey, transferID)
}

// FromContext returns a logger enriched with any IDs stashed in ctx.
func FromContext(ctx context.Context) zerolog.Logger {
	l := Log.With()

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		l = l.Str("request_id", requestID)
	}
	if transferID, ok := ctx.Value(TransferIDKey).(string); ok {
		l = l.Str("transfer_id", transferID)
	}

	return l.Logger()
}

// Auction returns a logger scoped to one transfer's auction.
func Auction(transferID string) zerolog.Logger {
	return Log.With().Str("transfer_id", transferID).Logger()
}

// Executor returns a logger for the periodic auction executor.
func Executor() zerolog.Logger {
	return Log.With().Str("component", "executor").Logger()
}

// Relay returns a logger scoped to one relayer backend kind.
func Relay(kind string) zerolog.Logger {
	return Log.With().Str("component", "relay").Str("relayer", kind).Logger()
}

// Cache returns a logger for cache-layer events.
func Cache() zerolog.Logger {
	return Log.With().Str("component", "cache").Logger()
}

// HTTP returns a logger for admin-API HTTP events.
func HTTP() zerolog.Logger {
	return Log.With().Str("component", "http").Logger()
}

// getEnv returns environment variable or default.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
