package events

import (
	"context"
	"os"
	"sync"
)

type contextKey int

const (
	loggerKey contextKey = iota
	vaultIDKey
	operationKey
)

// FromContext extracts logger from context.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// WithLogger adds logger to context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithVaultID adds vault ID to context.
func WithVaultID(ctx context.Context, id string) context.Context {
	logger := FromContext(ctx).WithField("vault_id", id)
	ctx = context.WithValue(ctx, vaultIDKey, id)
	return WithLogger(ctx, logger)
}

// WithOperation tags log lines with the vault operation being served.
func WithOperation(ctx context.Context, op string) context.Context {
	logger := FromContext(ctx).WithField("op", op)
	ctx = context.WithValue(ctx, operationKey, op)
	return WithLogger(ctx, logger)
}

// GetVaultID retrieves vault ID from context.
func GetVaultID(ctx context.Context) string {
	if id, ok := ctx.Value(vaultIDKey).(string); ok {
		return id
	}
	return ""
}

// GetOperation retrieves the operation name from context.
func GetOperation(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey).(string); ok {
		return op
	}
	return ""
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = NewTestLogger(InfoLevel, "text", os.Stderr)
)

// Default returns the process-wide fallback logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}
