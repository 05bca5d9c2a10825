// Package zlog provides the package-level structured logger used
// across the driver. It wraps zap the way callers in this codebase
// expect: a package-level Logger plus short helpers that accept
// zap.Field values directly, so call sites read as
// zlog.Debug("message", zap.String("key", value)).
package zlog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger = zap.NewNop()
)

// SetLogger replaces the package-level logger. Callers embedding this
// driver in a larger application should call this once at startup
// with their own *zap.Logger; the default is a no-op logger so the
// driver is silent until configured.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debug logs at debug level with structured fields.
func Debug(msg string, fields ...zap.Field) {
	current().Debug(msg, fields...)
}

// Info logs at info level with structured fields.
func Info(msg string, fields ...zap.Field) {
	current().Info(msg, fields...)
}

// Warn logs at warn level with structured fields.
func Warn(msg string, fields ...zap.Field) {
	current().Warn(msg, fields...)
}

// Error logs at error level with structured fields.
func Error(msg string, fields ...zap.Field) {
	current().Error(msg, fields...)
}
