// Package logger provides structured logging for vmcpd.
//
// It is a thin, package-level wrapper over a *zap.SugaredLogger so call
// sites don't need to thread a logger through every constructor. Tests that
// need to capture output should call Set with an observer-backed logger.
package logger

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

var singleton atomic.Pointer[zap.SugaredLogger]

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	singleton.Store(l.Sugar())
}

// Initialize configures the singleton logger for the given debug mode.
func Initialize(debug bool) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	l, err := cfg.Build()
	if err != nil {
		return
	}
	singleton.Store(l.Sugar())
}

// Get returns the underlying *zap.SugaredLogger for injection into structs.
func Get() *zap.SugaredLogger {
	return singleton.Load()
}

// Set replaces the singleton logger. Intended for tests.
func Set(l *zap.SugaredLogger) {
	singleton.Store(l)
}

// Debugf logs at debug level.
func Debugf(msg string, args ...any) {
	Get().Debug(fmt.Sprintf(msg, args...))
}

// Infof logs at info level.
func Infof(msg string, args ...any) {
	Get().Info(fmt.Sprintf(msg, args...))
}

// Warnf logs at warn level.
func Warnf(msg string, args ...any) {
	Get().Warn(fmt.Sprintf(msg, args...))
}

// Errorf logs at error level.
func Errorf(msg string, args ...any) {
	Get().Error(fmt.Sprintf(msg, args...))
}

// Infow logs at info level with structured key-value pairs.
func Infow(msg string, keysAndValues ...any) {
	Get().Infow(msg, keysAndValues...)
}

// Warnw logs at warn level with structured key-value pairs.
func Warnw(msg string, keysAndValues ...any) {
	Get().Warnw(msg, keysAndValues...)
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() error {
	return Get().Sync()
}
