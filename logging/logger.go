// Package logging provides the process-wide structured logger used across
// this module's reactor, sockets, and timer service. It wraps zap the same
// way gnet's internal logging package does: a package-level *zap.Logger
// swappable at startup, with lumberjack doing file rotation when a log path
// is configured instead of stderr.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger = newDefault()
)

func newDefault() *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(os.Stderr), zap.InfoLevel)
	return zap.New(core)
}

// New builds a logger that writes to path (rotated via lumberjack) at the
// given level, or to stderr if path is empty.
func New(path string, level zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var sink zapcore.WriteSyncer
	if path == "" {
		sink = zapcore.AddSync(os.Stderr)
	} else {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		})
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), sink, level)
	return zap.New(core)
}

// SetLogger installs l as the package-wide logger. Passing nil restores the
// stderr default. Safe to call concurrently with Log*.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = newDefault()
	}
	logger = l
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debugf, Infof, Warnf and Errorf log a templated message at the given
// level using the currently installed logger.
func Debugf(template string, args ...interface{}) { current().Sugar().Debugf(template, args...) }
func Infof(template string, args ...interface{})  { current().Sugar().Infof(template, args...) }
func Warnf(template string, args ...interface{})  { current().Sugar().Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { current().Sugar().Errorf(template, args...) }

// Fatalf logs at fatal level and then terminates the process, matching
// zap.Logger.Fatal's behavior. No code in this module calls it; fatal
// assertions go through internal/verify instead.
func Fatalf(template string, args ...interface{}) { current().Sugar().Fatalf(template, args...) }

// Sync flushes any buffered log entries. Call before process exit.
func Sync() error { return current().Sync() }
