package mnet

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// defaultScratchBufferSize is the default size of the reactor's shared
// scratch buffer.
const defaultScratchBufferSize = 3495200

// Option configures an IOManager at construction time.
type Option func(opts *Options)

func initOptions(options ...Option) *Options {
	opts := &Options{
		ScratchBufferSize: defaultScratchBufferSize,
		LogLevel:          zapcore.InfoLevel,
		Now:               time.Now,
	}
	for _, option := range options {
		option(opts)
	}
	return opts
}

// Options holds every IOManager construction-time setting.
type Options struct {
	// ScratchBufferSize is the size of the shared scratch buffer the
	// reactor lends to every draining read.
	ScratchBufferSize int

	// Logger, if set, is installed with logging.SetLogger when the IOManager
	// is constructed, replacing the process-wide logger (not one scoped to
	// this IOManager). Leave nil to keep the current process-wide logger.
	Logger *zap.Logger
	// LogPath, if non-empty, installs a process-wide logger that rotates
	// through lumberjack at this path instead of stderr. Ignored if Logger
	// is set explicitly.
	LogPath string
	// LogLevel is the minimum level logged when LogPath is used.
	LogLevel zapcore.Level

	// TCPKeepAlive, if positive, turns SO_KEEPALIVE on for accepted and
	// connected sockets; zero leaves it off. The duration itself is not
	// applied: probe timing is the kernel's default.
	TCPKeepAlive time.Duration

	// WatermarkHigh, if non-zero, is a write-buffer size past which
	// Socket.IsOverWatermark reports true, so callbacks can voluntarily
	// throttle. Purely advisory: DoWrite never refuses to buffer past it.
	WatermarkHigh int

	// Now returns the current time; overridable for deterministic timer
	// tests. Defaults to time.Now.
	Now func() time.Time
}

// WithOptions replaces the entire Options value at once.
func WithOptions(options Options) Option {
	return func(opts *Options) { *opts = options }
}

// WithScratchBufferSize overrides the shared scratch buffer size.
func WithScratchBufferSize(n int) Option {
	return func(opts *Options) { opts.ScratchBufferSize = n }
}

// WithLogger installs an explicit *zap.Logger.
func WithLogger(l *zap.Logger) Option {
	return func(opts *Options) { opts.Logger = l }
}

// WithLogPath rotates logs through the given path via lumberjack.
func WithLogPath(path string, level zapcore.Level) Option {
	return func(opts *Options) {
		opts.LogPath = path
		opts.LogLevel = level
	}
}

// WithTCPKeepAlive turns SO_KEEPALIVE on for sockets this IOManager creates
// or accepts when d is positive; d does not set the keepalive interval.
func WithTCPKeepAlive(d time.Duration) Option {
	return func(opts *Options) { opts.TCPKeepAlive = d }
}

// WithWatermarkHigh sets the advisory write back-pressure threshold.
func WithWatermarkHigh(n int) Option {
	return func(opts *Options) { opts.WatermarkHigh = n }
}

// WithNow overrides the clock source, for deterministic timer tests.
func WithNow(now func() time.Time) Option {
	return func(opts *Options) { opts.Now = now }
}
