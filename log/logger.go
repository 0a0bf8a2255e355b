// Package log provides structured logging with peer context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for the transport and processing paths
//   - SugaredLogger: Printf-style logging for CLI/debug surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultFileName is the log file created under the temp dir when file
// logging is enabled without an explicit path.
const DefaultFileName = "bilat.log"

// Options configures a Logger.
type Options struct {
	// Role is the peer role ("processor" or "requester").
	Role string
	// Instance identifies this peer, typically its listen address.
	Instance string
	// Level is a zap level name. Empty means "info".
	Level string
	// File enables the log file. "-" selects DefaultFileName under os.TempDir().
	// Empty disables file logging.
	File string
	// Console writes to the console writer (stderr unless Output is set).
	Console bool
	// Output overrides the console writer. Used by tests.
	Output io.Writer
}

// Logger provides structured logging with peer context.
// All log entries include role and instance fields.
type Logger struct {
	zap    *zap.Logger
	closer io.Closer
}

// SugaredLogger provides printf-style logging for CLI and debug surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
}

// New creates a logger from options. The returned logger owns the log file,
// if any; call Close to release it.
func New(opts Options) (*Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	var cores []zapcore.Core
	if opts.Console {
		w := opts.Output
		if w == nil {
			w = os.Stderr
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig()),
			zapcore.AddSync(w),
			level,
		))
	}

	var closer io.Closer
	if opts.File != "" {
		path := opts.File
		if path == "-" {
			path = filepath.Join(os.TempDir(), DefaultFileName)
		}
		f, err := OpenDailyFile(path, time.Now())
		if err != nil {
			return nil, err
		}
		closer = f
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig()),
			zapcore.AddSync(f),
			level,
		))
	}

	core := zapcore.NewNopCore()
	if len(cores) > 0 {
		core = zapcore.NewTee(cores...)
	}

	zapLogger := zap.New(core).With(
		zap.String("role", opts.Role),
		zap.String("instance", opts.Instance),
	)
	return &Logger{zap: zapLogger, closer: closer}, nil
}

// NewLogger creates an info-level console logger on stderr.
func NewLogger(role, instance string) *Logger {
	l, _ := New(Options{Role: role, Instance: instance, Console: true})
	return l
}

// NewWithWriter creates a debug-level logger writing JSON lines to w.
func NewWithWriter(role, instance string, w io.Writer) *Logger {
	l, _ := New(Options{Role: role, Instance: instance, Level: "debug", Console: true, Output: w})
	return l
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// OpenDailyFile opens path for appending. A file last modified on an
// earlier calendar day than now is truncated first, so the file holds at
// most one day of entries.
func OpenDailyFile(path string, now time.Time) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if info, err := os.Stat(path); err == nil && !sameDay(info.ModTime(), now) {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}

// With returns a logger with additional context fields.
func (l *Logger) With(fields map[string]any) *Logger {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return &Logger{zap: l.zap.With(zf...)}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Close flushes and releases the log file, if one is open.
// Loggers derived with With share the file and must not be closed.
func (l *Logger) Close() error {
	_ = l.zap.Sync()
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
