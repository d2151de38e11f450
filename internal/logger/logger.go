// Copyright 2026 The driftfs Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger is driftfs's leveled, formatted logger. It supports text
// and json output, an extra TRACE level below DEBUG (FUSE traffic is chatty
// enough that DEBUG alone isn't fine-grained enough), and optional rotated
// file output.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity level strings accepted in Config.Severity and by setLoggingLevel.
const (
	TRACE   = "TRACE"
	DEBUG   = "DEBUG"
	INFO    = "INFO"
	WARNING = "WARNING"
	ERROR   = "ERROR"
	OFF     = "OFF"
)

// slog levels. TRACE sits below slog's built-in DEBUG; OFF sits above ERROR
// so that nothing at all is emitted.
const (
	LevelTrace slog.Level = slog.LevelDebug - 4
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
	LevelOff   slog.Level = slog.LevelError + 4
)

var levelNames = map[slog.Level]string{
	LevelTrace: TRACE,
	LevelDebug: DEBUG,
	LevelInfo:  INFO,
	LevelWarn:  WARNING,
	LevelError: ERROR,
}

// RotateConfig controls optional on-disk log rotation, mirrored on
// lumberjack.Logger's own knobs.
type RotateConfig struct {
	MaxFileSizeMB   int
	BackupFileCount int
	Compress        bool
}

// DefaultRotateConfig matches lumberjack's own zero-value behavior closely
// enough for a sane out-of-the-box default.
func DefaultRotateConfig() RotateConfig {
	return RotateConfig{MaxFileSizeMB: 100, BackupFileCount: 5, Compress: false}
}

// Config holds the logger settings passed to Init.
type Config struct {
	Severity string // one of TRACE/DEBUG/INFO/WARNING/ERROR/OFF
	Format   string // "text" or "json"
	FilePath string // empty means stderr
	Rotate   RotateConfig
}

type loggerFactory struct {
	writer       io.Writer
	file         *lumberjack.Logger
	async        *AsyncLogger
	level        string
	format       string
	rotateConfig RotateConfig
	levelVar     *slog.LevelVar
}

var defaultLoggerFactory = &loggerFactory{
	writer:       os.Stderr,
	level:        INFO,
	format:       "text",
	rotateConfig: DefaultRotateConfig(),
	levelVar:     new(slog.LevelVar),
}

var defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, defaultLoggerFactory.levelVar, ""))

// Init (re)configures the default logger from cfg. Call once at startup,
// before anything else logs.
func Init(cfg Config) error {
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.Severity == "" {
		cfg.Severity = INFO
	}

	factory := &loggerFactory{
		level:        cfg.Severity,
		format:       cfg.Format,
		rotateConfig: cfg.Rotate,
		levelVar:     new(slog.LevelVar),
	}

	var w io.Writer = os.Stderr
	if cfg.FilePath != "" {
		rotate := cfg.Rotate
		if rotate.MaxFileSizeMB == 0 {
			rotate = DefaultRotateConfig()
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    rotate.MaxFileSizeMB,
			MaxBackups: rotate.BackupFileCount,
			Compress:   rotate.Compress,
		}
		factory.file = lj
		factory.async = NewAsyncLogger(lj, 4096)
		w = factory.async
	}
	factory.writer = w

	setLoggingLevel(cfg.Severity, factory.levelVar)
	defaultLoggerFactory = factory
	defaultLogger = slog.New(factory.createJsonOrTextHandler(w, factory.levelVar, ""))

	return nil
}

// Close flushes and closes any rotated log file in use. Safe to call even
// when logging to stderr.
func Close() error {
	if defaultLoggerFactory.async != nil {
		return defaultLoggerFactory.async.Close()
	}
	return nil
}

// SetLogFormat switches the active logger between "text" and "json" output,
// preserving the current level and destination.
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(
		defaultLoggerFactory.writer, defaultLoggerFactory.levelVar, ""))
}

func setLoggingLevel(level string, v *slog.LevelVar) {
	switch level {
	case TRACE:
		v.Set(LevelTrace)
	case DEBUG:
		v.Set(LevelDebug)
	case INFO:
		v.Set(LevelInfo)
	case WARNING:
		v.Set(LevelWarn)
	case ERROR:
		v.Set(LevelError)
	case OFF:
		v.Set(LevelOff)
	default:
		v.Set(LevelInfo)
	}
}

// createJsonOrTextHandler builds the slog.Handler matching f.format, with a
// "severity" attribute carrying the level name (TRACE/DEBUG/... rather than
// slog's own DEBUG-4 spelling) and message key left as "message".
func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, levelVar *slog.LevelVar, prefix string) slog.Handler {
	replace := func(groups []string, a slog.Attr) slog.Attr {
		switch a.Key {
		case slog.LevelKey:
			lvl, _ := a.Value.Any().(slog.Level)
			name, ok := levelNames[lvl]
			if !ok {
				name = lvl.String()
			}
			a.Key = "severity"
			a.Value = slog.StringValue(name)
		case slog.MessageKey:
			a.Key = "message"
			if prefix != "" {
				a.Value = slog.StringValue(prefix + a.Value.String())
			}
		case slog.TimeKey:
			a.Key = "timestamp"
		}
		return a
	}

	opts := &slog.HandlerOptions{Level: levelVar, ReplaceAttr: replace}

	if f.format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func log(ctx context.Context, level slog.Level, format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	defaultLogger.Log(ctx, level, msg)
}

func Tracef(format string, args ...any) { log(context.Background(), LevelTrace, format, args...) }
func Debugf(format string, args ...any) { log(context.Background(), LevelDebug, format, args...) }
func Infof(format string, args ...any)  { log(context.Background(), LevelInfo, format, args...) }
func Warnf(format string, args ...any)  { log(context.Background(), LevelWarn, format, args...) }
func Errorf(format string, args ...any) { log(context.Background(), LevelError, format, args...) }

// AsyncLogger is a non-blocking io.WriteCloser wrapping a (possibly slow)
// underlying writer, such as a lumberjack.Logger doing disk I/O and
// rotation. Writes that arrive faster than the underlying writer can drain
// are dropped rather than blocking the caller.
type AsyncLogger struct {
	w    io.WriteCloser
	ch   chan []byte
	done chan struct{}
}

// NewAsyncLogger starts a background goroutine draining writes to w.
// bufferSize is the number of pending log lines buffered before new writes
// are dropped.
func NewAsyncLogger(w io.WriteCloser, bufferSize int) *AsyncLogger {
	a := &AsyncLogger{
		w:    w,
		ch:   make(chan []byte, bufferSize),
		done: make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *AsyncLogger) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)

	select {
	case a.ch <- cp:
	default:
		// Buffer full: drop rather than block the logging caller.
	}
	return len(p), nil
}

func (a *AsyncLogger) run() {
	defer close(a.done)
	for data := range a.ch {
		if _, err := a.w.Write(data); err != nil {
			return
		}
	}
}

// Close drains any buffered writes, waits for them to flush, and closes the
// underlying writer.
func (a *AsyncLogger) Close() error {
	close(a.ch)
	<-a.done
	return a.w.Close()
}
