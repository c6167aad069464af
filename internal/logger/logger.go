// Package logger provides the process-wide logger for docqa.
//
// Debug and Info are printed only in verbose mode; warnings and errors are
// always printed. Output goes to stderr unless redirected, as text or JSON.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Format selects the handler used for output.
type Format string

// Supported output formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var (
	mu      sync.RWMutex
	verbose bool
	format  = FormatText
	output  io.Writer = os.Stderr
	level   = new(slog.LevelVar)
	base    = newLogger()
)

func init() {
	level.Set(slog.LevelWarn)
}

func newLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Drop timestamps.
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}
	if format == FormatJSON {
		return slog.New(slog.NewJSONHandler(output, opts))
	}
	return slog.New(slog.NewTextHandler(output, opts))
}

// SetVerbose enables or disables debug and info output.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	if v {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelWarn)
	}
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer. Defaults to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	base = newLogger()
}

// SetFormat selects text or JSON output. Unknown formats fall back to text.
func SetFormat(f Format) {
	mu.Lock()
	defer mu.Unlock()
	if f != FormatJSON {
		f = FormatText
	}
	format = f
	base = newLogger()
}

// Logger returns the underlying structured logger for callers that want
// to attach attributes.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func logf(lvl slog.Level, msg string, args ...any) {
	mu.RLock()
	l := base
	mu.RUnlock()
	ctx := context.Background()
	if !l.Enabled(ctx, lvl) {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.Log(ctx, lvl, msg)
}

// Debug logs a pipeline detail.
func Debug(format string, args ...any) {
	logf(slog.LevelDebug, format, args...)
}

// Section marks the start of a pipeline stage.
func Section(name string) {
	mu.RLock()
	l := base
	mu.RUnlock()
	l.Debug("stage", "section", name)
}

// Info logs progress.
func Info(format string, args ...any) {
	logf(slog.LevelInfo, format, args...)
}

// Warn logs a recoverable problem such as a degraded retrieval.
func Warn(format string, args ...any) {
	logf(slog.LevelWarn, format, args...)
}

// Error logs a failure.
func Error(format string, args ...any) {
	logf(slog.LevelError, format, args...)
}
