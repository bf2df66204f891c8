// Package logger holds the process logger shared by the allocator packages.
package logger

import (
	"io"
	"log/slog"
)

// L is the global logger instance. It's initialized to discard all output by default.
// Call Init() to enable logging.
var L = Discard()

// Options configures the logger initialization.
type Options struct {
	Enabled bool       // If false, all logging is discarded
	Out     io.Writer  // Destination for log records
	Level   slog.Level // Minimum log level. Default: LevelInfo when enabled
	JSON    bool       // Emit JSON records instead of text
}

// Init configures L. Call from main() before any log calls.
func Init(opts Options) {
	if !opts.Enabled || opts.Out == nil {
		L = Discard()
		return
	}
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	if opts.JSON {
		L = slog.New(slog.NewJSONHandler(opts.Out, handlerOpts))
		return
	}
	L = slog.New(slog.NewTextHandler(opts.Out, handlerOpts))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Or returns l, or L when l is nil.
func Or(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return L
}
