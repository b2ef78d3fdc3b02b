package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// SlogLogger implements Logger on top of log/slog
type SlogLogger struct {
	logger  *slog.Logger
	closers []io.Closer
}

// NewSlogLogger wraps a handler. closers are closed by Close.
func NewSlogLogger(handler slog.Handler, closers ...io.Closer) *SlogLogger {
	return &SlogLogger{logger: slog.New(handler), closers: closers}
}

// NewConsoleHandler returns a tint handler writing to w. Colors are only
// used when w is a terminal.
func NewConsoleHandler(w io.Writer, level Level) slog.Handler {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      level.SlogLevel(),
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	})
}

// FileLoggerConfig holds configuration for file logging
type FileLoggerConfig struct {
	// Path is the log file path
	Path string
	// Format is the output format (json or text)
	Format Format
	// Level is the minimum log level
	Level Level
	// MaxSize is the maximum size in bytes before rotation (0 = no rotation)
	MaxSize int64
	// MaxBackups is the maximum number of backup files to keep
	MaxBackups int
}

// NewFileHandler opens a rotating log file and returns a handler on it.
// The returned closer owns the file.
func NewFileHandler(config FileLoggerConfig) (slog.Handler, io.Closer, error) {
	w, err := NewRotatingWriter(config.Path, config.MaxSize, config.MaxBackups)
	if err != nil {
		return nil, nil, err
	}

	opts := &slog.HandlerOptions{Level: config.Level.SlogLevel()}
	if config.Format == FormatJSON {
		return slog.NewJSONHandler(w, opts), w, nil
	}
	return slog.NewTextHandler(w, opts), w, nil
}

// NewFileLogger creates a logger writing to a rotating file
func NewFileLogger(config FileLoggerConfig) (*SlogLogger, error) {
	h, closer, err := NewFileHandler(config)
	if err != nil {
		return nil, err
	}
	return NewSlogLogger(h, closer), nil
}

// Debug logs a debug message
func (l *SlogLogger) Debug(ctx context.Context, msg string, fields Fields) {
	l.logger.LogAttrs(ctx, slog.LevelDebug, msg, attrs(fields)...)
}

// Info logs an info message
func (l *SlogLogger) Info(ctx context.Context, msg string, fields Fields) {
	l.logger.LogAttrs(ctx, slog.LevelInfo, msg, attrs(fields)...)
}

// Warn logs a warning message
func (l *SlogLogger) Warn(ctx context.Context, msg string, fields Fields) {
	l.logger.LogAttrs(ctx, slog.LevelWarn, msg, attrs(fields)...)
}

// Error logs an error message
func (l *SlogLogger) Error(ctx context.Context, msg string, err error, fields Fields) {
	a := attrs(fields)
	if err != nil {
		a = append(a, tint.Err(err))
	}
	l.logger.LogAttrs(ctx, slog.LevelError, msg, a...)
}

// WithFields returns a logger with additional fields
func (l *SlogLogger) WithFields(fields Fields) Logger {
	args := make([]any, 0, len(fields))
	for _, a := range attrs(fields) {
		args = append(args, a)
	}
	return &SlogLogger{logger: l.logger.With(args...), closers: l.closers}
}

// Slog exposes the underlying slog logger
func (l *SlogLogger) Slog() *slog.Logger {
	return l.logger
}

// Close closes the underlying writers
func (l *SlogLogger) Close() error {
	var errs []error
	for _, c := range l.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// attrs converts fields to attributes sorted by key
func attrs(fields Fields) []slog.Attr {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		switch v := fields[k].(type) {
		case error:
			out = append(out, slog.String(k, v.Error()))
		case fmt.Stringer:
			out = append(out, slog.String(k, v.String()))
		default:
			out = append(out, slog.Any(k, v))
		}
	}
	return out
}

// MultiHandler forwards records to every handler that accepts their level
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler creates a handler fanning out to handlers
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

// Enabled implements slog.Handler
func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle implements slog.Handler
func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if e := handler.Handle(ctx, r.Clone()); e != nil {
				err = e
			}
		}
	}
	return err
}

// WithAttrs implements slog.Handler
func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return NewMultiHandler(handlers...)
}

// WithGroup implements slog.Handler
func (h *MultiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return NewMultiHandler(handlers...)
}
