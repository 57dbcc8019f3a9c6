package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ZerologAdapter implements Logger using zerolog.
type ZerologAdapter struct {
	logger zerolog.Logger
}

type zerologConfig struct {
	out    io.Writer
	level  zerolog.Level
	format string
}

// ZerologOption configures NewZerologAdapter.
type ZerologOption func(*zerologConfig)

// WithOutput sets the destination writer. Defaults to stderr.
func WithOutput(w io.Writer) ZerologOption {
	return func(c *zerologConfig) { c.out = w }
}

// WithLevel sets the minimum level by name ("debug", "info", "warn", "error").
// Unknown names leave the default (info).
func WithLevel(level string) ZerologOption {
	return func(c *zerologConfig) {
		if lvl, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil && lvl != zerolog.NoLevel {
			c.level = lvl
		}
	}
}

// WithFormat selects "console" (human readable, default) or "json" output.
func WithFormat(format string) ZerologOption {
	return func(c *zerologConfig) { c.format = strings.ToLower(format) }
}

// NewZerologAdapter creates a zerolog adapter. Without options it writes
// console output at info level to stderr.
func NewZerologAdapter(opts ...ZerologOption) *ZerologAdapter {
	cfg := zerologConfig{out: os.Stderr, level: zerolog.InfoLevel, format: "console"}
	for _, opt := range opts {
		opt(&cfg)
	}

	out := cfg.out
	if cfg.format != "json" {
		out = zerolog.ConsoleWriter{Out: cfg.out, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(out).Level(cfg.level).With().Timestamp().Logger()
	return &ZerologAdapter{logger: logger}
}

// NewZerologAdapterWithLogger creates an adapter wrapping an existing zerolog.Logger.
func NewZerologAdapterWithLogger(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

// With returns a child adapter that adds fields to every message.
func (z *ZerologAdapter) With(fields ...Field) *ZerologAdapter {
	ctx := z.logger.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &ZerologAdapter{logger: ctx.Logger()}
}

// Debug logs a debug-level message.
func (z *ZerologAdapter) Debug(msg string, fields ...Field) {
	emit(z.logger.Debug(), msg, fields)
}

// Info logs an info-level message.
func (z *ZerologAdapter) Info(msg string, fields ...Field) {
	emit(z.logger.Info(), msg, fields)
}

// Warn logs a warning-level message.
func (z *ZerologAdapter) Warn(msg string, fields ...Field) {
	emit(z.logger.Warn(), msg, fields)
}

// Error logs an error-level message.
func (z *ZerologAdapter) Error(msg string, fields ...Field) {
	emit(z.logger.Error(), msg, fields)
}

func emit(event *zerolog.Event, msg string, fields []Field) {
	if event == nil {
		return
	}
	for _, f := range fields {
		event = addField(event, f)
	}
	event.Msg(msg)
}

// addField adds a Field to a zerolog.Event.
func addField(event *zerolog.Event, f Field) *zerolog.Event {
	switch v := f.Value.(type) {
	case string:
		return event.Str(f.Key, v)
	case int:
		return event.Int(f.Key, v)
	case int32:
		return event.Int32(f.Key, v)
	case int64:
		return event.Int64(f.Key, v)
	case uint64:
		return event.Uint64(f.Key, v)
	case float64:
		return event.Float64(f.Key, v)
	case bool:
		return event.Bool(f.Key, v)
	case time.Duration:
		return event.Dur(f.Key, v)
	case []string:
		return event.Strs(f.Key, v)
	case error:
		if f.Key == "error" {
			return event.Err(v)
		}
		return event.AnErr(f.Key, v)
	default:
		return event.Interface(f.Key, v)
	}
}

// Logger returns the underlying zerolog.Logger.
func (z *ZerologAdapter) Logger() zerolog.Logger {
	return z.logger
}
