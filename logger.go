package framing

import (
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"
)

// Logger is the interface for structured logging.
// It is designed to be compatible with *slog.Logger from the standard library.
// Applications can provide their own implementation or use the default slog logger.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, args ...any)
	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, args ...any)
	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, args ...any)
	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, args ...any)
}

// defaultLogger returns the default slog logger from the standard library.
func defaultLogger() Logger {
	return slog.Default()
}

// ZerologLogger adapts a zerolog.Logger to the Logger interface.
// Key-value pairs are attached as fields; a trailing key without value is dropped.
func ZerologLogger(l zerolog.Logger) Logger {
	return zerologAdapter{l: l}
}

type zerologAdapter struct {
	l zerolog.Logger
}

func (z zerologAdapter) Debug(msg string, args ...any) { z.log(z.l.Debug(), msg, args) }
func (z zerologAdapter) Info(msg string, args ...any)  { z.log(z.l.Info(), msg, args) }
func (z zerologAdapter) Warn(msg string, args ...any)  { z.log(z.l.Warn(), msg, args) }
func (z zerologAdapter) Error(msg string, args ...any) { z.log(z.l.Error(), msg, args) }

func (z zerologAdapter) log(e *zerolog.Event, msg string, args []any) {
	if e == nil {
		return
	}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "!BADKEY"
		}
		switch v := args[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case fmt.Stringer:
			e = e.Stringer(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}

// hexBytes defers hex formatting until a handler actually renders the value.
type hexBytes []byte

func (h hexBytes) String() string {
	return hex.EncodeToString(h)
}

// withConnID returns a logger that tags every record with the connection id.
func withConnID(l Logger, id string) Logger {
	if sl, ok := l.(*slog.Logger); ok {
		return sl.With("conn_id", id)
	}
	return taggedLogger{next: l, tags: []any{"conn_id", id}}
}

type taggedLogger struct {
	next Logger
	tags []any
}

func (t taggedLogger) Debug(msg string, args ...any) { t.next.Debug(msg, t.with(args)...) }
func (t taggedLogger) Info(msg string, args ...any)  { t.next.Info(msg, t.with(args)...) }
func (t taggedLogger) Warn(msg string, args ...any)  { t.next.Warn(msg, t.with(args)...) }
func (t taggedLogger) Error(msg string, args ...any) { t.next.Error(msg, t.with(args)...) }

func (t taggedLogger) with(args []any) []any {
	return append(append(make([]any, 0, len(t.tags)+len(args)), t.tags...), args...)
}
