package msgstream

import "log/slog"

// Logger is the interface for structured logging.
// It is designed to be compatible with *slog.Logger from the standard library.
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

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// contextLogger prefixes every call with a fixed set of key-value pairs.
type contextLogger struct {
	Logger
	args []any
}

func withArgs(logger Logger, args ...any) Logger {
	if len(args) == 0 {
		return logger
	}
	return contextLogger{Logger: logger, args: args}
}

func (l contextLogger) merge(args []any) []any {
	merged := make([]any, 0, len(l.args)+len(args))
	merged = append(merged, l.args...)
	return append(merged, args...)
}

func (l contextLogger) Debug(msg string, args ...any) { l.Logger.Debug(msg, l.merge(args)...) }
func (l contextLogger) Info(msg string, args ...any)  { l.Logger.Info(msg, l.merge(args)...) }
func (l contextLogger) Warn(msg string, args ...any)  { l.Logger.Warn(msg, l.merge(args)...) }
func (l contextLogger) Error(msg string, args ...any) { l.Logger.Error(msg, l.merge(args)...) }
