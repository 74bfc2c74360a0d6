package msgstream

import (
	"log/slog"
	"reflect"
	"testing"
)

func TestLogger_Interface(t *testing.T) {
	var _ Logger = slog.Default()
	var _ Logger = NopLogger()
}

func TestDefaultLogger(t *testing.T) {
	logger := defaultLogger()

	if logger == nil {
		t.Fatal("defaultLogger returned nil")
	}
	if logger != slog.Default() {
		t.Error("defaultLogger did not return slog.Default()")
	}
}

// mockLogger records the last call made through the Logger interface.
type mockLogger struct {
	level    string
	lastMsg  string
	lastArgs []any
}

func (l *mockLogger) record(level, msg string, args []any) {
	l.level = level
	l.lastMsg = msg
	l.lastArgs = args
}

func (l *mockLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *mockLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *mockLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *mockLogger) Error(msg string, args ...any) { l.record("error", msg, args) }

func TestWithArgs_PrefixesEveryLevel(t *testing.T) {
	mock := &mockLogger{}
	logger := withArgs(mock, "conn_id", "abc")

	calls := map[string]func(string, ...any){
		"debug": logger.Debug,
		"info":  logger.Info,
		"warn":  logger.Warn,
		"error": logger.Error,
	}

	for level, call := range calls {
		call("hello", "bytes", 3)

		if mock.level != level {
			t.Errorf("level = %s, want %s", mock.level, level)
		}
		if mock.lastMsg != "hello" {
			t.Errorf("%s: lastMsg = %q, want hello", level, mock.lastMsg)
		}
		want := []any{"conn_id", "abc", "bytes", 3}
		if !reflect.DeepEqual(mock.lastArgs, want) {
			t.Errorf("%s: args = %v, want %v", level, mock.lastArgs, want)
		}
	}
}

func TestWithArgs_NoArgsReturnsLogger(t *testing.T) {
	mock := &mockLogger{}
	if got := withArgs(mock); got != Logger(mock) {
		t.Errorf("withArgs without args wrapped the logger: %T", got)
	}
}

func TestWithArgs_DoesNotAliasPrefix(t *testing.T) {
	mock := &mockLogger{}
	prefix := make([]any, 2, 8)
	prefix[0], prefix[1] = "k", "v"
	logger := withArgs(mock, prefix...)

	logger.Info("first", "a", 1)
	first := mock.lastArgs
	logger.Info("second", "b", 2)

	if !reflect.DeepEqual(first, []any{"k", "v", "a", 1}) {
		t.Errorf("first call args changed to %v", first)
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()

	// must not panic
	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message", "key", "value")
	logger.Error("error message", "key", "value")
}
