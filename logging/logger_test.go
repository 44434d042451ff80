package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel) (*CoreLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	cfg.Output = buf
	cfg.AddSource = false
	return NewLogger(cfg), buf
}

func decodeEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("debug"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel("ERROR"))
	assert.Equal(t, LogLevelInfo, ParseLevel(""))
	assert.Equal(t, LogLevelInfo, ParseLevel("bogus"))
}

func TestLevelGating(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelWarn)

	logger.Debug("too quiet")
	logger.Info("still too quiet")
	logger.Warn("loud enough", "attempt", 2)

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, "loud enough", entries[0]["msg"])
	assert.Equal(t, float64(2), entries[0]["attempt"])
}

func TestContextualAttrsPropagate(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelInfo)

	scoped := logger.WithComponent("engine").
		WithExecution("intake", "exec-1").
		WithContext("attempt", 1)
	scoped.Info("dispatching", "agents", 3)

	// The parent logger is untouched by the scoped clones.
	logger.Info("unscoped")

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "engine", entries[0]["component"])
	assert.Equal(t, "intake", entries[0]["basket_name"])
	assert.Equal(t, "exec-1", entries[0]["execution_id"])
	assert.Equal(t, float64(1), entries[0]["attempt"])
	assert.Equal(t, float64(3), entries[0]["agents"])

	assert.NotContains(t, entries[1], "component")
	assert.NotContains(t, entries[1], "execution_id")
}

func TestLogStepExecution(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelInfo)

	logger.LogStepExecution("cleaner", 25*time.Millisecond, true, nil)
	logger.LogStepExecution("scorer", 5*time.Millisecond, false, errors.New("upstream timeout"))

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 2)

	assert.Equal(t, "INFO", entries[0]["level"])
	assert.Equal(t, "Step execution completed", entries[0]["msg"])
	assert.Equal(t, "cleaner", entries[0]["agent_name"])
	assert.Equal(t, true, entries[0]["success"])

	assert.Equal(t, "ERROR", entries[1]["level"])
	assert.Equal(t, "Step execution failed", entries[1]["msg"])
	assert.Equal(t, "upstream timeout", entries[1]["error"])
}

func TestLogBasketExecution(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelInfo)

	logger.LogBasketExecution("intake", "sequential", 3, 120*time.Millisecond, "completed")
	logger.LogBasketExecution("intake", "sequential", 1, 10*time.Millisecond, "failed")

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "Basket execution completed", entries[0]["msg"])
	assert.Equal(t, float64(3), entries[0]["step_count"])
	assert.Equal(t, "ERROR", entries[1]["level"])
	assert.Equal(t, "Basket execution failed", entries[1]["msg"])
}

func TestErrorWithStack(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelError)

	logger.ErrorWithStack(errors.New("db locked"), "save failed", "basket", "intake")

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "db locked", entries[0]["error"])
	assert.NotEmpty(t, entries[0]["error_type"])
	assert.Contains(t, entries[0]["stack_trace"], "goroutine")
	assert.Equal(t, "intake", entries[0]["basket"])
}

func TestStartTimer(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelInfo)

	done := logger.StartTimer("load_definitions")
	done()

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "Operation completed", entries[0]["msg"])
	assert.Equal(t, "load_definitions", entries[0]["operation"])
	assert.Contains(t, entries[0], "duration")
}

func TestSlogAdapter(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewSlogAdapter(slog.New(slog.NewJSONHandler(buf, nil)))

	logger.Info("definitions loaded", "count", 4)
	logger.Error("load failed", "source", "broken.yaml")

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, float64(4), entries[0]["count"])
	assert.Equal(t, "ERROR", entries[1]["level"])
	assert.Equal(t, "broken.yaml", entries[1]["source"])
}

func TestNoOpLoggerDiscards(t *testing.T) {
	assert.NotPanics(t, func() {
		l := NoOpLogger{}
		l.Debug("a")
		l.Info("b", "k", "v")
		l.Warn("c")
		l.Error("d")
	})
}
