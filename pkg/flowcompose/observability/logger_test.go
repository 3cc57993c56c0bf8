package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records as JSON lines.
type testHandler struct {
	buf   *bytes.Buffer
	level slog.Level
	attrs []slog.Attr
}

func newTestHandler() *testHandler {
	return &testHandler{
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := &testHandler{
		buf:   h.buf,
		level: h.level,
		attrs: make([]slog.Attr, len(h.attrs)+len(attrs)),
	}
	copy(newH.attrs, h.attrs)
	copy(newH.attrs[len(h.attrs):], attrs)
	return newH
}

func (h *testHandler) WithGroup(_ string) slog.Handler {
	return h
}

func (h *testHandler) lastRecord() map[string]any {
	lines := bytes.Split(h.buf.Bytes(), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) > 0 {
			var m map[string]any
			if err := json.Unmarshal(lines[i], &m); err == nil {
				return m
			}
		}
	}
	return nil
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds run_id, container, and node_id", func(t *testing.T) {
		h := newTestHandler()
		enriched := EnrichLogger(slog.New(h), "run-123", "rag", "reranker")
		enriched.Info("test message")

		record := h.lastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "run-123", record["run_id"])
		assert.Equal(t, "rag", record["container"])
		assert.Equal(t, "reranker", record["node_id"])
		assert.Equal(t, "test message", record["msg"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "run", "c", "n"))
	})
}

func TestRunLogger(t *testing.T) {
	h := newTestHandler()
	LogNodeComplete(RunLogger(slog.New(h), "run-1", "rag"), "llm", 3)

	record := h.lastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "run-1", record["run_id"])
	assert.Equal(t, "rag", record["container"])
	assert.Equal(t, "llm", record["node_id"])

	assert.Nil(t, RunLogger(nil, "run", "c"))
}

func TestLogRun(t *testing.T) {
	t.Run("start at INFO", func(t *testing.T) {
		h := newTestHandler()
		LogRunStart(slog.New(h), "run-456", "ppl")

		record := h.lastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "INFO", record["level"])
		assert.Equal(t, "run starting", record["msg"])
		assert.Equal(t, "run-456", record["run_id"])
		assert.Equal(t, "ppl", record["container"])
	})

	t.Run("complete with counts", func(t *testing.T) {
		h := newTestHandler()
		LogRunComplete(slog.New(h), "run-789", "ppl", 123.5, 5)

		record := h.lastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "run completed", record["msg"])
		assert.Equal(t, 123.5, record["duration_ms"])
		assert.Equal(t, float64(5), record["nodes_executed"])
	})

	t.Run("error with last node", func(t *testing.T) {
		h := newTestHandler()
		LogRunError(slog.New(h), "run-err", "ppl", errors.New("boom"), 50, "llm")

		record := h.lastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "ERROR", record["level"])
		assert.Equal(t, "run failed", record["msg"])
		assert.Equal(t, "boom", record["error"])
		assert.Equal(t, "llm", record["last_node"])
	})

	t.Run("nil logger does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogRunStart(nil, "r", "c")
			LogRunComplete(nil, "r", "c", 1, 1)
			LogRunError(nil, "r", "c", errors.New("x"), 1, "n")
		})
	})
}

func TestLogNode(t *testing.T) {
	t.Run("start and complete at DEBUG", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		LogNodeStart(logger, "fetch")
		record := h.lastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "DEBUG", record["level"])
		assert.Equal(t, "node starting", record["msg"])
		assert.Equal(t, "fetch", record["node_id"])

		LogNodeComplete(logger, "fetch", 45.7)
		record = h.lastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "node completed", record["msg"])
		assert.Equal(t, 45.7, record["duration_ms"])
	})

	t.Run("error at ERROR", func(t *testing.T) {
		h := newTestHandler()
		LogNodeError(slog.New(h), "validate", errors.New("validation failed"))

		record := h.lastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "ERROR", record["level"])
		assert.Equal(t, "validation failed", record["error"])
	})

	t.Run("nil logger does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogNodeStart(nil, "n")
			LogNodeComplete(nil, "n", 1)
			LogNodeError(nil, "n", errors.New("x"))
		})
	})
}

func TestLogBranchJoin(t *testing.T) {
	t.Run("success at DEBUG", func(t *testing.T) {
		h := newTestHandler()
		LogBranchJoin(slog.New(h), "prl", 2, 10, nil)

		record := h.lastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "DEBUG", record["level"])
		assert.Equal(t, "parallel group joined", record["msg"])
		assert.Equal(t, float64(2), record["branches"])
	})

	t.Run("failure at WARN", func(t *testing.T) {
		h := newTestHandler()
		LogBranchJoin(slog.New(h), "prl", 3, 10, errors.New("branch down"))

		record := h.lastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "WARN", record["level"])
		assert.Equal(t, "branch down", record["error"])
	})
}

func TestLogLifecycle(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogLifecycle(logger, "start", "retriever", nil)
	record := h.lastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "INFO", record["level"])
	assert.Equal(t, "start", record["op"])

	LogLifecycle(logger, "stop", "retriever", errors.New("close failed"))
	record = h.lastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, "close failed", record["error"])

	assert.NotPanics(t, func() { LogLifecycle(nil, "start", "m", nil) })
}

func TestTimedOperation(t *testing.T) {
	t.Run("measures duration", func(t *testing.T) {
		done := TimedOperation()
		time.Sleep(10 * time.Millisecond)
		assert.GreaterOrEqual(t, done(), 10.0)
	})

	t.Run("can be called multiple times", func(t *testing.T) {
		done := TimedOperation()
		first := done()
		time.Sleep(2 * time.Millisecond)
		assert.GreaterOrEqual(t, done(), first)
	})
}
