package flowcompose

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var errBoom = errors.New("boom")

// testCtx creates a simple test context.
func testCtx() Context {
	return NewContext(context.Background())
}

// upper returns its first positional argument upper-cased.
func upper() Module {
	return Unary(func(_ Context, s string) (string, error) {
		return strings.ToUpper(s), nil
	})
}

// suffix appends s to its first positional string argument.
func suffix(s string) Module {
	return Unary(func(_ Context, in string) (string, error) {
		return in + s, nil
	})
}

// constant ignores its input and returns v.
func constant(v any) Module {
	return Func(func(Context, Args) (any, error) {
		return v, nil
	})
}

// failing returns err.
func failing(err error) Module {
	return Func(func(Context, Args) (any, error) {
		return nil, err
	})
}

// panicking panics with v.
func panicking(v any) Module {
	return Func(func(Context, Args) (any, error) {
		panic(v)
	})
}

// recorder remembers every Args it was invoked with.
type recorder struct {
	mu    sync.Mutex
	calls []Args
	out   any
}

func (r *recorder) Invoke(_ Context, args Args) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, args)
	if r.out != nil {
		return r.out, nil
	}
	return args.Value(), nil
}

func (r *recorder) Calls() []Args {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Args(nil), r.calls...)
}

// tracker records node execution order.
type tracker struct {
	mu    sync.Mutex
	order []string
}

func (t *tracker) node(name string) Module {
	return Func(func(_ Context, args Args) (any, error) {
		t.mu.Lock()
		t.order = append(t.order, name)
		t.mu.Unlock()
		return args.Value(), nil
	})
}

func (t *tracker) Order() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.order...)
}

// sleeper waits d (or until cancelled) and returns name.
func sleeper(name string, d time.Duration) Module {
	return Func(func(ctx Context, _ Args) (any, error) {
		select {
		case <-time.After(d):
			return name, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

// testLogHandler captures log records for testing. Safe for concurrent use.
type testLogHandler struct {
	mu    *sync.Mutex
	buf   *bytes.Buffer
	attrs []slog.Attr
	level slog.Level
}

func newTestLogHandler() *testLogHandler {
	return &testLogHandler{
		mu:    &sync.Mutex{},
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testLogHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, a := range h.attrs {
		data[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &cp
}

func (h *testLogHandler) WithGroup(string) slog.Handler {
	return h
}

func (h *testLogHandler) getRecords() []map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	var records []map[string]any
	for _, line := range bytes.Split(h.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(line, &m); err == nil {
			records = append(records, m)
		}
	}
	return records
}

func (h *testLogHandler) messages() []string {
	var msgs []string
	for _, r := range h.getRecords() {
		msgs = append(msgs, fmt.Sprint(r["msg"]))
	}
	return msgs
}

// fakeMetrics counts recorder calls.
type fakeMetrics struct {
	mu       sync.Mutex
	nodes    []string
	nodeErrs int
	runs     []bool
	parallel map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{parallel: make(map[string]int)}
}

func (m *fakeMetrics) RecordNodeInvocation(_ context.Context, container, nodeID string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = append(m.nodes, container+"/"+nodeID)
	if err != nil {
		m.nodeErrs++
	}
}

func (m *fakeMetrics) RecordRun(_ context.Context, _ string, success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, success)
}

func (m *fakeMetrics) RecordParallel(_ context.Context, group string, branches int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parallel[group] = branches
}
