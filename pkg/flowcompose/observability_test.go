package flowcompose

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/randalmurphal/flowcompose/pkg/flowcompose/observability"
	"github.com/randalmurphal/flowcompose/pkg/flowcompose/timing"
)

var (
	traceOnce     sync.Once
	traceExporter *tracetest.InMemoryExporter
)

// inMemoryTraces installs a process-wide tracer provider once; the global
// delegate only forwards to the first provider set.
func inMemoryTraces(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	traceOnce.Do(func() {
		traceExporter = tracetest.NewInMemoryExporter()
		otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSyncer(traceExporter)))
	})
	traceExporter.Reset()
	return traceExporter
}

func TestRun_WithObservabilityLogger(t *testing.T) {
	h := newTestLogHandler()
	ppl := NewPipeline("rag")
	ppl.MustRegister("a", Identity())
	ppl.MustRegister("b", Identity())

	_, err := RunArgs(context.Background(), ppl, Pack(1), WithLogger(slog.New(h)), WithRunID("log-run"))
	require.NoError(t, err)

	msgs := h.messages()
	assert.Equal(t, "run starting", msgs[0])
	assert.Equal(t, "run completed", msgs[len(msgs)-1])
	assert.Contains(t, msgs, "node starting")
	assert.Contains(t, msgs, "node completed")

	records := h.getRecords()
	last := records[len(records)-1]
	assert.Equal(t, "log-run", last["run_id"])
	assert.Equal(t, "rag", last["container"])
	assert.EqualValues(t, 2, last["nodes_executed"])

	for _, r := range records {
		if r["msg"] == "node completed" {
			assert.Equal(t, "log-run", r["run_id"])
			assert.Equal(t, "rag", r["container"])
		}
	}
}

func TestRun_NodeRecordsCarryNodeIDOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ppl := NewPipeline("p")
	ppl.MustRegister("ok", Identity())
	ppl.MustRegister("bad", failing(errBoom))

	_, err := RunArgs(context.Background(), ppl, Pack(1), WithLogger(logger), WithRunID("r1"))
	require.Error(t, err)

	var nodeLines int
	for line := range strings.Lines(buf.String()) {
		if !strings.Contains(line, "msg=\"node ") {
			continue
		}
		nodeLines++
		assert.Equal(t, 1, strings.Count(line, "node_id="), line)
		assert.Contains(t, line, "run_id=r1")
	}
	assert.Equal(t, 4, nodeLines)
}

func TestRun_LogsFailure(t *testing.T) {
	h := newTestLogHandler()
	ppl := NewPipeline("p")
	ppl.MustRegister("bad", failing(errBoom))

	_, err := RunArgs(context.Background(), ppl, Pack(1), WithLogger(slog.New(h)))
	require.Error(t, err)

	var runFailed map[string]any
	for _, r := range h.getRecords() {
		if r["msg"] == "run failed" {
			runFailed = r
		}
	}
	require.NotNil(t, runFailed)
	assert.Equal(t, "bad", runFailed["last_node"])
	assert.Equal(t, "ERROR", runFailed["level"])
}

func TestNodeLogger_IsEnriched(t *testing.T) {
	h := newTestLogHandler()
	ppl := NewPipeline("p")
	ppl.MustRegister("talker", Func(func(ctx Context, _ Args) (any, error) {
		ctx.Logger().Info("hello from node")
		return nil, nil
	}))

	_, err := RunArgs(context.Background(), ppl, Pack(1), WithLogger(slog.New(h)), WithRunID("r1"))
	require.NoError(t, err)

	for _, r := range h.getRecords() {
		if r["msg"] == "hello from node" {
			assert.Equal(t, "r1", r["run_id"])
			assert.Equal(t, "talker", r["node_id"])
			assert.Equal(t, "p", r["container"])
			return
		}
	}
	t.Fatal("node log record not found")
}

func TestRun_WithMetrics(t *testing.T) {
	m := newFakeMetrics()
	g := NewParallel("g", Concat)
	g.MustRegister("x", Identity())
	g.MustRegister("y", failing(errBoom))
	ppl := NewPipeline("p")
	ppl.MustRegister("first", Identity())
	ppl.MustRegister("group", g)

	_, err := RunArgs(context.Background(), ppl, Pack(1), WithMetricsRecorder(m))
	require.Error(t, err)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.ElementsMatch(t, []string{"p/first", "g/x", "g/y", "p/group"}, m.nodes)
	assert.Equal(t, 2, m.nodeErrs, "failing branch and its group")
	assert.Equal(t, []bool{false}, m.runs)
	assert.Equal(t, 2, m.parallel["g"])
}

func TestRun_WithMetricsToggle(t *testing.T) {
	cfg := defaultRunConfig()
	WithMetrics(true)(&cfg)
	assert.NotEqual(t, observability.NoopMetrics{}, cfg.metrics)
	WithMetrics(false)(&cfg)
	assert.Equal(t, observability.NoopMetrics{}, cfg.metrics)
}

func TestRun_WithTracing(t *testing.T) {
	exporter := inMemoryTraces(t)

	g := NewParallel("g", Concat)
	g.MustRegister("left", Identity())
	g.MustRegister("right", Identity())
	ppl := NewPipeline("rag")
	ppl.MustRegister("first", Identity())
	ppl.MustRegister("group", g)

	_, err := RunArgs(context.Background(), ppl, Pack(1), WithTracing(true))
	require.NoError(t, err)

	spans := exporter.GetSpans()
	byName := make(map[string]tracetest.SpanStub)
	for _, s := range spans {
		byName[s.Name] = s
	}
	require.Contains(t, byName, "flowcompose.run")
	require.Contains(t, byName, "flowcompose.node.first")
	require.Contains(t, byName, "flowcompose.node.group")
	require.Contains(t, byName, "flowcompose.node.left")

	run := byName["flowcompose.run"]
	assert.Equal(t, run.SpanContext.SpanID(), byName["flowcompose.node.first"].Parent.SpanID())
	assert.Equal(t, run.SpanContext.SpanID(), byName["flowcompose.node.group"].Parent.SpanID())
	assert.Equal(t, byName["flowcompose.node.group"].SpanContext.SpanID(), byName["flowcompose.node.left"].Parent.SpanID())
	assert.Equal(t, run.SpanContext.TraceID(), byName["flowcompose.node.right"].SpanContext.TraceID())
}

func TestRun_TracingDisabledByDefault(t *testing.T) {
	exporter := inMemoryTraces(t)
	_, err := NewPipeline("p", Identity()).Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, exporter.GetSpans())
}

func TestRun_WithTimingSink(t *testing.T) {
	collector := timing.NewCollector()
	ppl := NewPipeline("rag")
	ppl.MustRegister("a", Identity())
	ppl.MustRegister("b", failing(errBoom))

	_, err := RunArgs(context.Background(), ppl, Pack(1), WithTimingSink(collector), WithRunID("timed-run"))
	require.Error(t, err)

	events := collector.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0].Name)
	assert.Equal(t, "rag", events[0].Container)
	assert.Contains(t, events[0].Source, "observability_test.go:")
	assert.Equal(t, "b", events[1].Name)
	assert.Contains(t, events[1].Err, "boom")
	assert.Equal(t, "rag", events[2].Name)
	assert.Empty(t, events[2].Container)
	for _, e := range events {
		assert.Equal(t, "timed-run", e.RunID)
	}
}

type rejectingSink struct{}

func (rejectingSink) Record(timing.Event) error { return timing.ErrSinkClosed }

func TestRun_SinkFailureDoesNotFailRun(t *testing.T) {
	h := newTestLogHandler()
	out, err := RunArgs(context.Background(), NewPipeline("p", constant(5)), Pack(1),
		WithTimingSink(rejectingSink{}), WithLogger(slog.New(h)))
	require.NoError(t, err)
	assert.Equal(t, 5, out)
	assert.Contains(t, h.messages(), "timing sink rejected event")
}
