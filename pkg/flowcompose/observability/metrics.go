package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records flowcompose metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeInvocation records one node invocation with its duration and error status.
	RecordNodeInvocation(ctx context.Context, container, nodeID string, duration time.Duration, err error)

	// RecordRun records completion of an outermost invocation.
	RecordRun(ctx context.Context, container string, success bool, duration time.Duration)

	// RecordParallel records the fan-out width of a parallel group invocation.
	RecordParallel(ctx context.Context, group string, branches int)
}

type otelMetrics struct {
	nodeInvocations metric.Int64Counter
	nodeLatency     metric.Float64Histogram
	nodeErrors      metric.Int64Counter
	runs            metric.Int64Counter
	runLatency      metric.Float64Histogram
	branches        metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("flowcompose")

	nodeInvocations, err := meter.Int64Counter("flowcompose.node.invocations",
		metric.WithDescription("Number of node invocations"),
	)
	if err != nil {
		return nil, err
	}

	nodeLatency, err := meter.Float64Histogram("flowcompose.node.latency_ms",
		metric.WithDescription("Node invocation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	nodeErrors, err := meter.Int64Counter("flowcompose.node.errors",
		metric.WithDescription("Number of failed node invocations"),
	)
	if err != nil {
		return nil, err
	}

	runs, err := meter.Int64Counter("flowcompose.run.count",
		metric.WithDescription("Number of outermost invocations"),
	)
	if err != nil {
		return nil, err
	}

	runLatency, err := meter.Float64Histogram("flowcompose.run.latency_ms",
		metric.WithDescription("Outermost invocation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	branches, err := meter.Int64Histogram("flowcompose.parallel.branches",
		metric.WithDescription("Branches fanned out per parallel group invocation"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		nodeInvocations: nodeInvocations,
		nodeLatency:     nodeLatency,
		nodeErrors:      nodeErrors,
		runs:            runs,
		runLatency:      runLatency,
		branches:        branches,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordNodeInvocation(ctx context.Context, container, nodeID string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("container", container),
		attribute.String("node_id", nodeID),
	)

	m.nodeInvocations.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)

	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordRun(ctx context.Context, container string, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("container", container),
		attribute.Bool("success", success),
	)
	m.runs.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

func (m *otelMetrics) RecordParallel(ctx context.Context, group string, branches int) {
	m.branches.Record(ctx, int64(branches), metric.WithAttributes(
		attribute.String("group", group),
	))
}
