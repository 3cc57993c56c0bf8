// Package observability provides logging, metrics, and tracing helpers for
// flowcompose graphs.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds invocation context to a logger.
// Returns a new logger with run_id, container, and node_id fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", "rag", "reranker")
//	enriched.Info("doing work") // includes run_id, container, node_id
func EnrichLogger(logger *slog.Logger, runID, container, nodeID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return RunLogger(logger, runID, container).With(slog.String("node_id", nodeID))
}

// RunLogger adds run_id and container fields to a logger. It is the logger
// the LogNode helpers expect, since they add node_id themselves.
func RunLogger(logger *slog.Logger, runID, container string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("container", container),
	)
}

// LogRunStart logs the start of an outermost invocation.
func LogRunStart(logger *slog.Logger, runID, container string) {
	if logger == nil {
		return
	}
	logger.Info("run starting",
		slog.String("run_id", runID),
		slog.String("container", container),
	)
}

// LogRunComplete logs successful completion of an outermost invocation.
func LogRunComplete(logger *slog.Logger, runID, container string, durationMs float64, nodeCount int) {
	if logger == nil {
		return
	}
	logger.Info("run completed",
		slog.String("run_id", runID),
		slog.String("container", container),
		slog.Float64("duration_ms", durationMs),
		slog.Int("nodes_executed", nodeCount),
	)
}

// LogRunError logs failure of an outermost invocation.
func LogRunError(logger *slog.Logger, runID, container string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("run failed",
		slog.String("run_id", runID),
		slog.String("container", container),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogNodeStart logs node invocation start.
func LogNodeStart(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs a node failure.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogBranchJoin logs the join barrier of a parallel group.
func LogBranchJoin(logger *slog.Logger, group string, branches int, durationMs float64, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Warn("parallel group failed",
			slog.String("group", group),
			slog.Int("branches", branches),
			slog.Float64("duration_ms", durationMs),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("parallel group joined",
		slog.String("group", group),
		slog.Int("branches", branches),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogLifecycle logs a start or stop transition of a module.
func LogLifecycle(logger *slog.Logger, op, module string, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Error("lifecycle transition failed",
			slog.String("op", op),
			slog.String("module", module),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Info("lifecycle transition",
		slog.String("op", op),
		slog.String("module", module),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
