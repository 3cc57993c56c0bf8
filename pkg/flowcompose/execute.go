package flowcompose

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/randalmurphal/flowcompose/pkg/flowcompose/observability"
	"github.com/randalmurphal/flowcompose/pkg/flowcompose/timing"
	"go.opentelemetry.io/otel/trace"
)

// runRoot executes fn as an outermost invocation: it creates the frame
// that placeholders resolve against and reports the run as a whole.
func (c *executionContext) runRoot(container string, args Args, fn func(*executionContext, Args) (any, error)) (result any, runErr error) {
	ec := c.begin(args)
	defer ec.frame.cancel(nil)

	cfg := ec.cfg
	runID := ec.frame.runID
	startTime := time.Now()

	observability.LogRunStart(cfg.logger, runID, container)

	// Start run span if tracing enabled
	if cfg.tracing {
		spanCtx, runSpan := cfg.spans.StartRunSpan(ec.Context, container, runID)
		ec = ec.withContext(spanCtx)
		defer func() {
			cfg.spans.EndSpanWithError(runSpan, runErr)
		}()
	}

	result, runErr = fn(ec, args)

	duration := time.Since(startTime)
	durationMs := float64(duration.Milliseconds())

	cfg.metrics.RecordRun(ec, container, runErr == nil, duration)

	if runErr != nil {
		observability.LogRunError(cfg.logger, runID, container, runErr, durationMs, lastNode(runErr))
	} else {
		observability.LogRunComplete(cfg.logger, runID, container, durationMs, int(ec.frame.nodes.Load()))
	}

	ec.emit(timing.Event{
		Name:     container,
		RunID:    runID,
		Duration: duration,
		Err:      errText(runErr),
		Time:     time.Now(),
	})

	return result, runErr
}

// invokeNode runs one node with cancellation check, panic recovery and
// per-node observability. Errors from the module are wrapped in NodeError
// unless the engine already attached its own context.
func (c *executionContext) invokeNode(container string, n *Node, args Args) (any, error) {
	nodeID := n.ID()

	// Check for cancellation before dispatching the node
	if err := c.checkCancelled(container, nodeID); err != nil {
		return nil, err
	}

	cfg := c.cfg
	var tracingCtx context.Context = c.Context
	var nodeSpan trace.Span
	if cfg.tracing {
		tracingCtx, nodeSpan = cfg.spans.StartNodeSpan(c.Context, container, nodeID)
	}
	nc := c.withNode(tracingCtx, container, nodeID)
	logger := observability.RunLogger(cfg.logger, c.RunID(), container)

	observability.LogNodeStart(logger, nodeID)
	nodeStart := time.Now()

	out, err := safeInvoke(nc, container, nodeID, n.Module, args)

	nodeDuration := time.Since(nodeStart)
	c.frame.nodes.Add(1)

	cfg.metrics.RecordNodeInvocation(tracingCtx, container, nodeID, nodeDuration, err)
	if cfg.tracing {
		cfg.spans.EndSpanWithError(nodeSpan, err)
	}

	if err != nil {
		observability.LogNodeError(logger, nodeID, err)
	} else {
		observability.LogNodeComplete(logger, nodeID, float64(nodeDuration.Milliseconds()))
	}

	c.emit(timing.Event{
		Name:      nodeID,
		Source:    n.Source,
		RunID:     c.frame.runID,
		Container: container,
		Duration:  nodeDuration,
		Err:       errText(err),
		Time:      time.Now(),
	})

	if err != nil && !isEngineError(err) {
		op := "invoke"
		if errors.Is(err, ErrUnresolvedReference) {
			op = "resolve"
		}
		err = &NodeError{Container: container, NodeID: nodeID, Op: op, Err: err}
	}
	return out, err
}

// checkCancelled returns a CancelledError if the invocation was cancelled.
func (c *executionContext) checkCancelled(container, nodeID string) error {
	select {
	case <-c.Done():
		return &CancelledError{
			Container: container,
			NodeID:    nodeID,
			Cause:     context.Cause(c),
		}
	default:
		return nil
	}
}

// emit sends evt to the configured timing sink, if any.
func (c *executionContext) emit(evt timing.Event) {
	if c.cfg.sink == nil {
		return
	}
	if err := c.cfg.sink.Record(evt); err != nil {
		c.logger.Warn("timing sink rejected event", "event", evt.Name, "error", err)
	}
}

// safeInvoke calls the module with panic recovery.
func safeInvoke(ctx *executionContext, container, nodeID string, m Module, args Args) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{
				Container: container,
				NodeID:    nodeID,
				Value:     r,
				Stack:     string(debug.Stack()),
			}
		}
	}()
	return m.Invoke(ctx, args)
}

// lastNode extracts the failing node from an invocation error.
func lastNode(err error) string {
	var nodeErr *NodeError
	var panicErr *PanicError
	var cancelErr *CancelledError
	var branchErr *BranchError
	switch {
	case errors.As(err, &nodeErr):
		return nodeErr.NodeID
	case errors.As(err, &panicErr):
		return panicErr.NodeID
	case errors.As(err, &cancelErr):
		return cancelErr.NodeID
	case errors.As(err, &branchErr):
		return branchErr.Branch
	default:
		return ""
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// enter runs fn for a container: as an outermost invocation when ctx has no
// frame yet, inline otherwise.
func enter(ctx Context, c *container, validate func() error, fn func(*executionContext, Args) (any, error), args Args) (any, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := validate(); err != nil {
		return nil, err
	}
	ec := asExecution(ctx)

	run := func(ec *executionContext, args Args) (out any, err error) {
		c.begin()
		defer func() { c.finish(err) }()
		return fn(ec, args)
	}

	if ec.frame != nil {
		return run(ec, args)
	}
	if err := c.checkUnknown(); err != nil {
		return nil, err
	}
	return ec.runRoot(c.name, args, run)
}

// Run invokes m as an outermost invocation with positional args.
//
// Example:
//
//	out, err := flowcompose.Run(ctx, ppl, "what is a pipeline?")
func Run(ctx context.Context, m Module, args ...any) (any, error) {
	return RunArgs(ctx, m, Pack(args...))
}

// RunArgs invokes m as an outermost invocation.
func RunArgs(ctx context.Context, m Module, args Args, opts ...Option) (any, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if m == nil {
		return nil, ErrNilModule
	}
	ec := newRootContext(ctx, opts...)
	if _, ok := m.(scoped); ok {
		return m.Invoke(ec, args)
	}
	if err := freezeModule(m); err != nil {
		return nil, err
	}
	name := moduleLabel(m)
	if err := unknownRefs(name, referencesOf(m)); err != nil {
		return nil, err
	}
	root := &Node{Module: m}
	return ec.runRoot(name, args, func(ec *executionContext, args Args) (any, error) {
		return ec.invokeNode(name, root, args)
	})
}
