package flowcompose

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/randalmurphal/flowcompose/pkg/flowcompose/observability"
)

// Context provides execution context to modules.
// It extends context.Context with the logger, the run identity and the
// per-invocation frame that placeholders resolve against.
//
// The engine derives a new Context for each node with updated NodeID and an
// enriched logger. A Context is only valid for the duration of the
// invocation it was handed to.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with run and node context.
	// Never returns nil - defaults to slog.Default() if not configured.
	Logger() *slog.Logger

	// RunID returns the identifier of the outermost invocation.
	RunID() string

	// NodeID returns the node being executed, or "" outside a node.
	NodeID() string

	// Container returns the pipeline or group the current node belongs to.
	Container() string

	// Input returns the outermost invocation's original arguments.
	Input() Args

	// Output returns the most recent output recorded under name in the
	// current invocation.
	Output(name string) (any, bool)

	// Cancel requests cooperative cancellation. Nodes not yet dispatched
	// in this invocation fail with CancelledError; running nodes are not
	// interrupted beyond their own ctx.Done handling.
	Cancel()
}

// frame is the state of one outermost invocation. Nested containers share
// their caller's frame.
type frame struct {
	runID  string
	input  Args
	cfg    *runConfig
	cancel context.CancelCauseFunc

	mu      sync.RWMutex
	outputs map[string]any

	nodes atomic.Int64
}

func (f *frame) record(name string, value any) {
	f.mu.Lock()
	f.outputs[name] = value
	f.mu.Unlock()
}

func (f *frame) lookup(name string) (any, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.outputs[name]
	return v, ok
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	cfg       *runConfig
	frame     *frame
	logger    *slog.Logger
	container string
	nodeID    string
}

// NewContext creates an execution context from a standard context.
// The returned Context carries the options used by every invocation
// started from it.
//
// Example:
//
//	ctx := flowcompose.NewContext(context.Background(),
//	    flowcompose.WithLogger(myLogger),
//	    flowcompose.WithRunID("run-123"))
//	out, err := pipeline.Invoke(ctx, flowcompose.Pack("query"))
func NewContext(ctx context.Context, opts ...Option) Context {
	return newRootContext(ctx, opts...)
}

// newRootContext returns a context for a new outermost invocation. A node's
// context passed in keeps its configuration but not its frame, so the new
// invocation sees its own input and outputs.
func newRootContext(ctx context.Context, opts ...Option) *executionContext {
	if ec, ok := ctx.(*executionContext); ok && len(opts) == 0 {
		if ec.frame == nil {
			return ec
		}
		return &executionContext{Context: ec, cfg: ec.cfg, logger: ec.cfg.logger}
	}
	cfg := defaultRunConfig()
	if parent, ok := ctx.(*executionContext); ok {
		cfg = *parent.cfg
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &executionContext{
		Context: ctx,
		cfg:     &cfg,
		logger:  cfg.logger,
	}
}

// asExecution converts any Context into the engine's implementation.
// Foreign implementations are wrapped with default options.
func asExecution(ctx Context) *executionContext {
	if ec, ok := ctx.(*executionContext); ok {
		return ec
	}
	return newRootContext(ctx)
}

// Logger returns the configured logger.
func (c *executionContext) Logger() *slog.Logger {
	return c.logger
}

// RunID returns the run identifier.
func (c *executionContext) RunID() string {
	if c.frame != nil {
		return c.frame.runID
	}
	return c.cfg.runID
}

// NodeID returns the current node identifier.
func (c *executionContext) NodeID() string {
	return c.nodeID
}

// Container returns the current container name.
func (c *executionContext) Container() string {
	return c.container
}

// Input returns the original arguments of the outermost invocation.
func (c *executionContext) Input() Args {
	if c.frame == nil {
		return Args{}
	}
	return c.frame.input
}

// Output returns a recorded node output.
func (c *executionContext) Output(name string) (any, bool) {
	if c.frame == nil {
		return nil, false
	}
	return c.frame.lookup(name)
}

// Cancel requests cancellation of the current invocation.
func (c *executionContext) Cancel() {
	if c.frame != nil && c.frame.cancel != nil {
		c.frame.cancel(ErrCancelled)
	}
}

// begin creates the frame for an outermost invocation.
func (c *executionContext) begin(args Args) *executionContext {
	runID := c.cfg.runID
	if runID == "" {
		runID = uuid.New().String()
	}
	ctx, cancel := context.WithCancelCause(c.Context)
	return &executionContext{
		Context: ctx,
		cfg:     c.cfg,
		frame: &frame{
			runID:   runID,
			input:   args,
			cfg:     c.cfg,
			cancel:  cancel,
			outputs: make(map[string]any),
		},
		logger: c.cfg.logger,
	}
}

// withNode returns a context for running nodeID inside container.
func (c *executionContext) withNode(ctx context.Context, container, nodeID string) *executionContext {
	return &executionContext{
		Context:   ctx,
		cfg:       c.cfg,
		frame:     c.frame,
		logger:    observability.EnrichLogger(c.cfg.logger, c.RunID(), container, nodeID),
		container: container,
		nodeID:    nodeID,
	}
}

// withContext returns a copy bound to ctx, used for branch cancellation
// and timeouts.
func (c *executionContext) withContext(ctx context.Context) *executionContext {
	cp := *c
	cp.Context = ctx
	return &cp
}
