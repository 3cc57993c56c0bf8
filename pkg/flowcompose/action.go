package flowcompose

import (
	"context"
	"errors"
	"sync"

	"github.com/randalmurphal/flowcompose/pkg/flowcompose/observability"
)

type actionState int

const (
	actionIdle actionState = iota
	actionStarted
	actionStopped
)

// Action wraps a composed graph as a single unit with a lifecycle.
// Start prepares every module in the graph that implements Starter, Stop
// releases every module that implements Stopper, and Invoke runs the graph
// as an outermost invocation with the action's options.
//
// Action is itself a Module and may be nested inside another graph, where
// it shares the enclosing invocation.
type Action struct {
	name   string
	module Module
	opts   []Option
	cfg    runConfig

	lifecycle sync.Mutex // serializes Start and Stop
	started   []Module

	mu       sync.RWMutex
	state    actionState
	inflight sync.WaitGroup
}

// NewAction compiles m and wraps it. Options apply to every invocation.
func NewAction(m Module, opts ...Option) (*Action, error) {
	if m == nil {
		return nil, &ConstructionError{Container: "action", Err: ErrNilModule}
	}
	if err := freezeModule(m); err != nil {
		return nil, err
	}
	name := moduleLabel(m)
	if err := unknownRefs(name, referencesOf(m)); err != nil {
		return nil, err
	}
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Action{name: name, module: m, opts: opts, cfg: cfg}, nil
}

// Name returns the name of the wrapped module.
func (a *Action) Name() string {
	return a.name
}

// Unwrap returns the wrapped module.
func (a *Action) Unwrap() Module {
	return a.module
}

// Started reports whether the action accepts invocations.
func (a *Action) Started() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state == actionStarted
}

// Start calls Start on every Starter in the graph, in registration order.
// It is a no-op if already started. If a module fails to start, modules
// already started are stopped and the error is returned.
func (a *Action) Start(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	if a.Started() {
		return nil
	}

	logger := a.cfg.logger
	a.started = a.started[:0]
	for _, m := range lifecycleModules(a.module) {
		s, ok := m.(Starter)
		if !ok {
			if _, stoppable := m.(Stopper); stoppable {
				a.started = append(a.started, m)
			}
			continue
		}
		err := s.Start(ctx)
		observability.LogLifecycle(logger, "start", moduleLabel(m), err)
		if err != nil {
			startErr := &LifecycleError{Op: "start", Module: moduleLabel(m), Err: err}
			return errors.Join(startErr, a.stopStarted(ctx))
		}
		a.started = append(a.started, m)
	}

	a.mu.Lock()
	a.state = actionStarted
	a.mu.Unlock()
	return nil
}

// Stop calls Stop on every Stopper in the graph in reverse start order and
// returns the joined errors. It is a no-op unless started.
//
// New invocations are rejected as soon as Stop begins. Invocations already
// running finish before any module is stopped, so Stop must not be called
// from inside the action's own graph.
func (a *Action) Stop(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.mu.Lock()
	if a.state != actionStarted {
		a.mu.Unlock()
		return nil
	}
	a.state = actionStopped
	a.mu.Unlock()

	a.inflight.Wait()
	return a.stopStarted(ctx)
}

// stopStarted stops recorded modules in reverse order. Caller holds a.lifecycle.
func (a *Action) stopStarted(ctx context.Context) error {
	var errs []error
	for i := len(a.started) - 1; i >= 0; i-- {
		m := a.started[i]
		s, ok := m.(Stopper)
		if !ok {
			continue
		}
		err := s.Stop(ctx)
		observability.LogLifecycle(a.cfg.logger, "stop", moduleLabel(m), err)
		if err != nil {
			errs = append(errs, &LifecycleError{Op: "stop", Module: moduleLabel(m), Err: err})
		}
	}
	a.started = a.started[:0]
	return errors.Join(errs...)
}

// Invoke runs the wrapped graph. Outside an invocation it starts a new one
// configured with the action's options; nested in another graph it shares
// the caller's invocation.
func (a *Action) Invoke(ctx Context, args Args) (any, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := a.acquire(); err != nil {
		return nil, err
	}
	defer a.inflight.Done()
	ec := asExecution(ctx)
	if ec.frame != nil {
		return a.module.Invoke(ec, args)
	}
	return a.invokeRoot(ec, args)
}

// Call runs the graph with positional args.
//
// Example:
//
//	act, _ := flowcompose.NewAction(ppl, flowcompose.WithLogger(logger))
//	_ = act.Start(ctx)
//	defer act.Stop(ctx)
//	answer, err := act.Call(ctx, "what is a pipeline?")
func (a *Action) Call(ctx context.Context, args ...any) (any, error) {
	return a.CallArgs(ctx, Pack(args...))
}

// CallArgs runs the graph with args.
func (a *Action) CallArgs(ctx context.Context, args Args) (any, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := a.acquire(); err != nil {
		return nil, err
	}
	defer a.inflight.Done()
	return a.invokeRoot(newRootContext(ctx), args)
}

func (a *Action) invokeRoot(ec *executionContext, args Args) (any, error) {
	root := newRootContext(ec, a.opts...)
	if _, ok := a.module.(scoped); ok {
		return a.module.Invoke(root, args)
	}
	node := &Node{Module: a.module}
	return root.runRoot(a.name, args, func(ec *executionContext, args Args) (any, error) {
		return ec.invokeNode(a.name, node, args)
	})
}

// acquire registers an invocation, failing unless the action is started.
// The caller must call a.inflight.Done when the invocation returns.
func (a *Action) acquire() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	switch a.state {
	case actionStarted:
		a.inflight.Add(1)
		return nil
	case actionStopped:
		return &NotStartedError{Stopped: true}
	default:
		return &NotStartedError{}
	}
}
