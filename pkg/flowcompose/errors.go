package flowcompose

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph construction.
var (
	// ErrConstruction is matched by every ConstructionError.
	ErrConstruction = errors.New("graph construction failed")

	// ErrDuplicateName indicates two nodes in one container share a name.
	ErrDuplicateName = errors.New("duplicate node name")

	// ErrInvalidName indicates a node name contains whitespace.
	ErrInvalidName = errors.New("invalid node name")

	// ErrNilModule indicates a nil module was registered or wrapped.
	ErrNilModule = errors.New("module cannot be nil")

	// ErrForwardReference indicates a node binds to the output of a node
	// registered after it (or of itself, or of a sibling parallel branch).
	ErrForwardReference = errors.New("forward reference")

	// ErrUnknownReference indicates a bound output name is defined nowhere
	// in the graph being invoked.
	ErrUnknownReference = errors.New("reference to unknown node")

	// ErrEmptyContainer indicates a pipeline or parallel group has no nodes.
	ErrEmptyContainer = errors.New("container has no nodes")

	// ErrFrozen indicates registration after the graph was compiled.
	ErrFrozen = errors.New("graph is frozen")

	// ErrNameNotFound indicates Get was called with an unregistered name.
	ErrNameNotFound = errors.New("node name not found")

	// ErrMissingName indicates a named aggregation over an unnamed branch.
	ErrMissingName = errors.New("branch has no name")
)

// Sentinel errors for execution.
var (
	// ErrNilContext indicates Invoke was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrUnresolvedReference indicates a placeholder had no value to resolve to.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrCancelled is matched by every CancelledError.
	ErrCancelled = errors.New("invocation cancelled")

	// ErrNotStarted indicates an Action was invoked before Start.
	ErrNotStarted = errors.New("action not started")

	// ErrStopped indicates an Action was invoked after Stop.
	ErrStopped = errors.New("action stopped")

	// ErrAggregation indicates branch outputs could not be combined.
	ErrAggregation = errors.New("aggregation failed")

	// ErrBadArgument indicates a node received arguments of the wrong shape.
	ErrBadArgument = errors.New("bad argument")
)

// engineError marks errors produced by the engine itself. They pass through
// enclosing containers without being wrapped again.
type engineError interface {
	error
	engine()
}

// ConstructionError reports an invalid graph shape. It is returned at
// registration or compile time, never after a node has run.
type ConstructionError struct {
	// Container is the pipeline or group being built.
	Container string
	// Node is the offending node name or position label, if any.
	Node string
	// Err is the specific cause (ErrDuplicateName, ErrForwardReference, ...).
	Err error
}

// Error implements the error interface.
func (e *ConstructionError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("construct %s: node %s: %v", e.Container, e.Node, e.Err)
	}
	return fmt.Sprintf("construct %s: %v", e.Container, e.Err)
}

// Unwrap returns ErrConstruction and the cause.
func (e *ConstructionError) Unwrap() []error {
	return []error{ErrConstruction, e.Err}
}

func (e *ConstructionError) engine() {}

// FrozenGraphError reports a registration attempted after compilation.
type FrozenGraphError struct {
	Container string
	Node      string
}

// Error implements the error interface.
func (e *FrozenGraphError) Error() string {
	return fmt.Sprintf("register %q in %s: %v", e.Node, e.Container, ErrFrozen)
}

// Unwrap returns ErrFrozen and ErrConstruction.
func (e *FrozenGraphError) Unwrap() []error {
	return []error{ErrFrozen, ErrConstruction}
}

// NameNotFoundError reports a lookup of an unregistered node name.
type NameNotFoundError struct {
	Container string
	Name      string
}

// Error implements the error interface.
func (e *NameNotFoundError) Error() string {
	return fmt.Sprintf("%s: %q: %v", e.Container, e.Name, ErrNameNotFound)
}

// Unwrap returns ErrNameNotFound.
func (e *NameNotFoundError) Unwrap() error {
	return ErrNameNotFound
}

// UnresolvedReferenceError reports a placeholder that had nothing to
// resolve to in the current invocation.
type UnresolvedReferenceError struct {
	// Name is the referenced node name for output placeholders.
	Name string
	// Index is the positional index for indexed placeholders, -1 otherwise.
	Index int
	// Reason explains what was missing.
	Reason string
}

// Error implements the error interface.
func (e *UnresolvedReferenceError) Error() string {
	switch {
	case e.Name != "":
		return fmt.Sprintf("%v: output %q: %s", ErrUnresolvedReference, e.Name, e.Reason)
	case e.Index >= 0:
		return fmt.Sprintf("%v: index %d: %s", ErrUnresolvedReference, e.Index, e.Reason)
	default:
		return fmt.Sprintf("%v: %s", ErrUnresolvedReference, e.Reason)
	}
}

// Unwrap returns ErrUnresolvedReference.
func (e *UnresolvedReferenceError) Unwrap() error {
	return ErrUnresolvedReference
}

// MissingNameError reports an unnamed branch in a group whose aggregation
// keys outputs by branch name.
type MissingNameError struct {
	Group    string
	Position int
}

// Error implements the error interface.
func (e *MissingNameError) Error() string {
	return fmt.Sprintf("group %s: branch %d: %v", e.Group, e.Position, ErrMissingName)
}

// Unwrap returns ErrMissingName.
func (e *MissingNameError) Unwrap() error {
	return ErrMissingName
}

// NotStartedError reports an Action invoked outside its started state.
type NotStartedError struct {
	// Stopped is true if Stop was called after Start.
	Stopped bool
}

// Error implements the error interface.
func (e *NotStartedError) Error() string {
	if e.Stopped {
		return ErrStopped.Error()
	}
	return ErrNotStarted.Error()
}

// Unwrap returns ErrNotStarted, plus ErrStopped after Stop.
func (e *NotStartedError) Unwrap() []error {
	if e.Stopped {
		return []error{ErrNotStarted, ErrStopped}
	}
	return []error{ErrNotStarted}
}

func (e *NotStartedError) engine() {}

// CancelledError reports cancellation observed before a node was dispatched.
type CancelledError struct {
	// Container is where cancellation was observed.
	Container string
	// NodeID is the node that was about to run.
	NodeID string
	// Cause is the context cause (context.Canceled, context.DeadlineExceeded, ...).
	Cause error
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	return fmt.Sprintf("cancelled before node %s in %s: %v", e.NodeID, e.Container, e.Cause)
}

// Unwrap returns ErrCancelled and the cause.
func (e *CancelledError) Unwrap() []error {
	if e.Cause == nil || errors.Is(e.Cause, ErrCancelled) {
		return []error{ErrCancelled}
	}
	return []error{ErrCancelled, e.Cause}
}

func (e *CancelledError) engine() {}

// NodeError wraps an error returned by a node's module.
type NodeError struct {
	// Container is the pipeline or group the node belongs to.
	Container string
	// NodeID is the node name, or its position label if unnamed.
	NodeID string
	// Op is the operation that failed ("invoke", or "resolve" when a placeholder cannot be resolved).
	Op string
	// Err is the error from the module.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s in %s: %s: %v", e.NodeID, e.Container, e.Op, e.Err)
}

// Unwrap returns the module's error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

func (e *NodeError) engine() {}

// PanicError captures a panic raised by a node's module.
type PanicError struct {
	Container string
	NodeID    string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s in %s panicked: %v", e.NodeID, e.Container, e.Value)
}

func (e *PanicError) engine() {}

// BranchError reports the failure that aborted a parallel group.
type BranchError struct {
	Group  string
	Branch string
	Err    error
}

// Error implements the error interface.
func (e *BranchError) Error() string {
	return fmt.Sprintf("parallel %s: branch %s: %v", e.Group, e.Branch, e.Err)
}

// Unwrap returns the branch's error.
func (e *BranchError) Unwrap() error {
	return e.Err
}

func (e *BranchError) engine() {}

// AggregationError reports branch outputs the aggregator could not combine.
type AggregationError struct {
	Group string
	Err   error
}

// Error implements the error interface.
func (e *AggregationError) Error() string {
	return fmt.Sprintf("parallel %s: %v: %v", e.Group, ErrAggregation, e.Err)
}

// Unwrap returns ErrAggregation and the cause.
func (e *AggregationError) Unwrap() []error {
	return []error{ErrAggregation, e.Err}
}

func (e *AggregationError) engine() {}

// LifecycleError reports a Start or Stop failure of a wrapped module.
type LifecycleError struct {
	Op     string
	Module string
	Err    error
}

// Error implements the error interface.
func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Module, e.Err)
}

// Unwrap returns the module's error.
func (e *LifecycleError) Unwrap() error {
	return e.Err
}

// isEngineError reports whether err already carries engine context.
func isEngineError(err error) bool {
	var ee engineError
	return errors.As(err, &ee)
}
