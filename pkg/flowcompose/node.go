package flowcompose

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/randalmurphal/flowcompose/pkg/flowcompose/registry"
)

// Status is the lifecycle state of a container or of one invocation.
type Status int32

const (
	// StatusBuilding means nodes may still be registered.
	StatusBuilding Status = iota
	// StatusReady means the container is frozen and valid.
	StatusReady
	// StatusRunning means an invocation is in progress.
	StatusRunning
	// StatusCompleted means the last invocation succeeded.
	StatusCompleted
	// StatusFailed means the last invocation returned an error.
	StatusFailed
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusBuilding:
		return "building"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "Status(" + strconv.Itoa(int(s)) + ")"
	}
}

// Node is a module registered in a container.
type Node struct {
	// Name is the registered name, "" for anonymous nodes.
	Name string
	// Module is the registered module.
	Module Module
	// Position is the registration index within the container.
	Position int
	// Source is the file:line the node was registered at.
	Source string
}

// ID returns the name, or a position label for anonymous nodes.
func (n *Node) ID() string {
	if n.Name != "" {
		return n.Name
	}
	return "#" + strconv.Itoa(n.Position)
}

// Stats counts invocations of a container.
type Stats struct {
	Running   int64
	Completed int64
	Failed    int64
}

// Referencer is implemented by modules that read other nodes' outputs.
// The engine uses it to reject forward and unknown references before
// anything runs.
type Referencer interface {
	References() []string
}

// scoped is implemented by containers. scope returns the output names read
// inside the container but not defined there, and any ordering violation.
type scoped interface {
	scope() ([]string, error)
	definedNames() []string
	freeze() error
}

// container holds the registration and status bookkeeping shared by
// Pipeline and Parallel.
type container struct {
	name  string
	nodes *registry.Registry[*Node]

	// siblingRefs rejects a new node that reads outputs of nodes already
	// registered, as parallel branches must not read each other.
	siblingRefs bool

	status    atomic.Int32
	last      atomic.Int32
	running   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	mu       sync.Mutex
	deferred error

	once      sync.Once
	freezeErr error
	free      []string
}

func (c *container) init(name string, siblingRefs bool) {
	c.name = name
	c.nodes = registry.New[*Node]()
	c.siblingRefs = siblingRefs
}

// Name returns the container name.
func (c *container) Name() string {
	return c.name
}

// Status returns StatusBuilding until the container is compiled, then
// StatusReady.
func (c *container) Status() Status {
	return Status(c.status.Load())
}

// LastStatus returns the status of the most recently finished or started
// invocation, or Status() if it never ran.
func (c *container) LastStatus() Status {
	if s := Status(c.last.Load()); s != StatusBuilding {
		return s
	}
	return c.Status()
}

// Stats returns invocation counters.
func (c *container) Stats() Stats {
	return Stats{
		Running:   c.running.Load(),
		Completed: c.completed.Load(),
		Failed:    c.failed.Load(),
	}
}

// Len returns the number of registered nodes.
func (c *container) Len() int {
	return c.nodes.Len()
}

// Names returns the names of named nodes in registration order.
func (c *container) Names() []string {
	return c.nodes.Names()
}

// Nodes returns the registered nodes in order.
func (c *container) Nodes() []*Node {
	return c.nodes.Values()
}

// Get returns the node registered under name.
func (c *container) Get(name string) (*Node, error) {
	n, err := c.nodes.Get(name)
	if err != nil {
		return nil, &NameNotFoundError{Container: c.name, Name: name}
	}
	return n, nil
}

// Frozen reports whether the container has been compiled.
func (c *container) Frozen() bool {
	return c.nodes.Frozen()
}

func (c *container) register(name string, m Module, source string) (*Node, error) {
	if m == nil {
		return nil, &ConstructionError{Container: c.name, Node: name, Err: ErrNilModule}
	}
	if strings.ContainsFunc(name, unicode.IsSpace) {
		return nil, &ConstructionError{Container: c.name, Node: name, Err: fmt.Errorf("%w: %q contains whitespace", ErrInvalidName, name)}
	}
	if c.nodes.Frozen() {
		return nil, &FrozenGraphError{Container: c.name, Node: name}
	}
	if err := c.checkNewNode(name, m); err != nil {
		return nil, err
	}

	node := &Node{Name: name, Module: m, Source: source}
	pos, err := c.nodes.Register(name, node)
	switch {
	case errors.Is(err, registry.ErrDuplicate):
		return nil, &ConstructionError{Container: c.name, Node: name, Err: ErrDuplicateName}
	case errors.Is(err, registry.ErrFrozen):
		return nil, &FrozenGraphError{Container: c.name, Node: name}
	case err != nil:
		return nil, &ConstructionError{Container: c.name, Node: name, Err: err}
	}
	node.Position = pos
	return node, nil
}

// checkNewNode rejects references that can already be seen to point the
// wrong way: an earlier node reading the new name, the new node reading
// itself, or (for groups) the new branch reading an existing sibling.
func (c *container) checkNewNode(name string, m Module) error {
	newRefs := referencesOf(m)
	if name != "" && slices.Contains(newRefs, name) {
		return &ConstructionError{Container: c.name, Node: name, Err: fmt.Errorf("%w: reads its own output", ErrForwardReference)}
	}
	newNames := definedNames(m)
	if name != "" {
		newNames = append(newNames, name)
	}
	if err := c.checkShadowing(name, newNames); err != nil {
		return err
	}
	for _, existing := range c.nodes.Values() {
		for _, r := range referencesOf(existing.Module) {
			if slices.Contains(newNames, r) {
				return &ConstructionError{
					Container: c.name,
					Node:      existing.ID(),
					Err:       fmt.Errorf("%w: reads %q registered after it", ErrForwardReference, r),
				}
			}
		}
		if !c.siblingRefs {
			continue
		}
		siblings := append(definedNames(existing.Module), existing.Name)
		for _, r := range newRefs {
			if slices.Contains(siblings, r) {
				return &ConstructionError{
					Container: c.name,
					Node:      name,
					Err:       fmt.Errorf("%w: reads sibling branch output %q", ErrForwardReference, r),
				}
			}
		}
	}
	return nil
}

// checkShadowing rejects a new name already defined at another level of
// the graph. A direct duplicate is left to the registry.
func (c *container) checkShadowing(name string, newNames []string) error {
	if name != "" && c.nodes.Has(name) {
		return nil
	}
	taken := namesIn(c.nodes.Values())
	for i, n := range newNames {
		if slices.Contains(taken, n) || slices.Contains(newNames[:i], n) {
			return shadowError(c.name, name, n)
		}
	}
	return nil
}

// shadowedNames reports names defined by more than one node of a container,
// counting the names inside nested containers. Outputs of one invocation
// share a single namespace. Repeats inside a single nested container are
// reported when that container compiles.
func shadowedNames(container string, nodes []*Node) error {
	owner := make(map[string]int)
	var errs []error
	for i, n := range nodes {
		if n.Name != "" && slices.Contains(definedNames(n.Module), n.Name) {
			errs = append(errs, shadowError(container, n.ID(), n.Name))
		}
		for _, name := range appendUnique(nil, namesIn([]*Node{n})...) {
			if j, ok := owner[name]; ok && j != i {
				errs = append(errs, shadowError(container, n.ID(), name))
				continue
			}
			owner[name] = i
		}
	}
	return errors.Join(errs...)
}

func shadowError(container, node, name string) error {
	return &ConstructionError{
		Container: container,
		Node:      node,
		Err:       fmt.Errorf("%w: %q is already defined at another level", ErrDuplicateName, name),
	}
}

// deferErr keeps the first error of a chained Add call for Compile.
func (c *container) deferErr(err error) {
	c.mu.Lock()
	if c.deferred == nil {
		c.deferred = err
	}
	c.mu.Unlock()
}

func (c *container) deferredErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deferred
}

// freezeWith freezes the registry once and records the validation result.
func (c *container) freezeWith(validate func() ([]string, error)) error {
	c.once.Do(func() {
		c.nodes.Freeze()
		var errs []error
		if err := c.deferredErr(); err != nil {
			errs = append(errs, err)
		}
		if c.nodes.Len() == 0 {
			errs = append(errs, &ConstructionError{Container: c.name, Err: ErrEmptyContainer})
		}
		for _, n := range c.nodes.Values() {
			if err := freezeModule(n.Module); err != nil {
				errs = append(errs, err)
			}
		}
		free, err := validate()
		if err != nil {
			errs = append(errs, err)
		}
		c.free = free
		c.freezeErr = errors.Join(errs...)
		if c.freezeErr == nil {
			c.status.Store(int32(StatusReady))
		}
	})
	return c.freezeErr
}

// checkUnknown fails if an outermost container still has unresolved names.
func (c *container) checkUnknown() error {
	return unknownRefs(c.name, c.free)
}

func unknownRefs(container string, refs []string) error {
	if len(refs) == 0 {
		return nil
	}
	quoted := make([]string, len(refs))
	for i, name := range refs {
		quoted[i] = strconv.Quote(name)
	}
	return &ConstructionError{
		Container: container,
		Err:       fmt.Errorf("%w: %s", ErrUnknownReference, strings.Join(quoted, ", ")),
	}
}

func (c *container) begin() {
	c.running.Add(1)
	c.last.Store(int32(StatusRunning))
}

func (c *container) finish(err error) {
	c.running.Add(-1)
	if err != nil {
		c.failed.Add(1)
		c.last.Store(int32(StatusFailed))
		return
	}
	c.completed.Add(1)
	c.last.Store(int32(StatusCompleted))
}

// referencesOf returns the output names m reads but does not define.
func referencesOf(m Module) []string {
	if s, ok := m.(scoped); ok {
		free, _ := s.scope()
		return free
	}
	var refs []string
	if r, ok := m.(Referencer); ok {
		refs = appendUnique(refs, r.References()...)
	}
	if u, ok := m.(Unwrapper); ok && u.Unwrap() != nil {
		refs = appendUnique(refs, referencesOf(u.Unwrap())...)
	}
	return refs
}

// definedNames returns every node name registered inside m.
func definedNames(m Module) []string {
	if s, ok := m.(scoped); ok {
		return s.definedNames()
	}
	if u, ok := m.(Unwrapper); ok && u.Unwrap() != nil {
		return definedNames(u.Unwrap())
	}
	return nil
}

// freezeModule compiles nested containers.
func freezeModule(m Module) error {
	if s, ok := m.(scoped); ok {
		return s.freeze()
	}
	if u, ok := m.(Unwrapper); ok && u.Unwrap() != nil {
		return freezeModule(u.Unwrap())
	}
	return nil
}

// namesIn collects the names defined by nodes and their nested containers.
func namesIn(nodes []*Node) []string {
	var names []string
	for _, n := range nodes {
		if n.Name != "" {
			names = append(names, n.Name)
		}
		names = append(names, definedNames(n.Module)...)
	}
	return names
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}

// callerSite returns the file:line skip frames above its caller.
func callerSite(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return ""
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}
