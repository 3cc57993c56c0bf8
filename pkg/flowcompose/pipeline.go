package flowcompose

import (
	"context"
	"errors"
	"fmt"
)

// Pipeline runs its nodes one after another, feeding each node's output to
// the next. The output of the last node is the pipeline's output.
//
// Build a pipeline with Register (or Add for chaining), then Compile it.
// Compile is implicit on the first Invoke. After that the pipeline is
// frozen and safe for concurrent invocations.
//
// Example:
//
//	ppl := flowcompose.NewPipeline("rag")
//	ppl.MustRegister("retriever", retriever)
//	ppl.MustRegister("reranker", flowcompose.Bind(reranker, flowcompose.Kw("query", flowcompose.Input())))
//	ppl.MustRegister("llm", llm)
//	out, err := ppl.Run(ctx, "what is a pipeline?")
type Pipeline struct {
	container
}

// NewPipeline creates a pipeline. Any modules given are registered as
// anonymous nodes in order.
func NewPipeline(name string, modules ...Module) *Pipeline {
	if name == "" {
		name = "pipeline"
	}
	p := &Pipeline{}
	p.init(name, false)
	for _, m := range modules {
		if _, err := p.register("", m, callerSite(1)); err != nil {
			p.deferErr(err)
		}
	}
	return p
}

// Register appends a node. An empty name registers an anonymous node.
//
// Returns a ConstructionError for a duplicate name, a nil module, or a
// reference that would point forward, and a FrozenGraphError after Compile.
func (p *Pipeline) Register(name string, m Module) (*Node, error) {
	return p.register(name, m, callerSite(1))
}

// MustRegister is like Register but panics on error.
func (p *Pipeline) MustRegister(name string, m Module) *Node {
	n, err := p.register(name, m, callerSite(1))
	if err != nil {
		panic(err)
	}
	return n
}

// Add registers a node and returns p for chaining. The first error is
// reported by Compile.
func (p *Pipeline) Add(name string, m Module) *Pipeline {
	if _, err := p.register(name, m, callerSite(1)); err != nil {
		p.deferErr(err)
	}
	return p
}

// Compile freezes the pipeline and every nested container, and validates
// the graph as an outermost pipeline. All problems are returned joined.
func (p *Pipeline) Compile() error {
	if err := p.freeze(); err != nil {
		return err
	}
	return p.checkUnknown()
}

// Invoke runs the nodes in order.
//
// Called with a Context that is not inside an invocation, Invoke starts an
// outermost invocation whose original input is args. Inside another
// container it shares the caller's invocation.
func (p *Pipeline) Invoke(ctx Context, args Args) (any, error) {
	return enter(ctx, &p.container, p.freeze, p.run, args)
}

// Run invokes the pipeline with positional args as an outermost invocation.
func (p *Pipeline) Run(ctx context.Context, args ...any) (any, error) {
	return RunArgs(ctx, p, Pack(args...))
}

func (p *Pipeline) run(ec *executionContext, args Args) (any, error) {
	current := args
	var last any
	for _, n := range p.nodes.Values() {
		out, err := ec.invokeNode(p.name, n, current)
		if err != nil {
			return nil, err
		}
		if n.Name != "" {
			ec.frame.record(n.Name, out)
		}
		last = out
		current = argsOf(out)
	}
	return last, nil
}

func (p *Pipeline) freeze() error {
	return p.freezeWith(p.scope)
}

func (p *Pipeline) definedNames() []string {
	return namesIn(p.nodes.Values())
}

// scope walks nodes in order. A reference to a name defined by an earlier
// node is satisfied, one defined by the node itself or a later node is a
// forward reference, and anything else is left for an enclosing container.
func (p *Pipeline) scope() ([]string, error) {
	nodes := p.nodes.Values()
	definedAt := make(map[string]int)
	for i, n := range nodes {
		for _, name := range namesIn([]*Node{n}) {
			if _, seen := definedAt[name]; !seen {
				definedAt[name] = i
			}
		}
	}

	var free []string
	var errs []error
	if err := shadowedNames(p.name, nodes); err != nil {
		errs = append(errs, err)
	}
	for i, n := range nodes {
		for _, ref := range referencesOf(n.Module) {
			j, ok := definedAt[ref]
			switch {
			case ok && j < i:
			case ok:
				errs = append(errs, &ConstructionError{
					Container: p.name,
					Node:      n.ID(),
					Err:       fmt.Errorf("%w: reads %q registered at or after it", ErrForwardReference, ref),
				})
			default:
				free = appendUnique(free, ref)
			}
		}
	}
	return free, errors.Join(errs...)
}
