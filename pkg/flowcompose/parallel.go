package flowcompose

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// GroupConfig controls how a parallel group runs. Zero fields inherit the
// engine defaults set with WithParallelMode, WithMaxConcurrency,
// WithFailFast and WithBranchTimeout.
type GroupConfig struct {
	// Mode is ModeSequential or ModeConcurrent.
	Mode Mode

	// MaxConcurrency limits concurrently running branches. 0 = inherit.
	MaxConcurrency int

	// FailFast cancels sibling branches when one fails (concurrent mode).
	// SwitchOff overrides an engine default of true.
	FailFast Switch

	// Timeout bounds the whole group. 0 = inherit.
	Timeout time.Duration
}

// Parallel runs its branches on copies of the same input and combines the
// outputs with an Aggregator. Outputs keep branch registration order in
// every mode.
//
// Example:
//
//	prl := flowcompose.NewParallel("retrievers", flowcompose.Sum)
//	prl.MustRegister("retriever1", byTitle)
//	prl.MustRegister("retriever2", byContent)
type Parallel struct {
	container
	agg    Aggregator
	config GroupConfig
}

// NewParallel creates a parallel group. A nil aggregator means Tuple.
// Any modules given are registered as anonymous branches in order.
func NewParallel(name string, agg Aggregator, modules ...Module) *Parallel {
	if name == "" {
		name = "parallel"
	}
	if agg == nil {
		agg = Tuple
	}
	g := &Parallel{agg: agg}
	g.init(name, true)
	for _, m := range modules {
		if _, err := g.register("", m, callerSite(1)); err != nil {
			g.deferErr(err)
		}
	}
	return g
}

// WithConfig sets the group's execution settings and returns g.
func (g *Parallel) WithConfig(cfg GroupConfig) *Parallel {
	g.config = cfg
	return g
}

// Sequential makes the group run branches one after another.
func (g *Parallel) Sequential() *Parallel {
	g.config.Mode = ModeSequential
	return g
}

// Concurrent makes the group run branches in goroutines.
func (g *Parallel) Concurrent() *Parallel {
	g.config.Mode = ModeConcurrent
	return g
}

// Aggregator returns the group's aggregator.
func (g *Parallel) Aggregator() Aggregator {
	return g.agg
}

// Register appends a branch. Branches must not read each other's outputs.
func (g *Parallel) Register(name string, m Module) (*Node, error) {
	return g.register(name, m, callerSite(1))
}

// MustRegister is like Register but panics on error.
func (g *Parallel) MustRegister(name string, m Module) *Node {
	n, err := g.register(name, m, callerSite(1))
	if err != nil {
		panic(err)
	}
	return n
}

// Add registers a branch and returns g for chaining. The first error is
// reported by Compile.
func (g *Parallel) Add(name string, m Module) *Parallel {
	if _, err := g.register(name, m, callerSite(1)); err != nil {
		g.deferErr(err)
	}
	return g
}

// Compile freezes the group and validates it as an outermost container.
func (g *Parallel) Compile() error {
	if err := g.freeze(); err != nil {
		return err
	}
	return g.checkUnknown()
}

// Invoke runs every branch and aggregates the outputs.
func (g *Parallel) Invoke(ctx Context, args Args) (any, error) {
	return enter(ctx, &g.container, g.freeze, g.run, args)
}

// Run invokes the group with positional args as an outermost invocation.
func (g *Parallel) Run(ctx context.Context, args ...any) (any, error) {
	return RunArgs(ctx, g, Pack(args...))
}

func (g *Parallel) freeze() error {
	return g.freezeWith(func() ([]string, error) {
		free, err := g.scope()
		if v, ok := g.agg.(branchValidator); ok {
			err = errors.Join(err, v.validate(g.name, g.nodes.Values()))
		}
		return free, err
	})
}

func (g *Parallel) definedNames() []string {
	return namesIn(g.nodes.Values())
}

// scope returns the union of the branches' free references. A branch
// reading a name defined by itself or a sibling is rejected.
func (g *Parallel) scope() ([]string, error) {
	branches := g.nodes.Values()
	owner := make(map[string]int)
	for i, b := range branches {
		for _, name := range namesIn([]*Node{b}) {
			owner[name] = i
		}
	}

	var free []string
	var errs []error
	if err := shadowedNames(g.name, branches); err != nil {
		errs = append(errs, err)
	}
	for _, b := range branches {
		for _, ref := range referencesOf(b.Module) {
			if _, ok := owner[ref]; ok {
				errs = append(errs, &ConstructionError{
					Container: g.name,
					Node:      b.ID(),
					Err:       fmt.Errorf("%w: reads branch output %q of the same group", ErrForwardReference, ref),
				})
				continue
			}
			free = appendUnique(free, ref)
		}
	}
	return free, errors.Join(errs...)
}

// effective resolves inherited settings against the run configuration.
func (g *Parallel) effective(cfg *runConfig) GroupConfig {
	out := g.config
	if out.Mode == ModeInherit {
		out.Mode = cfg.mode
	}
	if out.MaxConcurrency == 0 {
		out.MaxConcurrency = cfg.maxConcurrency
	}
	if out.FailFast == SwitchInherit {
		out.FailFast = SwitchOf(cfg.failFast)
	}
	if out.Timeout == 0 {
		out.Timeout = cfg.branchTimeout
	}
	return out
}
