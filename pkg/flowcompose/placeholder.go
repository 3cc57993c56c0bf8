package flowcompose

import "fmt"

// PlaceholderKind identifies what a Placeholder resolves to.
type PlaceholderKind int

const (
	// KindInput resolves to the outermost invocation's original input.
	KindInput PlaceholderKind = iota
	// KindOutput resolves to a named node's output in the current invocation.
	KindOutput
	// KindUpstream resolves to the arguments the bound node itself received.
	KindUpstream
)

// String implements fmt.Stringer.
func (k PlaceholderKind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindOutput:
		return "output"
	case KindUpstream:
		return "upstream"
	default:
		return fmt.Sprintf("PlaceholderKind(%d)", int(k))
	}
}

// Placeholder is a symbolic reference resolved when the bound node runs.
// It never holds a value; every invocation resolves it afresh.
type Placeholder struct {
	kind  PlaceholderKind
	name  string
	index int
}

// Input refers to the original input of the outermost invocation. A single
// positional input with no keywords resolves to the value itself, anything
// else to the full Args.
func Input() Placeholder {
	return Placeholder{kind: KindInput, index: -1}
}

// InputAt refers to positional value i of the original input.
func InputAt(i int) Placeholder {
	return Placeholder{kind: KindInput, index: i}
}

// Output refers to the output of the node registered under name.
func Output(name string) Placeholder {
	return Placeholder{kind: KindOutput, name: name, index: -1}
}

// Upstream refers to the input the bound node received from its predecessor.
func Upstream() Placeholder {
	return Placeholder{kind: KindUpstream, index: -1}
}

// UpstreamAt refers to positional value i of the predecessor's output.
func UpstreamAt(i int) Placeholder {
	return Placeholder{kind: KindUpstream, index: i}
}

// Kind returns the placeholder kind.
func (p Placeholder) Kind() PlaceholderKind { return p.kind }

// Name returns the referenced node name for output placeholders.
func (p Placeholder) Name() string { return p.name }

// Index returns the positional index, or -1 for the whole value.
func (p Placeholder) Index() int { return p.index }

// String implements fmt.Stringer.
func (p Placeholder) String() string {
	switch {
	case p.kind == KindOutput:
		return fmt.Sprintf("output(%q)", p.name)
	case p.index >= 0:
		return fmt.Sprintf("%s[%d]", p.kind, p.index)
	default:
		return p.kind.String()
	}
}

// Resolve returns the current value of p.
func (p Placeholder) Resolve(ctx Context, upstream Args) (any, error) {
	switch p.kind {
	case KindInput:
		return p.pick(ctx.Input(), "original input")
	case KindUpstream:
		return p.pick(upstream, "upstream input")
	case KindOutput:
		v, ok := ctx.Output(p.name)
		if !ok {
			return nil, &UnresolvedReferenceError{Name: p.name, Index: -1, Reason: "not produced yet in this invocation"}
		}
		return v, nil
	default:
		return nil, &UnresolvedReferenceError{Index: -1, Reason: "unknown placeholder kind " + p.kind.String()}
	}
}

func (p Placeholder) pick(args Args, what string) (any, error) {
	if p.index < 0 {
		return args.Value(), nil
	}
	v, ok := args.At(p.index)
	if !ok {
		return nil, &UnresolvedReferenceError{
			Index:  p.index,
			Reason: fmt.Sprintf("%s has %d positional values", what, args.Len()),
		}
	}
	return v, nil
}
