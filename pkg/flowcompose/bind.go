package flowcompose

import "slices"

// Keyword is a named slot of a bind expression.
type Keyword struct {
	Key   string
	Value any
}

// Kw builds a keyword slot. The value may be a literal or a Placeholder.
func Kw(key string, value any) Keyword {
	return Keyword{Key: key, Value: value}
}

// BindExpr wraps a module with argument slots that are resolved each time
// the expression is invoked. It has no side effects of its own.
type BindExpr struct {
	module Module
	pos    []any
	kw     []Keyword
	hasPos bool
}

// Bind attaches argument slots to m. Keyword values become keyword slots;
// every other value is a positional slot. Slots may be literals or
// Placeholders.
//
// When no positional slot is given, the node's upstream positional values
// are passed first. Upstream keyword values are always passed, with
// explicit keyword slots taking precedence.
//
// Example:
//
//	ppl.MustRegister("formatter", flowcompose.Bind(formatter,
//	    flowcompose.Output("reranker"),
//	    flowcompose.Kw("query", flowcompose.Input())))
func Bind(m Module, slots ...any) *BindExpr {
	b := &BindExpr{module: m}
	for _, s := range slots {
		switch v := s.(type) {
		case Keyword:
			b.kw = append(b.kw, v)
		case *Keyword:
			b.kw = append(b.kw, *v)
		default:
			b.pos = append(b.pos, v)
			b.hasPos = true
		}
	}
	return b
}

// Unwrap returns the bound module.
func (b *BindExpr) Unwrap() Module {
	return b.module
}

// Invoke resolves every slot against ctx and calls the bound module with
// the resolved arguments.
func (b *BindExpr) Invoke(ctx Context, upstream Args) (any, error) {
	if b.module == nil {
		return nil, ErrNilModule
	}
	args, err := b.Resolve(ctx, upstream)
	if err != nil {
		return nil, err
	}
	return b.module.Invoke(ctx, args)
}

// Resolve computes the arguments the bound module would receive.
func (b *BindExpr) Resolve(ctx Context, upstream Args) (Args, error) {
	var out Args
	if b.hasPos {
		out.Pos = make([]any, 0, len(b.pos))
		for _, slot := range b.pos {
			v, err := resolveSlot(ctx, slot, upstream)
			if err != nil {
				return Args{}, err
			}
			out.Pos = append(out.Pos, v)
		}
	} else {
		out.Pos = slices.Clone(upstream.Pos)
	}

	if len(upstream.Kw) > 0 || len(b.kw) > 0 {
		out.Kw = make(map[string]any, len(upstream.Kw)+len(b.kw))
		for k, v := range upstream.Kw {
			out.Kw[k] = v
		}
		for _, kw := range b.kw {
			v, err := resolveSlot(ctx, kw.Value, upstream)
			if err != nil {
				return Args{}, err
			}
			out.Kw[kw.Key] = v
		}
	}
	return out, nil
}

// References returns the node names whose outputs the slots read.
func (b *BindExpr) References() []string {
	var refs []string
	add := func(v any) {
		if p, ok := v.(Placeholder); ok && p.kind == KindOutput && !slices.Contains(refs, p.name) {
			refs = append(refs, p.name)
		}
	}
	for _, v := range b.pos {
		add(v)
	}
	for _, kw := range b.kw {
		add(kw.Value)
	}
	return refs
}

func resolveSlot(ctx Context, slot any, upstream Args) (any, error) {
	if p, ok := slot.(Placeholder); ok {
		return p.Resolve(ctx, upstream)
	}
	return slot, nil
}
