package flowcompose

import (
	"fmt"
	"maps"
	"sort"
	"strings"
)

// Args is the argument package a node receives: ordered positional values
// plus keyword values. A node returning Args hands every value to the next
// node; any other return value becomes that node's single positional input.
type Args struct {
	Pos []any
	Kw  map[string]any
}

// Pack builds an Args from positional values.
func Pack(values ...any) Args {
	return Args{Pos: values}
}

// Keywords builds an Args holding only keyword values.
func Keywords(kw map[string]any) Args {
	return Args{Kw: maps.Clone(kw)}
}

// With returns a copy of a with key set to value.
func (a Args) With(key string, value any) Args {
	kw := make(map[string]any, len(a.Kw)+1)
	maps.Copy(kw, a.Kw)
	kw[key] = value
	return Args{Pos: a.Pos, Kw: kw}
}

// Len returns the number of positional values.
func (a Args) Len() int {
	return len(a.Pos)
}

// Empty reports whether a holds no values at all.
func (a Args) Empty() bool {
	return len(a.Pos) == 0 && len(a.Kw) == 0
}

// At returns positional value i.
func (a Args) At(i int) (any, bool) {
	if i < 0 || i >= len(a.Pos) {
		return nil, false
	}
	return a.Pos[i], true
}

// First returns the first positional value.
func (a Args) First() (any, bool) {
	return a.At(0)
}

// Get returns keyword value key.
func (a Args) Get(key string) (any, bool) {
	v, ok := a.Kw[key]
	return v, ok
}

// Value collapses a to a single value: the positional value itself when a
// holds exactly one positional and no keywords, nil when a is empty, and a
// otherwise.
func (a Args) Value() any {
	if len(a.Kw) == 0 {
		switch len(a.Pos) {
		case 0:
			return nil
		case 1:
			return a.Pos[0]
		}
	}
	return a
}

// String implements fmt.Stringer.
func (a Args) String() string {
	parts := make([]string, 0, len(a.Pos)+len(a.Kw))
	for _, v := range a.Pos {
		parts = append(parts, fmt.Sprint(v))
	}
	keys := make([]string, 0, len(a.Kw))
	for k := range a.Kw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, a.Kw[k]))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// branchCopy returns an independent copy for one parallel branch.
// The containers are copied and values implementing Cloner are cloned;
// anything deeper is shared.
func (a Args) branchCopy() Args {
	out := Args{}
	if a.Pos != nil {
		out.Pos = make([]any, len(a.Pos))
		for i, v := range a.Pos {
			out.Pos[i] = cloneValue(v)
		}
	}
	if a.Kw != nil {
		out.Kw = make(map[string]any, len(a.Kw))
		for k, v := range a.Kw {
			out.Kw[k] = cloneValue(v)
		}
	}
	return out
}

func cloneValue(v any) any {
	switch c := v.(type) {
	case Cloner:
		return c.Clone()
	case Args:
		return c.branchCopy()
	default:
		return v
	}
}

// argsOf threads a node's output into the next node's input.
func argsOf(v any) Args {
	if a, ok := v.(Args); ok {
		return a
	}
	return Args{Pos: []any{v}}
}
