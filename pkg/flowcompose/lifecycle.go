package flowcompose

import (
	"fmt"
	"reflect"
)

// lifecycleModules returns m and the modules of the graph below it in
// depth-first registration order, each reachable module once. Nested
// actions are returned but not descended into; they manage their own.
func lifecycleModules(m Module) []Module {
	var out []Module
	seen := make(map[Module]bool)
	var walk func(Module)
	walk = func(m Module) {
		if m == nil {
			return
		}
		if isComparable(m) {
			if seen[m] {
				return
			}
			seen[m] = true
		}
		out = append(out, m)
		if _, ok := m.(*Action); ok {
			return
		}
		for _, child := range children(m) {
			walk(child)
		}
	}
	walk(m)
	return out
}

// children returns the modules directly inside m.
func children(m Module) []Module {
	switch v := m.(type) {
	case *Pipeline:
		return modulesOf(v.nodes.Values())
	case *Parallel:
		return modulesOf(v.nodes.Values())
	case Unwrapper:
		if inner := v.Unwrap(); inner != nil {
			return []Module{inner}
		}
	}
	return nil
}

func modulesOf(nodes []*Node) []Module {
	out := make([]Module, len(nodes))
	for i, n := range nodes {
		out[i] = n.Module
	}
	return out
}

// isComparable reports whether m can be a map key. Struct modules with
// func or slice values behind interface fields have comparable types but
// panic on comparison.
func isComparable(m Module) bool {
	return reflect.ValueOf(m).Comparable()
}

// moduleLabel names a module in logs and errors.
func moduleLabel(m Module) string {
	if named, ok := m.(interface{ Name() string }); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", m)
}
