package flowcompose

import (
	"fmt"
	"reflect"
	"strings"
)

// Result is one branch output handed to an Aggregator.
type Result struct {
	// Name is the branch name, "" for anonymous branches.
	Name  string
	Value any
}

// Aggregator combines branch outputs into the group's output. Results are
// always in branch registration order.
type Aggregator interface {
	Aggregate(results []Result) (any, error)
}

// AggregatorFunc adapts a function to Aggregator.
type AggregatorFunc func(results []Result) (any, error)

// Aggregate calls f.
func (f AggregatorFunc) Aggregate(results []Result) (any, error) {
	return f(results)
}

// branchValidator is implemented by aggregators with requirements on the
// branch set that can be checked at compile time.
type branchValidator interface {
	validate(group string, branches []*Node) error
}

// Built-in aggregators.
var (
	// Tuple packs outputs into Args so the next node receives every branch
	// output as a positional argument. It is the default.
	Tuple Aggregator = tupleAggregator{}

	// Concat collects outputs into a []any.
	Concat Aggregator = concatAggregator{}

	// Sum adds outputs left to right. Numbers of one kind are added,
	// strings concatenated, slices of one type appended.
	Sum Aggregator = sumAggregator{}

	// Named maps each branch name to its output. Every branch must be named.
	Named Aggregator = namedAggregator{}
)

type tupleAggregator struct{}

func (tupleAggregator) Aggregate(results []Result) (any, error) {
	return Args{Pos: values(results)}, nil
}

type concatAggregator struct{}

func (concatAggregator) Aggregate(results []Result) (any, error) {
	return values(results), nil
}

type namedAggregator struct{}

func (namedAggregator) Aggregate(results []Result) (any, error) {
	out := make(map[string]any, len(results))
	for i, r := range results {
		if r.Name == "" {
			return nil, &MissingNameError{Position: i}
		}
		out[r.Name] = r.Value
	}
	return out, nil
}

func (namedAggregator) validate(group string, branches []*Node) error {
	for _, b := range branches {
		if b.Name == "" {
			return &MissingNameError{Group: group, Position: b.Position}
		}
	}
	return nil
}

type sumAggregator struct{}

func (sumAggregator) Aggregate(results []Result) (any, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("nothing to sum")
	}
	acc := results[0].Value
	for _, r := range results[1:] {
		var err error
		if acc, err = add(acc, r.Value); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// add returns a+b for two values of the same type.
func add(a, b any) (any, error) {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !va.IsValid() || !vb.IsValid() {
		return nil, fmt.Errorf("cannot add %T and %T", a, b)
	}
	if va.Type() != vb.Type() {
		return nil, fmt.Errorf("cannot add %T and %T", a, b)
	}
	sum := reflect.New(va.Type()).Elem()
	switch va.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		sum.SetInt(va.Int() + vb.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		sum.SetUint(va.Uint() + vb.Uint())
	case reflect.Float32, reflect.Float64:
		sum.SetFloat(va.Float() + vb.Float())
	case reflect.Complex64, reflect.Complex128:
		sum.SetComplex(va.Complex() + vb.Complex())
	case reflect.String:
		sum.SetString(va.String() + vb.String())
	case reflect.Slice:
		merged := reflect.MakeSlice(va.Type(), 0, va.Len()+vb.Len())
		merged = reflect.AppendSlice(merged, va)
		merged = reflect.AppendSlice(merged, vb)
		sum.Set(merged)
	default:
		return nil, fmt.Errorf("cannot add values of kind %s", va.Kind())
	}
	return sum.Interface(), nil
}

// Join concatenates string outputs with sep. Values implementing
// fmt.Stringer are converted; anything else is an error.
func Join(sep string) Aggregator {
	return AggregatorFunc(func(results []Result) (any, error) {
		parts := make([]string, len(results))
		for i, r := range results {
			switch v := r.Value.(type) {
			case string:
				parts[i] = v
			case fmt.Stringer:
				parts[i] = v.String()
			default:
				return nil, fmt.Errorf("branch %d returned %T, want string", i, r.Value)
			}
		}
		return strings.Join(parts, sep), nil
	})
}

// Reduce folds outputs left to right with fn, starting from the first output.
func Reduce(fn func(acc, next any) (any, error)) Aggregator {
	return AggregatorFunc(func(results []Result) (any, error) {
		if len(results) == 0 {
			return nil, fmt.Errorf("nothing to reduce")
		}
		acc := results[0].Value
		for _, r := range results[1:] {
			var err error
			if acc, err = fn(acc, r.Value); err != nil {
				return nil, err
			}
		}
		return acc, nil
	})
}

func values(results []Result) []any {
	out := make([]any, len(results))
	for i, r := range results {
		out[i] = r.Value
	}
	return out
}
