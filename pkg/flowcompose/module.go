package flowcompose

import (
	"context"
	"fmt"
)

// Module is a unit of work composed into a graph. Pipelines, parallel
// groups, bind expressions and actions are all Modules, so any of them can
// be nested inside another.
type Module interface {
	Invoke(ctx Context, args Args) (any, error)
}

// Func adapts a plain function to Module.
type Func func(ctx Context, args Args) (any, error)

// Invoke calls f.
func (f Func) Invoke(ctx Context, args Args) (any, error) {
	return f(ctx, args)
}

// Unary adapts a single-input function to Module. The first positional
// argument is converted to I; a missing or mistyped argument fails with
// ErrBadArgument.
func Unary[I, O any](fn func(ctx Context, in I) (O, error)) Module {
	return Func(func(ctx Context, args Args) (any, error) {
		in, err := Arg[I](args, 0)
		if err != nil {
			return nil, err
		}
		return fn(ctx, in)
	})
}

// Identity returns a module that passes its input through unchanged.
func Identity() Module {
	return Func(func(_ Context, args Args) (any, error) {
		return args.Value(), nil
	})
}

// Arg returns positional argument i as T.
// A nil value converts to the zero T.
func Arg[T any](args Args, i int) (T, error) {
	var zero T
	v, ok := args.At(i)
	if !ok {
		return zero, fmt.Errorf("%w: missing positional argument %d (got %d)", ErrBadArgument, i, args.Len())
	}
	return convertArg[T](v, fmt.Sprintf("positional argument %d", i))
}

// KwArg returns keyword argument key as T.
func KwArg[T any](args Args, key string) (T, error) {
	var zero T
	v, ok := args.Get(key)
	if !ok {
		return zero, fmt.Errorf("%w: missing keyword argument %q", ErrBadArgument, key)
	}
	return convertArg[T](v, fmt.Sprintf("keyword argument %q", key))
}

func convertArg[T any](v any, what string) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T, want %T", ErrBadArgument, what, v, zero)
	}
	return t, nil
}

// Starter is implemented by modules that acquire resources before use.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by modules that release resources.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Cloner is implemented by values that must not be shared between
// parallel branches. Each branch receives its own Clone.
type Cloner interface {
	Clone() any
}

// Unwrapper is implemented by decorators so the engine can see the module
// they wrap when validating references and walking lifecycles.
type Unwrapper interface {
	Unwrap() Module
}
