package flowcompose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgs_Value(t *testing.T) {
	assert.Nil(t, Args{}.Value())
	assert.Equal(t, 1, Pack(1).Value())
	assert.Equal(t, Pack(1, 2), Pack(1, 2).Value())

	kw := Pack(1).With("k", "v")
	assert.Equal(t, kw, kw.Value())
}

func TestArgs_Accessors(t *testing.T) {
	a := Pack("x", 2).With("query", "q")

	v, ok := a.At(1)
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = a.At(5)
	assert.False(t, ok)

	first, ok := a.First()
	require.True(t, ok)
	assert.Equal(t, "x", first)

	q, ok := a.Get("query")
	require.True(t, ok)
	assert.Equal(t, "q", q)

	assert.Equal(t, 2, a.Len())
	assert.False(t, a.Empty())
	assert.True(t, Args{}.Empty())
	assert.Equal(t, "(x, 2, query=q)", a.String())
}

func TestArgs_WithDoesNotMutate(t *testing.T) {
	base := Keywords(map[string]any{"a": 1})
	next := base.With("b", 2)
	assert.Len(t, base.Kw, 1)
	assert.Len(t, next.Kw, 2)
}

func TestArgs_TypedAccess(t *testing.T) {
	a := Pack("s", nil).With("n", 3)

	s, err := Arg[string](a, 0)
	require.NoError(t, err)
	assert.Equal(t, "s", s)

	_, err = Arg[int](a, 0)
	assert.ErrorIs(t, err, ErrBadArgument)

	_, err = Arg[string](a, 9)
	assert.ErrorIs(t, err, ErrBadArgument)

	zero, err := Arg[*doc](a, 1)
	require.NoError(t, err)
	assert.Nil(t, zero)

	n, err := KwArg[int](a, "n")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = KwArg[int](a, "missing")
	assert.ErrorIs(t, err, ErrBadArgument)
}

func TestUnary_BadArgument(t *testing.T) {
	ppl := NewPipeline("p", upper())
	_, err := ppl.Invoke(testCtx(), Pack(42))
	assert.ErrorIs(t, err, ErrBadArgument)

	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "#0", nodeErr.NodeID)
}
