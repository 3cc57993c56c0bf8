package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	r := New[int]()
	assert.NotNil(t, r)
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Frozen())
}

func TestRegisterAndGet(t *testing.T) {
	r := New[int]()

	pos, err := r.Register("one", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	pos, err = r.Register("two", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	v, err := r.Get("one")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = r.Get("three")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, v)
}

func TestRegisterDuplicate(t *testing.T) {
	r := New[string]()

	_, err := r.Register("key", "old")
	require.NoError(t, err)

	_, err = r.Register("key", "new")
	assert.ErrorIs(t, err, ErrDuplicate)

	v, err := r.Get("key")
	require.NoError(t, err)
	assert.Equal(t, "old", v, "failed registration must not replace the original")
	assert.Equal(t, 1, r.Len())
}

func TestRegisterAnonymous(t *testing.T) {
	r := New[int]()

	_, err := r.Register("", 1)
	require.NoError(t, err)
	_, err = r.Register("", 2)
	require.NoError(t, err, "anonymous entries never collide")

	assert.Equal(t, 2, r.Len())
	assert.Empty(t, r.Names())
	assert.False(t, r.Has(""))

	_, err = r.Get("")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertionOrder(t *testing.T) {
	r := New[int]()
	names := []string{"c", "", "a", "b", ""}
	for i, name := range names {
		_, err := r.Register(name, i)
		require.NoError(t, err)
	}

	var gotNames []string
	var gotValues []int
	for pos, e := range r.All() {
		assert.Equal(t, len(gotValues), pos)
		gotNames = append(gotNames, e.Name)
		gotValues = append(gotValues, e.Value)
	}

	assert.Equal(t, names, gotNames)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, gotValues)
	assert.Equal(t, []string{"c", "a", "b"}, r.Names())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, r.Values())
}

func TestAllIsRestartable(t *testing.T) {
	r := New[int]()
	for i := range 3 {
		_, err := r.Register(fmt.Sprintf("n%d", i), i)
		require.NoError(t, err)
	}

	seq := r.All()
	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}

	assert.Equal(t, 3, count())
	assert.Equal(t, 3, count())
}

func TestAllEarlyStop(t *testing.T) {
	r := New[int]()
	for i := range 5 {
		_, err := r.Register("", i)
		require.NoError(t, err)
	}

	var seen []int
	for _, e := range r.All() {
		if e.Value == 2 {
			break
		}
		seen = append(seen, e.Value)
	}
	assert.Equal(t, []int{0, 1}, seen)
}

func TestAt(t *testing.T) {
	r := New[string]()
	_, _ = r.Register("x", "first")

	e, ok := r.At(0)
	require.True(t, ok)
	assert.Equal(t, "x", e.Name)
	assert.Equal(t, "first", e.Value)

	_, ok = r.At(1)
	assert.False(t, ok)
	_, ok = r.At(-1)
	assert.False(t, ok)
}

func TestFreeze(t *testing.T) {
	r := New[int]()
	_, err := r.Register("a", 1)
	require.NoError(t, err)

	r.Freeze()
	r.Freeze()
	assert.True(t, r.Frozen())

	_, err = r.Register("b", 2)
	assert.ErrorIs(t, err, ErrFrozen)

	_, err = r.Register("", 3)
	assert.ErrorIs(t, err, ErrFrozen)

	assert.Equal(t, 1, r.Len())
	v, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestConcurrentAccess(t *testing.T) {
	r := New[int]()

	const goroutines = 50
	var wg sync.WaitGroup
	for i := range goroutines {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := r.Register(fmt.Sprintf("key-%d", n), n)
			assert.NoError(t, err)
			for range r.All() {
			}
			_ = r.Has(fmt.Sprintf("key-%d", n))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, goroutines, r.Len())
	for i := range goroutines {
		v, err := r.Get(fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}
