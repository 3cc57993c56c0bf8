package registry

import (
	"errors"
	"iter"
	"sync"
)

// Sentinel errors returned by Registry.
var (
	// ErrDuplicate indicates a non-empty name was registered twice.
	ErrDuplicate = errors.New("duplicate name")

	// ErrFrozen indicates Register was called after Freeze.
	ErrFrozen = errors.New("registry is frozen")

	// ErrNotFound indicates no entry exists under the requested name.
	ErrNotFound = errors.New("name not found")
)

// Entry is a registered value together with its optional name.
type Entry[V any] struct {
	Name  string
	Value V
}

// Registry is an insertion-ordered registry. The zero value is not usable;
// create one with New.
type Registry[V any] struct {
	mu      sync.RWMutex
	entries []Entry[V]
	index   map[string]int
	frozen  bool
}

// New creates a new empty registry.
func New[V any]() *Registry[V] {
	return &Registry[V]{
		index: make(map[string]int),
	}
}

// Register appends a value and returns its position.
// An empty name registers an anonymous entry.
func (r *Registry[V]) Register(name string, value V) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, ErrFrozen
	}
	if name != "" {
		if _, exists := r.index[name]; exists {
			return -1, ErrDuplicate
		}
		r.index[name] = len(r.entries)
	}
	r.entries = append(r.entries, Entry[V]{Name: name, Value: value})
	return len(r.entries) - 1, nil
}

// Get returns the value registered under name.
func (r *Registry[V]) Get(name string) (V, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pos, ok := r.index[name]
	if !ok || name == "" {
		var zero V
		return zero, ErrNotFound
	}
	return r.entries[pos].Value, nil
}

// At returns the entry at position pos.
func (r *Registry[V]) At(pos int) (Entry[V], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if pos < 0 || pos >= len(r.entries) {
		return Entry[V]{}, false
	}
	return r.entries[pos], true
}

// Has returns true if a value is registered under name.
func (r *Registry[V]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[name]
	return ok && name != ""
}

// Len returns the number of entries, named and anonymous.
func (r *Registry[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Names returns the non-empty names in insertion order.
func (r *Registry[V]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.index))
	for _, e := range r.entries {
		if e.Name != "" {
			names = append(names, e.Name)
		}
	}
	return names
}

// All returns an iterator over positions and entries in insertion order.
// Every call starts a new pass over a snapshot of the registry.
func (r *Registry[V]) All() iter.Seq2[int, Entry[V]] {
	return func(yield func(int, Entry[V]) bool) {
		for pos, e := range r.snapshot() {
			if !yield(pos, e) {
				return
			}
		}
	}
}

// Values returns the registered values in insertion order.
func (r *Registry[V]) Values() []V {
	snap := r.snapshot()
	values := make([]V, len(snap))
	for i, e := range snap {
		values[i] = e.Value
	}
	return values
}

// Freeze makes the registry read-only. Calling Freeze more than once is a no-op.
func (r *Registry[V]) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether Freeze has been called.
func (r *Registry[V]) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

func (r *Registry[V]) snapshot() []Entry[V] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.frozen {
		// Never appended to again.
		return r.entries
	}
	snap := make([]Entry[V], len(r.entries))
	copy(snap, r.entries)
	return snap
}
