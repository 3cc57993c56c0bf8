// Package registry provides an ordered, freezable registry of values indexed
// by an optional name.
//
// Registry preserves insertion order, which is what makes it suitable as the
// node table of a sequential container: the order values were registered in
// is the order All yields them in. Names are optional; the empty string
// registers an anonymous entry that can only be reached by position.
//
// # Basic Usage
//
//	r := registry.New[Step]()
//	_, _ = r.Register("fetch", fetchStep)
//	_, _ = r.Register("", logStep) // anonymous
//	_, _ = r.Register("parse", parseStep)
//
//	for pos, e := range r.All() {
//	    fmt.Println(pos, e.Name, e.Value)
//	}
//
//	step, err := r.Get("parse")
//
// # Freezing
//
// Freeze makes the registry read-only. Register returns ErrFrozen afterwards.
// A frozen registry is never mutated again, so readers may iterate it from
// any number of goroutines.
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. All iterates over a
// snapshot taken when iteration starts, so registrations that race with an
// iteration do not affect it.
package registry
