// Package timing records how long named units of work take.
//
// A Sink receives one Event per measured call. The engine emits events for
// every node and every outermost invocation when a sink is configured, and
// the Timed decorator in the parent package measures arbitrary modules.
// Sinks are injected, never global, so tests can substitute a Collector.
package timing

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Event is a single timing record.
type Event struct {
	// Name identifies what was measured (node name or decorator label).
	Name string `json:"name"`
	// Source is the file:line the measured unit was declared at, when known.
	Source string `json:"source,omitempty"`
	// RunID is the outermost invocation the event belongs to.
	RunID string `json:"run_id,omitempty"`
	// Container is the pipeline or group that invoked the unit.
	Container string `json:"container,omitempty"`
	// Duration is the wall-clock time of the call.
	Duration time.Duration `json:"duration"`
	// Err is the error text if the call failed.
	Err string `json:"error,omitempty"`
	// Time is when the call finished.
	Time time.Time `json:"time"`
}

// Milliseconds returns the duration as fractional milliseconds.
func (e Event) Milliseconds() float64 {
	return float64(e.Duration.Microseconds()) / 1000
}

// Sink receives timing events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Record(evt Event) error
}

// ErrSinkClosed indicates a sink has been closed.
var ErrSinkClosed = errors.New("timing sink closed")

// Collector keeps events in memory.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// NewCollector creates an empty in-memory collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Record implements Sink.
func (c *Collector) Record(evt Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

// Events returns a copy of the recorded events in arrival order.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Sorted returns the recorded events slowest first.
func (c *Collector) Sorted() []Event {
	events := c.Events()
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Duration > events[j].Duration
	})
	return events
}

// Named returns the events recorded under name, in arrival order.
func (c *Collector) Named(name string) []Event {
	var out []Event
	for _, evt := range c.Events() {
		if evt.Name == name {
			out = append(out, evt)
		}
	}
	return out
}

// Reset discards all recorded events.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// Len returns the number of recorded events.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// MultiSink fans every event out to several sinks.
// All sinks receive the event; their errors are joined.
type MultiSink []Sink

// Record implements Sink.
func (m MultiSink) Record(evt Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard is a Sink that drops every event.
type Discard struct{}

// Record implements Sink.
func (Discard) Record(Event) error { return nil }
