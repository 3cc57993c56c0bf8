package flowcompose

import (
	"time"

	"github.com/randalmurphal/flowcompose/pkg/flowcompose/timing"
)

// Timed wraps m so every call is reported as a timing event named name and
// tagged with the file:line Timed was called from. A nil sink uses the
// invocation's sink from WithTimingSink; with neither, calls are not
// recorded.
//
// Example:
//
//	collector := timing.NewCollector()
//	ppl.MustRegister("llm", flowcompose.Timed("llm", llm, collector))
func Timed(name string, m Module, sink timing.Sink) Module {
	return &timedModule{
		name:   name,
		source: callerSite(1),
		module: m,
		sink:   sink,
	}
}

type timedModule struct {
	name   string
	source string
	module Module
	sink   timing.Sink
}

func (t *timedModule) Name() string {
	return t.name
}

func (t *timedModule) Unwrap() Module {
	return t.module
}

func (t *timedModule) Invoke(ctx Context, args Args) (any, error) {
	if t.module == nil {
		return nil, ErrNilModule
	}
	start := time.Now()
	out, err := t.module.Invoke(ctx, args)

	sink := t.sink
	if sink == nil {
		if ec, ok := ctx.(*executionContext); ok {
			sink = ec.cfg.sink
		}
	}
	if sink == nil {
		return out, err
	}
	evt := timing.Event{
		Name:      t.name,
		Source:    t.source,
		RunID:     ctx.RunID(),
		Container: ctx.Container(),
		Duration:  time.Since(start),
		Err:       errText(err),
		Time:      time.Now(),
	}
	if recErr := sink.Record(evt); recErr != nil {
		ctx.Logger().Warn("timing sink rejected event", "event", t.name, "error", recErr)
	}
	return out, err
}
