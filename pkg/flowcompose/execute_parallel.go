package flowcompose

import (
	"context"
	"sync"

	"github.com/randalmurphal/flowcompose/pkg/flowcompose/observability"
)

// run executes the branches and aggregates their outputs. Every branch
// receives its own copy of args. On the first failure the group fails with
// a BranchError and no branch output is recorded.
func (g *Parallel) run(ec *executionContext, args Args) (result any, err error) {
	elapsed := observability.TimedOperation()
	branches := g.nodes.Values()
	cfg := g.effective(ec.cfg)

	ec.cfg.metrics.RecordParallel(ec, g.name, len(branches))
	defer func() {
		observability.LogBranchJoin(ec.logger, g.name, len(branches), elapsed(), err)
	}()

	branchCtx := ec
	if cfg.Timeout > 0 {
		timeoutCtx, cancel := context.WithTimeout(ec.Context, cfg.Timeout)
		defer cancel()
		branchCtx = ec.withContext(timeoutCtx)
	}

	var outputs []any
	if cfg.Mode == ModeSequential || len(branches) == 1 {
		outputs, err = g.runSequential(branchCtx, branches, args)
	} else {
		outputs, err = g.runConcurrent(branchCtx, branches, args, cfg)
	}
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(branches))
	for i, b := range branches {
		results[i] = Result{Name: b.Name, Value: outputs[i]}
		if b.Name != "" {
			ec.frame.record(b.Name, outputs[i])
		}
	}

	out, aggErr := g.agg.Aggregate(results)
	if aggErr != nil {
		if isEngineError(aggErr) {
			return nil, aggErr
		}
		return nil, &AggregationError{Group: g.name, Err: aggErr}
	}
	return out, nil
}

func (g *Parallel) runSequential(ec *executionContext, branches []*Node, args Args) ([]any, error) {
	outputs := make([]any, len(branches))
	for i, b := range branches {
		out, err := ec.invokeNode(g.name, b, args.branchCopy())
		if err != nil {
			return nil, &BranchError{Group: g.name, Branch: b.ID(), Err: err}
		}
		outputs[i] = out
	}
	return outputs, nil
}

func (g *Parallel) runConcurrent(ec *executionContext, branches []*Node, args Args, cfg GroupConfig) ([]any, error) {
	runCtx := ec
	var cancel context.CancelCauseFunc
	if cfg.FailFast.Enabled() {
		var cancelCtx context.Context
		cancelCtx, cancel = context.WithCancelCause(ec.Context)
		defer cancel(nil)
		runCtx = ec.withContext(cancelCtx)
	}

	// Set up concurrency control
	var sem chan struct{}
	if cfg.MaxConcurrency > 0 {
		sem = make(chan struct{}, cfg.MaxConcurrency)
	}

	outputs := make([]any, len(branches))
	errs := make([]error, len(branches))
	failed := -1
	var failOnce sync.Once
	var wg sync.WaitGroup

	for i, b := range branches {
		in := args.branchCopy()
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Acquire semaphore if concurrency is limited
			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-runCtx.Done():
					errs[i] = &CancelledError{Container: g.name, NodeID: b.ID(), Cause: context.Cause(runCtx)}
					return
				}
			}

			outputs[i], errs[i] = runCtx.invokeNode(g.name, b, in)
			if errs[i] != nil {
				failOnce.Do(func() {
					failed = i
					if cancel != nil {
						cancel(errs[i])
					}
				})
			}
		}()
	}

	// Wait for all branches to complete
	wg.Wait()

	if failed < 0 {
		// A branch cancelled while waiting for the semaphore never ran.
		for i, err := range errs {
			if err != nil {
				failed = i
				break
			}
		}
	}
	if failed >= 0 {
		return nil, &BranchError{Group: g.name, Branch: branches[failed].ID(), Err: errs[failed]}
	}
	return outputs, nil
}
