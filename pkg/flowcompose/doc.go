/*
Package flowcompose composes modules into dataflow graphs.

# Overview

A Module is anything with an Invoke method. Modules are composed with two
containers:

  - Pipeline runs nodes in order, feeding each node's output to the next.
  - Parallel runs branches on copies of the same input and combines their
    outputs with an Aggregator.

Containers are Modules themselves, so they nest. Bind lets a node take
arguments from anywhere in the current invocation instead of only from its
predecessor, using placeholders resolved at call time.

# Basic Usage

	retrievers := flowcompose.NewParallel("retrievers", flowcompose.Sum)
	retrievers.MustRegister("by_title", byTitle)
	retrievers.MustRegister("by_content", byContent)

	ppl := flowcompose.NewPipeline("rag")
	ppl.MustRegister("retrievers", retrievers)
	ppl.MustRegister("reranker", flowcompose.Bind(reranker,
	    flowcompose.Kw("query", flowcompose.Input())))
	ppl.MustRegister("formatter", flowcompose.Bind(formatter,
	    flowcompose.Output("reranker"),
	    flowcompose.Kw("query", flowcompose.Input())))
	ppl.MustRegister("llm", llm)

	if err := ppl.Compile(); err != nil {
	    log.Fatal(err)
	}
	answer, err := ppl.Run(ctx, "what is a pipeline?")

# Arguments

Nodes receive Args: positional values plus keyword values. A node that
returns Args hands all of its values to the next node; any other return
value becomes the next node's single positional argument.

# Placeholders

  - Input refers to the original input of the outermost invocation.
  - Output(name) refers to the output of the named node in the current
    invocation.
  - Upstream refers to the input the bound node received.

References are checked when the graph is compiled. Binding to a node
registered later fails with ErrForwardReference; binding to a name defined
nowhere fails with ErrUnknownReference.

# Lifecycle

Action wraps a graph with Start and Stop. Modules implementing Starter and
Stopper are started in registration order and stopped in reverse.

# Observability

Every node is logged with slog and, when enabled with WithMetrics and
WithTracing, recorded as OpenTelemetry metrics and spans. WithTimingSink
sends one timing event per node and per run to a timing.Sink.

# Error Handling

Node errors are wrapped in NodeError, branch failures in BranchError and
panics are recovered as PanicError. All of them support errors.Is and
errors.As against the module's original error.
*/
package flowcompose
