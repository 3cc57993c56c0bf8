package flowcompose

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowcompose/pkg/flowcompose/timing"
)

// ragFixture is a retrieval chain built from in-process fakes.
type ragFixture struct {
	mu          sync.Mutex
	rerankQuery []string
	formatQuery []string
	llmCalls    atomic.Int32
}

func retriever(prefix string, n int) Module {
	return Unary(func(_ Context, query string) ([]string, error) {
		docs := make([]string, n)
		for i := range n {
			docs[i] = fmt.Sprintf("%s:%s:%d", prefix, query, i)
		}
		return docs, nil
	})
}

func (f *ragFixture) reranker() Module {
	return Func(func(_ Context, args Args) (any, error) {
		docs, err := Arg[[]string](args, 0)
		if err != nil {
			return nil, err
		}
		query, err := KwArg[string](args, "query")
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.rerankQuery = append(f.rerankQuery, query)
		f.mu.Unlock()
		if len(docs) > 2 {
			docs = docs[:2]
		}
		return docs, nil
	})
}

func (f *ragFixture) formatter() Module {
	return Func(func(_ Context, args Args) (any, error) {
		docs, err := Arg[[]string](args, 0)
		if err != nil {
			return nil, err
		}
		query, err := KwArg[string](args, "query")
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.formatQuery = append(f.formatQuery, query)
		f.mu.Unlock()
		return fmt.Sprintf("context: %s\nquestion: %s", strings.Join(docs, "; "), query), nil
	})
}

func (f *ragFixture) llm() Module {
	return Unary(func(_ Context, prompt string) (string, error) {
		f.llmCalls.Add(1)
		return "answer <" + prompt + ">", nil
	})
}

func (f *ragFixture) pipeline() *Pipeline {
	retrievers := NewParallel("retrievers", Sum).
		Add("retriever1", retriever("bm25", 2)).
		Add("retriever2", retriever("dense", 1))

	return NewPipeline("rag").
		Add("retrievers", retrievers).
		Add("reranker", Bind(f.reranker(), Kw("query", Input()))).
		Add("formatter", Bind(f.formatter(), Output("reranker"), Kw("query", Input()))).
		Add("llm", f.llm())
}

func TestRAG_BindsOriginalQueryAcrossNodes(t *testing.T) {
	f := &ragFixture{}
	ppl := f.pipeline()
	require.NoError(t, ppl.Compile())

	out, err := ppl.Run(context.Background(), "X")
	require.NoError(t, err)

	assert.Equal(t, "answer <context: bm25:X:0; bm25:X:1\nquestion: X>", out)
	assert.EqualValues(t, 1, f.llmCalls.Load())
	assert.Equal(t, []string{"X"}, f.rerankQuery)
	assert.Equal(t, []string{"X"}, f.formatQuery)
}

func TestRAG_ThroughAction(t *testing.T) {
	f := &ragFixture{}
	collector := timing.NewCollector()
	action, err := NewAction(f.pipeline(), WithTimingSink(collector))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, action.Start(ctx))
	t.Cleanup(func() { _ = action.Stop(ctx) })

	queries := []string{"alpha", "beta", "gamma", "delta"}
	answers := make([]any, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := action.Call(ctx, q)
			assert.NoError(t, err)
			answers[i] = out
		}()
	}
	wg.Wait()

	for i, q := range queries {
		assert.Contains(t, answers[i], "question: "+q)
		assert.Contains(t, answers[i], "bm25:"+q+":0")
	}
	assert.EqualValues(t, len(queries), f.llmCalls.Load())
	assert.ElementsMatch(t, queries, f.rerankQuery)
	assert.ElementsMatch(t, queries, f.formatQuery)
	assert.Len(t, collector.Named("llm"), len(queries))
	assert.Len(t, collector.Named("rag"), len(queries))
}

func TestRAG_FormatterBeforeRerankerIsRejected(t *testing.T) {
	f := &ragFixture{}
	ppl := NewPipeline("rag")
	_, err := ppl.Register("formatter", Bind(f.formatter(), Output("reranker"), Kw("query", Input())))
	require.NoError(t, err)

	_, err = ppl.Register("reranker", Bind(f.reranker(), Kw("query", Input())))
	require.ErrorIs(t, err, ErrForwardReference)
	assert.EqualValues(t, 0, f.llmCalls.Load())
}
