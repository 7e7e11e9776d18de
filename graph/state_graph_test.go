package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/smallnest/tenantflow/store"
	"github.com/smallnest/tenantflow/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendNode(msg string) NodeFunc[testState] {
	return func(ctx context.Context, s testState) (testState, error) {
		return testState{Messages: []string{msg}}, nil
	}
}

func TestStateGraph_LinearInvoke(t *testing.T) {
	t.Parallel()

	g := NewStateGraph[testState]()
	g.AddNode("first", "first step", appendNode("one"))
	g.AddNode("second", "second step", appendNode("two"))
	g.AddEdge("first", "second")
	g.AddEdge("second", END)
	g.SetEntryPoint("first")

	r, err := g.Compile()
	require.NoError(t, err)

	initial := testState{Messages: []string{"zero"}}
	final, err := r.Invoke(context.Background(), initial)
	require.NoError(t, err)
	assert.Equal(t, []string{"zero", "one", "two"}, final.Messages)
	assert.Equal(t, []string{"first", "second"}, final.Path)
	assert.Equal(t, []string{"zero"}, initial.Messages, "caller state is not mutated")
}

func TestStateGraph_ConditionalUsesPostMergeState(t *testing.T) {
	t.Parallel()

	g := NewStateGraph[testState]()
	g.AddNode("gateway", "pick a route", func(ctx context.Context, s testState) (testState, error) {
		return testState{Route: "policy"}, nil
	}, Writes("route"))
	g.AddNode("policy", "policy path", appendNode("policy"), Writes("messages"))
	g.AddNode("final", "final", appendNode("final"), Writes("messages"))
	g.AddConditionalEdge("gateway", func(ctx context.Context, s testState) string {
		return s.Route
	}, map[string]string{"rule": "final", "policy": "policy"})
	g.AddEdge("policy", "final")
	g.AddEdge("final", END)
	g.SetEntryPoint("gateway")

	r, err := g.Compile()
	require.NoError(t, err)

	final, err := r.Invoke(context.Background(), testState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"gateway", "policy", "final"}, final.Path)
}

func TestStateGraph_NilPathMapRoutesByName(t *testing.T) {
	t.Parallel()

	g := NewStateGraph[testState]()
	g.AddNode("a", "", func(ctx context.Context, s testState) (testState, error) {
		return testState{Count: s.Count + 1}, nil
	})
	g.AddConditionalEdge("a", func(ctx context.Context, s testState) string {
		if s.Count >= 3 {
			return END
		}
		return "a"
	}, nil)
	g.SetEntryPoint("a")

	r, err := g.Compile()
	require.NoError(t, err)

	final, err := r.Invoke(context.Background(), testState{})
	require.NoError(t, err)
	assert.Equal(t, 3, final.Count)
	assert.Equal(t, []string{"a", "a", "a"}, final.Path)
}

func TestStateGraph_CompileErrors(t *testing.T) {
	t.Parallel()

	noop := appendNode("x")
	tests := []struct {
		name  string
		build func(g *StateGraph[testState])
		want  error
	}{
		{
			name: "no entry point",
			build: func(g *StateGraph[testState]) {
				g.AddNode("a", "", noop)
				g.AddEdge("a", END)
			},
			want: ErrEntryPointNotSet,
		},
		{
			name: "unknown entry point",
			build: func(g *StateGraph[testState]) {
				g.AddNode("a", "", noop)
				g.AddEdge("a", END)
				g.SetEntryPoint("b")
			},
			want: ErrNodeNotFound,
		},
		{
			name: "edge to unknown node",
			build: func(g *StateGraph[testState]) {
				g.AddNode("a", "", noop)
				g.AddEdge("a", "ghost")
				g.SetEntryPoint("a")
			},
			want: ErrNodeNotFound,
		},
		{
			name: "path map to unknown node",
			build: func(g *StateGraph[testState]) {
				g.AddNode("a", "", noop)
				g.AddConditionalEdge("a", func(context.Context, testState) string { return "x" },
					map[string]string{"x": "ghost"})
				g.SetEntryPoint("a")
			},
			want: ErrNodeNotFound,
		},
		{
			name: "dead end",
			build: func(g *StateGraph[testState]) {
				g.AddNode("a", "", noop)
				g.AddNode("b", "", noop)
				g.AddEdge("a", "b")
				g.SetEntryPoint("a")
			},
			want: ErrNoOutgoingEdge,
		},
		{
			name: "two static edges",
			build: func(g *StateGraph[testState]) {
				g.AddNode("a", "", noop)
				g.AddEdge("a", END)
				g.AddEdge("a", END)
				g.SetEntryPoint("a")
			},
			want: ErrAmbiguousEdge,
		},
		{
			name: "static and conditional edge",
			build: func(g *StateGraph[testState]) {
				g.AddNode("a", "", noop)
				g.AddEdge("a", END)
				g.AddConditionalEdge("a", func(context.Context, testState) string { return END }, nil)
				g.SetEntryPoint("a")
			},
			want: ErrAmbiguousEdge,
		},
		{
			name: "duplicate node",
			build: func(g *StateGraph[testState]) {
				g.AddNode("a", "", noop)
				g.AddNode("a", "", noop)
				g.AddEdge("a", END)
				g.SetEntryPoint("a")
			},
			want: ErrDuplicateNode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewStateGraph[testState]()
			tt.build(g)
			_, err := g.Compile()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStateGraph_CompileRejectsBadWrites(t *testing.T) {
	t.Parallel()

	g := NewStateGraph[testState]()
	g.AddNode("a", "", appendNode("x"), Writes("nope"))
	g.AddEdge("a", END)
	g.SetEntryPoint("a")
	_, err := g.Compile()
	assert.Error(t, err)

	g = NewStateGraph[testState]()
	g.AddNode("a", "", appendNode("x"), Writes("processing_path"))
	g.AddEdge("a", END)
	g.SetEntryPoint("a")
	_, err = g.Compile()
	assert.Error(t, err)
}

func TestRunnable_UndeclaredWrite(t *testing.T) {
	t.Parallel()

	g := NewStateGraph[testState]()
	g.AddNode("sneaky", "", func(ctx context.Context, s testState) (testState, error) {
		return testState{Messages: []string{"ok"}, Route: "forbidden"}, nil
	}, Writes("messages"))
	g.AddEdge("sneaky", END)
	g.SetEntryPoint("sneaky")

	r, err := g.Compile()
	require.NoError(t, err)

	_, err = r.Invoke(context.Background(), testState{})
	assert.ErrorIs(t, err, ErrUndeclaredWrite)

	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "sneaky", nodeErr.Node)
}

func TestRunnable_NodeCannotWritePath(t *testing.T) {
	t.Parallel()

	g := NewStateGraph[testState]()
	g.AddNode("rewrite", "", func(ctx context.Context, s testState) (testState, error) {
		return testState{Path: []string{"forged"}}, nil
	})
	g.AddEdge("rewrite", END)
	g.SetEntryPoint("rewrite")

	r, err := g.Compile()
	require.NoError(t, err)

	_, err = r.Invoke(context.Background(), testState{})
	assert.ErrorIs(t, err, ErrUndeclaredWrite)
}

func TestRunnable_UnknownRoute(t *testing.T) {
	t.Parallel()

	g := NewStateGraph[testState]()
	g.AddNode("a", "", appendNode("x"))
	g.AddConditionalEdge("a", func(context.Context, testState) string { return "elsewhere" },
		map[string]string{"done": END})
	g.SetEntryPoint("a")

	r, err := g.Compile()
	require.NoError(t, err)

	_, err = r.Invoke(context.Background(), testState{})
	assert.ErrorIs(t, err, ErrUnknownRoute)
}

func TestRunnable_NodeErrorAbortsRun(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	visitedAfter := false

	g := NewStateGraph[testState]()
	g.AddNode("a", "", appendNode("a"))
	g.AddNode("fail", "", func(ctx context.Context, s testState) (testState, error) {
		return testState{}, boom
	})
	g.AddNode("after", "", func(ctx context.Context, s testState) (testState, error) {
		visitedAfter = true
		return testState{}, nil
	})
	g.AddEdge("a", "fail")
	g.AddEdge("fail", "after")
	g.AddEdge("after", END)
	g.SetEntryPoint("a")

	r, err := g.Compile()
	require.NoError(t, err)

	state, err := r.Invoke(context.Background(), testState{})
	require.ErrorIs(t, err, boom)
	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "fail", nodeErr.Node)
	assert.False(t, visitedAfter)
	assert.Equal(t, []string{"a"}, state.Path)
}

func TestRunnable_PanicBecomesNodeError(t *testing.T) {
	t.Parallel()

	g := NewStateGraph[testState]()
	g.AddNode("panics", "", func(ctx context.Context, s testState) (testState, error) {
		var m map[string]int
		m["x"] = 1
		return s, nil
	})
	g.AddEdge("panics", END)
	g.SetEntryPoint("panics")

	r, err := g.Compile()
	require.NoError(t, err)

	_, err = r.Invoke(context.Background(), testState{})
	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "panics", nodeErr.Node)
	assert.Contains(t, err.Error(), "panic")
}

func TestRunnable_RecursionLimit(t *testing.T) {
	t.Parallel()

	g := NewStateGraph[testState]()
	g.AddNode("loop", "", appendNode("again"))
	g.AddConditionalEdge("loop", func(context.Context, testState) string { return "loop" }, nil)
	g.SetEntryPoint("loop")

	r, err := g.Compile()
	require.NoError(t, err)

	state, err := r.InvokeWithConfig(context.Background(), testState{}, &Config{RecursionLimit: 4})
	assert.ErrorIs(t, err, ErrRecursionLimit)
	assert.Len(t, state.Path, 4)
}

func TestRunnable_CancelledContext(t *testing.T) {
	t.Parallel()

	g := NewStateGraph[testState]()
	g.AddNode("a", "", appendNode("a"))
	g.AddEdge("a", END)
	g.SetEntryPoint("a")

	r, err := g.Compile()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Invoke(ctx, testState{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunnable_ConfigInContext(t *testing.T) {
	t.Parallel()

	var seen string
	g := NewStateGraph[testState]()
	g.AddNode("a", "", func(ctx context.Context, s testState) (testState, error) {
		seen = GetConfig(ctx).ThreadID
		return testState{}, nil
	})
	g.AddEdge("a", END)
	g.SetEntryPoint("a")

	r, err := g.Compile()
	require.NoError(t, err)

	_, err = r.InvokeWithConfig(context.Background(), testState{}, &Config{ThreadID: "t-1"})
	require.NoError(t, err)
	assert.Equal(t, "t-1", seen)
}

func newCounterGraph(t *testing.T) *Runnable[testState] {
	t.Helper()
	g := NewStateGraph[testState]()
	g.SetName("counter")
	g.AddNode("say", "", func(ctx context.Context, s testState) (testState, error) {
		return testState{Messages: []string{"reply"}, Count: s.Count + 1}, nil
	})
	g.AddEdge("say", END)
	g.SetEntryPoint("say")
	r, err := g.Compile()
	require.NoError(t, err)
	return r
}

func TestRunnable_CheckpointAfterEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r := newCounterGraph(t)
	cp := memory.NewMemoryCheckpointStore()
	config := &Config{ThreadID: "thread-1", Checkpointer: cp, Tags: []string{"test"}}

	_, err := r.InvokeWithConfig(ctx, testState{Messages: []string{"hi"}}, config)
	require.NoError(t, err)

	saved, err := cp.Get(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, END, saved.NodeName)
	assert.Equal(t, 1, saved.Version)
	assert.Equal(t, "counter", saved.Metadata["graph"])

	state, ok, err := r.GetState(ctx, cp, "thread-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"hi", "reply"}, state.Messages)
	assert.Equal(t, []string{"say"}, state.Path)

	// a second run does not implicitly resume from the snapshot
	final, err := r.InvokeWithConfig(ctx, testState{Messages: []string{"fresh"}}, config)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh", "reply"}, final.Messages)
	assert.Equal(t, 1, final.Count)

	saved, err = cp.Get(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Version)

	deleted, err := r.DeleteState(ctx, cp, "thread-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, ok, err = r.GetState(ctx, cp, "thread-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunnable_ExplicitResume(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r := newCounterGraph(t)
	cp := memory.NewMemoryCheckpointStore()
	config := &Config{ThreadID: "resume", Checkpointer: cp}

	_, err := r.InvokeWithConfig(ctx, testState{Messages: []string{"q1"}}, config)
	require.NoError(t, err)

	prior, ok, err := r.GetState(ctx, cp, "resume")
	require.NoError(t, err)
	require.True(t, ok)

	next := testState{Messages: append(prior.Messages, "q2"), Count: prior.Count}
	final, err := r.InvokeWithConfig(ctx, next, config)
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "reply", "q2", "reply"}, final.Messages)
	assert.Equal(t, 2, final.Count)
}

type failingCheckpointer struct {
	store.Checkpointer
}

func (failingCheckpointer) Get(ctx context.Context, threadID string) (*store.Checkpoint, error) {
	return nil, store.ErrCheckpointNotFound
}

func (failingCheckpointer) Put(ctx context.Context, checkpoint *store.Checkpoint) error {
	return errors.New("disk full")
}

func TestRunnable_CheckpointSaveFailureKeepsState(t *testing.T) {
	t.Parallel()

	r := newCounterGraph(t)
	final, err := r.InvokeWithConfig(context.Background(), testState{}, &Config{
		ThreadID:     "t",
		Checkpointer: failingCheckpointer{},
	})
	assert.ErrorIs(t, err, ErrCheckpointSave)
	assert.Equal(t, []string{"reply"}, final.Messages)
}
