// Package graph is the workflow engine shared by the chat agent, spam triage
// and ingestion workflows.
//
// A StateGraph[S] holds named nodes over a struct state S, static edges,
// conditional edges and an entry point. Compile validates the wiring and
// returns a Runnable[S].
//
// # State and deltas
//
// Nodes return a partial S. The engine merges it into the run's state with a
// StructSchema built from struct tags: fields tagged `graph:"append"` are
// concatenated, other fields are overwritten when the delta value is non-zero.
// One []string field may be tagged `graph:"path"`; the engine appends every
// visited node name to it and no node may write it. Nodes that declare
// Writes(keys...) may write only those keys.
//
//	type State struct {
//		Messages []string `json:"messages" graph:"append"`
//		Route    string   `json:"route"`
//		Path     []string `json:"processing_path" graph:"path"`
//	}
//
//	g := graph.NewStateGraph[State]()
//	g.AddNode("classify", "pick a route", classify, graph.Writes("route"))
//	g.AddNode("answer", "reply", answer, graph.Writes("messages"))
//	g.AddConditionalEdge("classify", func(ctx context.Context, s State) string {
//		return s.Route
//	}, map[string]string{"reply": "answer", "skip": graph.END})
//	g.AddEdge("answer", graph.END)
//	g.SetEntryPoint("classify")
//	r, err := g.Compile()
//
// # Execution
//
// InvokeWithConfig runs nodes one at a time until END. Predicates see the
// post-merge state. Any node error or panic aborts the run as *NodeError; the
// engine never retries. With Config.ThreadID and Config.Checkpointer set, the
// full final state is saved after END. Earlier snapshots are never merged into
// a new run; callers resume by loading them with GetState.
//
// Stream runs the same loop and yields a closed set of events (NodeStart,
// Token, ChainDelta, NodeEnd, then ChainEnd or Error). Nodes forward generated
// text with EmitToken.
package graph
