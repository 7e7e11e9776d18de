package graph

import (
	"context"
	"fmt"
	"sort"
)

// NodeFunc runs one step of a graph. It receives a private copy of the
// current state and returns a partial state (delta) that the engine merges.
// Fields left at their zero value in the delta are not written, so a delta
// cannot clear a field that already holds a value.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// Predicate chooses the route out of a node from the post-merge state.
type Predicate[S any] func(ctx context.Context, state S) string

// Node represents a node in the graph
type Node[S any] struct {
	// Name is the unique identifier for the node
	Name string

	// Description describes what the node does
	Description string

	// Function is the function associated with the node
	Function NodeFunc[S]

	// Writes lists the state keys the node may write. Empty means any key
	// except the processing path.
	Writes []string
}

// NodeOption configures a node added with AddNode.
type NodeOption func(*nodeOptions)

type nodeOptions struct {
	writes []string
}

// Writes declares the state keys a node is allowed to write. A delta that
// touches any other key aborts the run with ErrUndeclaredWrite.
func Writes(keys ...string) NodeOption {
	return func(o *nodeOptions) {
		o.writes = append(o.writes, keys...)
	}
}

type conditionalEdge[S any] struct {
	predicate Predicate[S]
	pathMap   map[string]string
}

// StateGraph is a directed graph of named nodes over a struct state S.
type StateGraph[S any] struct {
	name string

	// nodes is a map of node names to their corresponding Node objects
	nodes map[string]*Node[S]

	// edges is a slice of Edge objects representing the static connections between nodes
	edges []Edge

	// conditionalEdges maps a "from" node to the predicate routing out of it
	conditionalEdges map[string]conditionalEdge[S]

	// entryPoint is the name of the entry point node in the graph
	entryPoint string

	// errs collects registration errors reported by Compile
	errs []error
}

// NewStateGraph creates an empty graph.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		name:             "graph",
		nodes:            make(map[string]*Node[S]),
		conditionalEdges: make(map[string]conditionalEdge[S]),
	}
}

// SetName names the graph in traces, logs and checkpoint metadata.
func (g *StateGraph[S]) SetName(name string) {
	g.name = name
}

// Name returns the graph name.
func (g *StateGraph[S]) Name() string {
	return g.name
}

// AddNode adds a new node to the state graph with the given name, description and function
func (g *StateGraph[S]) AddNode(name string, description string, fn NodeFunc[S], opts ...NodeOption) {
	if name == "" || name == END {
		g.errs = append(g.errs, fmt.Errorf("invalid node name %q", name))
		return
	}
	if fn == nil {
		g.errs = append(g.errs, fmt.Errorf("node %s: nil function", name))
		return
	}
	if _, ok := g.nodes[name]; ok {
		g.errs = append(g.errs, fmt.Errorf("%w: %s", ErrDuplicateNode, name))
		return
	}

	var o nodeOptions
	for _, opt := range opts {
		opt(&o)
	}
	g.nodes[name] = &Node[S]{
		Name:        name,
		Description: description,
		Function:    fn,
		Writes:      o.writes,
	}
}

// AddEdge adds a new edge to the state graph between the "from" and "to" nodes
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{From: from, To: to})
}

// AddConditionalEdge routes out of from by evaluating predicate on the
// post-merge state. The predicate result is looked up in pathMap; a nil
// pathMap treats the result as a node name (or END).
func (g *StateGraph[S]) AddConditionalEdge(from string, predicate Predicate[S], pathMap map[string]string) {
	if _, ok := g.conditionalEdges[from]; ok {
		g.errs = append(g.errs, fmt.Errorf("%w: %s has two conditional edges", ErrAmbiguousEdge, from))
		return
	}
	var pm map[string]string
	if pathMap != nil {
		pm = make(map[string]string, len(pathMap))
		for k, v := range pathMap {
			pm[k] = v
		}
	}
	g.conditionalEdges[from] = conditionalEdge[S]{predicate: predicate, pathMap: pm}
}

// SetEntryPoint sets the entry point node name for the state graph
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// Nodes returns the registered nodes sorted by name.
func (g *StateGraph[S]) Nodes() []Node[S] {
	out := make([]Node[S], 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (g *StateGraph[S]) hasTarget(name string) bool {
	if name == END {
		return true
	}
	_, ok := g.nodes[name]
	return ok
}

// Compile validates the graph and returns an executable Runnable.
//
// It checks the entry point, every edge and path-map target, the keys named
// in Writes, and that each node has exactly one way out: one static edge or
// one conditional edge.
func (g *StateGraph[S]) Compile() (*Runnable[S], error) {
	if len(g.errs) > 0 {
		return nil, g.errs[0]
	}

	schema, err := NewStructSchema[S]()
	if err != nil {
		return nil, err
	}

	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("%w: entry point %s", ErrNodeNotFound, g.entryPoint)
	}

	next := make(map[string]string, len(g.edges))
	for _, e := range g.edges {
		if _, ok := g.nodes[e.From]; !ok {
			return nil, fmt.Errorf("%w: edge source %s", ErrNodeNotFound, e.From)
		}
		if !g.hasTarget(e.To) {
			return nil, fmt.Errorf("%w: edge target %s", ErrNodeNotFound, e.To)
		}
		if _, dup := next[e.From]; dup {
			return nil, fmt.Errorf("%w: %s", ErrAmbiguousEdge, e.From)
		}
		next[e.From] = e.To
	}

	for from, ce := range g.conditionalEdges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("%w: conditional edge source %s", ErrNodeNotFound, from)
		}
		if ce.predicate == nil {
			return nil, fmt.Errorf("conditional edge from %s: nil predicate", from)
		}
		if _, dup := next[from]; dup {
			return nil, fmt.Errorf("%w: %s has a static and a conditional edge", ErrAmbiguousEdge, from)
		}
		for route, to := range ce.pathMap {
			if !g.hasTarget(to) {
				return nil, fmt.Errorf("%w: route %q from %s targets %s", ErrNodeNotFound, route, from, to)
			}
		}
	}

	pathKey := schema.PathKey()
	writes := make(map[string]map[string]bool, len(g.nodes))
	for name, n := range g.nodes {
		_, static := next[name]
		_, conditional := g.conditionalEdges[name]
		if !static && !conditional {
			return nil, fmt.Errorf("%w: %s", ErrNoOutgoingEdge, name)
		}
		if len(n.Writes) == 0 {
			continue
		}
		allowed := make(map[string]bool, len(n.Writes))
		for _, key := range n.Writes {
			if !schema.HasKey(key) {
				return nil, fmt.Errorf("node %s declares unknown state key %q", name, key)
			}
			if key == pathKey {
				return nil, fmt.Errorf("node %s may not declare the processing path %q", name, key)
			}
			allowed[key] = true
		}
		writes[name] = allowed
	}

	nodes := make(map[string]*Node[S], len(g.nodes))
	for name, n := range g.nodes {
		cp := *n
		nodes[name] = &cp
	}
	conditional := make(map[string]conditionalEdge[S], len(g.conditionalEdges))
	for from, ce := range g.conditionalEdges {
		conditional[from] = ce
	}

	return &Runnable[S]{
		name:        g.name,
		schema:      schema,
		entryPoint:  g.entryPoint,
		nodes:       nodes,
		edges:       append([]Edge(nil), g.edges...),
		next:        next,
		conditional: conditional,
		writes:      writes,
		pathKey:     pathKey,
	}, nil
}
