package graph

import (
	"errors"
	"fmt"
)

// END is a special constant used to represent the end node in the graph.
const END = "END"

var (
	// ErrEntryPointNotSet is returned when the entry point of the graph is not set.
	ErrEntryPointNotSet = errors.New("entry point not set")

	// ErrNodeNotFound is returned when a node is not found in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateNode is returned when two nodes are registered under one name.
	ErrDuplicateNode = errors.New("duplicate node")

	// ErrNoOutgoingEdge is returned when no outgoing edge is found for a node.
	ErrNoOutgoingEdge = errors.New("no outgoing edge found for node")

	// ErrAmbiguousEdge is returned when a node has more than one way out.
	ErrAmbiguousEdge = errors.New("node has more than one outgoing edge")

	// ErrUnknownRoute is returned when a conditional edge yields a value missing from its path map.
	ErrUnknownRoute = errors.New("conditional edge returned an unmapped route")

	// ErrUndeclaredWrite is returned when a node delta touches a key it did not declare.
	ErrUndeclaredWrite = errors.New("node wrote an undeclared key")

	// ErrRecursionLimit is returned when a run exceeds Config.RecursionLimit steps.
	ErrRecursionLimit = errors.New("recursion limit reached")

	// ErrCheckpointSave is returned, wrapped, when the final state could not be persisted.
	// The state returned alongside it is still the complete final state.
	ErrCheckpointSave = errors.New("checkpoint save failed")

	// ErrStreamIncomplete is reported by stream consumers when the event
	// channel closed without a ChainEnd or Error event.
	ErrStreamIncomplete = errors.New("stream ended without a terminal event")
)

// Edge represents an edge in the graph.
type Edge struct {
	// From is the name of the node from which the edge originates.
	From string

	// To is the name of the node to which the edge points.
	To string
}

// NodeError wraps a failure raised inside a node function.
// It is the only kind of error that aborts a run from inside the graph.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("error in node %s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
