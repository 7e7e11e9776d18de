package graph

import "time"

// Event is one item of the stream produced by Runnable.Stream.
//
// The set of events is closed: NodeStart, NodeEnd, Token, ChainDelta[S],
// ChainEnd[S] and Error. Consumers switch on the concrete type.
type Event interface {
	isEvent()
}

// NodeStart is emitted before a node runs. Step counts node executions from 1.
type NodeStart struct {
	Node string
	Step int
}

// NodeEnd is emitted after a node's delta has been merged.
type NodeEnd struct {
	Node     string
	Step     int
	Duration time.Duration
}

// Token carries one chunk of text generated inside a node, see EmitToken.
type Token struct {
	Node string
	Text string
}

// ChainDelta carries the partial state a node returned.
type ChainDelta[S any] struct {
	Node  string
	Step  int
	Delta S
}

// ChainEnd is the last event of a successful run.
// CheckpointErr is set when the final state could not be persisted.
type ChainEnd[S any] struct {
	State         S
	CheckpointErr error
}

// Error is the last event of a failed run.
type Error struct {
	Node string
	Err  error
}

func (NodeStart) isEvent()     {}
func (NodeEnd) isEvent()       {}
func (Token) isEvent()         {}
func (ChainDelta[S]) isEvent() {}
func (ChainEnd[S]) isEvent()   {}
func (Error) isEvent()         {}
