package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/tenantflow/log"
	"github.com/smallnest/tenantflow/store"
)

// Config carries per-run options.
type Config struct {
	// ThreadID names the conversation whose snapshot is written after END.
	ThreadID string

	// Checkpointer receives the full final state when ThreadID is set.
	Checkpointer store.Checkpointer

	// RecursionLimit caps the number of node executions. Zero means no cap;
	// loops must then be bounded by counters in the state itself.
	RecursionLimit int

	// Tags and Metadata are copied into the saved checkpoint.
	Tags     []string
	Metadata map[string]any
}

// Runnable is a compiled StateGraph. It is safe for concurrent use; each
// invocation owns its state.
type Runnable[S any] struct {
	name        string
	schema      *StructSchema[S]
	entryPoint  string
	nodes       map[string]*Node[S]
	edges       []Edge
	next        map[string]string
	conditional map[string]conditionalEdge[S]
	writes      map[string]map[string]bool
	pathKey     string

	tracer *Tracer
	logger log.Logger
}

// Name returns the graph name.
func (r *Runnable[S]) Name() string {
	return r.name
}

// Schema returns the merge schema of the state type.
func (r *Runnable[S]) Schema() *StructSchema[S] {
	return r.schema
}

// WithTracer returns a copy of the runnable that reports to tracer.
func (r *Runnable[S]) WithTracer(tracer *Tracer) *Runnable[S] {
	cp := *r
	cp.tracer = tracer
	return &cp
}

// WithLogger returns a copy of the runnable that logs to logger.
func (r *Runnable[S]) WithLogger(logger log.Logger) *Runnable[S] {
	cp := *r
	cp.logger = logger
	return &cp
}

// Invoke executes the graph without persistence.
func (r *Runnable[S]) Invoke(ctx context.Context, initialState S) (S, error) {
	return r.InvokeWithConfig(ctx, initialState, nil)
}

// InvokeWithConfig executes the graph from the entry point until END.
//
// A node error aborts the run and is returned as *NodeError together with
// the state reached so far. If the final state cannot be persisted, the
// complete final state is returned with an error wrapping ErrCheckpointSave.
func (r *Runnable[S]) InvokeWithConfig(ctx context.Context, initialState S, config *Config) (S, error) {
	return r.run(ctx, initialState, config, nil)
}

// Stream executes the graph like InvokeWithConfig and reports its progress.
//
// The channel yields NodeStart, any Token events the node emits, ChainDelta
// and NodeEnd for every node execution, then exactly one ChainEnd[S] or
// Error, and is closed. Sends block until received or ctx is done; no event
// is dropped while the consumer keeps reading. The terminal event is still
// offered for terminalGrace after ctx is done, so a consumer that keeps
// reading sees the cancellation error.
func (r *Runnable[S]) Stream(ctx context.Context, initialState S, config *Config) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)

		send := func(ev Event) error {
			select {
			case out <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		final, err := r.run(ctx, initialState, config, send)
		switch {
		case err == nil:
			sendTerminal(ctx, out, ChainEnd[S]{State: final})
		case errors.Is(err, ErrCheckpointSave):
			sendTerminal(ctx, out, ChainEnd[S]{State: final, CheckpointErr: err})
		default:
			ev := Error{Err: err}
			var nodeErr *NodeError
			if errors.As(err, &nodeErr) {
				ev.Node = nodeErr.Node
			}
			sendTerminal(ctx, out, ev)
		}
	}()
	return out
}

// terminalGrace bounds how long a cancelled stream waits for its consumer to
// take the terminal event.
const terminalGrace = 100 * time.Millisecond

func sendTerminal(ctx context.Context, out chan<- Event, ev Event) {
	if ctx.Err() == nil {
		select {
		case out <- ev:
			return
		case <-ctx.Done():
		}
	}
	timer := time.NewTimer(terminalGrace)
	defer timer.Stop()
	select {
	case out <- ev:
	case <-timer.C:
	}
}

func (r *Runnable[S]) getLogger() log.Logger {
	return log.OrDefault(r.logger)
}

func (r *Runnable[S]) run(ctx context.Context, initialState S, config *Config, send func(Event) error) (S, error) {
	if config == nil {
		config = &Config{}
	}
	ctx = WithConfig(ctx, config)

	runSpan := r.tracer.StartSpan(ctx, TraceEventGraphStart, r.name, "")
	ctx = ContextWithSpan(ctx, runSpan)
	r.getLogger().Debug("graph %s: run started (thread=%q)", r.name, config.ThreadID)

	state, err := r.loop(ctx, r.schema.Clone(initialState), config, send)
	if err == nil && config.ThreadID != "" && config.Checkpointer != nil {
		if saveErr := r.save(ctx, config, state); saveErr != nil {
			r.getLogger().Warn("graph %s: %v", r.name, saveErr)
			err = saveErr
		}
	}

	r.tracer.EndSpan(ctx, runSpan, err)
	if err != nil && !errors.Is(err, ErrCheckpointSave) {
		r.getLogger().Debug("graph %s: run failed: %v", r.name, err)
	} else {
		r.getLogger().Debug("graph %s: run finished, path=%v", r.name, r.schema.Path(state))
	}
	return state, err
}

func (r *Runnable[S]) loop(ctx context.Context, state S, config *Config, send func(Event) error) (S, error) {
	current := r.entryPoint
	step := 0

	for current != END {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		step++
		if config.RecursionLimit > 0 && step > config.RecursionLimit {
			return state, fmt.Errorf("%w: %d steps without reaching %s", ErrRecursionLimit, config.RecursionLimit, END)
		}

		node, ok := r.nodes[current]
		if !ok {
			return state, fmt.Errorf("%w: %s", ErrNodeNotFound, current)
		}

		if send != nil {
			if err := send(NodeStart{Node: node.Name, Step: step}); err != nil {
				return state, err
			}
		}

		nodeSpan := r.tracer.StartSpan(ctx, TraceEventNodeStart, r.name, node.Name)
		nodeSpan.Step = step
		nodeCtx := ctx
		if send != nil {
			name := node.Name
			nodeCtx = withEmitter(nodeCtx, func(text string) error {
				return send(Token{Node: name, Text: text})
			})
		}

		start := time.Now()
		delta, err := r.execute(nodeCtx, node, r.schema.Clone(state))
		if err == nil {
			err = r.checkWrites(node.Name, delta)
		}
		r.tracer.EndSpan(ctx, nodeSpan, err)
		if err != nil {
			return state, err
		}

		state = r.schema.RecordVisit(state, node.Name)
		state = r.schema.Merge(state, delta)

		if send != nil {
			if err := send(ChainDelta[S]{Node: node.Name, Step: step, Delta: delta}); err != nil {
				return state, err
			}
			if err := send(NodeEnd{Node: node.Name, Step: step, Duration: time.Since(start)}); err != nil {
				return state, err
			}
		}

		next, err := r.route(ctx, node.Name, state)
		if err != nil {
			return state, err
		}
		r.tracer.TraceEdgeTraversal(ctx, r.name, node.Name, next)
		current = next
	}

	return state, nil
}

// execute runs a node, converting errors and panics into *NodeError.
func (r *Runnable[S]) execute(ctx context.Context, node *Node[S], state S) (delta S, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.getLogger().Error("graph %s: node %s panicked: %v\n%s", r.name, node.Name, p, debug.Stack())
			err = &NodeError{Node: node.Name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	delta, err = node.Function(ctx, state)
	if err != nil {
		var nodeErr *NodeError
		if errors.As(err, &nodeErr) && nodeErr.Node == node.Name {
			return delta, err
		}
		return delta, &NodeError{Node: node.Name, Err: err}
	}
	return delta, nil
}

func (r *Runnable[S]) checkWrites(node string, delta S) error {
	allowed := r.writes[node]
	for _, key := range r.schema.Keys(delta) {
		if key == r.pathKey || (allowed != nil && !allowed[key]) {
			return &NodeError{Node: node, Err: fmt.Errorf("%w: %q", ErrUndeclaredWrite, key)}
		}
	}
	return nil
}

func (r *Runnable[S]) route(ctx context.Context, from string, state S) (string, error) {
	if to, ok := r.next[from]; ok {
		return to, nil
	}

	ce, ok := r.conditional[from]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoOutgoingEdge, from)
	}

	route := ce.predicate(ctx, state)
	if ce.pathMap == nil {
		if route == END {
			return END, nil
		}
		if _, ok := r.nodes[route]; ok {
			return route, nil
		}
		return "", fmt.Errorf("%w: %s returned %q", ErrUnknownRoute, from, route)
	}

	to, ok := ce.pathMap[route]
	if !ok {
		return "", fmt.Errorf("%w: %s returned %q", ErrUnknownRoute, from, route)
	}
	return to, nil
}

func (r *Runnable[S]) save(ctx context.Context, config *Config, state S) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: marshal state: %w", ErrCheckpointSave, err)
	}

	version := 1
	prev, err := config.Checkpointer.Get(ctx, config.ThreadID)
	switch {
	case err == nil:
		version = prev.Version + 1
	case !errors.Is(err, store.ErrCheckpointNotFound):
		return fmt.Errorf("%w: %w", ErrCheckpointSave, err)
	}

	metadata := make(map[string]any, len(config.Metadata)+2)
	for k, v := range config.Metadata {
		metadata[k] = v
	}
	metadata["graph"] = r.name
	if len(config.Tags) > 0 {
		metadata["tags"] = append([]string(nil), config.Tags...)
	}

	cp := &store.Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  config.ThreadID,
		NodeName:  END,
		State:     data,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
		Version:   version,
	}
	if err := config.Checkpointer.Put(ctx, cp); err != nil {
		return fmt.Errorf("%w: %w", ErrCheckpointSave, err)
	}
	return nil
}

// GetState loads the snapshot saved for threadID. The bool is false when
// the thread has no snapshot.
func (r *Runnable[S]) GetState(ctx context.Context, cp store.Checkpointer, threadID string) (S, bool, error) {
	return LoadState[S](ctx, cp, threadID)
}

// DeleteState removes the snapshot saved for threadID.
func (r *Runnable[S]) DeleteState(ctx context.Context, cp store.Checkpointer, threadID string) (bool, error) {
	return cp.Delete(ctx, threadID)
}

// LoadState decodes the snapshot saved for threadID into S.
func LoadState[S any](ctx context.Context, cp store.Checkpointer, threadID string) (S, bool, error) {
	var state S
	checkpoint, err := cp.Get(ctx, threadID)
	if err != nil {
		if errors.Is(err, store.ErrCheckpointNotFound) {
			return state, false, nil
		}
		return state, false, err
	}
	if err := json.Unmarshal(checkpoint.State, &state); err != nil {
		return state, false, fmt.Errorf("decode state of thread %s: %w", threadID, err)
	}
	return state, true, nil
}
