// Package collab is the boundary between workflow nodes and external
// collaborators (models, vector stores, repositories, tools).
//
// Every collaborator call goes through Do, which runs it on a bounded ants
// worker pool with an optional timeout, recovers panics and classifies the
// outcome into a Result. Nodes switch on Result.OK and apply their own
// documented fallback instead of returning the error.
package collab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
)

// ErrorKind classifies a failed collaborator call.
type ErrorKind string

const (
	KindTimeout       ErrorKind = "timeout"
	KindCancelled     ErrorKind = "cancelled"
	KindUnavailable   ErrorKind = "unavailable"
	KindInvalidOutput ErrorKind = "invalid_output"
	KindPanic         ErrorKind = "panic"
)

// Error is a classified collaborator failure.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// InvalidOutput marks err as a malformed collaborator response.
func InvalidOutput(err error) error {
	return &Error{Kind: KindInvalidOutput, Err: err}
}

// Result is the outcome of a collaborator call.
type Result[T any] struct {
	Value T
	Err   error
	Kind  ErrorKind
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail wraps a classified failure.
func Fail[T any](kind ErrorKind, err error) Result[T] {
	return Result[T]{Err: err, Kind: kind}
}

// OK reports whether the call succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Or returns the value on success and fallback otherwise.
func (r Result[T]) Or(fallback T) T {
	if r.Err != nil {
		return fallback
	}
	return r.Value
}

// Classify maps err to an ErrorKind.
func Classify(err error) ErrorKind {
	var ce *Error
	switch {
	case errors.As(err, &ce) && ce.Kind != "":
		return ce.Kind
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	default:
		return KindUnavailable
	}
}

// Dispatcher runs collaborator calls on a bounded worker pool.
// A nil *Dispatcher runs calls inline on the caller's goroutine.
type Dispatcher struct {
	pool    *ants.Pool
	timeout time.Duration
}

// NewDispatcher creates a pool of size workers. Each call is given timeout
// unless it is zero.
func NewDispatcher(size int, timeout time.Duration) (*Dispatcher, error) {
	if size < 1 {
		size = 1
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("create collaborator pool: %w", err)
	}
	return &Dispatcher{pool: pool, timeout: timeout}, nil
}

// Running returns the number of calls in flight.
func (d *Dispatcher) Running() int {
	if d == nil || d.pool == nil {
		return 0
	}
	return d.pool.Running()
}

// Release stops the pool. Calls submitted afterwards fail as KindUnavailable.
func (d *Dispatcher) Release() {
	if d != nil && d.pool != nil {
		d.pool.Release()
	}
}

// Do runs fn for operation op and classifies the outcome. It returns as soon
// as ctx is done even if fn has not returned yet; fn receives a context that
// is cancelled at that point.
func Do[T any](ctx context.Context, d *Dispatcher, op string, fn func(ctx context.Context) (T, error)) Result[T] {
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if d != nil && d.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan Result[T], 1)
	task := func() {
		defer func() {
			if p := recover(); p != nil {
				done <- Fail[T](KindPanic, &Error{Op: op, Kind: KindPanic, Err: fmt.Errorf("%v", p)})
			}
		}()
		v, err := fn(callCtx)
		if err != nil {
			kind := Classify(err)
			if cerr := callCtx.Err(); cerr != nil && kind == KindUnavailable {
				kind = Classify(cerr)
			}
			done <- Fail[T](kind, &Error{Op: op, Kind: kind, Err: err})
			return
		}
		done <- Ok(v)
	}

	if d == nil || d.pool == nil {
		task()
	} else if err := d.pool.Submit(task); err != nil {
		return Fail[T](KindUnavailable, &Error{Op: op, Kind: KindUnavailable, Err: err})
	}

	select {
	case r := <-done:
		return r
	case <-callCtx.Done():
		kind := Classify(callCtx.Err())
		return Fail[T](kind, &Error{Op: op, Kind: kind, Err: callCtx.Err()})
	}
}
