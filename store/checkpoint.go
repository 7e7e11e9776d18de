package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrCheckpointNotFound is returned by Get when no snapshot exists for a thread.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// Checkpoint is the latest full state snapshot of one conversation thread.
type Checkpoint struct {
	ID        string          `json:"id"`
	ThreadID  string          `json:"thread_id"`
	NodeName  string          `json:"node_name"`
	State     json.RawMessage `json:"state"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Version   int             `json:"version"`
}

// Checkpointer persists one snapshot per thread id.
//
// Implementations are safe for concurrent use across different thread ids.
// Concurrent runs against the same thread id are not serialized; callers
// must not issue them.
type Checkpointer interface {
	// Get returns the snapshot stored for threadID or ErrCheckpointNotFound.
	Get(ctx context.Context, threadID string) (*Checkpoint, error)

	// Put replaces the snapshot stored for checkpoint.ThreadID.
	Put(ctx context.Context, checkpoint *Checkpoint) error

	// Delete removes the snapshot for threadID and reports whether one existed.
	Delete(ctx context.Context, threadID string) (bool, error)
}

// Validate reports whether a checkpoint can be stored.
func (c *Checkpoint) Validate() error {
	if c == nil {
		return errors.New("nil checkpoint")
	}
	if c.ThreadID == "" {
		return errors.New("checkpoint has no thread id")
	}
	return nil
}

// Clone returns a deep copy of the checkpoint's byte payload and metadata map.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	out := *c
	out.State = append(json.RawMessage(nil), c.State...)
	if c.Metadata != nil {
		out.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
