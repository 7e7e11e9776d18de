// Package storetest contains the shared behavioral tests for store.Checkpointer
// implementations.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smallnest/tenantflow/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewCheckpoint builds a checkpoint for threadID holding a small JSON state.
func NewCheckpoint(threadID string, version int) *store.Checkpoint {
	state, _ := json.Marshal(map[string]any{"messages": []string{"hello"}, "version": version})
	return &store.Checkpoint{
		ID:        fmt.Sprintf("%s-%d", threadID, version),
		ThreadID:  threadID,
		NodeName:  "END",
		State:     state,
		Metadata:  map[string]any{"graph": "test"},
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Version:   version,
	}
}

// RunCheckpointerTests exercises the round-trip, overwrite, delete and
// isolation behavior every backend must provide.
func RunCheckpointerTests(t *testing.T, cp store.Checkpointer) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing thread", func(t *testing.T) {
		_, err := cp.Get(ctx, "missing-thread")
		assert.ErrorIs(t, err, store.ErrCheckpointNotFound)
	})

	t.Run("round trip", func(t *testing.T) {
		in := NewCheckpoint("round-trip", 1)
		require.NoError(t, cp.Put(ctx, in))

		out, err := cp.Get(ctx, "round-trip")
		require.NoError(t, err)
		assert.Equal(t, in.ID, out.ID)
		assert.Equal(t, in.ThreadID, out.ThreadID)
		assert.Equal(t, in.NodeName, out.NodeName)
		assert.Equal(t, in.Version, out.Version)
		assert.JSONEq(t, string(in.State), string(out.State))
		assert.Equal(t, "test", out.Metadata["graph"])
		assert.True(t, in.Timestamp.Equal(out.Timestamp), "timestamp %v != %v", in.Timestamp, out.Timestamp)
	})

	t.Run("put replaces", func(t *testing.T) {
		require.NoError(t, cp.Put(ctx, NewCheckpoint("replace", 1)))
		require.NoError(t, cp.Put(ctx, NewCheckpoint("replace", 2)))

		out, err := cp.Get(ctx, "replace")
		require.NoError(t, err)
		assert.Equal(t, 2, out.Version)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, cp.Put(ctx, NewCheckpoint("delete-me", 1)))

		deleted, err := cp.Delete(ctx, "delete-me")
		require.NoError(t, err)
		assert.True(t, deleted)

		_, err = cp.Get(ctx, "delete-me")
		assert.ErrorIs(t, err, store.ErrCheckpointNotFound)

		deleted, err = cp.Delete(ctx, "delete-me")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("threads are isolated", func(t *testing.T) {
		require.NoError(t, cp.Put(ctx, NewCheckpoint("iso-a", 1)))
		require.NoError(t, cp.Put(ctx, NewCheckpoint("iso-b", 7)))

		a, err := cp.Get(ctx, "iso-a")
		require.NoError(t, err)
		b, err := cp.Get(ctx, "iso-b")
		require.NoError(t, err)
		assert.Equal(t, 1, a.Version)
		assert.Equal(t, 7, b.Version)
	})

	t.Run("invalid checkpoint", func(t *testing.T) {
		assert.Error(t, cp.Put(ctx, &store.Checkpoint{ID: "no-thread"}))
	})

	t.Run("concurrent threads", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("concurrent-%d", i)
				assert.NoError(t, cp.Put(ctx, NewCheckpoint(id, i)))
				got, err := cp.Get(ctx, id)
				if assert.NoError(t, err) {
					assert.Equal(t, i, got.Version)
				}
			}(i)
		}
		wg.Wait()
	})
}
