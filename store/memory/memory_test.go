package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smallnest/tenantflow/store"
	"github.com/smallnest/tenantflow/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryCheckpointStore_Contract(t *testing.T) {
	t.Parallel()

	var _ store.Checkpointer = NewMemoryCheckpointStore()
	storetest.RunCheckpointerTests(t, NewMemoryCheckpointStore())
}

func TestMemoryCheckpointStore_ReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ms := NewMemoryCheckpointStore()

	cp := storetest.NewCheckpoint("copy", 1)
	require.NoError(t, ms.Put(ctx, cp))
	cp.State[0] = 'X'
	cp.Metadata["graph"] = "mutated"

	got, err := ms.Get(ctx, "copy")
	require.NoError(t, err)
	assert.Equal(t, byte('{'), got.State[0])
	assert.Equal(t, "test", got.Metadata["graph"])
}

func TestMemoryCheckpointStore_LRUEviction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ms := NewMemoryCheckpointStoreWithOptions(Options{Capacity: 2})

	require.NoError(t, ms.Put(ctx, storetest.NewCheckpoint("a", 1)))
	require.NoError(t, ms.Put(ctx, storetest.NewCheckpoint("b", 1)))

	// touch a so that b becomes the eviction candidate
	_, err := ms.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, ms.Put(ctx, storetest.NewCheckpoint("c", 1)))
	assert.Equal(t, 2, ms.Len())

	_, err = ms.Get(ctx, "b")
	assert.ErrorIs(t, err, store.ErrCheckpointNotFound)
	_, err = ms.Get(ctx, "a")
	assert.NoError(t, err)
	_, err = ms.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestMemoryCheckpointStore_TTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	ms := NewMemoryCheckpointStoreWithOptions(Options{TTL: time.Minute, Now: clock.Now})

	require.NoError(t, ms.Put(ctx, storetest.NewCheckpoint("short", 1)))
	require.NoError(t, ms.Put(ctx, storetest.NewCheckpoint("gone", 1)))

	clock.Advance(30 * time.Second)
	_, err := ms.Get(ctx, "short")
	require.NoError(t, err)

	clock.Advance(31 * time.Second)
	_, err = ms.Get(ctx, "short")
	assert.ErrorIs(t, err, store.ErrCheckpointNotFound)

	deleted, err := ms.Delete(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, deleted, "expired snapshots do not count as deleted")
	assert.Equal(t, 0, ms.Len())
}

func TestMemoryCheckpointStore_Purge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	ms := NewMemoryCheckpointStoreWithOptions(Options{TTL: time.Second, Now: clock.Now})

	require.NoError(t, ms.Put(ctx, storetest.NewCheckpoint("old", 1)))
	clock.Advance(2 * time.Second)
	require.NoError(t, ms.Put(ctx, storetest.NewCheckpoint("fresh", 1)))

	assert.Equal(t, 1, ms.Purge())
	assert.Equal(t, 1, ms.Len())
}
