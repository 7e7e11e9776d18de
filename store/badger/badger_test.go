package badger

import (
	"context"
	"testing"

	"github.com/smallnest/tenantflow/log"
	"github.com/smallnest/tenantflow/store"
	"github.com/smallnest/tenantflow/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerCheckpointStore_InMemory(t *testing.T) {
	cp, err := NewBadgerCheckpointStore(BadgerOptions{InMemory: true, Logger: log.NoOpLogger{}})
	require.NoError(t, err)
	defer cp.Close()

	storetest.RunCheckpointerTests(t, cp)
}

func TestBadgerCheckpointStore_OnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cp, err := NewBadgerCheckpointStore(BadgerOptions{Path: dir, Logger: log.NoOpLogger{}})
	require.NoError(t, err)
	require.NoError(t, cp.Put(ctx, storetest.NewCheckpoint("disk-a", 1)))
	require.NoError(t, cp.Put(ctx, storetest.NewCheckpoint("disk-b", 2)))
	require.NoError(t, cp.Close())

	cp, err = NewBadgerCheckpointStore(BadgerOptions{Path: dir, Logger: log.NoOpLogger{}})
	require.NoError(t, err)
	defer cp.Close()

	got, err := cp.Get(ctx, "disk-b")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)

	ids, err := cp.Threads(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"disk-a", "disk-b"}, ids)

	_, err = cp.Get(ctx, "disk-c")
	assert.ErrorIs(t, err, store.ErrCheckpointNotFound)
}

func TestBadgerCheckpointStore_RequiresPath(t *testing.T) {
	_, err := NewBadgerCheckpointStore(BadgerOptions{})
	assert.Error(t, err)
}
