// Package memory provides a bounded in-process store.Checkpointer.
//
// Snapshots are evicted least-recently-used once Capacity is exceeded and
// expire TTL after their last write. A zero Capacity or TTL disables that
// bound.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/smallnest/tenantflow/store"
)

// DefaultCapacity is used when Options.Capacity is zero.
const DefaultCapacity = 10000

// Options configures a MemoryCheckpointStore.
type Options struct {
	Capacity int
	TTL      time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

type entry struct {
	checkpoint *store.Checkpoint
	expiresAt  time.Time
}

// MemoryCheckpointStore implements store.Checkpointer in memory.
type MemoryCheckpointStore struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	order    *list.List
	items    map[string]*list.Element
}

var _ store.Checkpointer = (*MemoryCheckpointStore)(nil)

// NewMemoryCheckpointStore creates a store with DefaultCapacity and no TTL.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return NewMemoryCheckpointStoreWithOptions(Options{})
}

// NewMemoryCheckpointStoreWithOptions creates a store with the given bounds.
// A negative Capacity means unbounded.
func NewMemoryCheckpointStoreWithOptions(opts Options) *MemoryCheckpointStore {
	capacity := opts.Capacity
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &MemoryCheckpointStore{
		capacity: capacity,
		ttl:      opts.TTL,
		now:      now,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns a copy of the snapshot stored for threadID.
func (s *MemoryCheckpointStore) Get(ctx context.Context, threadID string) (*store.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[threadID]
	if !ok {
		return nil, store.ErrCheckpointNotFound
	}
	e := el.Value.(*entry)
	if s.expired(e) {
		s.remove(el)
		return nil, store.ErrCheckpointNotFound
	}
	s.order.MoveToFront(el)
	return e.checkpoint.Clone(), nil
}

// Put stores a copy of checkpoint, evicting the least recently used thread when full.
func (s *MemoryCheckpointStore) Put(ctx context.Context, checkpoint *store.Checkpoint) error {
	if err := checkpoint.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{checkpoint: checkpoint.Clone()}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}

	if el, ok := s.items[checkpoint.ThreadID]; ok {
		el.Value = e
		s.order.MoveToFront(el)
		return nil
	}

	s.items[checkpoint.ThreadID] = s.order.PushFront(e)
	s.evict()
	return nil
}

// Delete removes the snapshot for threadID.
func (s *MemoryCheckpointStore) Delete(ctx context.Context, threadID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[threadID]
	if !ok {
		return false, nil
	}
	expired := s.expired(el.Value.(*entry))
	s.remove(el)
	return !expired, nil
}

// Len returns the number of snapshots held, including expired ones not yet purged.
func (s *MemoryCheckpointStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Purge drops every expired snapshot and returns how many were removed.
func (s *MemoryCheckpointStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for el := s.order.Back(); el != nil; {
		prev := el.Prev()
		if s.expired(el.Value.(*entry)) {
			s.remove(el)
			removed++
		}
		el = prev
	}
	return removed
}

func (s *MemoryCheckpointStore) expired(e *entry) bool {
	return !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)
}

func (s *MemoryCheckpointStore) evict() {
	if s.capacity < 0 {
		return
	}
	for s.order.Len() > s.capacity {
		s.remove(s.order.Back())
	}
}

func (s *MemoryCheckpointStore) remove(el *list.Element) {
	e := s.order.Remove(el).(*entry)
	delete(s.items, e.checkpoint.ThreadID)
}
