// Package store defines the checkpointer contract used by the graph engine to
// keep the latest state snapshot of a conversation thread.
//
// A Checkpointer holds exactly one Checkpoint per thread id. The engine writes
// the full final state after a run reaches END and never merges prior history
// into a new run on its own; callers load a snapshot explicitly when they want
// to resume.
//
// Backends live in sub-packages:
//   - memory: bounded in-process store with LRU capacity and TTL eviction
//   - redis: github.com/redis/go-redis/v9
//   - sqlite: github.com/mattn/go-sqlite3
//   - postgres: github.com/jackc/pgx/v5
//   - badger: github.com/dgraph-io/badger/v4
//
// The storetest sub-package holds the behavioral test suite every backend runs.
package store
