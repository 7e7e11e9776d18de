// Package badger provides an embedded store.Checkpointer on
// github.com/dgraph-io/badger/v4.
//
// Snapshots are stored as JSON under "thread/{thread_id}" and may carry a
// TTL, which badger enforces on read.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/smallnest/tenantflow/log"
	"github.com/smallnest/tenantflow/store"
)

const keyPrefix = "thread/"

// BadgerOptions configures a BadgerCheckpointStore.
type BadgerOptions struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	TTL      time.Duration
	Logger   log.Logger
}

// BadgerCheckpointStore implements store.Checkpointer using BadgerDB.
type BadgerCheckpointStore struct {
	db  *badger.DB
	ttl time.Duration
}

var _ store.Checkpointer = (*BadgerCheckpointStore)(nil)

// badgerLogger adapts log.Logger to badger.Logger.
type badgerLogger struct {
	logger log.Logger
}

func (l badgerLogger) Errorf(format string, v ...any)   { l.logger.Error(format, v...) }
func (l badgerLogger) Warningf(format string, v ...any) { l.logger.Warn(format, v...) }
func (l badgerLogger) Infof(format string, v ...any)    { l.logger.Debug(format, v...) }
func (l badgerLogger) Debugf(format string, v ...any)   { l.logger.Debug(format, v...) }

// NewBadgerCheckpointStore opens (or creates) the database.
func NewBadgerCheckpointStore(opts BadgerOptions) (*BadgerCheckpointStore, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("badger path is required")
		}
		if err := os.MkdirAll(opts.Path, 0o755); err != nil {
			return nil, fmt.Errorf("unable to create badger directory: %w", err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts.Logger = badgerLogger{logger: log.OrDefault(opts.Logger)}
	bopts.Compression = options.None

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("unable to open badger: %w", err)
	}
	return &BadgerCheckpointStore{db: db, ttl: opts.TTL}, nil
}

func threadKey(threadID string) []byte {
	return []byte(keyPrefix + threadID)
}

// Get retrieves the snapshot for a thread
func (s *BadgerCheckpointStore) Get(ctx context.Context, threadID string) (*store.Checkpoint, error) {
	var cp store.Checkpoint
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(threadKey(threadID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cp)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, store.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return &cp, nil
}

// Put stores the snapshot for checkpoint.ThreadID
func (s *BadgerCheckpointStore) Put(ctx context.Context, checkpoint *store.Checkpoint) error {
	if err := checkpoint.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(threadKey(checkpoint.ThreadID), data)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Delete removes the snapshot for a thread
func (s *BadgerCheckpointStore) Delete(ctx context.Context, threadID string) (bool, error) {
	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := threadKey(threadID)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		existed = true
		return txn.Delete(key)
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return existed, nil
}

// Threads lists the thread ids that currently hold a snapshot.
func (s *BadgerCheckpointStore) Threads(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(keyPrefix):]))
		}
		return nil
	})
	return ids, err
}

// Close closes the database
func (s *BadgerCheckpointStore) Close() error {
	return s.db.Close()
}
