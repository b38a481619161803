package storage

import (
	"errors"

	"github.com/cockroachdb/pebble"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage closed")

// KeyValue represents a key-value pair for batch operations.
type KeyValue struct {
	Key   []byte // Key is the key to store
	Value []byte // Value is the value to store
}

// Storage is a key-value store backed by Pebble.
// Every write is committed with pebble.Sync, so a successful return means the
// data reached stable storage.
type Storage struct {
	db *pebble.DB
}

// New opens (or creates) a Storage at the given path.
func New(path string) (*Storage, error) {
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(8 << 20), // 8 MB cache
		MemTableSize:                16 << 20,                 // 16 MB memtable
		MemTableStopWritesThreshold: 2,
	}
	defer opts.Cache.Unref()

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}

	return &Storage{db: db}, nil
}

// Get retrieves the value for the given key.
// Returns nil if the key does not exist.
func (s *Storage) Get(key []byte) ([]byte, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	value, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// Copy the value since it's invalid after closer.Close()
	result := make([]byte, len(value))
	copy(result, value)

	return result, nil
}

// Set stores a key-value pair and waits for the WAL sync.
func (s *Storage) Set(key, value []byte) error {
	if s.db == nil {
		return ErrClosed
	}

	return s.db.Set(key, value, pebble.Sync)
}

// SetBatch atomically and durably stores multiple key-value pairs.
// Either all pairs are written or none.
func (s *Storage) SetBatch(pairs []KeyValue) error {
	if s.db == nil {
		return ErrClosed
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, kv := range pairs {
		if err := batch.Set(kv.Key, kv.Value, nil); err != nil {
			return err
		}
	}

	return batch.Commit(pebble.Sync)
}

// IteratePrefix calls fn for each key-value pair with the given prefix.
// Keys are visited in lexicographic order. The slices passed to fn are only
// valid for the duration of the call.
func (s *Storage) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	if s.db == nil {
		return ErrClosed
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		if err := fn(iter.Key(), value); err != nil {
			return err
		}
	}

	return iter.Error()
}

// LastKey returns a copy of the greatest key carrying the given prefix,
// or nil if there is none.
func (s *Storage) LastKey(prefix []byte) ([]byte, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	if !iter.Last() {
		return nil, iter.Error()
	}

	key := make([]byte, len(iter.Key()))
	copy(key, iter.Key())

	return key, nil
}

// prefixUpperBound computes the exclusive upper bound for a prefix scan.
// Increments the last byte; returns nil if prefix is all 0xFF (full range).
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}

	return nil // all 0xFF -> unbounded
}

// Close flushes and closes the database. Calling Close twice is a no-op.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	return err
}
