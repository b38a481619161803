package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"BikeDS/internal/storage"
)

// ErrRingMismatch is returned when a store is reopened for a different ring
// size than it was created with.
var ErrRingMismatch = errors.New("store holds records for another ring size")

var (
	recordPrefix = []byte("c:")       // checkpoint records
	ringKey      = []byte("m:ring")   // ring size the store was created for
	trialsKey    = []byte("m:trials") // trials covered by all records
)

// Store is an append-only record log in a pebble database. Each record is
// stored under c:<seq> with a big-endian sequence number, so reopening a store
// continues after the last record. The ring size and the running trial count
// are kept under m: keys.
type Store struct {
	db    *storage.Storage
	rBits int

	mu     sync.Mutex
	next   uint64
	trials uint64
}

// OpenStore opens or creates the store at path for a ring of rBits positions.
func OpenStore(path string, rBits int) (*Store, error) {
	db, err := storage.New(path)
	if err != nil {
		return nil, fmt.Errorf("open storage %s:\n%w", path, err)
	}

	last, err := db.LastKey(recordPrefix)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("find last record:\n%w", err)
	}

	s := &Store{db: db, rBits: rBits}

	if last != nil {
		if len(last) != len(recordPrefix)+8 {
			db.Close()
			return nil, fmt.Errorf("%w: key %x", ErrRecordShape, last)
		}

		s.next = binary.BigEndian.Uint64(last[len(recordPrefix):]) + 1
	}

	if err := s.loadMeta(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// loadMeta checks the stored ring size, writing it on first open, and loads
// the trial count.
func (s *Store) loadMeta() error {
	ring, err := s.db.Get(ringKey)
	if err != nil {
		return fmt.Errorf("read ring size:\n%w", err)
	}

	if ring == nil {
		if s.next > 0 {
			return fmt.Errorf("%w: records without ring size", ErrRecordShape)
		}

		return s.db.Set(ringKey, binary.BigEndian.AppendUint64(nil, uint64(s.rBits)))
	}

	if len(ring) != 8 {
		return fmt.Errorf("%w: ring size value %x", ErrRecordShape, ring)
	}

	if got := binary.BigEndian.Uint64(ring); got != uint64(s.rBits) {
		return fmt.Errorf("%w: stored %d, opened with %d", ErrRingMismatch, got, s.rBits)
	}

	trials, err := s.db.Get(trialsKey)
	if err != nil {
		return fmt.Errorf("read trial count:\n%w", err)
	}

	if trials != nil {
		if len(trials) != 8 {
			return fmt.Errorf("%w: trial count value %x", ErrRecordShape, trials)
		}
		s.trials = binary.BigEndian.Uint64(trials)
	}

	return nil
}

// Append encodes rec and writes it together with the new trial count in one
// synced batch.
func (s *Store) Append(rec *Record) error {
	value, err := Encode(rec)
	if err != nil {
		return fmt.Errorf("encode record:\n%w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	trials := s.trials + rec.Size

	err = s.db.SetBatch([]storage.KeyValue{
		{Key: recordKey(s.next), Value: value},
		{Key: trialsKey, Value: binary.BigEndian.AppendUint64(nil, trials)},
	})
	if err != nil {
		return fmt.Errorf("write record %d:\n%w", s.next, err)
	}

	s.next++
	s.trials = trials

	return nil
}

// Records decodes every stored record in key order and calls fn.
func (s *Store) Records(fn func(rec *Record) error) error {
	return s.db.IteratePrefix(recordPrefix, func(key, value []byte) error {
		rec, err := Decode(value, s.rBits)
		if err != nil {
			return fmt.Errorf("record %x:\n%w", key[len(recordPrefix):], err)
		}

		return fn(rec)
	})
}

// Len returns the number of records appended so far.
func (s *Store) Len() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.next
}

// Trials returns the number of trials covered by all stored records.
func (s *Store) Trials() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.trials
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// recordKey builds the storage key for sequence number seq.
func recordKey(seq uint64) []byte {
	key := make([]byte, len(recordPrefix)+8)
	copy(key, recordPrefix)
	binary.BigEndian.PutUint64(key[len(recordPrefix):], seq)

	return key
}
