package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// newTestStorage creates a temporary storage for testing.
func newTestStorage(t *testing.T) (*Storage, string, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	path := filepath.Join(dir, "db")

	s, err := New(path)
	if err != nil {
		os.RemoveAll(dir)
		t.Fatalf("failed to create storage: %v", err)
	}

	cleanup := func() {
		s.Close()
		os.RemoveAll(dir)
	}

	return s, path, cleanup
}

// seqKey builds a prefixed big-endian sequence key.
func seqKey(prefix string, i uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], i)
	return key
}

func TestSetAndGet(t *testing.T) {
	s, _, cleanup := newTestStorage(t)
	defer cleanup()

	key := []byte("test-key")
	value := []byte("test-value")

	if err := s.Set(key, value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if !bytes.Equal(got, value) {
		t.Errorf("Get returned %q, want %q", got, value)
	}
}

func TestGetNonExistent(t *testing.T) {
	s, _, cleanup := newTestStorage(t)
	defer cleanup()

	got, err := s.Get([]byte("non-existent"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got != nil {
		t.Errorf("Get returned %q, want nil", got)
	}
}

func TestSetBatch(t *testing.T) {
	s, _, cleanup := newTestStorage(t)
	defer cleanup()

	pairs := []KeyValue{
		{Key: []byte("batch-1"), Value: []byte("value-1")},
		{Key: []byte("batch-2"), Value: []byte("value-2")},
		{Key: []byte("batch-3"), Value: []byte("value-3")},
	}

	if err := s.SetBatch(pairs); err != nil {
		t.Fatalf("SetBatch failed: %v", err)
	}

	for _, kv := range pairs {
		got, err := s.Get(kv.Key)
		if err != nil {
			t.Fatalf("Get failed for %q: %v", kv.Key, err)
		}

		if !bytes.Equal(got, kv.Value) {
			t.Errorf("Get(%q) = %q, want %q", kv.Key, got, kv.Value)
		}
	}
}

func TestIteratePrefixOrderAndBounds(t *testing.T) {
	s, _, cleanup := newTestStorage(t)
	defer cleanup()

	// Insert out of order, plus keys outside the prefix on both sides.
	for _, i := range []uint64{3, 1, 2} {
		if err := s.Set(seqKey("c:", i), []byte{byte(i)}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := s.Set([]byte("b:zz"), []byte("x")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set([]byte("d:aa"), []byte("x")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var seen []byte
	err := s.IteratePrefix([]byte("c:"), func(key, value []byte) error {
		seen = append(seen, value[0])
		return nil
	})
	if err != nil {
		t.Fatalf("IteratePrefix failed: %v", err)
	}

	if !bytes.Equal(seen, []byte{1, 2, 3}) {
		t.Errorf("visited %v, want [1 2 3]", seen)
	}
}

func TestIteratePrefixStopsOnError(t *testing.T) {
	s, _, cleanup := newTestStorage(t)
	defer cleanup()

	for i := uint64(0); i < 4; i++ {
		if err := s.Set(seqKey("c:", i), []byte{1}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	stop := errors.New("stop")
	calls := 0

	err := s.IteratePrefix([]byte("c:"), func(key, value []byte) error {
		calls++
		return stop
	})

	if !errors.Is(err, stop) {
		t.Errorf("err = %v, want stop", err)
	}

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestLastKey(t *testing.T) {
	s, _, cleanup := newTestStorage(t)
	defer cleanup()

	got, err := s.LastKey([]byte("c:"))
	if err != nil {
		t.Fatalf("LastKey failed: %v", err)
	}
	if got != nil {
		t.Errorf("LastKey on empty store = %x, want nil", got)
	}

	for _, i := range []uint64{5, 300, 42} {
		if err := s.Set(seqKey("c:", i), []byte{1}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := s.Set([]byte("z:last"), []byte{1}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err = s.LastKey([]byte("c:"))
	if err != nil {
		t.Fatalf("LastKey failed: %v", err)
	}

	if !bytes.Equal(got, seqKey("c:", 300)) {
		t.Errorf("LastKey = %x, want %x", got, seqKey("c:", 300))
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	s, path, cleanup := newTestStorage(t)
	defer cleanup()

	if err := s.Set([]byte("durable"), []byte("yes")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get([]byte("durable"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if !bytes.Equal(got, []byte("yes")) {
		t.Errorf("Get returned %q, want %q", got, "yes")
	}
}

func TestClosedStorage(t *testing.T) {
	s, _, cleanup := newTestStorage(t)
	defer cleanup()

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := s.Set([]byte("k"), []byte("v")); !errors.Is(err, ErrClosed) {
		t.Errorf("Set after Close = %v, want ErrClosed", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestPrefixUpperBound(t *testing.T) {
	cases := []struct {
		prefix []byte
		want   []byte
	}{
		{[]byte("c:"), []byte("c;")},
		{[]byte{0x01, 0xFF}, []byte{0x02}},
		{[]byte{0xFF, 0xFF}, nil},
	}

	for _, tc := range cases {
		got := prefixUpperBound(tc.prefix)
		if !bytes.Equal(got, tc.want) {
			t.Errorf("prefixUpperBound(%x) = %x, want %x", tc.prefix, got, tc.want)
		}
	}
}
