package checkpoint

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"BikeDS/internal/spectrum"
)

const testRBits = 21

// newTestRecord returns a record with a few distinctive counts.
func newTestRecord(worker, batch uint32, seed uint64) *Record {
	pair := spectrum.NewPair(testRBits)
	for d := 1; d < spectrum.Len(testRBits); d++ {
		pair[0].Total[d] = seed + uint64(d)
		pair[0].Success[d] = seed
		pair[1].Total[d] = 2 * uint64(d)
		pair[1].Success[d] = uint64(d)
	}

	return &Record{Worker: worker, Batch: batch, Successes: seed, Size: 10 + seed, Half: pair}
}

// newTestStore creates a store in a temporary directory.
func newTestStore(t *testing.T) (*Store, string, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "checkpoint-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	s, err := OpenStore(dir, testRBits)
	if err != nil {
		os.RemoveAll(dir)
		t.Fatalf("OpenStore failed: %v", err)
	}

	cleanup := func() {
		s.Close()
		os.RemoveAll(dir)
	}

	return s, dir, cleanup
}

func assertRecordEqual(t *testing.T, got, want *Record) {
	t.Helper()

	if got.Worker != want.Worker || got.Batch != want.Batch ||
		got.Successes != want.Successes || got.Size != want.Size {
		t.Fatalf("header = %d/%d %d/%d, want %d/%d %d/%d",
			got.Worker, got.Batch, got.Successes, got.Size,
			want.Worker, want.Batch, want.Successes, want.Size)
	}

	for h := range want.Half {
		if !slices.Equal(got.Half[h].Success, want.Half[h].Success) ||
			!slices.Equal(got.Half[h].Total, want.Half[h].Total) {
			t.Fatalf("half %d histograms differ", h)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	want := newTestRecord(3, 7, 4)

	data, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got, err := Decode(data, testRBits)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	assertRecordEqual(t, got, want)
}

func TestDecodeDetectsTampering(t *testing.T) {
	data, err := Encode(newTestRecord(0, 0, 1))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	tampered := bytes.Clone(data)
	tampered[len(tampered)-1] ^= 0x01

	if _, err := Decode(tampered, testRBits); !errors.Is(err, ErrChecksum) {
		t.Errorf("tampered payload: got %v, want ErrChecksum", err)
	}

	if _, err := Decode(data[:10], testRBits); !errors.Is(err, ErrChecksum) {
		t.Errorf("short value: got %v, want ErrChecksum", err)
	}

	// Intact value decoded for a different ring size.
	if _, err := Decode(data, 41); !errors.Is(err, ErrRecordShape) {
		t.Errorf("wrong ring: got %v, want ErrRecordShape", err)
	}
}

func TestEncodeRejectsMalformed(t *testing.T) {
	rec := newTestRecord(0, 0, 1)
	rec.Half[1] = spectrum.New(41)

	if _, err := Encode(rec); !errors.Is(err, ErrRecordShape) {
		t.Errorf("mismatched halves: got %v, want ErrRecordShape", err)
	}

	rec = newTestRecord(0, 0, 1)
	rec.Successes = rec.Size + 1

	if _, err := Encode(rec); !errors.Is(err, ErrRecordShape) {
		t.Errorf("successes > size: got %v, want ErrRecordShape", err)
	}
}

func TestStoreAppendAndRecords(t *testing.T) {
	s, _, cleanup := newTestStore(t)
	defer cleanup()

	want := []*Record{newTestRecord(0, 0, 1), newTestRecord(1, 0, 2), newTestRecord(0, 1, 3)}
	for _, rec := range want {
		if err := s.Append(rec); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}

	var got []*Record
	err := s.Records(func(rec *Record) error {
		got = append(got, rec)
		return nil
	})
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}

	for i := range want {
		assertRecordEqual(t, got[i], want[i])
	}
}

func TestStoreReopenContinuesSequence(t *testing.T) {
	dir, err := os.MkdirTemp("", "checkpoint-reopen-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	s, err := OpenStore(dir, testRBits)
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.Append(newTestRecord(0, uint32(i), 1)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	s.Close()

	s, err = OpenStore(dir, testRBits)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	if s.Len() != 2 || s.Trials() != 22 {
		t.Fatalf("after reopen Len = %d, Trials = %d, want 2 and 22", s.Len(), s.Trials())
	}

	if err := s.Append(newTestRecord(0, 2, 1)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	totals, err := Sum(s, testRBits)
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}

	if totals.Records != 3 || totals.Trials != 33 || totals.Successes != 3 {
		t.Errorf("totals = %d records %d trials %d successes, want 3/33/3",
			totals.Records, totals.Trials, totals.Successes)
	}
}

func TestStoreRejectsOtherRingSize(t *testing.T) {
	s, dir, cleanup := newTestStore(t)
	defer cleanup()

	if err := s.Append(newTestRecord(0, 0, 1)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	s.Close()

	if _, err := OpenStore(dir, testRBits+2); !errors.Is(err, ErrRingMismatch) {
		t.Fatalf("OpenStore = %v, want ErrRingMismatch", err)
	}

	s, err := OpenStore(dir, testRBits)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	if s.Trials() != 11 {
		t.Errorf("Trials = %d, want 11", s.Trials())
	}
}

func TestTextFileRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "checkpoint-text-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "data.txt")

	tf, err := OpenText(path)
	if err != nil {
		t.Fatalf("OpenText failed: %v", err)
	}

	want := []*Record{newTestRecord(0, 0, 2), newTestRecord(0, 1, 5)}
	for _, rec := range want {
		if err := tf.Append(rec); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	tf.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 10 {
		t.Fatalf("got %d lines, want 10", len(lines))
	}

	if lines[0] != "2,12" {
		t.Errorf("header = %q, want %q", lines[0], "2,12")
	}

	if !strings.HasPrefix(lines[2], "0,3,4,") || !strings.HasSuffix(lines[2], ",") {
		t.Errorf("half0 total line = %q", lines[2])
	}

	got, err := ReadText(bytes.NewReader(data), testRBits)
	if err != nil {
		t.Fatalf("ReadText failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}

	for i := range want {
		want[i].Worker = 0
		assertRecordEqual(t, got[i], want[i])
	}
}

func TestReadTextRejectsTruncated(t *testing.T) {
	in := "1,5\n0,1,\n0,2,\n"

	if _, err := ReadText(strings.NewReader(in), 2); !errors.Is(err, ErrRecordShape) {
		t.Errorf("got %v, want ErrRecordShape", err)
	}
}

func TestValidateRejectsSuccessAboveTotal(t *testing.T) {
	in := "1,1\n0,5,0,0,\n0,1,0,0,\n0,0,0,0,\n0,0,0,0,\n"

	if _, err := ReadText(strings.NewReader(in), 7); !errors.Is(err, ErrRecordShape) {
		t.Errorf("ReadText = %v, want ErrRecordShape", err)
	}

	rec := newTestRecord(0, 0, 1)
	rec.Half[1].Success[3] = rec.Half[1].Total[3] + 1

	if err := rec.Validate(testRBits); !errors.Is(err, ErrRecordShape) {
		t.Errorf("Validate = %v, want ErrRecordShape", err)
	}

	if _, err := Encode(rec); !errors.Is(err, ErrRecordShape) {
		t.Errorf("Encode = %v, want ErrRecordShape", err)
	}

	if _, err := Sum(List{rec}, testRBits); !errors.Is(err, ErrRecordShape) {
		t.Errorf("Sum = %v, want ErrRecordShape", err)
	}
}

func TestSumMatchesManualTotals(t *testing.T) {
	recs := List{newTestRecord(0, 0, 1), newTestRecord(1, 0, 4)}

	totals, err := Sum(recs, testRBits)
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}

	for d := 1; d < spectrum.Len(testRBits); d++ {
		if want := uint64(5 + 2*d); totals.Half[0].Total[d] != want {
			t.Fatalf("half0 Total[%d] = %d, want %d", d, totals.Half[0].Total[d], want)
		}

		if want := uint64(4 * d); totals.Half[1].Total[d] != want {
			t.Fatalf("half1 Total[%d] = %d, want %d", d, totals.Half[1].Total[d], want)
		}
	}

	if got := totals.FailureRate(); got != float64(25-5)/25 {
		t.Errorf("FailureRate = %v, want %v", got, float64(20)/25)
	}
}

// failSink fails every append.
type failSink struct{ calls int }

func (f *failSink) Append(*Record) error {
	f.calls++
	return errors.New("disk full")
}

func TestTeeStopsAtFirstFailure(t *testing.T) {
	var mem List
	first := sinkFunc(func(rec *Record) error {
		mem = append(mem, rec)
		return nil
	})
	bad := &failSink{}
	after := &failSink{}

	err := (Tee{first, bad, after}).Append(newTestRecord(0, 0, 1))
	if !errors.Is(err, ErrMirror) {
		t.Fatalf("Append = %v, want ErrMirror", err)
	}

	if len(mem) != 1 || bad.calls != 1 || after.calls != 0 {
		t.Errorf("calls = %d/%d/%d, want 1/1/0", len(mem), bad.calls, after.calls)
	}
}

func TestTeePrimaryFailureIsNotMirror(t *testing.T) {
	bad := &failSink{}
	after := &failSink{}

	err := (Tee{bad, after}).Append(newTestRecord(0, 0, 1))
	if err == nil || errors.Is(err, ErrMirror) {
		t.Fatalf("Append = %v, want a non-mirror error", err)
	}

	if after.calls != 0 {
		t.Errorf("second sink called %d times, want 0", after.calls)
	}
}

// sinkFunc adapts a function to Sink.
type sinkFunc func(rec *Record) error

func (f sinkFunc) Append(rec *Record) error { return f(rec) }
