package checkpoint

import (
	"errors"
	"fmt"

	"BikeDS/internal/spectrum"
)

// ErrRecordShape is returned when a record's histograms do not match the ring
// size or each other.
var ErrRecordShape = errors.New("malformed checkpoint record")

// Record is the result of one completed batch of one worker.
// Records are self-contained: the spectrum of a whole run is the sum of its
// records.
type Record struct {
	Worker    uint32 // worker index that produced the batch
	Batch     uint32 // batch index within the worker
	Successes uint64 // trials whose error vector was reconstructed exactly
	Size      uint64 // trials in the batch

	Half [2]*spectrum.Spectrum // per-half spectra accumulated over the batch
}

// Sink receives records. Append must not return before the record is durable.
type Sink interface {
	Append(rec *Record) error
}

// Source yields stored records in no particular order.
type Source interface {
	Records(fn func(rec *Record) error) error
}

// List is an in-memory Source.
type List []*Record

// Records calls fn for every record in the list.
func (l List) Records(fn func(rec *Record) error) error {
	for _, rec := range l {
		if err := fn(rec); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks that all four histograms exist and have the length implied
// by rBits (any common length when rBits is zero), and that successes never
// exceed totals.
func (r *Record) Validate(rBits int) error {
	if r.Half[0] == nil || r.Half[1] == nil {
		return fmt.Errorf("%w: missing half spectrum", ErrRecordShape)
	}

	want := len(r.Half[0].Total)
	if rBits > 0 {
		want = spectrum.Len(rBits)
	}

	for h, s := range r.Half {
		if len(s.Success) != want || len(s.Total) != want {
			return fmt.Errorf("%w: half %d has lengths (%d, %d), want %d",
				ErrRecordShape, h, len(s.Success), len(s.Total), want)
		}

		if err := s.Check(); err != nil {
			return fmt.Errorf("%w: half %d: %w", ErrRecordShape, h, err)
		}
	}

	if r.Successes > r.Size {
		return fmt.Errorf("%w: %d successes in batch of %d", ErrRecordShape, r.Successes, r.Size)
	}

	return nil
}

// Sum adds every record from src into fresh spectra for a ring of rBits.
func Sum(src Source, rBits int) (*Totals, error) {
	t := &Totals{Half: spectrum.NewPair(rBits)}

	err := src.Records(func(rec *Record) error {
		if err := rec.Validate(rBits); err != nil {
			return fmt.Errorf("record %d/%d:\n%w", rec.Worker, rec.Batch, err)
		}

		for h := range t.Half {
			if err := t.Half[h].Add(rec.Half[h]); err != nil {
				return err
			}
		}

		t.Records++
		t.Trials += rec.Size
		t.Successes += rec.Successes

		return nil
	})
	if err != nil {
		return nil, err
	}

	return t, nil
}

// Totals is the aggregate of a set of records.
type Totals struct {
	Records   int
	Trials    uint64
	Successes uint64

	Half spectrum.Pair
}

// FailureRate returns the fraction of trials that did not decode exactly.
func (t *Totals) FailureRate() float64 {
	if t.Trials == 0 {
		return 0
	}

	return float64(t.Trials-t.Successes) / float64(t.Trials)
}
