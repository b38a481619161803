package spectrum

import (
	"errors"
	"fmt"
	"math/bits"
)

// DefaultLimit is the sanity bound on set bits per half error vector.
const DefaultLimit = 120

var (
	// ErrTooManyBits is returned when a half vector has more set bits than the
	// configured limit. It signals upstream corruption.
	ErrTooManyBits = errors.New("too many set bits in error vector")

	// ErrPositionRange is returned when a set bit lies beyond the ring.
	ErrPositionRange = errors.New("set bit outside ring")

	// ErrDistanceRange is returned when a computed distance falls outside
	// [0, r/2]. It indicates an arithmetic defect and aborts the run.
	ErrDistanceRange = errors.New("distance out of range")

	// ErrLength is returned when spectra of different rings are combined.
	ErrLength = errors.New("spectrum length mismatch")
)

// Spectrum holds per-distance counts for one half of the error vector.
// Index d counts trials in which some pair of set bits lay at circular
// distance d.
type Spectrum struct {
	Success []uint64 // trials that decoded correctly
	Total   []uint64 // all trials
}

// Pair holds one spectrum per half (e0, e1).
type Pair [2]*Spectrum

// Len returns the number of histogram slots for a ring of rBits positions.
func Len(rBits int) int {
	return rBits/2 + 1
}

// New allocates a zero spectrum for a ring of rBits positions.
func New(rBits int) *Spectrum {
	n := Len(rBits)

	return &Spectrum{Success: make([]uint64, n), Total: make([]uint64, n)}
}

// NewPair allocates zero spectra for both halves.
func NewPair(rBits int) Pair {
	return Pair{New(rBits), New(rBits)}
}

// Reset zeroes both histograms.
func (s *Spectrum) Reset() {
	clear(s.Success)
	clear(s.Total)
}

// Add sums o into s.
func (s *Spectrum) Add(o *Spectrum) error {
	if len(o.Success) != len(s.Success) || len(o.Total) != len(s.Total) {
		return fmt.Errorf("%w: %d vs %d", ErrLength, len(o.Total), len(s.Total))
	}

	for d := range s.Total {
		s.Success[d] += o.Success[d]
		s.Total[d] += o.Total[d]
	}

	return nil
}

// Clone returns a deep copy.
func (s *Spectrum) Clone() *Spectrum {
	return &Spectrum{
		Success: append([]uint64(nil), s.Success...),
		Total:   append([]uint64(nil), s.Total...),
	}
}

// Check verifies Success[d] <= Total[d] for every distance.
func (s *Spectrum) Check() error {
	for d := range s.Total {
		if s.Success[d] > s.Total[d] {
			return fmt.Errorf("distance %d: success %d exceeds total %d", d, s.Success[d], s.Total[d])
		}
	}

	return nil
}

// Reset zeroes both halves.
func (p Pair) Reset() {
	p[0].Reset()
	p[1].Reset()
}

// Positions appends to dst[:0] the ascending indices of the set bits of buf,
// where bit i%8 of byte i/8 is ring position i.
func Positions(buf []byte, rBits, limit int, dst []int) ([]int, error) {
	dst = dst[:0]

	for i, x := range buf {
		for x != 0 {
			pos := i*8 + bits.TrailingZeros8(x)
			if pos >= rBits {
				return dst, fmt.Errorf("%w: position %d, ring size %d", ErrPositionRange, pos, rBits)
			}

			if len(dst) == limit {
				return dst, fmt.Errorf("%w: more than %d", ErrTooManyBits, limit)
			}

			dst = append(dst, pos)
			x &= x - 1
		}
	}

	return dst, nil
}

// Distance returns the circular distance between positions a < b on a ring
// of rBits positions.
func Distance(a, b, rBits int) int {
	raw := b - a
	if raw > rBits/2 {
		return rBits - raw
	}

	return raw
}
