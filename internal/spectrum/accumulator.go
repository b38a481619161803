package spectrum

import "fmt"

// Accumulator turns half error vectors into distance counts. It owns its
// scratch buffers and must be used by a single goroutine.
type Accumulator struct {
	rBits int
	limit int

	positions []int
	seen      []bool
	distinct  []int
}

// NewAccumulator creates an accumulator for a ring of rBits positions.
// limit bounds the set bits accepted per half; values below DefaultLimit are
// raised to it.
func NewAccumulator(rBits, limit int) *Accumulator {
	limit = max(limit, DefaultLimit)

	return &Accumulator{
		rBits:     rBits,
		limit:     limit,
		positions: make([]int, 0, limit),
		seen:      make([]bool, Len(rBits)),
		distinct:  make([]int, 0, Len(rBits)),
	}
}

// RBits returns the ring size the accumulator was built for.
func (a *Accumulator) RBits() int {
	return a.rBits
}

// Update extracts the set bits of half and counts every distinct pairwise
// distance once: Total always, Success only when succeeded. On error s is
// left unchanged.
func (a *Accumulator) Update(s *Spectrum, half []byte, succeeded bool) error {
	var err error

	a.positions, err = Positions(half, a.rBits, a.limit, a.positions)
	if err != nil {
		return err
	}

	clear(a.seen)
	a.distinct = a.distinct[:0]

	maxDist := a.rBits / 2
	pos := a.positions

	for i := 0; i < len(pos); i++ {
		for j := i + 1; j < len(pos); j++ {
			d := Distance(pos[i], pos[j], a.rBits)
			if d < 0 || d > maxDist {
				return fmt.Errorf("%w: positions %d and %d give %d (max %d)",
					ErrDistanceRange, pos[i], pos[j], d, maxDist)
			}

			if a.seen[d] {
				continue
			}

			a.seen[d] = true
			a.distinct = append(a.distinct, d)
		}
	}

	for _, d := range a.distinct {
		s.Total[d]++
		if succeeded {
			s.Success[d]++
		}
	}

	return nil
}
