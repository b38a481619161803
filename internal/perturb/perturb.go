package perturb

import (
	"errors"
	"fmt"
	"math/bits"
	"math/rand/v2"
)

// ErrWeightChanged is returned when a perturbed error vector no longer has the
// scheme's fixed error weight. Statistics collected from such vectors are
// meaningless, so callers treat it as fatal.
var ErrWeightChanged = errors.New("perturbation changed error weight")

// Perturber rewrites a freshly sampled error vector (both halves, bit-packed)
// in place before encapsulation uses it.
//
// Implementations are owned by a single worker and need not be safe for
// concurrent use.
type Perturber interface {
	Perturb(e0, e1 []byte)
}

// Identity leaves the error vector untouched.
type Identity struct{}

// Perturb does nothing.
func (Identity) Perturb(e0, e1 []byte) {}

// Config selects a perturbation strategy for a run.
type Config struct {
	// Fixed is the number of consecutive ring positions forced into e0.
	// Zero disables perturbation.
	Fixed int
}

// Active reports whether the configuration perturbs anything.
func (c Config) Active() bool {
	return c.Fixed > 0
}

// New returns the strategy described by cfg for a ring of rBits positions.
// Each call returns an independent instance seeded with seed.
func New(cfg Config, rBits int, seed uint64) Perturber {
	if !cfg.Active() {
		return Identity{}
	}

	return NewCluster(cfg.Fixed, rBits, seed)
}

// Cluster moves up to Fixed set bits of e0 into a run of consecutive ring
// positions starting at a random offset, then scatters the remaining weight of
// e0 over random free positions. e1 is left as sampled.
type Cluster struct {
	Fixed int
	RBits int

	rng *rand.Rand
}

// NewCluster creates a Cluster perturber with its own random source.
func NewCluster(fixed, rBits int, seed uint64) *Cluster {
	return &Cluster{
		Fixed: fixed,
		RBits: rBits,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Perturb rewrites e0 keeping its weight.
func (c *Cluster) Perturb(e0, e1 []byte) {
	remaining := Weight(e0)
	clear(e0)

	start := c.rng.IntN(c.RBits)
	fixed := min(c.Fixed, remaining)

	for i := 0; i < fixed; i++ {
		setBit(e0, (start+i)%c.RBits)
	}
	remaining -= fixed

	for remaining > 0 {
		if setBit(e0, c.rng.IntN(c.RBits)) {
			remaining--
		}
	}
}

// CheckWeight verifies that e0 and e1 together carry exactly want set bits.
func CheckWeight(e0, e1 []byte, want int) error {
	if got := Weight(e0) + Weight(e1); got != want {
		return fmt.Errorf("%w: got %d, want %d", ErrWeightChanged, got, want)
	}

	return nil
}

// Weight returns the number of set bits in b.
func Weight(b []byte) int {
	n := 0
	for _, x := range b {
		n += bits.OnesCount8(x)
	}

	return n
}

// setBit sets ring position i and reports whether it was previously clear.
func setBit(b []byte, i int) bool {
	mask := byte(1) << (i % 8)
	if b[i/8]&mask != 0 {
		return false
	}

	b[i/8] |= mask

	return true
}
