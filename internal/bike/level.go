package bike

import (
	"fmt"
	"math"
	"sort"
)

const (
	// MBytes is the size of the encapsulated message m and of sigma.
	MBytes = 32

	// SharedSecretSize is the size of the derived shared secret.
	SharedSecretSize = 32
)

// Level holds the parameters of one BIKE security level.
type Level struct {
	Name string

	// RBits is the ring size r (block length in bits).
	RBits int

	// D is the weight of each secret block h0 and h1.
	D int

	// T is the total error weight over (e0, e1).
	T int

	// Iterations bounds the bit-flipping decoder.
	Iterations int

	// ThresholdA and ThresholdB give the affine flip threshold
	// floor(A*|s| + B); zero A falls back to the majority threshold (D+1)/2.
	ThresholdA float64
	ThresholdB float64
}

// levels lists the parameter sets known by name. l1 and l3 follow the round-4
// BIKE parameters; the remaining ones are reduced research levels.
var levels = map[string]Level{
	"l1":  {Name: "l1", RBits: 12323, D: 71, T: 134, Iterations: 5, ThresholdA: 0.0069722, ThresholdB: 13.530},
	"l3":  {Name: "l3", RBits: 24659, D: 103, T: 199, Iterations: 5, ThresholdA: 0.005265, ThresholdB: 15.2588},
	"l00": {Name: "l00", RBits: 2053, D: 23, T: 42, Iterations: 7},
	"l01": {Name: "l01", RBits: 7109, D: 41, T: 84, Iterations: 7},
	"l11": {Name: "l11", RBits: 773, D: 9, T: 14, Iterations: 7},
	"l12": {Name: "l12", RBits: 1019, D: 13, T: 20, Iterations: 7},
	"l13": {Name: "l13", RBits: 1283, D: 15, T: 24, Iterations: 7},
	"l14": {Name: "l14", RBits: 2029, D: 21, T: 38, Iterations: 7},
}

// LevelByName returns the named parameter set.
func LevelByName(name string) (Level, error) {
	l, ok := levels[name]
	if !ok {
		return Level{}, fmt.Errorf("unknown level %q (known: %v)", name, LevelNames())
	}

	return l, nil
}

// LevelNames returns the known level names in sorted order.
func LevelNames() []string {
	names := make([]string, 0, len(levels))
	for name := range levels {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Validate checks that the parameters describe a usable scheme.
func (l Level) Validate() error {
	switch {
	case l.RBits < 3:
		return fmt.Errorf("level %s: ring size %d too small", l.Name, l.RBits)
	case l.D <= 0 || l.D > l.RBits:
		return fmt.Errorf("level %s: block weight %d out of range", l.Name, l.D)
	case l.T <= 0 || l.T > 2*l.RBits:
		return fmt.Errorf("level %s: error weight %d out of range", l.Name, l.T)
	case l.Iterations <= 0:
		return fmt.Errorf("level %s: decoder needs at least one iteration", l.Name)
	}

	return nil
}

// RBytes is the size in bytes of one ring element.
func (l Level) RBytes() int {
	return (l.RBits + 7) / 8
}

// MaxDistance is the largest circular distance on the ring, r/2.
func (l Level) MaxDistance() int {
	return l.RBits / 2
}

// WeightListBytes is the size of one packed weight list (D little-endian u32).
func (l Level) WeightListBytes() int {
	return 4 * l.D
}

// PublicKeySize is the size of a serialized public key h.
func (l Level) PublicKeySize() int {
	return l.RBytes()
}

// SecretKeySize is the size of a serialized secret key:
// wlist0 | wlist1 | h0 | h1 | h | sigma.
func (l Level) SecretKeySize() int {
	return 2*l.WeightListBytes() + 3*l.RBytes() + MBytes
}

// CiphertextSize is the size of a ciphertext c0 | c1.
func (l Level) CiphertextSize() int {
	return l.RBytes() + MBytes
}

// threshold returns the flip threshold for a syndrome of weight sw.
func (l Level) threshold(sw int) int {
	th := (l.D + 1) / 2

	if l.ThresholdA > 0 {
		if a := int(math.Floor(l.ThresholdA*float64(sw) + l.ThresholdB)); a > th {
			th = a
		}
	}

	return th
}
