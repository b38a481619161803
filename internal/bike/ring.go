package bike

import (
	"errors"
	"math/big"
	"math/bits"
	"slices"
)

// ErrNotInvertible is returned when a ring element has no inverse modulo x^r - 1.
var ErrNotInvertible = errors.New("ring element not invertible")

// Ring elements are bit-packed little-endian: position i is bit i%8 of byte i/8.

// bitSet reports whether position i is set.
func bitSet(b []byte, i int) bool {
	return b[i/8]&(1<<(i%8)) != 0
}

// flipBit toggles position i.
func flipBit(b []byte, i int) {
	b[i/8] ^= 1 << (i % 8)
}

// support returns the set positions of b in ascending order.
func support(b []byte) []int {
	out := make([]int, 0, 64)

	for i, x := range b {
		for x != 0 {
			out = append(out, i*8+bits.TrailingZeros8(x))
			x &= x - 1
		}
	}

	return out
}

// mulSparse sets dst = (sum of x^k for k in sparse) * dense mod x^r - 1.
// Repeated entries in sparse cancel out, as they would in GF(2).
func mulSparse(dst []byte, sparse []int, dense []byte, r int) {
	clear(dst)

	for _, j := range support(dense) {
		for _, k := range sparse {
			p := j + k
			if p >= r {
				p -= r
			}
			flipBit(dst, p)
		}
	}
}

// inverse computes a^-1 mod x^r - 1 over GF(2) with the extended Euclidean
// algorithm. rBytes is the output length.
func inverse(a []byte, r, rBytes int) ([]byte, error) {
	one := big.NewInt(1)

	modulus := new(big.Int).SetBit(new(big.Int), r, 1)
	modulus.SetBit(modulus, 0, 1)

	// Invariants: g1*a = u and g2*a = v (mod x^r - 1).
	u, v := toInt(a), modulus
	g1, g2 := big.NewInt(1), new(big.Int)

	for u.Cmp(one) != 0 {
		if u.Sign() == 0 {
			return nil, ErrNotInvertible
		}

		j := u.BitLen() - v.BitLen()
		if j < 0 {
			u, v = v, u
			g1, g2 = g2, g1
			j = -j
		}

		u = new(big.Int).Xor(u, new(big.Int).Lsh(v, uint(j)))
		g1 = new(big.Int).Xor(g1, new(big.Int).Lsh(g2, uint(j)))
	}

	// Fold x^r = 1 until the degree drops below r.
	low := new(big.Int).Sub(new(big.Int).Lsh(one, uint(r)), one)
	for g1.BitLen() > r {
		high := new(big.Int).Rsh(g1, uint(r))
		g1 = new(big.Int).Xor(new(big.Int).And(g1, low), high)
	}

	return fromInt(g1, rBytes), nil
}

// toInt converts a ring element into a big.Int whose bit i is position i.
func toInt(b []byte) *big.Int {
	be := slices.Clone(b)
	slices.Reverse(be)

	return new(big.Int).SetBytes(be)
}

// fromInt is the inverse of toInt.
func fromInt(x *big.Int, n int) []byte {
	out := x.FillBytes(make([]byte, n))
	slices.Reverse(out)

	return out
}
