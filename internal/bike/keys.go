package bike

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
)

var (
	// ErrKeySize is returned when a serialized key has the wrong length.
	ErrKeySize = errors.New("invalid key size")

	// ErrWeightList is returned when a weight list points outside the ring.
	ErrWeightList = errors.New("weight list index out of range")
)

// maxKeygenAttempts bounds the search for an invertible h0.
const maxKeygenAttempts = 64

// SecretKey is the parsed form of a serialized secret key.
// WList holds the index lists used by the decoder; for faulted keys they may
// disagree with H0/H1.
type SecretKey struct {
	WList [2][]int
	H0    []byte
	H1    []byte
	H     []byte
	Sigma []byte
}

// Marshal serializes the key as wlist0 | wlist1 | h0 | h1 | h | sigma.
func (sk *SecretKey) Marshal(l Level) []byte {
	out := make([]byte, 0, l.SecretKeySize())

	for _, wl := range sk.WList {
		for i := 0; i < l.D; i++ {
			out = binary.LittleEndian.AppendUint32(out, uint32(wl[i]))
		}
	}

	out = append(out, sk.H0...)
	out = append(out, sk.H1...)
	out = append(out, sk.H...)
	out = append(out, sk.Sigma...)

	return out
}

// ParseSecretKey decodes a serialized secret key. The returned key does not
// alias b.
func ParseSecretKey(l Level, b []byte) (*SecretKey, error) {
	if len(b) != l.SecretKeySize() {
		return nil, fmt.Errorf("%w: secret key is %d bytes, want %d", ErrKeySize, len(b), l.SecretKeySize())
	}

	sk := &SecretKey{}
	off := 0

	for w := range sk.WList {
		sk.WList[w] = make([]int, l.D)

		for i := range sk.WList[w] {
			idx := binary.LittleEndian.Uint32(b[off:])
			if int64(idx) >= int64(l.RBits) {
				return nil, fmt.Errorf("%w: wlist%d[%d] = %d", ErrWeightList, w, i, idx)
			}

			sk.WList[w][i] = int(idx)
			off += 4
		}
	}

	rb := l.RBytes()
	sk.H0 = slices.Clone(b[off : off+rb])
	sk.H1 = slices.Clone(b[off+rb : off+2*rb])
	sk.H = slices.Clone(b[off+2*rb : off+3*rb])
	sk.Sigma = slices.Clone(b[off+3*rb:])

	return sk, nil
}

// GenerateKey creates a key pair with both secret blocks of weight D.
func (s *Scheme) GenerateKey() (pk, sk []byte, err error) {
	return s.GenerateFaultyKey(s.Level.D, s.Level.D)
}

// GenerateFaultyKey creates a key pair whose secret blocks have weights w0 and
// w1 instead of D. The weight lists are padded to D entries by repeating
// their first index, or cut to the first D entries.
//
// w0 must be odd: an even-weight h0 is divisible by x+1 and has no inverse.
func (s *Scheme) GenerateFaultyKey(w0, w1 int) (pk, sk []byte, err error) {
	l := s.Level

	if w0 <= 0 || w1 <= 0 || w0 > l.RBits || w1 > l.RBits {
		return nil, nil, fmt.Errorf("block weights (%d, %d) out of range", w0, w1)
	}

	if w0%2 == 0 {
		return nil, nil, fmt.Errorf("%w: h0 weight %d is even", ErrNotInvertible, w0)
	}

	var (
		supp0, supp1 []int
		h0Inv        []byte
	)

	for attempt := 0; ; attempt++ {
		if attempt == maxKeygenAttempts {
			return nil, nil, fmt.Errorf("%w: no invertible h0 after %d attempts", ErrNotInvertible, attempt)
		}

		supp0, err = sampleDistinct(s.rand(), w0, l.RBits)
		if err != nil {
			return nil, nil, fmt.Errorf("sample h0:\n%w", err)
		}

		h0Inv, err = inverse(ringFromSupport(supp0, l.RBytes()), l.RBits, l.RBytes())
		if err == nil {
			break
		}
	}

	supp1, err = sampleDistinct(s.rand(), w1, l.RBits)
	if err != nil {
		return nil, nil, fmt.Errorf("sample h1:\n%w", err)
	}

	key := &SecretKey{
		WList: [2][]int{padWeightList(supp0, l.D), padWeightList(supp1, l.D)},
		H0:    ringFromSupport(supp0, l.RBytes()),
		H1:    ringFromSupport(supp1, l.RBytes()),
		H:     make([]byte, l.RBytes()),
		Sigma: make([]byte, MBytes),
	}

	// h = h1 * h0^-1
	mulSparse(key.H, supp1, h0Inv, l.RBits)

	if _, err := io.ReadFull(s.rand(), key.Sigma); err != nil {
		return nil, nil, fmt.Errorf("sample sigma:\n%w", err)
	}

	return slices.Clone(key.H), key.Marshal(l), nil
}

// padWeightList returns exactly d indices taken from supp.
func padWeightList(supp []int, d int) []int {
	out := make([]int, d)
	for i := range out {
		if i < len(supp) {
			out[i] = supp[i]
		} else {
			out[i] = supp[0]
		}
	}

	return out
}

// ringFromSupport builds a ring element with the given positions set.
func ringFromSupport(supp []int, rBytes int) []byte {
	b := make([]byte, rBytes)
	for _, i := range supp {
		flipBit(b, i)
	}

	return b
}

// sampleDistinct draws n distinct uniform positions in [0, bound) from r.
func sampleDistinct(r io.Reader, n, bound int) ([]int, error) {
	out := make([]int, 0, n)
	seen := make(map[int]struct{}, n)

	// Reject draws above the largest multiple of bound to stay uniform.
	limit := (uint64(1) << 32) / uint64(bound) * uint64(bound)

	var buf [4]byte
	for len(out) < n {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}

		x := uint64(binary.LittleEndian.Uint32(buf[:]))
		if x >= limit {
			continue
		}

		pos := int(x % uint64(bound))
		if _, dup := seen[pos]; dup {
			continue
		}

		seen[pos] = struct{}{}
		out = append(out, pos)
	}

	slices.Sort(out)

	return out, nil
}
