package bike

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/sha3"

	"BikeDS/internal/perturb"
)

var (
	// ErrPublicKeySize is returned when a public key has the wrong length.
	ErrPublicKeySize = errors.New("invalid public key size")

	// ErrCiphertextSize is returned when a ciphertext has the wrong length.
	ErrCiphertextSize = errors.New("invalid ciphertext size")
)

// ErrorVector is the pair of half error vectors (e0, e1), each one ring element.
type ErrorVector struct {
	E0 []byte
	E1 []byte
}

// NewErrorVector allocates a zero error vector for the level.
func NewErrorVector(l Level) ErrorVector {
	return ErrorVector{E0: make([]byte, l.RBytes()), E1: make([]byte, l.RBytes())}
}

// Equal reports whether both halves are byte-identical.
func (e ErrorVector) Equal(o ErrorVector) bool {
	return bytes.Equal(e.E0, o.E0) && bytes.Equal(e.E1, o.E1)
}

// Clone returns a deep copy.
func (e ErrorVector) Clone() ErrorVector {
	return ErrorVector{E0: bytes.Clone(e.E0), E1: bytes.Clone(e.E1)}
}

// Weight returns the total number of set bits.
func (e ErrorVector) Weight() int {
	return perturb.Weight(e.E0) + perturb.Weight(e.E1)
}

// Scheme is a BIKE-style QC-MDPC KEM for one parameter level.
// A Scheme holds no mutable state and may be shared between goroutines as long
// as Rand is safe for concurrent use.
type Scheme struct {
	Level Level
	Rand  io.Reader // nil means crypto/rand
}

// NewScheme creates a scheme for the level using crypto/rand.
func NewScheme(l Level) (*Scheme, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	return &Scheme{Level: l}, nil
}

func (s *Scheme) rand() io.Reader {
	if s.Rand == nil {
		return rand.Reader
	}

	return s.Rand
}

// Encapsulate derives a ciphertext and shared secret for pk. The sampled error
// vector is passed through hook (nil means no perturbation) and returned.
func (s *Scheme) Encapsulate(pk []byte, hook perturb.Perturber) (ct, ss []byte, e ErrorVector, err error) {
	l := s.Level

	if len(pk) != l.PublicKeySize() {
		return nil, nil, e, fmt.Errorf("%w: %d bytes, want %d", ErrPublicKeySize, len(pk), l.PublicKeySize())
	}

	m := make([]byte, MBytes)
	if _, err := io.ReadFull(s.rand(), m); err != nil {
		return nil, nil, e, fmt.Errorf("sample message:\n%w", err)
	}

	e, err = s.hashError(m)
	if err != nil {
		return nil, nil, e, err
	}

	if hook != nil {
		hook.Perturb(e.E0, e.E1)

		if err := perturb.CheckWeight(e.E0, e.E1, l.T); err != nil {
			return nil, nil, e, err
		}
	}

	// c0 = e0 + e1*h
	c0 := make([]byte, l.RBytes())
	mulSparse(c0, support(e.E1), pk, l.RBits)
	subtle.XORBytes(c0, c0, e.E0)

	// c1 = m xor L(e0, e1)
	c1 := make([]byte, MBytes)
	subtle.XORBytes(c1, m, hashL(e))

	ct = append(c0, c1...)

	return ct, hashK(m, ct), e, nil
}

// Decapsulate recovers the shared secret and the decoded error vector from ct.
// Decoding failures are not errors: the implicit-rejection secret is returned
// together with whatever the decoder produced.
func (s *Scheme) Decapsulate(ct, sk []byte) (ss []byte, e ErrorVector, err error) {
	l := s.Level

	if len(ct) != l.CiphertextSize() {
		return nil, e, fmt.Errorf("%w: %d bytes, want %d", ErrCiphertextSize, len(ct), l.CiphertextSize())
	}

	key, err := ParseSecretKey(l, sk)
	if err != nil {
		return nil, e, err
	}

	c0, c1 := ct[:l.RBytes()], ct[l.RBytes():]

	// s = c0 * h0, with h0 taken from the weight list the decoder uses.
	syndrome := make([]byte, l.RBytes())
	mulSparse(syndrome, key.WList[0], c0, l.RBits)

	e = decode(l, syndrome, key.WList)

	m := make([]byte, MBytes)
	subtle.XORBytes(m, c1, hashL(e))

	check, err := s.hashError(m)
	if err != nil {
		return nil, e, err
	}

	if check.Equal(e) {
		return hashK(m, ct), e, nil
	}

	return hashK(key.Sigma, ct), e, nil
}

// hashError is the H function: it expands m into an error vector of weight T
// over both halves.
func (s *Scheme) hashError(m []byte) (ErrorVector, error) {
	l := s.Level

	shake := sha3.NewShake256()
	shake.Write(m)

	pos, err := sampleDistinct(shake, l.T, 2*l.RBits)
	if err != nil {
		return ErrorVector{}, fmt.Errorf("expand error vector:\n%w", err)
	}

	e := NewErrorVector(l)
	for _, p := range pos {
		if p < l.RBits {
			flipBit(e.E0, p)
		} else {
			flipBit(e.E1, p-l.RBits)
		}
	}

	return e, nil
}

// hashL is the L function: SHA3-384(e0 || e1) truncated to MBytes.
func hashL(e ErrorVector) []byte {
	buf := make([]byte, 0, len(e.E0)+len(e.E1))
	buf = append(buf, e.E0...)
	buf = append(buf, e.E1...)

	sum := sha3.Sum384(buf)

	return sum[:MBytes]
}

// hashK is the K function: SHA3-384(m || c) truncated to SharedSecretSize.
func hashK(m, ct []byte) []byte {
	buf := make([]byte, 0, len(m)+len(ct))
	buf = append(buf, m...)
	buf = append(buf, ct...)

	sum := sha3.Sum384(buf)

	return sum[:SharedSecretSize]
}
