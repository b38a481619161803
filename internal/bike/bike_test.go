package bike

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"testing"

	"BikeDS/internal/perturb"
)

// testLevel is small enough for fast tests and decodes almost always.
var testLevel = Level{Name: "test", RBits: 587, D: 25, T: 4, Iterations: 7}

// newTestScheme returns a scheme with a deterministic random source.
func newTestScheme(t *testing.T, seed byte) *Scheme {
	t.Helper()

	if err := testLevel.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	return &Scheme{Level: testLevel, Rand: rand.NewChaCha8([32]byte{seed})}
}

// extraBit adds one set bit to e0, breaking the weight.
type extraBit struct{}

func (extraBit) Perturb(e0, e1 []byte) {
	for i := range e0 {
		if e0[i] != 0xFF {
			e0[i] |= e0[i] + 1
			return
		}
	}
}

func TestLevelSizes(t *testing.T) {
	l, err := LevelByName("l1")
	if err != nil {
		t.Fatalf("LevelByName failed: %v", err)
	}

	if got := l.RBytes(); got != 1541 {
		t.Errorf("RBytes = %d, want 1541", got)
	}

	if got := l.SecretKeySize(); got != 8*71+3*1541+32 {
		t.Errorf("SecretKeySize = %d, want %d", got, 8*71+3*1541+32)
	}

	if got := l.MaxDistance(); got != 6161 {
		t.Errorf("MaxDistance = %d, want 6161", got)
	}

	// Majority threshold dominates for small syndromes.
	if got := l.threshold(0); got != 36 {
		t.Errorf("threshold(0) = %d, want 36", got)
	}

	if got := l.threshold(5000); got != 48 {
		t.Errorf("threshold(5000) = %d, want 48", got)
	}

	for _, name := range LevelNames() {
		lv, _ := LevelByName(name)
		if err := lv.Validate(); err != nil {
			t.Errorf("level %s invalid: %v", name, err)
		}
	}

	if _, err := LevelByName("l9"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestInverse(t *testing.T) {
	rng := rand.NewChaCha8([32]byte{1})
	rb := testLevel.RBytes()

	one := make([]byte, rb)
	one[0] = 1

	for i := 0; i < 10; i++ {
		supp, err := sampleDistinct(rng, 2*i+1, testLevel.RBits)
		if err != nil {
			t.Fatalf("sampleDistinct failed: %v", err)
		}

		a := ringFromSupport(supp, rb)

		inv, err := inverse(a, testLevel.RBits, rb)
		if err != nil {
			t.Fatalf("inverse failed: %v", err)
		}

		prod := make([]byte, rb)
		mulSparse(prod, supp, inv, testLevel.RBits)

		if !bytes.Equal(prod, one) {
			t.Fatalf("a * a^-1 != 1 for weight %d", len(supp))
		}
	}
}

func TestInverseEvenWeight(t *testing.T) {
	rb := testLevel.RBytes()
	a := ringFromSupport([]int{3, 100}, rb)

	if _, err := inverse(a, testLevel.RBits, rb); !errors.Is(err, ErrNotInvertible) {
		t.Errorf("inverse = %v, want ErrNotInvertible", err)
	}
}

func TestGenerateKeyConsistency(t *testing.T) {
	s := newTestScheme(t, 2)

	pk, skBytes, err := s.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	if len(pk) != testLevel.PublicKeySize() || len(skBytes) != testLevel.SecretKeySize() {
		t.Fatalf("sizes = (%d, %d), want (%d, %d)",
			len(pk), len(skBytes), testLevel.PublicKeySize(), testLevel.SecretKeySize())
	}

	sk, err := ParseSecretKey(testLevel, skBytes)
	if err != nil {
		t.Fatalf("ParseSecretKey failed: %v", err)
	}

	if !bytes.Equal(sk.H, pk) {
		t.Error("secret key h differs from public key")
	}

	// h * h0 == h1
	prod := make([]byte, testLevel.RBytes())
	mulSparse(prod, sk.WList[0], pk, testLevel.RBits)

	if !bytes.Equal(prod, sk.H1) {
		t.Error("h * h0 != h1")
	}

	if w := perturb.Weight(sk.H0); w != testLevel.D {
		t.Errorf("weight(h0) = %d, want %d", w, testLevel.D)
	}

	if !bytes.Equal(sk.Marshal(testLevel), skBytes) {
		t.Error("Marshal does not reproduce the serialized key")
	}
}

func TestGenerateFaultyKeyWeights(t *testing.T) {
	s := newTestScheme(t, 3)

	_, skBytes, err := s.GenerateFaultyKey(9, 30)
	if err != nil {
		t.Fatalf("GenerateFaultyKey failed: %v", err)
	}

	sk, err := ParseSecretKey(testLevel, skBytes)
	if err != nil {
		t.Fatalf("ParseSecretKey failed: %v", err)
	}

	if w := perturb.Weight(sk.H0); w != 9 {
		t.Errorf("weight(h0) = %d, want 9", w)
	}

	if w := perturb.Weight(sk.H1); w != 30 {
		t.Errorf("weight(h1) = %d, want 30", w)
	}

	// Short list padded with its first index.
	for i := 9; i < testLevel.D; i++ {
		if sk.WList[0][i] != sk.WList[0][0] {
			t.Fatalf("wlist0[%d] = %d, want %d", i, sk.WList[0][i], sk.WList[0][0])
		}
	}

	// Long list cut to D entries.
	supp1 := support(sk.H1)
	for i := 0; i < testLevel.D; i++ {
		if sk.WList[1][i] != supp1[i] {
			t.Fatalf("wlist1[%d] = %d, want %d", i, sk.WList[1][i], supp1[i])
		}
	}

	if _, _, err := s.GenerateFaultyKey(10, 25); !errors.Is(err, ErrNotInvertible) {
		t.Errorf("even h0 weight: got %v, want ErrNotInvertible", err)
	}
}

func TestParseSecretKeyRejects(t *testing.T) {
	if _, err := ParseSecretKey(testLevel, make([]byte, 10)); !errors.Is(err, ErrKeySize) {
		t.Errorf("short key: got %v, want ErrKeySize", err)
	}

	sk := make([]byte, testLevel.SecretKeySize())
	binary.LittleEndian.PutUint32(sk[4:], uint32(testLevel.RBits))

	if _, err := ParseSecretKey(testLevel, sk); !errors.Is(err, ErrWeightList) {
		t.Errorf("bad index: got %v, want ErrWeightList", err)
	}
}

func TestEncapsulateDecapsulate(t *testing.T) {
	s := newTestScheme(t, 4)

	pk, sk, err := s.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	const trials = 20
	matched := 0

	for i := 0; i < trials; i++ {
		ct, ssEnc, eEnc, err := s.Encapsulate(pk, nil)
		if err != nil {
			t.Fatalf("Encapsulate failed: %v", err)
		}

		if w := eEnc.Weight(); w != testLevel.T {
			t.Fatalf("weight(e) = %d, want %d", w, testLevel.T)
		}

		if len(ct) != testLevel.CiphertextSize() {
			t.Fatalf("len(ct) = %d, want %d", len(ct), testLevel.CiphertextSize())
		}

		ssDec, eDec, err := s.Decapsulate(ct, sk)
		if err != nil {
			t.Fatalf("Decapsulate failed: %v", err)
		}

		if eEnc.Equal(eDec) {
			matched++

			if !bytes.Equal(ssEnc, ssDec) {
				t.Fatal("error vectors match but shared secrets differ")
			}
		}
	}

	if matched < trials-2 {
		t.Errorf("matched = %d, want at least %d", matched, trials-2)
	}
}

func TestEncapsulateChecksHookWeight(t *testing.T) {
	s := newTestScheme(t, 5)

	pk, _, err := s.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	if _, _, _, err := s.Encapsulate(pk, extraBit{}); !errors.Is(err, perturb.ErrWeightChanged) {
		t.Errorf("got %v, want ErrWeightChanged", err)
	}

	_, _, e, err := s.Encapsulate(pk, perturb.NewCluster(3, testLevel.RBits, 1))
	if err != nil {
		t.Fatalf("Encapsulate with cluster failed: %v", err)
	}

	if w := e.Weight(); w != testLevel.T {
		t.Errorf("weight(e) = %d, want %d", w, testLevel.T)
	}
}

func TestSizeErrors(t *testing.T) {
	s := newTestScheme(t, 6)

	if _, _, _, err := s.Encapsulate(make([]byte, 3), nil); !errors.Is(err, ErrPublicKeySize) {
		t.Errorf("Encapsulate: got %v, want ErrPublicKeySize", err)
	}

	if _, _, err := s.Decapsulate(make([]byte, 3), nil); !errors.Is(err, ErrCiphertextSize) {
		t.Errorf("Decapsulate: got %v, want ErrCiphertextSize", err)
	}
}

func TestErrorVectorClone(t *testing.T) {
	e := ErrorVector{E0: []byte{1, 2}, E1: []byte{3, 4}}
	c := e.Clone()
	c.E0[0] = 9

	if e.E0[0] != 1 {
		t.Error("Clone aliases the original")
	}

	if e.Equal(c) {
		t.Error("Equal reported modified clone as equal")
	}
}
