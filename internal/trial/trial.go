package trial

import (
	"bytes"
	"errors"
	"fmt"

	"BikeDS/internal/bike"
	"BikeDS/internal/perturb"
	"BikeDS/internal/spectrum"
)

// ErrCollaborator wraps failures reported by the KEM itself.
var ErrCollaborator = errors.New("kem collaborator failed")

// KEM is the key-encapsulation capability a trial runs against. Both calls
// return the raw error vector they used or reconstructed.
type KEM interface {
	Encapsulate(pk []byte, hook perturb.Perturber) (ct, ss []byte, e bike.ErrorVector, err error)
	Decapsulate(ct, sk []byte) (ss []byte, e bike.ErrorVector, err error)
}

// KeyPair is the fixed key material trials run against.
type KeyPair struct {
	Public []byte
	Secret []byte
}

// Clone returns a copy that shares no memory with k.
func (k KeyPair) Clone() KeyPair {
	return KeyPair{Public: bytes.Clone(k.Public), Secret: bytes.Clone(k.Secret)}
}

// Outcome is the result of one encapsulation/decapsulation cycle.
type Outcome struct {
	Success bool
	Enc     bike.ErrorVector // vector used by encapsulation, after perturbation
	Dec     bike.ErrorVector // vector reconstructed by decapsulation
}

// Executor runs trials against one key pair. It is owned by a single worker.
type Executor struct {
	KEM  KEM
	Keys KeyPair
	Hook perturb.Perturber // nil means no perturbation
}

// Run performs one trial. The trial succeeds when decapsulation reconstructs
// exactly the error vector encapsulation used; shared secrets are not
// compared.
func (x *Executor) Run() (Outcome, error) {
	ct, _, enc, err := x.KEM.Encapsulate(x.Keys.Public, x.Hook)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: encapsulate:\n%w", ErrCollaborator, err)
	}

	_, dec, err := x.KEM.Decapsulate(ct, x.Keys.Secret)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: decapsulate:\n%w", ErrCollaborator, err)
	}

	return Outcome{Success: enc.Equal(dec), Enc: enc, Dec: dec}, nil
}

// Step runs one trial and feeds both halves of the encapsulation-side vector
// into pair through acc. It reports whether the trial succeeded.
func (x *Executor) Step(acc *spectrum.Accumulator, pair spectrum.Pair) (bool, error) {
	out, err := x.Run()
	if err != nil {
		return false, err
	}

	if err := acc.Update(pair[0], out.Enc.E0, out.Success); err != nil {
		return false, fmt.Errorf("half 0:\n%w", err)
	}

	if err := acc.Update(pair[1], out.Enc.E1, out.Success); err != nil {
		return false, fmt.Errorf("half 1:\n%w", err)
	}

	return out.Success, nil
}
