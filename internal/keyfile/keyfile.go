package keyfile

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"BikeDS/internal/bike"
)

var (
	// ErrRecordLength is returned when the decoded corpus is not a whole
	// number of key records.
	ErrRecordLength = errors.New("key corpus length is not a multiple of the record size")

	// ErrEmpty is returned when a corpus holds no keys.
	ErrEmpty = errors.New("key corpus is empty")
)

// Record is one stored key: two weight lists, the secret blocks h0 and h1,
// the public key h and the rejection secret sigma.
type Record struct {
	WList [2][]uint32
	H0    []byte
	H1    []byte
	H     []byte
	Sigma []byte
}

// RecordSize returns the byte length of one record for the level.
func RecordSize(l bike.Level) int {
	return 2*l.WeightListBytes() + 3*l.RBytes() + bike.MBytes
}

// Parse decodes a hex key corpus. Whitespace is ignored, so records may be
// split across lines arbitrarily. On any error no records are returned.
func Parse(text []byte, l bike.Level) ([]Record, error) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, string(text))

	raw, err := hex.DecodeString(digits)
	if err != nil {
		return nil, fmt.Errorf("decode hex:\n%w", err)
	}

	size := RecordSize(l)

	if len(raw)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes, record size %d", ErrRecordLength, len(raw), size)
	}

	if len(raw) == 0 {
		return nil, ErrEmpty
	}

	records := make([]Record, 0, len(raw)/size)
	for off := 0; off < len(raw); off += size {
		records = append(records, decodeRecord(raw[off:off+size], l))
	}

	return records, nil
}

// Load reads and parses the corpus at path.
func Load(path string, l bike.Level) ([]Record, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	records, err := Parse(text, l)
	if err != nil {
		return nil, fmt.Errorf("parse %s:\n%w", path, err)
	}

	return records, nil
}

// FromSecretKey wraps a serialized secret key as a record.
func FromSecretKey(sk []byte, l bike.Level) (Record, error) {
	if len(sk) != RecordSize(l) {
		return Record{}, fmt.Errorf("%w: %d bytes, record size %d", ErrRecordLength, len(sk), RecordSize(l))
	}

	return decodeRecord(sk, l), nil
}

// decodeRecord splits one record into its fields. The fields are copies.
func decodeRecord(b []byte, l bike.Level) Record {
	var r Record
	off := 0

	take := func(n int) []byte {
		out := make([]byte, n)
		copy(out, b[off:off+n])
		off += n
		return out
	}

	for w := range r.WList {
		raw := take(l.WeightListBytes())
		r.WList[w] = make([]uint32, l.D)
		for i := range r.WList[w] {
			r.WList[w][i] = binary.LittleEndian.Uint32(raw[4*i:])
		}
	}

	r.H0 = take(l.RBytes())
	r.H1 = take(l.RBytes())
	r.H = take(l.RBytes())
	r.Sigma = take(bike.MBytes)

	return r
}

// SecretKey returns the record in secret-key layout:
// wlist0 | wlist1 | h0 | h1 | h | sigma.
func (r Record) SecretKey() []byte {
	out := make([]byte, 0, 8*len(r.WList[0])+3*len(r.H)+len(r.Sigma))

	for _, wl := range r.WList {
		for _, idx := range wl {
			out = binary.LittleEndian.AppendUint32(out, idx)
		}
	}

	out = append(out, r.H0...)
	out = append(out, r.H1...)
	out = append(out, r.H...)

	return append(out, r.Sigma...)
}

// PublicKey returns a copy of h.
func (r Record) PublicKey() []byte {
	return append([]byte(nil), r.H...)
}

// Encode returns the record as one lowercase hex line without newline.
func (r Record) Encode() string {
	return hex.EncodeToString(r.SecretKey())
}

// Append adds records to the corpus at path, one line each, creating the
// file if needed.
func Append(path string, records []Record) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}

	var b strings.Builder
	for _, r := range records {
		b.WriteString(r.Encode())
		b.WriteByte('\n')
	}

	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
