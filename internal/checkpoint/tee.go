package checkpoint

import (
	"errors"
	"fmt"
)

// ErrMirror is returned by Tee when the first sink stored the record but a
// later one failed. The record is durable in the first sink.
var ErrMirror = errors.New("record stored by primary sink only")

// Tee appends each record to every sink in order, stopping at the first
// failure. The first sink is the primary one.
type Tee []Sink

// Append writes rec to all sinks.
func (t Tee) Append(rec *Record) error {
	for i, s := range t {
		if err := s.Append(rec); err != nil {
			if i > 0 {
				return fmt.Errorf("%w: sink %d:\n%w", ErrMirror, i, err)
			}
			return fmt.Errorf("sink %d:\n%w", i, err)
		}
	}

	return nil
}
