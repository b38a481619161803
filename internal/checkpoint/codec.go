package checkpoint

import (
	"bytes"
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"BikeDS/internal/spectrum"
	"BikeDS/internal/types"
)

const (
	// recordVersion is the current encoded record format version.
	recordVersion = 1

	// checksumSize is the size of the blake3 digest prefixed to each value.
	checksumSize = 32
)

// ErrChecksum is returned when a stored value does not match its digest.
var ErrChecksum = errors.New("checkpoint checksum mismatch")

// Encode serializes a record as blake3(payload) || payload, where payload is
// the zstd-compressed flatbuffer.
func Encode(rec *Record) ([]byte, error) {
	if err := rec.Validate(0); err != nil {
		return nil, err
	}

	payload, err := compress(buildRecord(rec))
	if err != nil {
		return nil, err
	}

	sum := blake3.Sum256(payload)

	out := make([]byte, 0, checksumSize+len(payload))
	out = append(out, sum[:]...)

	return append(out, payload...), nil
}

// Decode verifies and parses a value produced by Encode. The histograms must
// match a ring of rBits positions.
func Decode(data []byte, rBits int) (*Record, error) {
	if len(data) < checksumSize {
		return nil, fmt.Errorf("%w: value too short (%d bytes)", ErrChecksum, len(data))
	}

	sum := blake3.Sum256(data[checksumSize:])
	if !bytes.Equal(sum[:], data[:checksumSize]) {
		return nil, ErrChecksum
	}

	buf, err := decompress(data[checksumSize:])
	if err != nil {
		return nil, fmt.Errorf("decompress:\n%w", err)
	}

	if len(buf) < 8 {
		return nil, fmt.Errorf("%w: flatbuffer too short", ErrRecordShape)
	}

	fb := types.GetRootAsCheckpoint(buf, 0)
	if v := fb.Version(); v != recordVersion {
		return nil, fmt.Errorf("%w: version %d", ErrRecordShape, v)
	}

	rec := &Record{
		Worker:    fb.Worker(),
		Batch:     fb.Batch(),
		Successes: fb.Successes(),
		Size:      fb.Size(),
		Half: [2]*spectrum.Spectrum{
			{
				Success: readVector(fb.Half0SuccessLength(), fb.Half0Success),
				Total:   readVector(fb.Half0TotalLength(), fb.Half0Total),
			},
			{
				Success: readVector(fb.Half1SuccessLength(), fb.Half1Success),
				Total:   readVector(fb.Half1TotalLength(), fb.Half1Total),
			},
		},
	}

	if err := rec.Validate(rBits); err != nil {
		return nil, err
	}

	return rec, nil
}

// buildRecord creates the Checkpoint flatbuffer for rec.
func buildRecord(rec *Record) []byte {
	n := len(rec.Half[0].Total)
	builder := flatbuffers.NewBuilder(256 + 4*8*n)

	// Vectors must be built before the table starts.
	h1t := buildVector(builder, rec.Half[1].Total, types.CheckpointStartHalf1TotalVector)
	h1s := buildVector(builder, rec.Half[1].Success, types.CheckpointStartHalf1SuccessVector)
	h0t := buildVector(builder, rec.Half[0].Total, types.CheckpointStartHalf0TotalVector)
	h0s := buildVector(builder, rec.Half[0].Success, types.CheckpointStartHalf0SuccessVector)

	types.CheckpointStart(builder)
	types.CheckpointAddVersion(builder, recordVersion)
	types.CheckpointAddWorker(builder, rec.Worker)
	types.CheckpointAddBatch(builder, rec.Batch)
	types.CheckpointAddSuccesses(builder, rec.Successes)
	types.CheckpointAddSize(builder, rec.Size)
	types.CheckpointAddHalf0Success(builder, h0s)
	types.CheckpointAddHalf0Total(builder, h0t)
	types.CheckpointAddHalf1Success(builder, h1s)
	types.CheckpointAddHalf1Total(builder, h1t)

	builder.Finish(types.CheckpointEnd(builder))

	return builder.FinishedBytes()
}

// buildVector writes a uint64 vector; elements are prepended in reverse.
func buildVector(builder *flatbuffers.Builder, v []uint64, start func(*flatbuffers.Builder, int) flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	start(builder, len(v))
	for i := len(v) - 1; i >= 0; i-- {
		builder.PrependUint64(v[i])
	}

	return builder.EndVector(len(v))
}

// readVector copies a flatbuffer vector out of the buffer.
func readVector(n int, at func(int) uint64) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = at(i)
	}

	return out
}

// compress compresses data using zstd.
func compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

// decompress decompresses zstd data.
func decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}
