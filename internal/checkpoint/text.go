package checkpoint

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"BikeDS/internal/spectrum"
)

// TextFile appends records in the plain data.txt layout read by the analysis
// scripts:
//
//	successes,size
//	half0 success counts, each followed by ','
//	half0 total counts
//	half1 success counts
//	half1 total counts
type TextFile struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// OpenText opens path for appending, creating it if needed.
func OpenText(path string) (*TextFile, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	return &TextFile{f: f, w: bufio.NewWriter(f)}, nil
}

// Append writes rec and fsyncs the file.
func (t *TextFile) Append(rec *Record) error {
	if err := rec.Validate(0); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := writeText(t.w, rec); err != nil {
		return err
	}

	if err := t.w.Flush(); err != nil {
		return err
	}

	return t.f.Sync()
}

// Close closes the file.
func (t *TextFile) Close() error {
	return t.f.Close()
}

// writeText formats one record.
func writeText(w *bufio.Writer, rec *Record) error {
	fmt.Fprintf(w, "%d,%d\n", rec.Successes, rec.Size)

	for _, s := range rec.Half {
		for _, hist := range [][]uint64{s.Success, s.Total} {
			for _, v := range hist {
				w.WriteString(strconv.FormatUint(v, 10))
				w.WriteByte(',')
			}
			w.WriteByte('\n')
		}
	}

	return nil
}

// ReadText parses every record from r. Batch is set to the record's position
// in the file since the text layout carries no worker information.
func ReadText(r io.Reader, rBits int) (List, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), 64<<20)

	var (
		out  List
		line int
	)

	next := func() (string, bool) {
		for sc.Scan() {
			line++
			if s := strings.TrimSpace(sc.Text()); s != "" {
				return s, true
			}
		}
		return "", false
	}

	for {
		header, ok := next()
		if !ok {
			break
		}

		rec, err := parseHeader(header)
		if err != nil {
			return nil, fmt.Errorf("line %d:\n%w", line, err)
		}
		rec.Batch = uint32(len(out))

		var hists [4][]uint64
		for i := range hists {
			body, ok := next()
			if !ok {
				return nil, fmt.Errorf("%w: record %d truncated", ErrRecordShape, len(out))
			}

			if hists[i], err = parseHistogram(body); err != nil {
				return nil, fmt.Errorf("line %d:\n%w", line, err)
			}
		}

		rec.Half = [2]*spectrum.Spectrum{
			{Success: hists[0], Total: hists[1]},
			{Success: hists[2], Total: hists[3]},
		}

		if err := rec.Validate(rBits); err != nil {
			return nil, fmt.Errorf("record %d:\n%w", len(out), err)
		}

		out = append(out, rec)
	}

	if err := sc.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// parseHeader parses the "successes,size" line.
func parseHeader(s string) (*Record, error) {
	succ, size, ok := strings.Cut(s, ",")
	if !ok {
		return nil, fmt.Errorf("%w: header %q", ErrRecordShape, s)
	}

	rec := &Record{}

	var err error
	if rec.Successes, err = strconv.ParseUint(succ, 10, 64); err != nil {
		return nil, fmt.Errorf("%w: successes: %v", ErrRecordShape, err)
	}

	if rec.Size, err = strconv.ParseUint(strings.TrimSuffix(size, ","), 10, 64); err != nil {
		return nil, fmt.Errorf("%w: size: %v", ErrRecordShape, err)
	}

	return rec, nil
}

// parseHistogram parses a line of comma-terminated counts.
func parseHistogram(s string) ([]uint64, error) {
	fields := strings.Split(strings.TrimSuffix(s, ","), ",")
	out := make([]uint64, len(fields))

	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d: %v", ErrRecordShape, i, err)
		}
		out[i] = v
	}

	return out, nil
}
