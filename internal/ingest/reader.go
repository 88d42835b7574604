package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/transform"
)

// TextColumns are the accepted text column names, in order of preference.
var TextColumns = []string{"text", "tweet"}

// ReaderOptions configures OpenCSV.
type ReaderOptions struct {
	SampleBytes int
	Fallback    string
}

// Reader streams the text column of an uploaded CSV file in chunks.
type Reader struct {
	file     *os.File
	csv      *csv.Reader
	encoding Encoding
	header   []string
	column   int
	skipped  int
	done     bool
}

// OpenCSV detects the encoding of the file at path and reads its header. When the
// detected encoding fails on the sample or the header, the file is re-opened once
// with the fallback encoding. Failing both yields ErrDecode.
func OpenCSV(path string, opts ReaderOptions) (*Reader, error) {
	if opts.SampleBytes <= 0 {
		opts.SampleBytes = DefaultSampleBytes
	}
	if opts.Fallback == "" {
		opts.Fallback = DefaultFallbackEncoding
	}

	sample, err := readSample(path, opts.SampleBytes)
	if err != nil {
		return nil, err
	}

	truncated := len(sample) == opts.SampleBytes
	detected := DetectEncoding(sample)
	r, err := openWith(path, detected, sample, truncated)
	if err == nil {
		return r, nil
	}

	fallback, lookupErr := LookupEncoding(opts.Fallback)
	if lookupErr != nil {
		return nil, fmt.Errorf("%w: %s: %w; %w", ErrDecode, detected.Name, err, lookupErr)
	}
	r, fallbackErr := openWith(path, fallback, sample, truncated)
	if fallbackErr != nil {
		return nil, fmt.Errorf("%w: %s: %w; %s: %w", ErrDecode, detected.Name, err, fallback.Name, fallbackErr)
	}
	return r, nil
}

func readSample(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return buf[:read], nil
}

func openWith(path string, enc Encoding, sample []byte, truncated bool) (*Reader, error) {
	if truncated {
		sample = enc.TrimSample(sample)
	}
	if err := enc.Probe(sample); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}

	cr := csv.NewReader(transform.NewReader(f, enc.Decoder()))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	r := &Reader{file: f, csv: cr, encoding: enc, column: -1}

	header, err := cr.Read()
	switch {
	case errors.Is(err, io.EOF):
		r.done = true
		return r, nil
	case err != nil:
		f.Close()
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	r.header = make([]string, len(header))
	for i, name := range header {
		r.header[i] = strings.TrimSpace(name)
	}
	return r, nil
}

// Encoding returns the name of the encoding the file is decoded with.
func (r *Reader) Encoding() string {
	return r.encoding.Name
}

// Header returns the column names, or nil for an empty file.
func (r *Reader) Header() []string {
	return r.header
}

// Empty reports whether the file had no header at all.
func (r *Reader) Empty() bool {
	return r.header == nil
}

// SelectTextColumn picks the first of TextColumns present in the header.
func (r *Reader) SelectTextColumn() (string, error) {
	for _, want := range TextColumns {
		for i, name := range r.header {
			if name == want {
				r.column = i
				return name, nil
			}
		}
	}
	return "", ErrSchema
}

// Skipped returns how many rows were dropped because they could not be parsed.
func (r *Reader) Skipped() int {
	return r.skipped
}

// ReadChunk returns up to n texts. Rows that fail to parse or carry more fields than
// the header are skipped; short rows read as empty text. It returns io.EOF once no
// rows remain.
func (r *Reader) ReadChunk(n int) ([]string, error) {
	if r.column < 0 && !r.done {
		return nil, ErrSchema
	}
	if r.done {
		return nil, io.EOF
	}

	texts := make([]string, 0, min(n, 4096))
	for len(texts) < n {
		record, err := r.csv.Read()
		if errors.Is(err, io.EOF) {
			r.done = true
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				r.skipped++
				continue
			}
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		if len(record) > len(r.header) {
			r.skipped++
			continue
		}
		if r.column < len(record) {
			texts = append(texts, record[r.column])
		} else {
			texts = append(texts, "")
		}
	}

	if len(texts) == 0 {
		return nil, io.EOF
	}
	return texts, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
