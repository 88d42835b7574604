package ingest

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const (
	// DefaultSampleBytes is how much of a file encoding detection looks at.
	DefaultSampleBytes = 100_000
	// DefaultFallbackEncoding is used when the detected encoding cannot decode the file.
	DefaultFallbackEncoding = "ISO-8859-1"
)

// Encoding is a named character encoding.
type Encoding struct {
	Name string
	enc  encoding.Encoding
}

// DetectEncoding guesses the encoding of sample. A byte-order mark wins; otherwise a
// sample that is valid UTF-8 is UTF-8 and anything else is windows-1252.
func DetectEncoding(sample []byte) Encoding {
	enc, name, certain := charset.DetermineEncoding(sample, "text/csv")
	if !certain && name == "windows-1252" && utf8.Valid(trimPartialRune(sample)) {
		return Encoding{Name: "utf-8", enc: unicode.UTF8}
	}
	return Encoding{Name: name, enc: enc}
}

// LookupEncoding resolves an IANA encoding name. ISO-8859-1 resolves to real
// Latin-1, not the windows-1252 superset browsers substitute for it.
func LookupEncoding(name string) (Encoding, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return Encoding{}, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	if enc == nil {
		return Encoding{}, fmt.Errorf("unsupported encoding %q", name)
	}
	return Encoding{Name: strings.ToLower(name), enc: enc}, nil
}

// Probe decodes sample strictly and reports the first problem. A sample cut at the
// read limit should go through TrimSample first.
func (e Encoding) Probe(sample []byte) error {
	if e.Name == "utf-8" {
		if !utf8.Valid(sample) {
			return fmt.Errorf("sample is not valid utf-8")
		}
		return nil
	}

	out, _, err := transform.Bytes(e.enc.NewDecoder(), sample)
	if err != nil {
		return fmt.Errorf("sample does not decode as %s: %w", e.Name, err)
	}
	if bytes.ContainsRune(out, utf8.RuneError) && !bytes.ContainsRune(sample, utf8.RuneError) {
		return fmt.Errorf("sample has bytes undefined in %s", e.Name)
	}
	return nil
}

// Decoder returns a lenient decoding transformer: a leading BOM is honoured and
// stripped, and undecodable bytes are dropped.
func (e Encoding) Decoder() transform.Transformer {
	return transform.Chain(
		unicode.BOMOverride(e.enc.NewDecoder()),
		runes.Remove(runes.Predicate(func(r rune) bool { return r == utf8.RuneError })),
	)
}

// TrimSample drops a character cut off by the end of a truncated sample. Single-byte
// encodings are returned unchanged.
func (e Encoding) TrimSample(sample []byte) []byte {
	switch {
	case e.Name == "utf-8":
		return trimPartialRune(sample)
	case strings.HasPrefix(e.Name, "utf-16"):
		return trimPartialUTF16(sample, e.Name != "utf-16le")
	}
	return sample
}

// trimPartialUTF16 cuts sample to whole code units and drops a trailing high
// surrogate whose pair lies past the end.
func trimPartialUTF16(b []byte, bigEndian bool) []byte {
	b = b[:len(b)&^1]
	if len(b) < 2 {
		return b
	}
	unit := uint16(b[len(b)-2]) | uint16(b[len(b)-1])<<8
	if bigEndian {
		unit = uint16(b[len(b)-2])<<8 | uint16(b[len(b)-1])
	}
	if unit >= 0xD800 && unit <= 0xDBFF {
		return b[:len(b)-2]
	}
	return b
}

// trimPartialRune drops an incomplete UTF-8 sequence cut off by the sample boundary.
func trimPartialRune(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i]
			}
			break
		}
	}
	return b
}
