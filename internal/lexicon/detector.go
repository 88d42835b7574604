// Package lexicon implements the lexical override check that forces a hate label when a
// known toxic term appears in the raw text.
package lexicon

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"gopkg.in/yaml.v3"
)

// Detector tests text for whole-word occurrences of a fixed term list.
// Candidates are found in one pass with an Aho-Corasick automaton and then confirmed
// against word boundaries.
type Detector struct {
	terms []string

	// Matcher.Match mutates per-call bookkeeping, so calls are serialised.
	mu      sync.Mutex
	matcher *ahocorasick.Matcher
}

// NewDetector builds a detector from terms. Terms are lowercased, whitespace collapsed and
// deduplicated; blank entries are dropped.
func NewDetector(terms []string) *Detector {
	seen := make(map[string]struct{}, len(terms))
	normalized := make([]string, 0, len(terms))
	for _, term := range terms {
		term = collapse(term)
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		normalized = append(normalized, term)
	}

	d := &Detector{terms: normalized}
	if len(normalized) > 0 {
		d.matcher = ahocorasick.NewStringMatcher(normalized)
	}
	return d
}

// Default returns a detector over the built-in term list plus any extra terms.
func Default(extra ...string) *Detector {
	terms := make([]string, 0, len(defaultTerms)+len(extra))
	terms = append(terms, defaultTerms...)
	terms = append(terms, extra...)
	return NewDetector(terms)
}

// Terms returns the normalized term list.
func (d *Detector) Terms() []string {
	out := make([]string, len(d.terms))
	copy(out, d.terms)
	return out
}

// ContainsOverrideTerm reports whether text contains any listed term as a whole word,
// case-insensitively. It does its own lowercasing and whitespace collapsing.
func (d *Detector) ContainsOverrideTerm(text string) bool {
	if d == nil || d.matcher == nil {
		return false
	}
	text = collapse(text)
	if text == "" {
		return false
	}

	d.mu.Lock()
	hits := d.matcher.Match([]byte(text))
	d.mu.Unlock()

	for _, idx := range hits {
		if idx < 0 || idx >= len(d.terms) {
			continue
		}
		if containsWord(text, d.terms[idx]) {
			return true
		}
	}
	return false
}

type termsFile struct {
	Terms []string `yaml:"terms"`
}

// LoadTerms reads an extra term list from a YAML file of the form `terms: [...]`.
func LoadTerms(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read terms file: %w", err)
	}
	var f termsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode terms file: %w", err)
	}
	return f.Terms, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// containsWord reports whether term occurs in text delimited by word boundaries, where a
// boundary sits between a word rune and a non-word rune (or the text edge).
func containsWord(text, term string) bool {
	if term == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(term)
	last, _ := utf8.DecodeLastRuneInString(term)

	for start := 0; start <= len(text)-len(term); {
		i := strings.Index(text[start:], term)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(term)

		before := false
		if i > 0 {
			r, _ := utf8.DecodeLastRuneInString(text[:i])
			before = isWordRune(r)
		}
		after := false
		if end < len(text) {
			r, _ := utf8.DecodeRuneInString(text[end:])
			after = isWordRune(r)
		}
		if before != isWordRune(first) && after != isWordRune(last) {
			return true
		}

		_, size := utf8.DecodeRuneInString(text[i:])
		start = i + size
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
