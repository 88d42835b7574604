// Package textutil holds the deterministic cleaning applied before any model sees input.
package textutil

import "strings"

// Normalize lowercases text, collapses every whitespace run to a single space and trims
// the ends. URLs, mentions and emoji are left in place.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// NormalizeValue is Normalize for untyped input; nil and non-string values yield "".
func NormalizeValue(v any) string {
	switch s := v.(type) {
	case string:
		return Normalize(s)
	case *string:
		if s == nil {
			return ""
		}
		return Normalize(*s)
	default:
		return ""
	}
}

// NormalizeBatch normalizes texts, keeping index alignment.
func NormalizeBatch(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = Normalize(t)
	}
	return out
}
