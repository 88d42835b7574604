package models

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidPeriod is returned for period tags that cannot be read as a month.
var ErrInvalidPeriod = errors.New("invalid period")

const periodLayout = "2006-01"

var periodInputLayouts = []string{
	"January 2006",
	"Jan 2006",
	"2006-01",
	"2006-01-02",
	"01/2006",
	"2006/01",
}

// NormalizePeriod converts a user supplied month ("June 2024", "2024-06-15", ...) into
// the stored YYYY-MM form.
func NormalizePeriod(s string) (string, error) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "", ErrInvalidPeriod
	}
	for _, layout := range periodInputLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(periodLayout), nil
		}
	}
	return "", ErrInvalidPeriod
}
