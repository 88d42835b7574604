package models

import (
	"strings"
	"time"
)

// Label is the stage-1 outcome stored in the hate column.
type Label string

const (
	LabelHate    Label = "hate"
	LabelNonHate Label = "non-hate"
)

// IsHate reports whether the label marks an item as hateful.
func (l Label) IsHate() bool {
	return l == LabelHate
}

// LabelFromBinary maps the stage-1 class index (1 = hate) to a Label.
func LabelFromBinary(class int) Label {
	if class == 1 {
		return LabelHate
	}
	return LabelNonHate
}

// CategoryOtherHate is assigned to hateful items for which stage 2 picked no category.
const CategoryOtherHate = "Other_Hate"

// DefaultCategories is the stage-2 label vocabulary, in model output order.
var DefaultCategories = []string{"Race", "Religion", "Gender", "Sexual_Orientation"}

// BinaryPrediction is one stage-1 backend output.
type BinaryPrediction struct {
	Label int     `json:"label"`
	Score float64 `json:"score"`
}

// Tweet represents a classified record in the tweets table.
type Tweet struct {
	ID         int64     `db:"id" json:"id"`
	Tweet      string    `db:"tweet" json:"tweet"`
	CleanTweet string    `db:"clean_tweet" json:"clean_tweet"`
	Hate       Label     `db:"hate" json:"hate"`
	HateTypes  string    `db:"hate_types" json:"hate_types"`
	Month      string    `db:"month" json:"month"`
	FileName   string    `db:"file_name" json:"file_name"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Categories splits the stored comma-joined hate types.
func (t Tweet) Categories() []string {
	return SplitCategories(t.HateTypes)
}

// JoinCategories is the storage form of a category list.
func JoinCategories(categories []string) string {
	return strings.Join(categories, ",")
}

// SplitCategories parses a stored category string, dropping blanks.
func SplitCategories(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CSVHeader is the column order of exported classified records.
var CSVHeader = []string{"tweet", "clean_tweet", "hate", "hate_types", "month", "file_name"}

// CSVRow returns the record in CSVHeader order.
func (t Tweet) CSVRow() []string {
	return []string{t.Tweet, t.CleanTweet, string(t.Hate), t.HateTypes, t.Month, t.FileName}
}
