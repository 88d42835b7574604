package models

// LabelCount is one (period, label) aggregate row.
type LabelCount struct {
	Month string `db:"month" json:"month"`
	Hate  Label  `db:"hate" json:"hate"`
	Count int    `db:"count" json:"count"`
}

// HateTypeCount is one (period, stored category string) aggregate row over hateful tweets.
type HateTypeCount struct {
	Month     string `db:"month" json:"month"`
	HateTypes string `db:"hate_types" json:"hate_types"`
	Count     int    `db:"count" json:"count"`
}

// PeriodCounts holds hate / non-hate totals for a period.
type PeriodCounts struct {
	Month   string `json:"month"`
	Hate    int    `json:"hate"`
	NonHate int    `json:"non_hate"`
}

// CategoryCount is a row of the category summary table.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Overview summarises one or more periods.
type Overview struct {
	Periods      []string        `json:"periods"`
	Counts       []PeriodCounts  `json:"counts"`
	TotalTweets  int             `json:"total_tweets"`
	TotalHate    int             `json:"total_hate"`
	TotalNonHate int             `json:"total_non_hate"`
	HateRate     float64         `json:"hate_rate"`
	NonHateRate  float64         `json:"non_hate_rate"`
	TopCategory  string          `json:"top_category"`
	PeakPeriod   string          `json:"peak_period"`
	Categories   []CategoryCount `json:"categories"`
}

// PeriodRates is the per-period part of a comparison.
type PeriodRates struct {
	Month       string         `json:"month"`
	Hate        int            `json:"hate"`
	NonHate     int            `json:"non_hate"`
	Total       int            `json:"total"`
	HateRate    float64        `json:"hate_rate"`
	NonHateRate float64        `json:"non_hate_rate"`
	Categories  map[string]int `json:"categories"`
}

// Comparison contrasts two periods. Deltas are second minus first.
type Comparison struct {
	First           PeriodRates `json:"first"`
	Second          PeriodRates `json:"second"`
	HateRateDiff    float64     `json:"hate_rate_diff"`
	NonHateRateDiff float64     `json:"non_hate_rate_diff"`
	// HateDiff is the change in hate count; HatePctChange relates it to the first
	// period's count (at least 1).
	HateDiff      int      `json:"hate_diff"`
	HatePctChange float64  `json:"hate_pct_change"`
	AllCategories []string `json:"all_categories"`
}
