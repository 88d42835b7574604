package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"go.uber.org/zap"

	"hatewatch/internal/models"
)

var (
	// ErrNoData is returned when nothing has been ingested yet.
	ErrNoData = errors.New("no tweet data available")
	// ErrSamePeriod is returned when a comparison names one period twice.
	ErrSamePeriod = errors.New("select two different periods to compare")
)

// ReportRepository is the read side of the tweet store.
type ReportRepository interface {
	ListPeriods(ctx context.Context) ([]string, error)
	LabelCounts(ctx context.Context, periods []string) ([]models.LabelCount, error)
	HateTypeCounts(ctx context.Context, periods []string) ([]models.HateTypeCount, error)
	Export(ctx context.Context, period string, fn func(models.Tweet) error) error
}

// ReportService aggregates classified tweets for reporting.
type ReportService struct {
	repo   ReportRepository
	logger *zap.Logger
}

func NewReportService(repo ReportRepository, logger *zap.Logger) *ReportService {
	return &ReportService{repo: repo, logger: logger}
}

// Periods lists every ingested period in ascending order.
func (s *ReportService) Periods(ctx context.Context) ([]string, error) {
	return s.repo.ListPeriods(ctx)
}

// Overview summarises the given periods; with none, the latest ingested period.
func (s *ReportService) Overview(ctx context.Context, periods []string) (*models.Overview, error) {
	selected, err := s.normalizePeriods(periods)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		all, err := s.repo.ListPeriods(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list periods: %w", err)
		}
		if len(all) == 0 {
			return nil, ErrNoData
		}
		selected = all[len(all)-1:]
	}

	labels, err := s.repo.LabelCounts(ctx, selected)
	if err != nil {
		return nil, fmt.Errorf("failed to count labels: %w", err)
	}
	types, err := s.repo.HateTypeCounts(ctx, selected)
	if err != nil {
		return nil, fmt.Errorf("failed to count hate types: %w", err)
	}

	byPeriod := countsByPeriod(labels)
	ov := &models.Overview{Periods: selected, Counts: make([]models.PeriodCounts, 0, len(selected))}
	peakHate := -1
	for _, p := range selected {
		c := byPeriod[p]
		c.Month = p
		ov.Counts = append(ov.Counts, c)
		ov.TotalHate += c.Hate
		ov.TotalNonHate += c.NonHate
		if c.Hate > peakHate {
			peakHate = c.Hate
			ov.PeakPeriod = p
		}
	}
	ov.TotalTweets = ov.TotalHate + ov.TotalNonHate
	ov.HateRate = percent(ov.TotalHate, ov.TotalTweets)
	ov.NonHateRate = percent(ov.TotalNonHate, ov.TotalTweets)

	ov.Categories = rankCategories(categoryTotals(types, nil))
	if len(ov.Categories) > 0 {
		ov.TopCategory = ov.Categories[0].Category
	}
	return ov, nil
}

// Compare contrasts two distinct periods.
func (s *ReportService) Compare(ctx context.Context, first, second string) (*models.Comparison, error) {
	first, err := models.NormalizePeriod(first)
	if err != nil {
		return nil, err
	}
	second, err = models.NormalizePeriod(second)
	if err != nil {
		return nil, err
	}
	if first == second {
		return nil, ErrSamePeriod
	}

	selected := []string{first, second}
	labels, err := s.repo.LabelCounts(ctx, selected)
	if err != nil {
		return nil, fmt.Errorf("failed to count labels: %w", err)
	}
	types, err := s.repo.HateTypeCounts(ctx, selected)
	if err != nil {
		return nil, fmt.Errorf("failed to count hate types: %w", err)
	}

	byPeriod := countsByPeriod(labels)
	if byPeriod[first].Hate+byPeriod[first].NonHate+byPeriod[second].Hate+byPeriod[second].NonHate == 0 {
		return nil, ErrNoData
	}

	a := rates(first, byPeriod[first], categoryTotals(types, &first))
	b := rates(second, byPeriod[second], categoryTotals(types, &second))

	all := make([]string, 0, len(a.Categories)+len(b.Categories))
	for c := range a.Categories {
		all = append(all, c)
	}
	for c := range b.Categories {
		if _, ok := a.Categories[c]; !ok {
			all = append(all, c)
		}
	}
	sort.Strings(all)

	hateDiff := b.Hate - a.Hate
	return &models.Comparison{
		First:           a,
		Second:          b,
		HateRateDiff:    round1(b.HateRate - a.HateRate),
		NonHateRateDiff: round1(b.NonHateRate - a.NonHateRate),
		HateDiff:        hateDiff,
		HatePctChange:   round1(float64(hateDiff) / float64(max(1, a.Hate)) * 100),
		AllCategories:   all,
	}, nil
}

// Export streams the tweets of one period.
func (s *ReportService) Export(ctx context.Context, period string, fn func(models.Tweet) error) error {
	period, err := models.NormalizePeriod(period)
	if err != nil {
		return err
	}
	return s.repo.Export(ctx, period, fn)
}

func (s *ReportService) normalizePeriods(periods []string) ([]string, error) {
	out := make([]string, 0, len(periods))
	for _, p := range periods {
		n, err := models.NormalizePeriod(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", err, p)
		}
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

func countsByPeriod(labels []models.LabelCount) map[string]models.PeriodCounts {
	out := make(map[string]models.PeriodCounts)
	for _, l := range labels {
		c := out[l.Month]
		switch l.Hate {
		case models.LabelHate:
			c.Hate += l.Count
		case models.LabelNonHate:
			c.NonHate += l.Count
		}
		out[l.Month] = c
	}
	return out
}

// categoryTotals splits stored category strings and sums per category, optionally
// for a single period.
func categoryTotals(rows []models.HateTypeCount, period *string) map[string]int {
	totals := make(map[string]int)
	for _, r := range rows {
		if period != nil && r.Month != *period {
			continue
		}
		for _, c := range models.SplitCategories(r.HateTypes) {
			totals[c] += r.Count
		}
	}
	return totals
}

// rankCategories orders by count descending, then name.
func rankCategories(totals map[string]int) []models.CategoryCount {
	out := make([]models.CategoryCount, 0, len(totals))
	for c, n := range totals {
		out = append(out, models.CategoryCount{Category: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func rates(period string, c models.PeriodCounts, categories map[string]int) models.PeriodRates {
	total := c.Hate + c.NonHate
	return models.PeriodRates{
		Month:       period,
		Hate:        c.Hate,
		NonHate:     c.NonHate,
		Total:       total,
		HateRate:    percent(c.Hate, total),
		NonHateRate: percent(c.NonHate, total),
		Categories:  categories,
	}
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(part) / float64(total) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
