package classifier

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"hatewatch/internal/lexicon"
	"hatewatch/internal/metrics"
	"hatewatch/internal/models"
	"hatewatch/internal/textutil"
)

// IndexMap maps a position in a filtered sub-sequence back to its index in the
// original batch.
type IndexMap []int

// Original returns the original index of filtered position i.
func (m IndexMap) Original(i int) int {
	return m[i]
}

// Result is the index-aligned output of one pipeline run.
type Result struct {
	Labels []models.Label
	// Categories holds the category list of every hateful item, keyed by input index.
	Categories map[int][]string
	Cleaned    []string
}

// Len returns the number of classified items.
func (r *Result) Len() int {
	return len(r.Labels)
}

// CategoriesAt returns the categories of item i; nil for non-hate items.
func (r *Result) CategoriesAt(i int) []string {
	return r.Categories[i]
}

// Records assembles storable tweets from the result. raw must be the slice that
// was classified.
func (r *Result) Records(raw []string, period, source string) []models.Tweet {
	records := make([]models.Tweet, len(r.Labels))
	for i, label := range r.Labels {
		records[i] = models.Tweet{
			Tweet:      raw[i],
			CleanTweet: r.Cleaned[i],
			Hate:       label,
			HateTypes:  models.JoinCategories(r.Categories[i]),
			Month:      period,
			FileName:   source,
		}
	}
	return records
}

// Options configures a Pipeline.
type Options struct {
	BatchSize  int
	Threshold  float64
	Categories []string
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// Pipeline runs normalization, stage 1, the lexical override and stage 2 over a batch.
// It holds no per-call state and is safe for concurrent use when its backends are.
type Pipeline struct {
	stageOne *StageOne
	stageTwo *StageTwo
	detector *lexicon.Detector
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewPipeline wires the stages around the given backends.
func NewPipeline(binary BinaryBackend, multi MultiLabelBackend, detector *lexicon.Detector, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		stageOne: NewStageOne(binary, opts.BatchSize, opts.Metrics),
		stageTwo: NewStageTwo(multi, opts.Categories, opts.Threshold, opts.BatchSize, opts.Metrics),
		detector: detector,
		metrics:  opts.Metrics,
		logger:   logger.Named("pipeline"),
	}
}

// Classify labels every raw text and categorises the hateful ones. Outputs are in
// input order; nothing is reordered or deduplicated.
func (p *Pipeline) Classify(ctx context.Context, raw []string) (*Result, error) {
	res := &Result{
		Labels:     []models.Label{},
		Categories: map[int][]string{},
		Cleaned:    textutil.NormalizeBatch(raw),
	}
	if len(raw) == 0 {
		return res, nil
	}

	labels, err := p.stageOne.Classify(ctx, res.Cleaned)
	if err != nil {
		return nil, err
	}

	flips := 0
	for i, label := range labels {
		if label.IsHate() {
			continue
		}
		// The override sees the original text, not the cleaned one.
		if p.detector.ContainsOverrideTerm(raw[i]) {
			labels[i] = models.LabelHate
			flips++
			p.metrics.RecordOverride()
		}
	}
	res.Labels = labels

	var idx IndexMap
	var hateTexts []string
	for i, label := range labels {
		if label.IsHate() {
			idx = append(idx, i)
			hateTexts = append(hateTexts, res.Cleaned[i])
		}
	}

	if len(idx) > 0 {
		cats, err := p.stageTwo.Classify(ctx, hateTexts)
		if err != nil {
			return nil, err
		}
		for pos, c := range cats {
			if len(c) == 0 {
				c = []string{models.CategoryOtherHate}
			}
			res.Categories[idx.Original(pos)] = c
		}
	}

	for _, label := range labels {
		p.metrics.RecordLabel(string(label))
	}

	p.logger.Debug("Batch classified",
		zap.Int("items", len(raw)),
		zap.Int("hate", len(idx)),
		zap.Int("override_flips", flips),
	)
	return res, nil
}

// ClassifyOne runs a single text through the pipeline.
func (p *Pipeline) ClassifyOne(ctx context.Context, text string) (models.Label, []string, string, error) {
	res, err := p.Classify(ctx, []string{text})
	if err != nil {
		return "", nil, "", err
	}
	if res.Len() != 1 {
		return "", nil, "", fmt.Errorf("%w: expected 1 result, got %d", ErrInference, res.Len())
	}
	return res.Labels[0], res.CategoriesAt(0), res.Cleaned[0], nil
}
