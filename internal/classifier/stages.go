package classifier

import (
	"context"
	"fmt"
	"time"

	"hatewatch/internal/metrics"
	"hatewatch/internal/models"
)

// DefaultBatchSize is the sub-batch size used when none is configured.
const DefaultBatchSize = 64

// DefaultThreshold is the stage-2 per-category cut-off. A category is kept only when
// its probability is strictly greater.
const DefaultThreshold = 0.5

// BinaryBackend runs the stage-1 model.
type BinaryBackend interface {
	InferBinary(ctx context.Context, batch []string) ([]models.BinaryPrediction, error)
}

// MultiLabelBackend runs the stage-2 model and returns one probability vector per input.
type MultiLabelBackend interface {
	InferMultiLabel(ctx context.Context, batch []string) ([][]float64, error)
}

// StageOne labels every text hate or non-hate.
type StageOne struct {
	backend   BinaryBackend
	batchSize int
	metrics   *metrics.Metrics
}

func NewStageOne(backend BinaryBackend, batchSize int, m *metrics.Metrics) *StageOne {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &StageOne{backend: backend, batchSize: batchSize, metrics: m}
}

// Classify returns one label per input, in input order. Sub-batches are issued
// sequentially and share no state.
func (s *StageOne) Classify(ctx context.Context, cleaned []string) ([]models.Label, error) {
	labels := make([]models.Label, 0, len(cleaned))
	for start := 0; start < len(cleaned); start += s.batchSize {
		end := min(start+s.batchSize, len(cleaned))
		batch := cleaned[start:end]

		began := time.Now()
		preds, err := s.backend.InferBinary(ctx, batch)
		s.metrics.ObserveInference("stage1", time.Since(began))
		if err != nil {
			return nil, fmt.Errorf("%w: stage 1 items %d-%d: %w", ErrInference, start, end-1, err)
		}
		if len(preds) != len(batch) {
			return nil, fmt.Errorf("%w: stage 1 returned %d predictions for %d items", ErrInference, len(preds), len(batch))
		}
		for _, p := range preds {
			labels = append(labels, models.LabelFromBinary(p.Label))
		}
	}
	return labels, nil
}

// StageTwo assigns hate categories to texts already judged hateful.
type StageTwo struct {
	backend    MultiLabelBackend
	categories []string
	threshold  float64
	batchSize  int
	metrics    *metrics.Metrics
}

// NewStageTwo builds the multi-label stage. categories must be in model output order.
func NewStageTwo(backend MultiLabelBackend, categories []string, threshold float64, batchSize int, m *metrics.Metrics) *StageTwo {
	if len(categories) == 0 {
		categories = models.DefaultCategories
	}
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &StageTwo{
		backend:    backend,
		categories: append([]string(nil), categories...),
		threshold:  threshold,
		batchSize:  batchSize,
		metrics:    m,
	}
}

// Classify returns, for each input, the categories whose probability exceeds the
// threshold, in vocabulary order. An empty list is a valid result.
func (s *StageTwo) Classify(ctx context.Context, cleaned []string) ([][]string, error) {
	out := make([][]string, 0, len(cleaned))
	for start := 0; start < len(cleaned); start += s.batchSize {
		end := min(start+s.batchSize, len(cleaned))
		batch := cleaned[start:end]

		began := time.Now()
		probs, err := s.backend.InferMultiLabel(ctx, batch)
		s.metrics.ObserveInference("stage2", time.Since(began))
		if err != nil {
			return nil, fmt.Errorf("%w: stage 2 items %d-%d: %w", ErrInference, start, end-1, err)
		}
		if len(probs) != len(batch) {
			return nil, fmt.Errorf("%w: stage 2 returned %d vectors for %d items", ErrInference, len(probs), len(batch))
		}
		for i, vec := range probs {
			if len(vec) != len(s.categories) {
				return nil, fmt.Errorf("%w: stage 2 vector for item %d has %d values, want %d",
					ErrInference, start+i, len(vec), len(s.categories))
			}
			out = append(out, s.decode(vec))
		}
	}
	return out, nil
}

func (s *StageTwo) decode(vec []float64) []string {
	var picked []string
	for i, p := range vec {
		if p > s.threshold {
			picked = append(picked, s.categories[i])
		}
	}
	return picked
}
