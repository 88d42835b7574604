package classifier

import (
	"context"
	"strings"
	"sync"

	"hatewatch/internal/models"
)

// fakeBinary labels a text hateful when it contains "hate".
type fakeBinary struct {
	mu      sync.Mutex
	calls   [][]string
	err     error
	short   bool
	onBatch func(batch []string)
}

func (f *fakeBinary) InferBinary(_ context.Context, batch []string) ([]models.BinaryPrediction, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), batch...))
	f.mu.Unlock()
	if f.onBatch != nil {
		f.onBatch(batch)
	}
	if f.err != nil {
		return nil, f.err
	}
	preds := make([]models.BinaryPrediction, len(batch))
	for i, text := range batch {
		if strings.Contains(text, "hate") {
			preds[i] = models.BinaryPrediction{Label: 1, Score: 0.97}
		} else {
			preds[i] = models.BinaryPrediction{Label: 0, Score: 0.88}
		}
	}
	if f.short {
		preds = preds[:len(preds)-1]
	}
	return preds, nil
}

// fakeMulti returns fixed vectors keyed by text, falling back to def.
type fakeMulti struct {
	mu      sync.Mutex
	calls   [][]string
	vectors map[string][]float64
	def     []float64
	err     error
}

func (f *fakeMulti) InferMultiLabel(_ context.Context, batch []string) ([][]float64, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), batch...))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(batch))
	for i, text := range batch {
		if v, ok := f.vectors[text]; ok {
			out[i] = v
			continue
		}
		out[i] = f.def
	}
	return out, nil
}

func (f *fakeMulti) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []string
	for _, c := range f.calls {
		all = append(all, c...)
	}
	return all
}
