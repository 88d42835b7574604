package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.RecordLabel("hate")
	m.RecordLabel("hate")
	m.RecordLabel("non-hate")
	m.RecordOverride()
	m.RecordBatch("done")
	m.AddRowsWritten(2000)
	m.AddRowsWritten(-1)
	m.AddRowsSkipped(3)
	m.SetQueueDepth(4)

	assert.InDelta(t, 2, testutil.ToFloat64(m.ItemsClassified.WithLabelValues("hate")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ItemsClassified.WithLabelValues("non-hate")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.OverrideFlips), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Batches.WithLabelValues("done")), 0)
	assert.InDelta(t, 2000, testutil.ToFloat64(m.RowsWritten), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.RowsSkipped), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.QueueDepth), 0)
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.RecordOverride()
	assert.InDelta(t, 0, testutil.ToFloat64(b.OverrideFlips), 0)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordLabel("hate")
		m.RecordOverride()
		m.ObserveInference("stage1", time.Second)
		m.RecordBatch("failed")
		m.AddRowsWritten(1)
		m.AddRowsSkipped(1)
		m.SetQueueDepth(1)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveInference("stage1", 120*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `hatewatch_inference_duration_seconds_count{stage="stage1"} 1`)
}
