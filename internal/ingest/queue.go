package ingest

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"hatewatch/internal/metrics"
	"hatewatch/internal/models"
)

const (
	DefaultWorkers   = 1
	DefaultQueueSize = 16
)

// Runner processes one batch to a terminal state.
type Runner interface {
	Run(ctx context.Context, batch models.IngestionBatch) models.BatchState
}

// Queue feeds submitted batches to a fixed set of workers. Running batches are
// never cancelled; Shutdown stops intake and waits for them.
type Queue struct {
	runner  Runner
	jobs    chan models.IngestionBatch
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue starts workers goroutines consuming a buffer of size batches.
func NewQueue(runner Runner, workers, size int, m *metrics.Metrics, logger *zap.Logger) *Queue {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if size < 1 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		runner:  runner,
		jobs:    make(chan models.IngestionBatch, size),
		metrics: m,
		logger:  logger.Named("ingest-queue"),
	}

	q.wg.Add(workers)
	for i := range workers {
		go q.worker(i)
	}
	return q
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for batch := range q.jobs {
		q.metrics.SetQueueDepth(len(q.jobs))
		q.logger.Debug("Worker picked up batch", zap.Int("worker", id), zap.String("batch_id", batch.ID))
		// Batches outlive the request that submitted them.
		q.runner.Run(context.Background(), batch)
	}
}

// Submit enqueues batch without blocking.
func (q *Queue) Submit(batch models.IngestionBatch) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- batch:
		q.metrics.SetQueueDepth(len(q.jobs))
		return nil
	default:
		q.logger.Warn("Ingestion queue full, rejecting batch", zap.String("batch_id", batch.ID))
		return ErrQueueFull
	}
}

// Shutdown stops accepting batches and waits for queued and running ones to
// finish, or for ctx to end.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("Ingestion queue drained")
		return nil
	case <-ctx.Done():
		q.logger.Warn("Ingestion queue shutdown timed out", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}
