package progress

import (
	"context"
	"time"

	"go.uber.org/zap"

	"hatewatch/internal/models"
)

// Tracker publishes the progress of one batch. Store failures are logged and
// otherwise ignored; progress never affects the outcome of a batch.
type Tracker struct {
	store   Store
	batchID string
	logger  *zap.Logger
	rows    int
}

func NewTracker(store Store, batchID string, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:   store,
		batchID: batchID,
		logger:  logger.With(zap.String("batch_id", batchID)),
	}
}

// Start records the initial entry with status and claims the single "latest" slot.
func (t *Tracker) Start(ctx context.Context, status string) {
	t.Update(ctx, models.StateInit, 0, status)
	if err := t.store.SetLatest(ctx, t.batchID); err != nil {
		t.logger.Warn("Failed to mark latest batch", zap.Error(err))
	}
}

// SetRows records how many rows have been processed so far.
func (t *Tracker) SetRows(n int) {
	t.rows = n
}

// Update saves a new progress entry.
func (t *Tracker) Update(ctx context.Context, state models.BatchState, percent int, status string) {
	p := models.Progress{
		BatchID:   t.batchID,
		Percent:   percent,
		Status:    status,
		State:     state,
		Rows:      t.rows,
		UpdatedAt: time.Now().UTC(),
	}
	if err := t.store.Save(ctx, p); err != nil {
		t.logger.Warn("Failed to save progress",
			zap.String("state", string(state)),
			zap.Int("percent", percent),
			zap.Error(err),
		)
	}
}
