// Package progress keeps the advisory, pollable progress of ingestion batches.
package progress

import (
	"context"
	"errors"

	"hatewatch/internal/models"
)

// ErrNotFound is returned for unknown batch ids.
var ErrNotFound = errors.New("progress not found")

// Store persists progress entries keyed by batch id. It also remembers the most
// recently started batch, which backs the single-slot progress query.
type Store interface {
	Save(ctx context.Context, p models.Progress) error
	Get(ctx context.Context, batchID string) (models.Progress, error)
	SetLatest(ctx context.Context, batchID string) error
	// Latest returns the progress of the most recently started batch, or
	// models.IdleProgress when none has started.
	Latest(ctx context.Context) (models.Progress, error)
}
