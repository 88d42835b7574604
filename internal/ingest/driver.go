// Package ingest turns uploaded CSV files into classified, persisted records.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"

	"go.uber.org/zap"

	"hatewatch/internal/classifier"
	"hatewatch/internal/metrics"
	"hatewatch/internal/models"
	"hatewatch/internal/progress"
)

const (
	DefaultChunkSize      = 100_000
	DefaultWriteBatchSize = 2000
)

// User-visible progress messages.
const (
	StatusQueued      = "Queued."
	StatusStarting    = "Starting..."
	StatusConnecting  = "Connecting to database..."
	StatusDuplicate   = "Duplicate file. Skipped."
	StatusMissingCol  = "Missing 'text' or 'tweet' column."
	StatusFinalizing  = "Writing results..."
	StatusNoRows      = "No tweets processed."
	StatusComplete    = "Upload and processing complete."
	StatusFailed      = "Processing error."
	statusReadingFmt  = "Reading CSV (encoding=%s)..."
	statusClassifyFmt = "Classifying chunk %d..."
)

// RecordStore is the persistence the driver needs.
type RecordStore interface {
	CountExisting(ctx context.Context, source, period string) (int, error)
	BulkInsert(ctx context.Context, tweets []models.Tweet) error
}

// Classifier labels a batch of raw texts.
type Classifier interface {
	Classify(ctx context.Context, raw []string) (*classifier.Result, error)
}

// Notifier is told about every finished batch.
type Notifier interface {
	NotifyBatch(ctx context.Context, batch models.IngestionBatch, p models.Progress)
}

// DriverConfig holds the driver tunables.
type DriverConfig struct {
	ChunkSize        int
	WriteBatchSize   int
	SampleBytes      int
	FallbackEncoding string
}

// Driver runs one ingestion batch through the state machine
// init, check_duplicate, reading, processing_chunk*, writing_results, done.
type Driver struct {
	records    RecordStore
	classifier Classifier
	progress   progress.Store
	exporter   *Exporter
	notifier   Notifier
	metrics    *metrics.Metrics
	cfg        DriverConfig
	logger     *zap.Logger
}

// NewDriver creates a driver. exporter, notifier and m may be nil.
func NewDriver(
	records RecordStore,
	cls Classifier,
	store progress.Store,
	exporter *Exporter,
	notifier Notifier,
	m *metrics.Metrics,
	cfg DriverConfig,
	logger *zap.Logger,
) *Driver {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.WriteBatchSize <= 0 {
		cfg.WriteBatchSize = DefaultWriteBatchSize
	}
	if cfg.SampleBytes <= 0 {
		cfg.SampleBytes = DefaultSampleBytes
	}
	if cfg.FallbackEncoding == "" {
		cfg.FallbackEncoding = DefaultFallbackEncoding
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		records:    records,
		classifier: cls,
		progress:   store,
		exporter:   exporter,
		notifier:   notifier,
		metrics:    m,
		cfg:        cfg,
		logger:     logger.Named("ingest"),
	}
}

// ChunkPercent is the progress shown while chunk idx (zero-based) is classified.
func ChunkPercent(idx int) int {
	return min(20+5*idx, 95)
}

// Run processes batch and returns its terminal state. Every error and panic is
// contained here and reported through progress; nothing propagates to the caller.
func (d *Driver) Run(ctx context.Context, batch models.IngestionBatch) (state models.BatchState) {
	logger := d.logger.With(
		zap.String("batch_id", batch.ID),
		zap.String("file_name", batch.Source),
		zap.String("month", batch.Period),
	)
	tracker := progress.NewTracker(d.progress, batch.ID, logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Ingestion panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			state = models.StateFailed
			tracker.Update(ctx, state, 100, StatusFailed)
		}
		d.finish(ctx, batch, tracker, state, logger)
	}()

	tracker.Start(ctx, StatusStarting)
	logger.Info("Ingestion started")

	state, err := d.run(ctx, batch, tracker, logger)
	if err != nil {
		status := StatusFailed
		if errors.Is(err, ErrSchema) {
			status = StatusMissingCol
		}
		logger.Error("Ingestion failed",
			zap.Bool("schema", errors.Is(err, ErrSchema)),
			zap.Bool("decode", errors.Is(err, ErrDecode)),
			zap.Bool("inference", errors.Is(err, classifier.ErrInference)),
			zap.Error(err),
		)
		tracker.Update(ctx, models.StateFailed, 100, status)
		return models.StateFailed
	}
	return state
}

func (d *Driver) finish(ctx context.Context, batch models.IngestionBatch, tracker *progress.Tracker, state models.BatchState, logger *zap.Logger) {
	d.metrics.RecordBatch(string(state))
	logger.Info("Ingestion finished", zap.String("state", string(state)))

	if d.notifier == nil {
		return
	}
	p, err := d.progress.Get(ctx, batch.ID)
	if err != nil {
		p = models.Progress{BatchID: batch.ID, State: state}
	}
	d.notifier.NotifyBatch(ctx, batch, p)
}

func (d *Driver) run(ctx context.Context, batch models.IngestionBatch, tracker *progress.Tracker, logger *zap.Logger) (models.BatchState, error) {
	tracker.Update(ctx, models.StateCheckDuplicate, 5, StatusConnecting)
	existing, err := d.records.CountExisting(ctx, batch.Source, batch.Period)
	if err != nil {
		return models.StateFailed, fmt.Errorf("duplicate check: %w", err)
	}
	if existing > 0 {
		logger.Info("Duplicate upload skipped", zap.Int("existing_rows", existing))
		tracker.Update(ctx, models.StateDuplicateSkipped, 100, StatusDuplicate)
		return models.StateDuplicateSkipped, nil
	}

	reader, err := OpenCSV(batch.FilePath, ReaderOptions{
		SampleBytes: d.cfg.SampleBytes,
		Fallback:    d.cfg.FallbackEncoding,
	})
	if err != nil {
		return models.StateFailed, err
	}
	defer reader.Close()

	tracker.Update(ctx, models.StateReading, 10, fmt.Sprintf(statusReadingFmt, reader.Encoding()))
	logger.Info("Reading upload", zap.String("encoding", reader.Encoding()))

	if reader.Empty() {
		tracker.Update(ctx, models.StateEmpty, 100, StatusNoRows)
		return models.StateEmpty, nil
	}
	column, err := reader.SelectTextColumn()
	if err != nil {
		return models.StateFailed, fmt.Errorf("header %v: %w", reader.Header(), err)
	}

	export, err := d.exporter.Open(batch.ID)
	if err != nil {
		return models.StateFailed, err
	}
	exported := false
	defer func() {
		if !exported {
			export.Discard()
		}
	}()

	total := 0
	for idx := 0; ; idx++ {
		texts, err := reader.ReadChunk(d.cfg.ChunkSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.StateFailed, err
		}

		tracker.Update(ctx, models.StateProcessingChunk, ChunkPercent(idx), fmt.Sprintf(statusClassifyFmt, idx+1))

		result, err := d.classifier.Classify(ctx, texts)
		if err != nil {
			return models.StateFailed, fmt.Errorf("chunk %d: %w", idx+1, err)
		}
		records := result.Records(texts, batch.Period, batch.Source)

		if err := d.write(ctx, records); err != nil {
			return models.StateFailed, fmt.Errorf("chunk %d: %w", idx+1, err)
		}
		if err := export.Write(records); err != nil {
			return models.StateFailed, err
		}

		total += len(records)
		tracker.SetRows(total)
		logger.Debug("Chunk processed", zap.Int("chunk", idx+1), zap.Int("rows", len(records)))
	}

	if skipped := reader.Skipped(); skipped > 0 {
		d.metrics.AddRowsSkipped(skipped)
		logger.Warn("Skipped unparseable rows", zap.Int("skipped", skipped))
	}

	if total == 0 {
		tracker.Update(ctx, models.StateEmpty, 100, StatusNoRows)
		return models.StateEmpty, nil
	}

	tracker.Update(ctx, models.StateWritingResults, 95, StatusFinalizing)
	if err := export.Close(); err != nil {
		return models.StateFailed, err
	}
	exported = true

	logger.Info("Upload classified",
		zap.String("column", column),
		zap.Int("rows", total),
		zap.String("export", export.Path()),
	)
	tracker.Update(ctx, models.StateDone, 100, StatusComplete)
	return models.StateDone, nil
}

// write persists records in sub-batches. Earlier sub-batches stay committed when a
// later one fails.
func (d *Driver) write(ctx context.Context, records []models.Tweet) error {
	for start := 0; start < len(records); start += d.cfg.WriteBatchSize {
		end := min(start+d.cfg.WriteBatchSize, len(records))
		if err := d.records.BulkInsert(ctx, records[start:end]); err != nil {
			return fmt.Errorf("bulk insert rows %d-%d: %w", start, end-1, err)
		}
		d.metrics.AddRowsWritten(end - start)
	}
	return nil
}
