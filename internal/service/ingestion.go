package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"hatewatch/internal/ingest"
	"hatewatch/internal/models"
	"hatewatch/internal/progress"
)

// ErrInvalidFile is returned for uploads that are not .csv files.
var ErrInvalidFile = errors.New("invalid file: only .csv uploads are accepted")

// Submitter accepts batches for background processing.
type Submitter interface {
	Submit(batch models.IngestionBatch) error
}

// IngestionService accepts uploads and exposes their progress.
type IngestionService struct {
	uploadDir string
	queue     Submitter
	progress  progress.Store
	logger    *zap.Logger
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(uploadDir string, queue Submitter, store progress.Store, logger *zap.Logger) *IngestionService {
	return &IngestionService{
		uploadDir: uploadDir,
		queue:     queue,
		progress:  store,
		logger:    logger,
	}
}

// AllowedFile reports whether filename has a .csv extension, in any letter case.
func AllowedFile(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".csv")
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

var windowsDeviceNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SecureFilename reduces a client supplied name to a safe ASCII file name: accents
// are folded, path separators and whitespace become underscores and anything else
// outside [A-Za-z0-9_.-] is dropped. The result may be empty.
func SecureFilename(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	name, _, _ = transform.String(t, name)

	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")

	if name != "" {
		base, _, _ := strings.Cut(name, ".")
		if windowsDeviceNames[strings.ToUpper(base)] {
			name = "_" + name
		}
	}
	return name
}

// Upload stores the file and queues it for ingestion. month accepts any form
// models.NormalizePeriod understands.
func (s *IngestionService) Upload(ctx context.Context, filename, month string, content io.Reader) (*models.IngestionBatch, error) {
	if !AllowedFile(filename) {
		return nil, ErrInvalidFile
	}
	period, err := models.NormalizePeriod(month)
	if err != nil {
		return nil, err
	}
	source := SecureFilename(filename)
	if !AllowedFile(source) {
		return nil, ErrInvalidFile
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}

	batch := &models.IngestionBatch{
		ID:        uuid.New().String(),
		Source:    source,
		Period:    period,
		CreatedAt: time.Now().UTC(),
	}
	batch.FilePath = filepath.Join(s.uploadDir, batch.ID+"_"+source)

	checksum, err := saveFile(batch.FilePath, content)
	if err != nil {
		return nil, err
	}
	batch.Checksum = checksum

	queued := models.Progress{
		BatchID:   batch.ID,
		Percent:   0,
		Status:    ingest.StatusQueued,
		State:     models.StateQueued,
		UpdatedAt: batch.CreatedAt,
	}
	if err := s.progress.Save(ctx, queued); err != nil {
		s.logger.Warn("Failed to save queued progress", zap.String("batch_id", batch.ID), zap.Error(err))
	}

	if err := s.queue.Submit(*batch); err != nil {
		_ = os.Remove(batch.FilePath)
		queued.State = models.StateFailed
		queued.Percent = 100
		queued.Status = ingest.StatusFailed
		queued.UpdatedAt = time.Now().UTC()
		_ = s.progress.Save(ctx, queued)
		return nil, err
	}

	s.logger.Info("Upload queued",
		zap.String("batch_id", batch.ID),
		zap.String("file_name", batch.Source),
		zap.String("month", batch.Period),
		zap.String("checksum", batch.Checksum),
	)
	return batch, nil
}

// saveFile writes content to path and returns its hex BLAKE2b-256 digest.
func saveFile(path string, content io.Reader) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(io.MultiWriter(f, h), content); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Progress returns the progress of one batch.
func (s *IngestionService) Progress(ctx context.Context, batchID string) (models.Progress, error) {
	return s.progress.Get(ctx, batchID)
}

// LatestProgress returns the progress of the most recently started batch.
func (s *IngestionService) LatestProgress(ctx context.Context) (models.Progress, error) {
	return s.progress.Latest(ctx)
}
