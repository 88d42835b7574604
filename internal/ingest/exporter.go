package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"hatewatch/internal/models"
)

// Exporter writes the classified records of each batch to <dir>/<batch id>.csv.
type Exporter struct {
	dir string
}

// NewExporter returns nil when dir is empty, which disables exporting.
func NewExporter(dir string) *Exporter {
	if dir == "" {
		return nil
	}
	return &Exporter{dir: dir}
}

// Open starts the export file of one batch.
func (e *Exporter) Open(batchID string) (*ExportFile, error) {
	if e == nil {
		return nil, nil
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export dir: %w", err)
	}

	path := filepath.Join(e.dir, batchID+".csv")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(models.CSVHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write export header: %w", err)
	}
	return &ExportFile{path: path, file: f, writer: w}, nil
}

// ExportFile is an open batch export. A nil *ExportFile discards writes.
type ExportFile struct {
	path   string
	file   *os.File
	writer *csv.Writer
}

func (x *ExportFile) Path() string {
	if x == nil {
		return ""
	}
	return x.path
}

func (x *ExportFile) Write(records []models.Tweet) error {
	if x == nil {
		return nil
	}
	for _, t := range records {
		if err := x.writer.Write(t.CSVRow()); err != nil {
			return fmt.Errorf("failed to write export row: %w", err)
		}
	}
	x.writer.Flush()
	return x.writer.Error()
}

// Close flushes and closes the file.
func (x *ExportFile) Close() error {
	if x == nil {
		return nil
	}
	x.writer.Flush()
	return errors.Join(x.writer.Error(), x.file.Close())
}

// Discard closes and removes a partial export.
func (x *ExportFile) Discard() {
	if x == nil {
		return
	}
	_ = x.file.Close()
	_ = os.Remove(x.path)
}
