package models

import "time"

// BatchState is a step of the ingestion state machine.
type BatchState string

const (
	StateQueued           BatchState = "queued"
	StateInit             BatchState = "init"
	StateCheckDuplicate   BatchState = "check_duplicate"
	StateReading          BatchState = "reading"
	StateProcessingChunk  BatchState = "processing_chunk"
	StateWritingResults   BatchState = "writing_results"
	StateDone             BatchState = "done"
	StateDuplicateSkipped BatchState = "duplicate_skipped"
	StateEmpty            BatchState = "empty"
	StateFailed           BatchState = "failed"
)

// Terminal reports whether no further transitions follow.
func (s BatchState) Terminal() bool {
	switch s {
	case StateDone, StateDuplicateSkipped, StateEmpty, StateFailed:
		return true
	}
	return false
}

// IngestionBatch is one file-processing run. Source and Period form the duplicate key.
type IngestionBatch struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Period   string `json:"period"`
	FilePath string `json:"-"`
	// Checksum is the hex BLAKE2b-256 digest of the uploaded file.
	Checksum  string    `json:"checksum,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Progress is the advisory, pollable view of a batch.
type Progress struct {
	BatchID   string     `json:"batch_id,omitempty"`
	Percent   int        `json:"percent"`
	Status    string     `json:"status"`
	State     BatchState `json:"state,omitempty"`
	Rows      int        `json:"rows"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IdleProgress is reported when no batch has started yet.
func IdleProgress() Progress {
	return Progress{Percent: 0, Status: "idle"}
}
