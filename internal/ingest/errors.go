package ingest

import "errors"

var (
	// ErrSchema means the file has no usable text column.
	ErrSchema = errors.New("missing 'text' or 'tweet' column")
	// ErrDecode means the file could not be decoded with the detected or the fallback encoding.
	ErrDecode = errors.New("failed to decode csv")
	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("ingestion queue is full")
	// ErrQueueClosed is returned by Submit after Shutdown.
	ErrQueueClosed = errors.New("ingestion queue is closed")
)
