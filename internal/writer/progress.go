package writer

import (
	"context"
	"time"
)

// FileProgress is one diagnostic row describing how far a job has read into
// a file at flush time. Mirrors the offsets persisted in the job store, with
// enough metadata for monitoring queries.
type FileProgress struct {
	Timestamp time.Time
	JobID     string
	JobName   string
	FileKey   string
	Offset    int64
}

// ProgressWriter mirrors flushed file offsets to an external sink for
// monitoring. The mirror is best-effort: failures never affect the durable
// flush path.
type ProgressWriter interface {
	// WriteFileProgress adds a progress row to the batch
	WriteFileProgress(ctx context.Context, progress *FileProgress) error

	// Flush forces writing all pending rows
	Flush(ctx context.Context) error

	// Close flushes pending rows and closes the writer
	Close() error
}

// BatchConfig configures batch behavior
type BatchConfig struct {
	MaxSize      int   // Maximum rows per batch
	FlushTimeout int64 // Maximum milliseconds to wait before flush
}

// DefaultBatchConfig returns the default batch configuration
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxSize:      1000,
		FlushTimeout: 5000,
	}
}
