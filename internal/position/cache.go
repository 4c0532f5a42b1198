package position

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultStartOffset is the offset assumed for a (job, file) pair that has
// no recorded position yet. Note that this is 1, not 0 - the reading side
// counts the first consumed unit from position one, so a file with no entry
// starts from offset 1 before the first delta is applied.
const DefaultStartOffset int64 = 1

// FilePositions maps a file key to the last known read offset for that file.
type FilePositions map[string]int64

// Tracker is an in-memory, concurrency-safe cache of per-job, per-file read
// offsets. Ingestion workers add deltas as they consume data; the flush
// daemon periodically copies the offsets into durable job records.
//
// Offsets accumulated since the last successful flush are lost on a crash,
// so durability is at-least-once: after a restart the ingestion side may
// re-read up to one flush interval of data.
type Tracker struct {
	mu   sync.Mutex
	jobs map[string]FilePositions
}

// NewTracker creates an empty position tracker.
func NewTracker() *Tracker {
	return &Tracker{
		jobs: make(map[string]FilePositions),
	}
}

// RecordProgress adds delta to the cached offset for (jobID, fileKey).
// The job and file entries are created lazily; a pair with no prior entry
// starts from DefaultStartOffset. The add is atomic per pair, so concurrent
// callers never lose updates. Never blocks on I/O.
func (t *Tracker) RecordProgress(jobID, fileKey string, delta int64) {
	if delta < 0 {
		log.Warn().
			Str("job_id", jobID).
			Str("file_key", fileKey).
			Int64("delta", delta).
			Msg("Ignoring negative progress delta")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	files, ok := t.jobs[jobID]
	if !ok {
		files = make(FilePositions)
		t.jobs[jobID] = files
	}

	before, ok := files[fileKey]
	if !ok {
		before = DefaultStartOffset
	}
	files[fileKey] = before + delta
}

// GetFilePositions returns a point-in-time copy of the offsets cached for a
// job, or false if the job is unknown. Updates made after the call are not
// reflected in the returned map.
func (t *Tracker) GetFilePositions(jobID string) (FilePositions, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	files, ok := t.jobs[jobID]
	if !ok {
		return nil, false
	}

	snapshot := make(FilePositions, len(files))
	for fileKey, offset := range files {
		snapshot[fileKey] = offset
	}
	return snapshot, true
}

// GetAllPositions returns a deep-copied snapshot of the whole cache. The
// flush daemon iterates this snapshot, so long-running flushes never observe
// a concurrently mutating map.
func (t *Tracker) GetAllPositions() map[string]FilePositions {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := make(map[string]FilePositions, len(t.jobs))
	for jobID, files := range t.jobs {
		filesCopy := make(FilePositions, len(files))
		for fileKey, offset := range files {
			filesCopy[fileKey] = offset
		}
		snapshot[jobID] = filesCopy
	}
	return snapshot
}

// Evict removes all cached positions for a job. Evicting an unknown job is
// a no-op. A later RecordProgress recreates the job from scratch.
func (t *Tracker) Evict(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, jobID)
}
