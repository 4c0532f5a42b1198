package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/SteelMorgan/ingest-agent/internal/jobstore"
	"github.com/SteelMorgan/ingest-agent/internal/position"
	"github.com/SteelMorgan/ingest-agent/internal/writer"
)

// fakeStore is an in-memory jobstore.Store with per-job failure switches.
type fakeStore struct {
	mu        sync.Mutex
	records   map[string]*jobstore.Record
	updateErr map[string]error
	updates   map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:   make(map[string]*jobstore.Record),
		updateErr: make(map[string]error),
		updates:   make(map[string]int),
	}
}

func (s *fakeStore) addJob(jobID string, state jobstore.State) *jobstore.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := jobstore.NewRecord(jobID)
	record.SetState(state)
	s.records[jobID] = record
	return record
}

func (s *fakeStore) GetRecord(ctx context.Context, jobID string) (*jobstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[jobID]
	if !ok {
		return nil, jobstore.ErrNotFound
	}
	return record, nil
}

func (s *fakeStore) UpdateRecord(ctx context.Context, record *jobstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateErr[record.JobID()]; err != nil {
		return err
	}
	s.records[record.JobID()] = record
	s.updates[record.JobID()]++
	return nil
}

func (s *fakeStore) DeleteRecord(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, jobID)
	return nil
}

func (s *fakeStore) ListRecords(ctx context.Context) ([]*jobstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]*jobstore.Record, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	return records, nil
}

func (s *fakeStore) IsFinished(record *jobstore.Record) bool {
	state := record.State()
	return state == jobstore.StateSuccess || state == jobstore.StateFailed
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) updateCount(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates[jobID]
}

func (s *fakeStore) storedOffset(jobID, fileKey string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[jobID]
	if !ok {
		return -1
	}
	return record.GetInt(jobstore.PositionKey(fileKey), -1)
}

// fakeMirror records the progress rows it receives.
type fakeMirror struct {
	mu   sync.Mutex
	rows []*writer.FileProgress
}

func (m *fakeMirror) WriteFileProgress(ctx context.Context, progress *writer.FileProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, progress)
	return nil
}

func (m *fakeMirror) Flush(ctx context.Context) error { return nil }
func (m *fakeMirror) Close() error                    { return nil }

func (m *fakeMirror) rowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func TestFlushAll_PersistsPositions(t *testing.T) {
	store := newFakeStore()
	store.addJob("J1", jobstore.StateRunning)

	tracker := position.NewTracker()
	tracker.RecordProgress("J1", "fileA", 119) // default 1 + 119 = 120

	daemon := NewFlushDaemon(tracker, store, nil, time.Minute)
	daemon.flushAll(context.Background())

	if got := store.storedOffset("J1", "fileA"); got != 120 {
		t.Errorf("expected persisted offset 120, got %d", got)
	}
	if store.updateCount("J1") != 1 {
		t.Errorf("expected 1 update for J1, got %d", store.updateCount("J1"))
	}
	if _, ok := tracker.GetFilePositions("J1"); !ok {
		t.Error("expected J1 to remain cached after flush")
	}
}

func TestFlushAll_MissingRecordEvicts(t *testing.T) {
	store := newFakeStore()

	tracker := position.NewTracker()
	tracker.RecordProgress("J2", "fileA", 10)

	daemon := NewFlushDaemon(tracker, store, nil, time.Minute)
	daemon.flushAll(context.Background())

	if _, ok := tracker.GetFilePositions("J2"); ok {
		t.Error("expected J2 to be evicted when its record is missing")
	}
	if store.updateCount("J2") != 0 {
		t.Errorf("expected no updates for J2, got %d", store.updateCount("J2"))
	}
}

func TestFlushAll_FinishedJobEvictedWithoutPersist(t *testing.T) {
	store := newFakeStore()
	store.addJob("J3", jobstore.StateSuccess)

	tracker := position.NewTracker()
	tracker.RecordProgress("J3", "fileA", 10)

	daemon := NewFlushDaemon(tracker, store, nil, time.Minute)
	daemon.flushAll(context.Background())

	if _, ok := tracker.GetFilePositions("J3"); ok {
		t.Error("expected finished J3 to be evicted")
	}
	if store.updateCount("J3") != 0 {
		t.Errorf("expected no updates for finished J3, got %d", store.updateCount("J3"))
	}
}

func TestFlushAll_ErrorIsolation(t *testing.T) {
	store := newFakeStore()
	store.addJob("J-bad", jobstore.StateRunning)
	store.addJob("J-good", jobstore.StateRunning)
	store.updateErr["J-bad"] = context.DeadlineExceeded

	tracker := position.NewTracker()
	tracker.RecordProgress("J-bad", "fileA", 10)
	tracker.RecordProgress("J-good", "fileB", 20)

	daemon := NewFlushDaemon(tracker, store, nil, time.Minute)
	daemon.flushAll(context.Background())

	// The failing job must not prevent the other from being flushed
	if store.updateCount("J-good") != 1 {
		t.Errorf("expected J-good to be flushed, got %d updates", store.updateCount("J-good"))
	}

	// The failing job keeps its positions and is retried next cycle
	if _, ok := tracker.GetFilePositions("J-bad"); !ok {
		t.Error("expected J-bad to remain cached after a failed flush")
	}

	delete(store.updateErr, "J-bad")
	daemon.flushAll(context.Background())
	if store.updateCount("J-bad") != 1 {
		t.Errorf("expected J-bad to be flushed after the error cleared, got %d updates", store.updateCount("J-bad"))
	}
}

func TestFlushAll_MirrorsPersistedPositions(t *testing.T) {
	store := newFakeStore()
	store.addJob("J1", jobstore.StateRunning)
	mirror := &fakeMirror{}

	tracker := position.NewTracker()
	tracker.RecordProgress("J1", "fileA", 10)
	tracker.RecordProgress("J1", "fileB", 20)

	daemon := NewFlushDaemon(tracker, store, mirror, time.Minute)
	daemon.flushAll(context.Background())

	if got := mirror.rowCount(); got != 2 {
		t.Errorf("expected 2 mirrored rows, got %d", got)
	}
}

func TestStartStop_Join(t *testing.T) {
	store := newFakeStore()
	store.addJob("J1", jobstore.StateRunning)

	tracker := position.NewTracker()
	tracker.RecordProgress("J1", "fileA", 10)

	daemon := NewFlushDaemon(tracker, store, nil, 10*time.Millisecond)
	daemon.Start(context.Background())

	// Give the loop a few cycles
	time.Sleep(50 * time.Millisecond)

	daemon.Stop()

	if store.updateCount("J1") == 0 {
		t.Error("expected at least one flush before stop")
	}

	// No cycles after Stop returned
	count := store.updateCount("J1")
	time.Sleep(30 * time.Millisecond)
	if got := store.updateCount("J1"); got != count {
		t.Errorf("flush ran after Stop returned: %d -> %d", count, got)
	}

	// Stop is safe to call again
	daemon.Stop()
}
