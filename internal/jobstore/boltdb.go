package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

const (
	bucketName = "jobs"
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore creates a new BoltDB job store
func NewBoltStore(dbPath string) (*BoltStore, error) {
	// Try to open with short timeout
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		// If file is locked, another agent process is holding it and the
		// user needs to stop that process manually
		return nil, fmt.Errorf("failed to open boltdb (file may be locked by another process): %w", err)
	}

	// Create bucket if not exists
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	log.Info().
		Str("db_path", dbPath).
		Msg("BoltDB job store initialized")

	return &BoltStore{db: db}, nil
}

// GetRecord retrieves the record for a job id
func (s *BoltStore) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	var record *Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		val := b.Get([]byte(jobID))
		if val == nil {
			return ErrNotFound
		}

		var r Record
		if err := json.Unmarshal(val, &r); err != nil {
			return fmt.Errorf("invalid record value: %w", err)
		}

		record = &r
		return nil
	})

	if err != nil {
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	return record, nil
}

// UpdateRecord persists a record
func (s *BoltStore) UpdateRecord(ctx context.Context, record *Record) error {
	jobID := record.JobID()
	if jobID == "" {
		return fmt.Errorf("record has no job id")
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		val, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}

		return b.Put([]byte(jobID), val)
	})

	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	log.Debug().
		Str("job_id", jobID).
		Str("state", string(record.State())).
		Msg("Job record updated")

	return nil
}

// DeleteRecord removes the record for a job id
func (s *BoltStore) DeleteRecord(ctx context.Context, jobID string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		return b.Delete([]byte(jobID))
	})

	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	return nil
}

// ListRecords returns all stored records
func (s *BoltStore) ListRecords(ctx context.Context) ([]*Record, error) {
	var records []*Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		return b.ForEach(func(k, v []byte) error {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				log.Warn().
					Str("job_id", string(k)).
					Err(err).
					Msg("Skipping unreadable job record")
				return nil
			}
			records = append(records, &r)
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	return records, nil
}

// IsFinished reports whether the record is in a terminal state
func (s *BoltStore) IsFinished(record *Record) bool {
	state := record.State()
	return state == StateSuccess || state == StateFailed
}

// Close closes the BoltDB database
func (s *BoltStore) Close() error {
	log.Info().Msg("Closing BoltDB job store")
	return s.db.Close()
}
