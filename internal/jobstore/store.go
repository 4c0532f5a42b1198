package jobstore

import (
	"context"
	"errors"
	"strconv"
)

// PositionSuffix is appended to a file key to form the record property that
// holds the file's read offset.
const PositionSuffix = ".position"

// Well-known record property keys.
const (
	PropJobID    = "job.id"
	PropJobName  = "job.name"
	PropJobState = "job.state"
)

// State is the lifecycle state of an ingestion job as stored in its record.
type State string

const (
	StateAccepted State = "accepted"
	StateRunning  State = "running"
	StateSuccess  State = "success"
	StateFailed   State = "failed"
)

// ErrNotFound is returned by GetRecord when no record exists for a job id.
// The flush daemon treats it as a normal condition: the job was deleted
// out-of-band (standalone mode) and its cached positions are dropped.
var ErrNotFound = errors.New("job record not found")

// Record is the durable configuration of one ingestion job: an extensible
// string property bag. Each tracked file occupies one property named
// <fileKey>.position holding its offset as a decimal integer, alongside
// whatever other metadata the job lifecycle owner keeps here.
type Record struct {
	Properties map[string]string `json:"properties"`
}

// NewRecord creates a record for the given job id in the accepted state.
func NewRecord(jobID string) *Record {
	return &Record{
		Properties: map[string]string{
			PropJobID:    jobID,
			PropJobState: string(StateAccepted),
		},
	}
}

// JobID returns the job identifier stored in the record.
func (r *Record) JobID() string {
	return r.Properties[PropJobID]
}

// SetProperty stores a string property, overwriting any previous value.
func (r *Record) SetProperty(key, value string) {
	if r.Properties == nil {
		r.Properties = make(map[string]string)
	}
	r.Properties[key] = value
}

// GetProperty returns a property value and whether it is present.
func (r *Record) GetProperty(key string) (string, bool) {
	value, ok := r.Properties[key]
	return value, ok
}

// SetInt stores an integer property as its decimal representation.
func (r *Record) SetInt(key string, value int64) {
	r.SetProperty(key, strconv.FormatInt(value, 10))
}

// GetInt returns an integer property, or def if the property is missing or
// not a valid integer.
func (r *Record) GetInt(key string, def int64) int64 {
	raw, ok := r.Properties[key]
	if !ok {
		return def
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return value
}

// State returns the job state stored in the record, defaulting to accepted
// for records that predate the state property.
func (r *Record) State() State {
	raw, ok := r.Properties[PropJobState]
	if !ok {
		return StateAccepted
	}
	return State(raw)
}

// SetState stores the job state property.
func (r *Record) SetState(s State) {
	r.SetProperty(PropJobState, string(s))
}

// PositionKey builds the record property name that holds the read offset for
// a file key.
func PositionKey(fileKey string) string {
	return fileKey + PositionSuffix
}

// Store provides durable persistence of job configuration records.
// Implementations: BoltDB (primary).
type Store interface {
	// GetRecord retrieves the record for a job id.
	// Returns ErrNotFound if no record exists.
	GetRecord(ctx context.Context, jobID string) (*Record, error)

	// UpdateRecord persists a record, overwriting any previous version.
	UpdateRecord(ctx context.Context, record *Record) error

	// DeleteRecord removes the record for a job id. Deleting an unknown
	// job id is not an error.
	DeleteRecord(ctx context.Context, jobID string) error

	// ListRecords returns all stored records.
	ListRecords(ctx context.Context) ([]*Record, error)

	// IsFinished reports whether the job described by the record has
	// reached a terminal state and its positions no longer need flushing.
	IsFinished(record *Record) bool

	// Close closes the store.
	Close() error
}
