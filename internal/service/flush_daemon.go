package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/SteelMorgan/ingest-agent/internal/jobstore"
	"github.com/SteelMorgan/ingest-agent/internal/position"
	"github.com/SteelMorgan/ingest-agent/internal/writer"
)

const (
	tracerName = "ingest-agent/service"

	// DefaultFlushInterval is how often cached positions are flushed to
	// the job store when no interval is configured.
	DefaultFlushInterval = 30 * time.Second
)

// FlushDaemon periodically merges cached read positions into durable job
// records and garbage-collects jobs that have finished or disappeared.
//
// One daemon runs per process. A failure flushing one job never affects the
// other jobs in the same cycle; the unflushed offsets stay cached and are
// retried on the next cycle, so persistence is at-least-once.
type FlushDaemon struct {
	tracker  *position.Tracker
	store    jobstore.Store
	mirror   writer.ProgressWriter // optional, may be nil
	interval time.Duration

	started  atomic.Bool
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewFlushDaemon creates a flush daemon. mirror may be nil to disable the
// progress mirror. A non-positive interval falls back to DefaultFlushInterval.
func NewFlushDaemon(tracker *position.Tracker, store jobstore.Store, mirror writer.ProgressWriter, interval time.Duration) *FlushDaemon {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &FlushDaemon{
		tracker:  tracker,
		store:    store,
		mirror:   mirror,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start launches the background flush loop. Call it exactly once.
func (d *FlushDaemon) Start(ctx context.Context) {
	if !d.started.CompareAndSwap(false, true) {
		log.Warn().Msg("Flush daemon already started")
		return
	}

	log.Info().
		Dur("interval", d.interval).
		Bool("mirror_enabled", d.mirror != nil).
		Msg("Starting position flush daemon")

	go d.run(ctx)
}

// Stop signals the loop to exit and blocks until it has done so. The cycle
// in progress, if any, completes before the loop exits; no flush is
// abandoned mid-way. Safe to call more than once.
func (d *FlushDaemon) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopChan)
	})
	if !d.started.Load() {
		return
	}
	<-d.doneChan
	log.Info().Msg("Position flush daemon stopped")
}

func (d *FlushDaemon) run(ctx context.Context) {
	defer close(d.doneChan)

	// Run immediately on startup
	d.flushAll(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.flushAll(ctx)
		case <-d.stopChan:
			return
		case <-ctx.Done():
			log.Info().Msg("Flush daemon context cancelled")
			return
		}
	}
}

// flushAll runs one flush cycle over every job currently cached.
func (d *FlushDaemon) flushAll(ctx context.Context) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "flush-positions")
	defer span.End()

	jobs := d.tracker.GetAllPositions()

	failed := 0
	for jobID, positions := range jobs {
		if err := d.flushJob(ctx, jobID, positions); err != nil {
			failed++
			span.RecordError(err)
			log.Error().
				Err(err).
				Str("job_id", jobID).
				Msg("Failed to flush job positions, will retry next cycle")
		}
	}

	span.SetAttributes(
		attribute.Int("jobs.flushed", len(jobs)-failed),
		attribute.Int("jobs.failed", failed),
	)

	log.Debug().
		Int("jobs", len(jobs)).
		Int("failed", failed).
		Msg("Flush cycle completed")
}

// flushJob merges one job's cached offsets into its durable record. Jobs
// whose record is gone or finished are evicted from the cache instead.
func (d *FlushDaemon) flushJob(ctx context.Context, jobID string, positions position.FilePositions) error {
	record, err := d.store.GetRecord(ctx, jobID)
	if errors.Is(err, jobstore.ErrNotFound) {
		// Normal in standalone mode: the job was deleted out-of-band
		log.Warn().
			Str("job_id", jobID).
			Msg("Job record not found in store, dropping cached positions")
		d.tracker.Evict(jobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch record: %w", err)
	}

	for fileKey, offset := range positions {
		record.SetInt(jobstore.PositionKey(fileKey), offset)
	}

	if d.store.IsFinished(record) {
		// The record is about to be retired by the job lifecycle owner,
		// persisting it would be wasted work
		log.Info().
			Str("job_id", jobID).
			Msg("Job is finished, evicting cached positions without persisting")
		d.tracker.Evict(jobID)
		return nil
	}

	if err := d.store.UpdateRecord(ctx, record); err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	d.mirrorPositions(ctx, record, positions)

	return nil
}

// mirrorPositions emits diagnostic progress rows after a successful persist.
// Mirror failures are soft and never affect the durable flush path.
func (d *FlushDaemon) mirrorPositions(ctx context.Context, record *jobstore.Record, positions position.FilePositions) {
	if d.mirror == nil {
		return
	}

	jobID := record.JobID()
	jobName, _ := record.GetProperty(jobstore.PropJobName)
	now := time.Now()

	for fileKey, offset := range positions {
		err := d.mirror.WriteFileProgress(ctx, &writer.FileProgress{
			Timestamp: now,
			JobID:     jobID,
			JobName:   jobName,
			FileKey:   fileKey,
			Offset:    offset,
		})
		if err != nil {
			log.Warn().
				Err(err).
				Str("job_id", jobID).
				Str("file_key", fileKey).
				Msg("Failed to mirror file progress")
			return
		}
	}
}
