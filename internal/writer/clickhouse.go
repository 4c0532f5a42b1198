package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/ingest-agent/internal/retry"
)

// ClickHouseWriter writes file progress rows to ClickHouse in batches
type ClickHouseWriter struct {
	conn     clickhouse.Conn
	cfg      BatchConfig
	retryCfg retry.Config

	batch     []*FileProgress
	lastFlush time.Time
}

// NewClickHouseWriter connects to ClickHouse and creates a batch writer
func NewClickHouseWriter(host string, port int, database string, cfg BatchConfig) (*ClickHouseWriter, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", host, port)},
		Auth: clickhouse.Auth{
			Database: database,
			Username: "default",
			Password: "",
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	retryCfg := retry.DefaultConfig()

	// Test connection with retry
	ctx := context.Background()
	if err := retry.Do(ctx, retryCfg, func() error {
		return conn.Ping(ctx)
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	log.Info().
		Str("host", host).
		Int("port", port).
		Str("database", database).
		Msg("Connected to ClickHouse progress mirror")

	return &ClickHouseWriter{
		conn:      conn,
		cfg:       cfg,
		retryCfg:  retryCfg,
		batch:     make([]*FileProgress, 0, cfg.MaxSize),
		lastFlush: time.Now(),
	}, nil
}

// WriteFileProgress adds a progress row to the batch
func (w *ClickHouseWriter) WriteFileProgress(ctx context.Context, progress *FileProgress) error {
	// Copy the row so callers can reuse their struct
	rowCopy := *progress

	w.batch = append(w.batch, &rowCopy)

	// Check if batch is full or timeout reached
	if len(w.batch) >= w.cfg.MaxSize || time.Since(w.lastFlush).Milliseconds() >= w.cfg.FlushTimeout {
		return w.Flush(ctx)
	}

	return nil
}

// Flush forces writing all pending rows
func (w *ClickHouseWriter) Flush(ctx context.Context) error {
	if len(w.batch) == 0 {
		return nil
	}

	// Snapshot the batch and clear it before sending, so a failed send does
	// not grow the batch without bound
	snapshot := make([]*FileProgress, len(w.batch))
	copy(snapshot, w.batch)
	w.batch = w.batch[:0]
	w.lastFlush = time.Now()

	err := retry.Do(ctx, w.retryCfg, func() error {
		batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO ingest.file_progress")
		if err != nil {
			return fmt.Errorf("failed to prepare batch: %w", err)
		}

		for _, row := range snapshot {
			if err := batch.Append(
				row.Timestamp,
				row.JobID,
				row.JobName,
				row.FileKey,
				row.Offset,
			); err != nil {
				return fmt.Errorf("failed to append row: %w", err)
			}
		}

		return batch.Send()
	})
	if err != nil {
		return fmt.Errorf("failed to flush progress batch: %w", err)
	}

	log.Debug().
		Int("rows", len(snapshot)).
		Msg("Progress batch flushed to ClickHouse")

	return nil
}

// Close flushes pending rows and closes the connection
func (w *ClickHouseWriter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.Flush(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to flush progress batch on close")
	}

	log.Info().Msg("Closing ClickHouse progress mirror")
	return w.conn.Close()
}
