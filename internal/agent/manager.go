package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/ingest-agent/internal/config"
	"github.com/SteelMorgan/ingest-agent/internal/jobstore"
	"github.com/SteelMorgan/ingest-agent/internal/position"
	"github.com/SteelMorgan/ingest-agent/internal/service"
	"github.com/SteelMorgan/ingest-agent/internal/writer"
)

// PropJobFiles holds the semicolon-separated list of files a seeded
// standalone job reads.
const PropJobFiles = "job.files"

// Manager is the composition point of the agent: it owns the job store, the
// position tracker and the flush daemon, and wires them together. The
// tracker is also registered as the process-wide default so ingestion
// workers can reach it without explicit plumbing.
type Manager struct {
	cfg     *config.Config
	store   jobstore.Store
	tracker *position.Tracker
	mirror  writer.ProgressWriter
	daemon  *service.FlushDaemon
}

// NewManager builds the agent from configuration.
func NewManager(cfg *config.Config) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	store, err := jobstore.NewBoltStore(cfg.JobDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}

	tracker := position.NewTracker()
	position.SetDefault(tracker)

	var mirror writer.ProgressWriter
	if cfg.ProgressMirror {
		chWriter, err := writer.NewClickHouseWriter(
			cfg.ClickHouseHost,
			cfg.ClickHousePort,
			cfg.ClickHouseDB,
			writer.DefaultBatchConfig(),
		)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to create progress mirror: %w", err)
		}
		mirror = chWriter
	}

	m := &Manager{
		cfg:     cfg,
		store:   store,
		tracker: tracker,
		mirror:  mirror,
	}

	if cfg.JobsConfigPath != "" {
		if err := m.seedStandaloneJobs(context.Background(), cfg.JobsConfigPath); err != nil {
			m.closeCollaborators()
			return nil, fmt.Errorf("failed to seed standalone jobs: %w", err)
		}
	}

	m.daemon = service.NewFlushDaemon(
		tracker,
		store,
		mirror,
		time.Duration(cfg.FlushIntervalSeconds)*time.Second,
	)

	return m, nil
}

// Tracker returns the position tracker for collaborators that take it by
// reference instead of using position.Default.
func (m *Manager) Tracker() *position.Tracker {
	return m.tracker
}

// Store returns the job store.
func (m *Manager) Store() jobstore.Store {
	return m.store
}

// Start launches the flush daemon.
func (m *Manager) Start(ctx context.Context) {
	m.daemon.Start(ctx)
	log.Info().Msg("Agent manager started")
}

// Stop joins the flush daemon, then closes the mirror and the job store.
// It returns only when no flush is left in flight.
func (m *Manager) Stop() error {
	m.daemon.Stop()
	return m.closeCollaborators()
}

func (m *Manager) closeCollaborators() error {
	var firstErr error

	if m.mirror != nil {
		if err := m.mirror.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close progress mirror")
			firstErr = err
		}
	}

	if err := m.store.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job store")
		if firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// seedStandaloneJobs creates records for jobs defined in the YAML jobs file
// that do not exist in the store yet, keyed by a fresh instance id. Jobs
// already present (matched by name) are left untouched so their positions
// survive restarts.
func (m *Manager) seedStandaloneJobs(ctx context.Context, path string) error {
	definitions, err := LoadJobDefinitions(path)
	if err != nil {
		return err
	}

	records, err := m.store.ListRecords(ctx)
	if err != nil {
		return fmt.Errorf("failed to list existing records: %w", err)
	}

	existing := make(map[string]bool, len(records))
	for _, record := range records {
		if name, ok := record.GetProperty(jobstore.PropJobName); ok {
			existing[name] = true
		}
	}

	seeded := 0
	for _, def := range definitions {
		if def.Name == "" {
			log.Warn().Msg("Skipping job definition without a name")
			continue
		}
		if existing[def.Name] {
			log.Debug().
				Str("job_name", def.Name).
				Msg("Job already has a record, skipping seed")
			continue
		}

		record := jobstore.NewRecord(uuid.NewString())
		record.SetProperty(jobstore.PropJobName, def.Name)
		record.SetProperty(PropJobFiles, strings.Join(def.Files, ";"))
		record.SetState(jobstore.StateRunning)

		if err := m.store.UpdateRecord(ctx, record); err != nil {
			return fmt.Errorf("failed to seed job %s: %w", def.Name, err)
		}
		seeded++
	}

	log.Info().
		Int("defined", len(definitions)).
		Int("seeded", seeded).
		Str("path", path).
		Msg("Standalone jobs seeded")

	return nil
}
