package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/SteelMorgan/ingest-agent/internal/config"
	"github.com/SteelMorgan/ingest-agent/internal/jobstore"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		JobDBPath:            filepath.Join(t.TempDir(), "jobs.db"),
		FlushIntervalSeconds: 30,
		LogLevel:             "info",
	}
}

func writeJobsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write jobs file: %v", err)
	}
	return path
}

func TestLoadJobDefinitions(t *testing.T) {
	path := writeJobsFile(t, `
jobs:
  - name: billing-events
    files:
      - /var/log/billing/events.log
      - /var/log/billing/audit.log
  - name: access-logs
    files:
      - /var/log/nginx/access.log
`)

	definitions, err := LoadJobDefinitions(path)
	if err != nil {
		t.Fatalf("failed to load definitions: %v", err)
	}
	if len(definitions) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(definitions))
	}
	if definitions[0].Name != "billing-events" {
		t.Errorf("expected billing-events, got %s", definitions[0].Name)
	}
	if len(definitions[0].Files) != 2 {
		t.Errorf("expected 2 files, got %d", len(definitions[0].Files))
	}
}

func TestLoadJobDefinitions_MissingFile(t *testing.T) {
	if _, err := LoadJobDefinitions(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing jobs file")
	}
}

func TestNewManager_SeedsStandaloneJobs(t *testing.T) {
	cfg := testConfig(t)
	cfg.JobsConfigPath = writeJobsFile(t, `
jobs:
  - name: billing-events
    files:
      - /var/log/billing/events.log
`)

	manager, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	ctx := context.Background()
	records, err := manager.Store().ListRecords(ctx)
	if err != nil {
		t.Fatalf("failed to list records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 seeded record, got %d", len(records))
	}

	record := records[0]
	if name, _ := record.GetProperty(jobstore.PropJobName); name != "billing-events" {
		t.Errorf("expected job name billing-events, got %s", name)
	}
	if record.State() != jobstore.StateRunning {
		t.Errorf("expected seeded job to be running, got %s", record.State())
	}
	if record.JobID() == "" {
		t.Error("expected seeded job to get an instance id")
	}

	manager.Start(ctx)
	if err := manager.Stop(); err != nil {
		t.Errorf("failed to stop manager: %v", err)
	}
}

func TestNewManager_SeedingIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	cfg.JobsConfigPath = writeJobsFile(t, `
jobs:
  - name: billing-events
    files:
      - /var/log/billing/events.log
`)

	first, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	ctx := context.Background()
	records, err := first.Store().ListRecords(ctx)
	if err != nil {
		t.Fatalf("failed to list records: %v", err)
	}
	firstID := records[0].JobID()

	first.Start(ctx)
	if err := first.Stop(); err != nil {
		t.Fatalf("failed to stop manager: %v", err)
	}

	// A restart against the same store must reuse the existing record
	second, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("failed to recreate manager: %v", err)
	}

	records, err = second.Store().ListRecords(ctx)
	if err != nil {
		t.Fatalf("failed to list records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after reseed, got %d", len(records))
	}
	if records[0].JobID() != firstID {
		t.Errorf("expected seeded job to keep instance id %s, got %s", firstID, records[0].JobID())
	}

	second.Start(ctx)
	if err := second.Stop(); err != nil {
		t.Errorf("failed to stop manager: %v", err)
	}
}
