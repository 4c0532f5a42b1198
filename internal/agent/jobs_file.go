package agent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// JobDefinition describes one ingestion job in the standalone jobs file.
type JobDefinition struct {
	Name  string   `yaml:"name"`
	Files []string `yaml:"files"`
	Notes string   `yaml:"notes"`
}

type jobsFile struct {
	Jobs []JobDefinition `yaml:"jobs"`
}

// LoadJobDefinitions loads job definitions from a YAML file. Used in
// standalone mode, where the agent itself seeds the job store instead of an
// external orchestrator.
func LoadJobDefinitions(path string) ([]JobDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs file: %w", err)
	}

	var jf jobsFile
	if err := yaml.Unmarshal(data, &jf); err != nil {
		return nil, fmt.Errorf("failed to parse jobs file: %w", err)
	}

	return jf.Jobs, nil
}
