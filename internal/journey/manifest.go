package journey

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest is the YAML summary written next to the screenshots on request.
type Manifest struct {
	BaseURL     string           `yaml:"base_url"`
	Engine      string           `yaml:"engine"`
	Status      string           `yaml:"status"`
	StartedAt   time.Time        `yaml:"started_at"`
	FinishedAt  time.Time        `yaml:"finished_at"`
	Scenarios   []ScenarioResult `yaml:"scenarios"`
	Screenshots []string         `yaml:"screenshots"`
	Error       string           `yaml:"error,omitempty"`
}

// NewManifest summarises report. Screenshot paths are stored relative to the
// artifacts directory.
func NewManifest(report *Report, baseURL, engine, artifactsDir string) Manifest {
	m := Manifest{
		BaseURL:    baseURL,
		Engine:     engine,
		Status:     "passed",
		StartedAt:  report.StartedAt.UTC(),
		FinishedAt: report.FinishedAt.UTC(),
		Scenarios:  report.Scenarios,
	}
	if report.Err != nil {
		m.Status = "failed"
		m.Error = report.Err.Error()
	}
	for _, s := range report.Screenshots {
		if rel, err := filepath.Rel(artifactsDir, s); err == nil {
			s = rel
		}
		m.Screenshots = append(m.Screenshots, s)
	}
	return m
}

// WriteManifest writes m as YAML to path.
func WriteManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return m, nil
}
