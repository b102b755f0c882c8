// Package config loads runtime settings from an optional YAML file and the
// environment. Environment variables always win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Lllllllleong/documentextraction/internal/gcp"
	"gopkg.in/yaml.v3"
)

const configPathEnv = "DOCEXTRACT_CONFIG"

// Config holds settings shared by every binary.
type Config struct {
	ProjectID  string           `yaml:"projectId"`
	Staging    StagingConfig    `yaml:"staging"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
	Vertex     VertexConfig     `yaml:"vertex"`
	Firestore  FirestoreConfig  `yaml:"firestore"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Log        LogConfig        `yaml:"log"`
	Port       string           `yaml:"port"`
}

// StagingConfig describes where documents are staged for analysis.
type StagingConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// WorkflowConfig identifies the analysis workflow.
type WorkflowConfig struct {
	ID       string `yaml:"id"`
	Location string `yaml:"location"`
}

type VertexConfig struct {
	Region string `yaml:"region"`
	Model  string `yaml:"model"`
}

// FirestoreConfig names the database and collections. An empty Database
// selects the project default.
type FirestoreConfig struct {
	Database           string `yaml:"database"`
	TrackingCollection string `yaml:"trackingCollection"`
	JobCollection      string `yaml:"jobCollection"`
}

// ExtractionConfig tunes the orchestrator and job polling.
type ExtractionConfig struct {
	MaxConcurrency  int           `yaml:"maxConcurrency"`
	PollInterval    time.Duration `yaml:"pollInterval"`
	MaxPollAttempts int           `yaml:"maxPollAttempts"`
}

// TrackingConfig controls record retention and background sweeps. A zero
// SweepInterval disables the in-process sweeper.
type TrackingConfig struct {
	RecordTTL     time.Duration `yaml:"recordTtl"`
	OrphanTTL     time.Duration `yaml:"orphanTtl"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Staging:  StagingConfig{Prefix: "staging"},
		Workflow: WorkflowConfig{ID: "document-analysis", Location: "us-central1"},
		Vertex:   VertexConfig{Region: "us-central1", Model: "gemini-1.5-pro"},
		Firestore: FirestoreConfig{
			TrackingCollection: "extraction-tracking",
			JobCollection:      "staged-resources",
		},
		Extraction: ExtractionConfig{
			MaxConcurrency:  10,
			PollInterval:    3 * time.Second,
			MaxPollAttempts: 60,
		},
		Tracking: TrackingConfig{RecordTTL: time.Hour, OrphanTTL: 30 * time.Minute, SweepInterval: 10 * time.Minute},
		Log:      LogConfig{Level: "info"},
		Port:     "8080",
	}
}

// Load builds a Config from defaults, the YAML file at path (or at
// $DOCEXTRACT_CONFIG when path is empty), and environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	envString("PROJECT_ID", &c.ProjectID)
	envString("STAGING_BUCKET", &c.Staging.Bucket)
	envString("STAGING_PREFIX", &c.Staging.Prefix)
	envString("WORKFLOW_ID", &c.Workflow.ID)
	envString("WORKFLOW_LOCATION", &c.Workflow.Location)
	envString("VERTEX_AI_REGION", &c.Vertex.Region)
	envString("VERTEX_MODEL", &c.Vertex.Model)
	envString("FIRESTORE_DATABASE", &c.Firestore.Database)
	envString("TRACKING_COLLECTION", &c.Firestore.TrackingCollection)
	envString("JOB_COLLECTION", &c.Firestore.JobCollection)
	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FILE", &c.Log.File)
	envString("PORT", &c.Port)

	return errors.Join(
		envInt("MAX_CONCURRENCY", &c.Extraction.MaxConcurrency),
		envInt("MAX_POLL_ATTEMPTS", &c.Extraction.MaxPollAttempts),
		envDuration("POLL_INTERVAL", &c.Extraction.PollInterval),
		envDuration("TRACKING_TTL", &c.Tracking.RecordTTL),
		envDuration("ORPHAN_TTL", &c.Tracking.OrphanTTL),
		envDuration("SWEEP_INTERVAL", &c.Tracking.SweepInterval),
	)
}

// envString overrides dst when key is set to a non-empty value.
func envString(key string, dst *string) {
	if v := gcp.GetEnv(key, ""); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s must be an integer, got %q", key, raw)
	}
	*dst = v
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s must be a duration such as 3s or 30m, got %q", key, raw)
	}
	*dst = v
	return nil
}

// ValidateRun checks the settings needed to stage and analyse documents.
func (c Config) ValidateRun() error {
	var errs []error
	if c.ProjectID == "" {
		errs = append(errs, errors.New("PROJECT_ID must be set"))
	}
	if c.Staging.Bucket == "" {
		errs = append(errs, errors.New("STAGING_BUCKET must be set"))
	}
	if c.Workflow.ID == "" || c.Workflow.Location == "" {
		errs = append(errs, errors.New("WORKFLOW_ID and WORKFLOW_LOCATION must be set"))
	}
	if c.Extraction.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.Extraction.MaxPollAttempts <= 0 {
		errs = append(errs, errors.New("max poll attempts must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateTracking checks the settings needed for the Firestore-backed
// tracking store and journal.
func (c Config) ValidateTracking() error {
	var errs []error
	if c.ProjectID == "" {
		errs = append(errs, errors.New("PROJECT_ID must be set"))
	}
	if c.Firestore.TrackingCollection == "" {
		errs = append(errs, errors.New("TRACKING_COLLECTION must be set"))
	}
	if c.Firestore.JobCollection == "" {
		errs = append(errs, errors.New("JOB_COLLECTION must be set"))
	}
	return errors.Join(errs...)
}

// ValidateRecognizer checks the settings needed by the page recognizer.
func (c Config) ValidateRecognizer() error {
	if c.ProjectID == "" || c.Vertex.Region == "" {
		return errors.New("PROJECT_ID and VERTEX_AI_REGION must be set")
	}
	return nil
}
