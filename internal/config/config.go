package config

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"hypoforge/domain/core"
	"hypoforge/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	LogLevel string         `yaml:"log_level"`
}

// PipelineConfig holds the knobs the orchestrator exposes. Only the
// orchestrator reads them; stages receive what they need through stage.Config.
type PipelineConfig struct {
	IterationCeiling int     `yaml:"iteration_ceiling"`
	ReviewWorkers    int     `yaml:"review_workers"`
	DedupEnabled     bool    `yaml:"dedup_enabled"`
	DedupThreshold   float64 `yaml:"dedup_threshold"`
	SyntheticRatio   float64 `yaml:"synthetic_ratio"`
	StrictExport     bool    `yaml:"strict_export"`
	// IdeasFile is a JSON list of hints merged into the hints stage output.
	IdeasFile string `yaml:"ideas_file"`
	// TicketsFile feeds the file-backed detection stage and from-tickets mode.
	TicketsFile string `yaml:"tickets_file"`
}

// StorageConfig holds where runs are persisted
type StorageConfig struct {
	Root string `yaml:"root"`
	// IndexDriver is "sqlite" or "postgres"; IndexDSN is its data source.
	IndexDriver string `yaml:"index_driver"`
	IndexDSN    string `yaml:"index_dsn"`
}

// ServerConfig holds read-only API settings
type ServerConfig struct {
	Port    string `yaml:"port"`
	GinMode string `yaml:"gin_mode"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			IterationCeiling: 2,
			ReviewWorkers:    4,
			DedupEnabled:     true,
			DedupThreshold:   0.75,
			SyntheticRatio:   1.0,
		},
		Storage: StorageConfig{
			Root:        "./runs",
			IndexDriver: "sqlite",
			IndexDSN:    "./runs/index.db",
		},
		Server: ServerConfig{
			Port:    "8080",
			GinMode: "release",
		},
		LogLevel: "INFO",
	}
}

// Load builds the configuration from defaults, an optional YAML file, then
// environment variables (a .env file in the working directory is honored).
// An empty path falls back to HYPOFORGE_CONFIG.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	config := Defaults()
	if path == "" {
		path = os.Getenv("HYPOFORGE_CONFIG")
	}
	if path != "" {
		if err := loadFile(path, config); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", path)
		}
	}

	applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("parse yaml: %v", err))
	}
	return nil
}

func applyEnv(config *Config) {
	p := &config.Pipeline
	p.IterationCeiling = getEnvIntOrDefault("HYPOFORGE_ITERATION_CEILING", p.IterationCeiling)
	p.ReviewWorkers = getEnvIntOrDefault("HYPOFORGE_REVIEW_WORKERS", p.ReviewWorkers)
	p.DedupEnabled = getEnvBoolOrDefault("HYPOFORGE_DEDUP_ENABLED", p.DedupEnabled)
	p.DedupThreshold = getEnvFloatOrDefault("HYPOFORGE_DEDUP_THRESHOLD", p.DedupThreshold)
	p.SyntheticRatio = getEnvFloatOrDefault("HYPOFORGE_SYNTHETIC_RATIO", p.SyntheticRatio)
	p.StrictExport = getEnvBoolOrDefault("HYPOFORGE_STRICT_EXPORT", p.StrictExport)
	p.IdeasFile = getEnvOrDefault("HYPOFORGE_IDEAS_FILE", p.IdeasFile)
	p.TicketsFile = getEnvOrDefault("HYPOFORGE_TICKETS_FILE", p.TicketsFile)

	s := &config.Storage
	s.Root = getEnvOrDefault("HYPOFORGE_RUNS_DIR", s.Root)
	s.IndexDriver = getEnvOrDefault("HYPOFORGE_INDEX_DRIVER", s.IndexDriver)
	s.IndexDSN = getEnvOrDefault("DATABASE_URL", s.IndexDSN)

	config.Server.Port = getEnvOrDefault("PORT", config.Server.Port)
	config.Server.GinMode = getEnvOrDefault("GIN_MODE", config.Server.GinMode)
	config.LogLevel = getEnvOrDefault("LOG_LEVEL", config.LogLevel)
}

// Validate checks ranges of every knob.
func (c *Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	if c.Storage.Root == "" {
		return errors.ConfigInvalid("storage root is required")
	}
	switch c.Storage.IndexDriver {
	case "sqlite", "postgres", "none":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown index driver %q", c.Storage.IndexDriver))
	}
	return nil
}

// Validate checks the pipeline knobs.
func (p PipelineConfig) Validate() error {
	if p.IterationCeiling < 0 {
		return errors.ConfigInvalid(fmt.Sprintf("iteration ceiling must be >= 0, got %d", p.IterationCeiling))
	}
	if p.ReviewWorkers < 1 {
		return errors.ConfigInvalid(fmt.Sprintf("review workers must be >= 1, got %d", p.ReviewWorkers))
	}
	if math.IsNaN(p.DedupThreshold) || p.DedupThreshold < 0 || p.DedupThreshold > 1 {
		return errors.ConfigInvalid(fmt.Sprintf("dedup threshold must be within 0..1, got %.2f", p.DedupThreshold))
	}
	if math.IsNaN(p.SyntheticRatio) || p.SyntheticRatio < 0 {
		return errors.ConfigInvalid(fmt.Sprintf("synthetic ratio must be >= 0, got %.2f", p.SyntheticRatio))
	}
	return nil
}

// Hash fingerprints the knobs that change pipeline output. Worker count and
// file locations are excluded.
func (p PipelineConfig) Hash() core.Hash {
	return core.HashParts(
		"ceiling", strconv.Itoa(p.IterationCeiling),
		"dedup", strconv.FormatBool(p.DedupEnabled),
		"threshold", strconv.FormatFloat(p.DedupThreshold, 'f', -1, 64),
		"ratio", strconv.FormatFloat(p.SyntheticRatio, 'f', -1, 64),
		"strict", strconv.FormatBool(p.StrictExport),
	)
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
