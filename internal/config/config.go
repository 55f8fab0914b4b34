// Package config provides configuration management for mimi. Runtime knobs
// come from environment variables with the MIMI_ prefix; the provider list
// and derivation pipeline come from a YAML file so their order is explicit.
// Invalid or missing provider/step configuration is surfaced before any
// pipeline work starts.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime settings for the mimi application.
type Config struct {
	Storage  StorageConfig
	Search   SearchConfig
	Pipeline PipelineConfig
}

// StorageConfig selects and parametrizes the storage gateway backend.
type StorageConfig struct {
	Engine      string // Storage engine: sqlite, postgres (default: sqlite)
	DataPath    string // Directory for the sqlite database file (default: ./data)
	PostgresDSN string // DSN for the postgres engine
}

// SearchConfig tunes the hybrid search engine.
type SearchConfig struct {
	// Boost is the additive score increment for memories linked to the
	// resolved focus entity. The default reorders results with similar base
	// scores without letting a weak match overtake a dramatically better
	// one. Setting MIMI_SEARCH_BOOST=0 disables entity boosting.
	Boost float64

	// OverFetch is the candidate multiplier applied to the result limit
	// before reranking (default: 4).
	OverFetch int
}

// PipelineConfig tunes the extraction pipeline engine.
type PipelineConfig struct {
	// File is the path to the YAML pipeline definition (default: mimi.yaml).
	File string

	// Concurrency bounds how many extraction/derivation steps run at once,
	// to respect provider rate limits (default: 4).
	Concurrency int

	// StepTimeout is the per-provider-call timeout for one step (default: 90s).
	StepTimeout time.Duration
}

// Load reads configuration from environment variables with defaults applied.
func Load() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:      getEnv("MIMI_STORAGE_ENGINE", "sqlite"),
			DataPath:    getEnv("MIMI_DATA_PATH", "./data"),
			PostgresDSN: getEnv("MIMI_POSTGRES_DSN", ""),
		},
		Search: SearchConfig{
			Boost:     getEnvFloat("MIMI_SEARCH_BOOST", 0.15),
			OverFetch: getEnvInt("MIMI_SEARCH_OVERFETCH", 4),
		},
		Pipeline: PipelineConfig{
			File:        getEnv("MIMI_PIPELINE_FILE", "mimi.yaml"),
			Concurrency: getEnvInt("MIMI_PIPELINE_CONCURRENCY", 4),
			StepTimeout: getEnvDuration("MIMI_STEP_TIMEOUT", 90*time.Second),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "90s") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
