// Package config loads client configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all client configuration, loaded from MST_* environment
// variables. Precedence for api_base and operator is: command-line flag >
// persisted setting > environment > default; flag values persist to the
// settings table, mirroring the browser build's query-parameter overrides.
type Config struct {
	// APIBase is the remote collection endpoint.
	APIBase string `envconfig:"API_BASE" default:"https://mst26-cp1-proxy.work-d3c.workers.dev"`

	// Operator is the default station operator label.
	Operator string `envconfig:"OPERATOR" default:"CP1"`

	// Station identifies this checkpoint in every event.
	Station string `envconfig:"STATION" default:"cp1"`

	// DBPath is the SQLite database holding all durable local state.
	DBPath string `envconfig:"DB_PATH" default:"mst26-cp1.db"`

	// BatchSize bounds events per sync request.
	BatchSize int `envconfig:"BATCH_SIZE" default:"10"`

	// SyncTimeout applies to each network call.
	SyncTimeout time.Duration `envconfig:"SYNC_TIMEOUT" default:"15s"`

	// LockWindow is the per-bib admission lock duration.
	LockWindow time.Duration `envconfig:"LOCK_WINDOW" default:"5s"`

	// MaxSyncPasses bounds the sync drain loop.
	MaxSyncPasses int `envconfig:"MAX_SYNC_PASSES" default:"30"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("mst", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
