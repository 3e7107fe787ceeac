// Package config loads environment configuration for the query server
// and CLI defaults. Variables use the LINEAGE_ prefix; a local .env is
// honored when present (godotenv in main).
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "LINEAGE"

type Config struct {
	App    AppConfig
	Server ServerConfig
	Data   DataConfig
}

type AppConfig struct {
	LogLevel  string `envconfig:"LINEAGE_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LINEAGE_LOG_FORMAT" default:"console"`
}

type ServerConfig struct {
	Port           int      `envconfig:"LINEAGE_SERVER_PORT" default:"8080"`
	AllowedOrigins []string `envconfig:"LINEAGE_ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:8080"`
}

type DataConfig struct {
	// LedgerPath is the default transaction export the server loads at
	// startup when no -ledger flag is given.
	LedgerPath string `envconfig:"LINEAGE_LEDGER_PATH"`

	// ArchivePath is the SQLite archive used when the ledger should be
	// persisted or re-read between runs.
	ArchivePath string `envconfig:"LINEAGE_ARCHIVE_PATH"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}
