package config

import (
	"fmt"
	"os"
)

// Config holds the environment-sourced application configuration: where
// the cluster lives, how this process identifies itself to it, and where
// the ambient surfaces (health, event log) should bind. Connect/drain
// behavior tunables live in TuningConfig instead, since those are the
// knobs an operator adjusts far more often than the connection string.
type Config struct {
	ConnectionString string
	NodeID           int
	LogLevel         string

	HealthAddr string

	EventLogDriver string // "filesystem", "postgres", "sqlite", or "" to disable
	EventLogDSN    string

	// ArchiveConnectionString/ArchiveContainer together select cold-storage
	// export of the event log on terminal shutdown. Both must be set to
	// enable it; either empty disables the export.
	ArchiveConnectionString string
	ArchiveContainer        string

	MCPAddr string // "" disables the MCP tool server
}

// Load builds a Config from environment variables, applying defaults
// where the teacher's getEnvOrDefault helpers do.
func Load() (*Config, error) {
	cfg := &Config{
		ConnectionString:        getEnvOrDefault("NDBPOOL_CONNECTION_STRING", "localhost:1186"),
		NodeID:                  getEnvOrDefaultInt("NDBPOOL_NODE_ID", 0),
		LogLevel:                getEnvOrDefault("LOG_LEVEL", "info"),
		HealthAddr:              getEnvOrDefault("NDBPOOL_HEALTH_ADDR", ":8080"),
		EventLogDriver:          getEnvOrDefault("NDBPOOL_EVENTLOG_DRIVER", "filesystem"),
		EventLogDSN:             getEnvOrDefault("NDBPOOL_EVENTLOG_DSN", "./ndbpool-events"),
		ArchiveConnectionString: os.Getenv("NDBPOOL_ARCHIVE_CONNECTION_STRING"),
		ArchiveContainer:        os.Getenv("NDBPOOL_ARCHIVE_CONTAINER"),
		MCPAddr:                 os.Getenv("NDBPOOL_MCP_ADDR"),
	}

	if cfg.ConnectionString == "" {
		return nil, fmt.Errorf("NDBPOOL_CONNECTION_STRING is required")
	}

	return cfg, nil
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
