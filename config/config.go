// Package config loads daemon settings from the environment with sensible
// defaults for a single-process deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hupe1980/basketmesh/core"
)

// Settings holds everything the daemon needs to wire itself up.
type Settings struct {
	// HTTPAddr is the listen address of the HTTP API.
	HTTPAddr string

	// DatabaseDSN is the SQLite data source for the durable audit store.
	DatabaseDSN string

	// DefinitionsPath points at the YAML agent and basket definitions.
	// Empty starts with an empty catalog.
	DefinitionsPath string

	// LogDir is the root directory for per-run log artifacts.
	LogDir string

	// RetentionDays is the default ephemeral telemetry retention window.
	RetentionDays int

	// EventBufferSize bounds the event bus queue.
	EventBufferSize int

	// ForwarderURL is an optional ws:// endpoint receiving lifecycle
	// events. Empty disables forwarding.
	ForwarderURL string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// StateTTL bounds how long idle per-session agent state is retained.
	StateTTL time.Duration
}

// Load reads settings from the environment. Malformed numeric values are a
// configuration error rather than a silent fallback.
func Load() (*Settings, error) {
	s := &Settings{
		HTTPAddr:        getEnv("BASKETMESH_HTTP_ADDR", ":8000"),
		DatabaseDSN:     getEnv("BASKETMESH_DB_DSN", "basketmesh.db"),
		DefinitionsPath: getEnv("BASKETMESH_DEFINITIONS", ""),
		LogDir:          getEnv("BASKETMESH_LOG_DIR", "logs"),
		ForwarderURL:    getEnv("BASKETMESH_FORWARDER_URL", ""),
		LogLevel:        getEnv("BASKETMESH_LOG_LEVEL", "info"),
	}

	var err error
	if s.RetentionDays, err = getEnvInt("BASKETMESH_RETENTION_DAYS", 7); err != nil {
		return nil, err
	}
	if s.EventBufferSize, err = getEnvInt("BASKETMESH_EVENT_BUFFER", 128); err != nil {
		return nil, err
	}

	ttlMinutes, err := getEnvInt("BASKETMESH_STATE_TTL_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	s.StateTTL = time.Duration(ttlMinutes) * time.Minute

	return s, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &core.ConfigError{
			Source: key,
			Err:    fmt.Errorf("expected integer, got %q", v),
		}
	}
	return n, nil
}
