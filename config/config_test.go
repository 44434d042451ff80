package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/basketmesh/core"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8000", s.HTTPAddr)
	assert.Equal(t, "basketmesh.db", s.DatabaseDSN)
	assert.Equal(t, "logs", s.LogDir)
	assert.Equal(t, 7, s.RetentionDays)
	assert.Equal(t, 128, s.EventBufferSize)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, 30*time.Minute, s.StateTTL)
	assert.Empty(t, s.ForwarderURL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("BASKETMESH_HTTP_ADDR", ":9090")
	t.Setenv("BASKETMESH_DB_DSN", ":memory:")
	t.Setenv("BASKETMESH_RETENTION_DAYS", "14")
	t.Setenv("BASKETMESH_STATE_TTL_MINUTES", "5")
	t.Setenv("BASKETMESH_FORWARDER_URL", "ws://localhost:7000/events")

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", s.HTTPAddr)
	assert.Equal(t, ":memory:", s.DatabaseDSN)
	assert.Equal(t, 14, s.RetentionDays)
	assert.Equal(t, 5*time.Minute, s.StateTTL)
	assert.Equal(t, "ws://localhost:7000/events", s.ForwarderURL)
}

func TestLoadRejectsMalformedInteger(t *testing.T) {
	t.Setenv("BASKETMESH_RETENTION_DAYS", "fortnight")

	_, err := Load()
	require.Error(t, err)
	var cfgErr *core.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "BASKETMESH_RETENTION_DAYS", cfgErr.Source)
}
