package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BUS_DRIVER", "")
	t.Setenv("SSE_CHANNEL", "")
	t.Setenv("INSTANCE_ID", "")
	t.Setenv("MAINTENANCE_MODE", "")

	cfg := Load()

	assert.Equal(t, BUS_REDIS, cfg.BusDriver)
	assert.Equal(t, DEFAULT_SSE_CHANNEL, cfg.SSEChannel)
	assert.NotEmpty(t, cfg.InstanceID)
	assert.False(t, cfg.MaintenanceMode)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BUS_DRIVER", "kafka")
	t.Setenv("INSTANCE_ID", "api-1")
	t.Setenv("MAINTENANCE_MODE", "true")

	cfg := Load()

	assert.Equal(t, BUS_KAFKA, cfg.BusDriver)
	assert.Equal(t, "api-1", cfg.InstanceID)
	assert.True(t, cfg.MaintenanceMode)
}

func TestGetDSN(t *testing.T) {
	t.Setenv("DATABASE_HOST", "localhost")
	t.Setenv("DATABASE_PORT", "5432")
	t.Setenv("DATABASE_USER", "postgres")
	t.Setenv("DATABASE_PASSWORD", "password")
	t.Setenv("DATABASE_NAME", "vmpdb")
	t.Setenv("DATABASE_SSLMODE", "disable")
	t.Setenv("DATABASE_TIMEZONE", "UTC")

	assert.Equal(t, "host=localhost user=postgres password=password dbname=vmpdb port=5432 sslmode=disable TimeZone=UTC", GetDSN())
}
