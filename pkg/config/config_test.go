package config_test

import (
	"testing"
	"time"

	"github.com/Mindburn-Labs/caseflow/pkg/config"
	"github.com/stretchr/testify/assert"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
// Invariant: System must boot with safe defaults in dev mode.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("CASEFLOW_STORAGE_TYPE", "")
	t.Setenv("CASEFLOW_SAVE_RETRIES", "")
	t.Setenv("CASEFLOW_BREAKER_DEPTH", "")
	t.Setenv("CASEFLOW_HOLD_TTL", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "memory", cfg.StorageType)
	assert.Equal(t, 3, cfg.SaveRetries)
	assert.Equal(t, 5, cfg.BreakerDepth)
	assert.Equal(t, 30*time.Minute, cfg.HoldTTL)
	assert.Equal(t, 24*time.Hour, cfg.DwellInitial)
	assert.Equal(t, 72*time.Hour, cfg.DwellReservation)
	assert.Equal(t, 7*24*time.Hour, cfg.CheckInCadence)
	assert.False(t, cfg.TelemetryEnabled)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
// Invariant: Ops can control config via standard 12-factor env vars.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("CASEFLOW_STORAGE_TYPE", "postgres")
	t.Setenv("CASEFLOW_SAVE_RETRIES", "5")
	t.Setenv("CASEFLOW_HOLD_TTL", "10m")
	t.Setenv("CASEFLOW_DWELL_INITIAL", "48h")
	t.Setenv("CASEFLOW_TELEMETRY", "true")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres", cfg.StorageType)
	assert.Equal(t, 5, cfg.SaveRetries)
	assert.Equal(t, 10*time.Minute, cfg.HoldTTL)
	assert.Equal(t, 48*time.Hour, cfg.DwellInitial)
	assert.True(t, cfg.TelemetryEnabled)
}

// TestLoad_InvalidValuesFallBack verifies that malformed env values fall
// back to defaults instead of failing startup.
func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CASEFLOW_SAVE_RETRIES", "not-a-number")
	t.Setenv("CASEFLOW_HOLD_TTL", "not-a-duration")

	cfg := config.Load()

	assert.Equal(t, 3, cfg.SaveRetries)
	assert.Equal(t, 30*time.Minute, cfg.HoldTTL)
}
