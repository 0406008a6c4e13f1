package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadProfile_AppliesOverrides(t *testing.T) {
	path := writeProfile(t, `
name: aggressive
save_retries: 5
breaker_depth: 8
hold_ttl: 15m
dwell:
  initial: 12h
  reservation: 48h
`)

	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "aggressive", p.Name)

	cfg := Load()
	p.Apply(cfg)

	assert.Equal(t, 5, cfg.SaveRetries)
	assert.Equal(t, 8, cfg.BreakerDepth)
	assert.Equal(t, 15*time.Minute, cfg.HoldTTL)
	assert.Equal(t, 12*time.Hour, cfg.DwellInitial)
	assert.Equal(t, 48*time.Hour, cfg.DwellReservation)
	// Untouched fields keep their defaults.
	assert.Equal(t, 24*time.Hour, cfg.DwellAssessment)
	assert.Equal(t, 3, cfg.RegistryRetries)
}

func TestLoadProfile_ZeroValuesLeaveDefaults(t *testing.T) {
	path := writeProfile(t, "name: noop\n")

	p, err := LoadProfile(path)
	require.NoError(t, err)

	cfg := Load()
	before := *cfg
	p.Apply(cfg)

	assert.Equal(t, before, *cfg)
}

func TestLoadProfile_MissingFile(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadProfile_MalformedYAML(t *testing.T) {
	path := writeProfile(t, "name: [unclosed\n")
	_, err := LoadProfile(path)
	assert.Error(t, err)
}
