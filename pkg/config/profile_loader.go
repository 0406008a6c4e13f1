package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "15m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Profile is an optional YAML tuning overlay. Zero values leave the
// corresponding Config field untouched.
type Profile struct {
	Name string `yaml:"name" json:"name"`

	SaveRetries     int      `yaml:"save_retries,omitempty" json:"save_retries,omitempty"`
	RegistryRetries int      `yaml:"registry_retries,omitempty" json:"registry_retries,omitempty"`
	BreakerDepth    int      `yaml:"breaker_depth,omitempty" json:"breaker_depth,omitempty"`
	HoldTTL         Duration `yaml:"hold_ttl,omitempty" json:"hold_ttl,omitempty"`
	HeartbeatTick   Duration `yaml:"heartbeat_tick,omitempty" json:"heartbeat_tick,omitempty"`
	CheckInCadence  Duration `yaml:"checkin_cadence,omitempty" json:"checkin_cadence,omitempty"`

	Dwell DwellProfile `yaml:"dwell" json:"dwell"`
}

// DwellProfile tunes the per-phase staleness thresholds.
type DwellProfile struct {
	Initial     Duration `yaml:"initial,omitempty" json:"initial,omitempty"`
	Assessment  Duration `yaml:"assessment,omitempty" json:"assessment,omitempty"`
	Reservation Duration `yaml:"reservation,omitempty" json:"reservation,omitempty"`
}

// LoadProfile reads and parses a tuning profile YAML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", path, err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", path, err)
	}
	return &profile, nil
}

// Apply overlays the profile's non-zero fields onto cfg.
func (p *Profile) Apply(cfg *Config) {
	if p.SaveRetries > 0 {
		cfg.SaveRetries = p.SaveRetries
	}
	if p.RegistryRetries > 0 {
		cfg.RegistryRetries = p.RegistryRetries
	}
	if p.BreakerDepth > 0 {
		cfg.BreakerDepth = p.BreakerDepth
	}
	if p.HoldTTL > 0 {
		cfg.HoldTTL = p.HoldTTL.Std()
	}
	if p.HeartbeatTick > 0 {
		cfg.HeartbeatTick = p.HeartbeatTick.Std()
	}
	if p.CheckInCadence > 0 {
		cfg.CheckInCadence = p.CheckInCadence.Std()
	}
	if p.Dwell.Initial > 0 {
		cfg.DwellInitial = p.Dwell.Initial.Std()
	}
	if p.Dwell.Assessment > 0 {
		cfg.DwellAssessment = p.Dwell.Assessment.Std()
	}
	if p.Dwell.Reservation > 0 {
		cfg.DwellReservation = p.Dwell.Reservation.Std()
	}
}
