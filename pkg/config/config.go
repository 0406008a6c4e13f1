// Package config loads runtime configuration from environment variables,
// optionally overlaid with a YAML tuning profile.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port        string
	LogLevel    string
	StorageType string
	SQLitePath  string
	ProfilePath string

	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int

	SaveRetries     int
	RegistryRetries int
	BreakerDepth    int
	HoldTTL         time.Duration
	HeartbeatTick   time.Duration
	CheckInCadence  time.Duration

	DwellInitial     time.Duration
	DwellAssessment  time.Duration
	DwellReservation time.Duration

	TelemetryEnabled bool
	OTLPEndpoint     string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		StorageType: getEnv("CASEFLOW_STORAGE_TYPE", "memory"),
		SQLitePath:  getEnv("CASEFLOW_SQLITE_PATH", "caseflow.db"),
		ProfilePath: os.Getenv("CASEFLOW_PROFILE"),

		JWTSecret:      os.Getenv("CASEFLOW_JWT_SECRET"),
		RateLimitRPS:   getEnvFloat("CASEFLOW_RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvInt("CASEFLOW_RATE_LIMIT_BURST", 20),

		SaveRetries:     getEnvInt("CASEFLOW_SAVE_RETRIES", 3),
		RegistryRetries: getEnvInt("CASEFLOW_REGISTRY_RETRIES", 3),
		BreakerDepth:    getEnvInt("CASEFLOW_BREAKER_DEPTH", 5),
		HoldTTL:         getEnvDuration("CASEFLOW_HOLD_TTL", 30*time.Minute),
		HeartbeatTick:   getEnvDuration("CASEFLOW_HEARTBEAT_TICK", 5*time.Minute),
		CheckInCadence:  getEnvDuration("CASEFLOW_CHECKIN_CADENCE", 7*24*time.Hour),

		DwellInitial:     getEnvDuration("CASEFLOW_DWELL_INITIAL", 24*time.Hour),
		DwellAssessment:  getEnvDuration("CASEFLOW_DWELL_ASSESSMENT", 24*time.Hour),
		DwellReservation: getEnvDuration("CASEFLOW_DWELL_RESERVATION", 72*time.Hour),

		TelemetryEnabled: os.Getenv("CASEFLOW_TELEMETRY") == "true",
		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
