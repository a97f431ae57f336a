package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all service settings, read from the environment.
type Config struct {
	Addr        string
	SessionsDir string

	// KeyFile holds the artifact encryption key; generated on first
	// start when absent.
	KeyFile string

	// SessionMaxAge expires artifacts that have not been used for this
	// long without spending a browser probe on them.
	SessionMaxAge time.Duration

	// HandleTTL bounds how long a registry handle may live before the
	// sweeper force-releases it.
	HandleTTL     time.Duration
	SweepInterval time.Duration

	ProbeTimeout  time.Duration
	NavTimeout    time.Duration
	ActionTimeout time.Duration

	// Headless applies to automation and validation browsers; onboarding
	// always runs headed so the user can complete the login.
	Headless bool

	RatePerHour int
	RateBurst   int
}

// Load reads the configuration from environment variables, applying
// defaults for anything unset.
func Load() Config {
	return Config{
		Addr:          getString("SESSIONPILOT_ADDR", ":8080"),
		SessionsDir:   getString("SESSIONPILOT_SESSIONS_DIR", "./storage/sessions"),
		KeyFile:       getString("SESSIONPILOT_KEY_FILE", "./storage/session.key"),
		SessionMaxAge: getDuration("SESSIONPILOT_SESSION_MAX_AGE", 7*24*time.Hour),
		HandleTTL:     getDuration("SESSIONPILOT_HANDLE_TTL", 10*time.Minute),
		SweepInterval: getDuration("SESSIONPILOT_SWEEP_INTERVAL", 30*time.Second),
		ProbeTimeout:  getDuration("SESSIONPILOT_PROBE_TIMEOUT", 20*time.Second),
		NavTimeout:    getDuration("SESSIONPILOT_NAV_TIMEOUT", 30*time.Second),
		ActionTimeout: getDuration("SESSIONPILOT_ACTION_TIMEOUT", 2*time.Minute),
		Headless:      getBool("SESSIONPILOT_HEADLESS", true),
		RatePerHour:   getInt("SESSIONPILOT_RATE_PER_HOUR", 100),
		RateBurst:     getInt("SESSIONPILOT_RATE_BURST", 10),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
