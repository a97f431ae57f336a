package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "./storage/sessions", cfg.SessionsDir)
	assert.Equal(t, "./storage/session.key", cfg.KeyFile)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionMaxAge)
	assert.Equal(t, 10*time.Minute, cfg.HandleTTL)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 20*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 2*time.Minute, cfg.ActionTimeout)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 100, cfg.RatePerHour)
	assert.Equal(t, 10, cfg.RateBurst)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SESSIONPILOT_ADDR", ":9090")
	t.Setenv("SESSIONPILOT_HANDLE_TTL", "5m")
	t.Setenv("SESSIONPILOT_HEADLESS", "false")
	t.Setenv("SESSIONPILOT_RATE_BURST", "3")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 5*time.Minute, cfg.HandleTTL)
	assert.False(t, cfg.Headless)
	assert.Equal(t, 3, cfg.RateBurst)
}

func TestLoadRejectsGarbageValues(t *testing.T) {
	t.Setenv("SESSIONPILOT_PROBE_TIMEOUT", "soon")
	t.Setenv("SESSIONPILOT_RATE_PER_HOUR", "-5")

	cfg := Load()

	assert.Equal(t, 20*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 100, cfg.RatePerHour)
}
