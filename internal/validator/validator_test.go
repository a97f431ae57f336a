package validator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/sessionpilot/internal/browser"
	"github.com/shehryarbajwa/sessionpilot/pkg/models"
)

const (
	probeURL = "https://www.linkedin.com/feed/"
	loginURL = "https://www.linkedin.com/login"
)

func artifact() *models.SessionArtifact {
	return &models.SessionArtifact{
		UserID:       "alice",
		Platform:     "linkedin",
		StorageState: json.RawMessage(`{"cookies":[{"name":"li_at","value":"tok"}],"origins":[]}`),
		CreatedAt:    time.Now(),
	}
}

func TestValidSession(t *testing.T) {
	d := &browser.FakeDriver{}

	v := New(d, time.Second, true)
	verdict := v.Validate(context.Background(), artifact())

	assert.True(t, verdict.Valid)
	assert.Equal(t, 0, d.OpenResources(), "probe browser must be torn down")
	assert.Contains(t, d.Visited, probeURL)
}

func TestLoginRedirectMeansExpired(t *testing.T) {
	d := &browser.FakeDriver{
		Redirects: map[string]string{probeURL: loginURL},
	}

	v := New(d, time.Second, true)
	verdict := v.Validate(context.Background(), artifact())

	require.False(t, verdict.Valid)
	assert.Equal(t, models.ReasonSessionExpired, verdict.Reason)
	assert.Equal(t, 0, d.OpenResources())
}

func TestMissingAuthMarkerMeansExpired(t *testing.T) {
	d := &browser.FakeDriver{
		MissingSelectors: map[string]bool{"#global-nav": true},
	}

	v := New(d, time.Second, true)
	verdict := v.Validate(context.Background(), artifact())

	require.False(t, verdict.Valid)
	assert.Equal(t, models.ReasonSessionExpired, verdict.Reason)
	assert.Equal(t, 0, d.OpenResources())
}

func TestProbeTimeoutFailsClosed(t *testing.T) {
	d := &browser.FakeDriver{
		NavErrs: map[string]error{probeURL: errors.New("timeout 1s exceeded")},
	}

	v := New(d, time.Second, true)
	verdict := v.Validate(context.Background(), artifact())

	require.False(t, verdict.Valid)
	assert.Equal(t, models.ReasonProbeFailed, verdict.Reason)
	assert.Equal(t, 0, d.OpenResources())
}

func TestLaunchFailureFailsClosed(t *testing.T) {
	d := &browser.FakeDriver{LaunchErr: errors.New("no chromium")}

	v := New(d, time.Second, true)
	verdict := v.Validate(context.Background(), artifact())

	require.False(t, verdict.Valid)
	assert.Equal(t, models.ReasonProbeFailed, verdict.Reason)
}

func TestUnknownPlatformFailsClosed(t *testing.T) {
	d := &browser.FakeDriver{}
	a := artifact()
	a.Platform = "myspace"

	v := New(d, time.Second, true)
	verdict := v.Validate(context.Background(), a)

	require.False(t, verdict.Valid)
	assert.Equal(t, models.ReasonProbeFailed, verdict.Reason)
	assert.Equal(t, 0, d.Launches(), "unknown platform must not launch a browser")
}

func TestValidationRestoresArtifactState(t *testing.T) {
	d := &browser.FakeDriver{}
	a := artifact()

	v := New(d, time.Second, true)
	v.Validate(context.Background(), a)

	assert.JSONEq(t, string(a.StorageState), string(d.LastStorageState))
}
