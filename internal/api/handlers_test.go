package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/sessionpilot/internal/browser"
	"github.com/shehryarbajwa/sessionpilot/internal/config"
	"github.com/shehryarbajwa/sessionpilot/internal/engine"
	"github.com/shehryarbajwa/sessionpilot/internal/ratelimit"
	"github.com/shehryarbajwa/sessionpilot/internal/registry"
	"github.com/shehryarbajwa/sessionpilot/internal/store"
	"github.com/shehryarbajwa/sessionpilot/internal/validator"
	"github.com/shehryarbajwa/sessionpilot/pkg/models"
)

func newTestServer(t *testing.T, d *browser.FakeDriver) (*httptest.Server, *store.Store) {
	t.Helper()

	dir := t.TempDir()
	st := store.New(dir)
	require.NoError(t, st.EnsureReady())

	cfg := config.Config{
		SessionsDir:   dir,
		HandleTTL:     time.Minute,
		ProbeTimeout:  time.Second,
		NavTimeout:    time.Second,
		ActionTimeout: time.Second,
		Headless:      true,
	}
	reg := registry.New(cfg.HandleTTL)
	val := validator.New(d, cfg.ProbeTimeout, cfg.Headless)
	eng := engine.New(cfg, st, reg, val, d)
	t.Cleanup(func() { eng.CloseAll() })

	handler := NewHandler(eng)
	router := handler.SetupRoutes(ratelimit.NewLimiter(1000, 1000), 1000)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, st
}

func seedSession(t *testing.T, st *store.Store, userID string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, st.Save(userID, &models.SessionArtifact{
		UserID:       userID,
		Platform:     "linkedin",
		StorageState: json.RawMessage(`{"cookies":[],"origins":[]}`),
		CreatedAt:    now,
	}))
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &browser.FakeDriver{})

	resp, err := http.Get(srv.URL + "/v1/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestSessionEndpoints(t *testing.T) {
	srv, st := newTestServer(t, &browser.FakeDriver{})
	seedSession(t, st, "alice")

	// List
	resp, err := http.Get(srv.URL + "/v1/sessions")
	require.NoError(t, err)
	var listBody struct {
		Sessions []models.SessionInfo `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listBody))
	resp.Body.Close()
	require.Len(t, listBody.Sessions, 1)
	assert.Equal(t, "alice", listBody.Sessions[0].UserID)

	// Get existing
	resp, err = http.Get(srv.URL + "/v1/sessions/alice")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Get missing
	resp, err = http.Get(srv.URL + "/v1/sessions/bob")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Delete twice, both succeed
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/sessions/alice", nil)
		resp, err = http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	}
}

func TestStartRunAndPollResult(t *testing.T) {
	srv, st := newTestServer(t, &browser.FakeDriver{})
	seedSession(t, st, "alice")

	body, _ := json.Marshal(models.StartRunRequest{UserID: "alice", Action: "profile_check"})
	resp, err := http.Post(srv.URL+"/v1/runs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var run models.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	resp.Body.Close()
	require.NotEmpty(t, run.ID)

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(srv.URL + "/v1/runs/" + run.ID)
		require.NoError(t, err)
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
		resp.Body.Close()
		if run.Result != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("run never finished")
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.True(t, run.Result.Success, "reason: %s", run.Result.Reason)
	assert.Equal(t, models.RunStateReleased, run.State)
}

func TestStartRunRejectsUnknownAction(t *testing.T) {
	srv, _ := newTestServer(t, &browser.FakeDriver{})

	body, _ := json.Marshal(models.StartRunRequest{UserID: "alice", Action: "mine_bitcoin"})
	resp, err := http.Post(srv.URL+"/v1/runs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunEventsStream(t *testing.T) {
	d := &browser.FakeDriver{
		NavStarted: make(chan string, 8),
		NavRelease: make(chan struct{}),
	}
	srv, st := newTestServer(t, d)
	seedSession(t, st, "alice")

	body, _ := json.Marshal(models.StartRunRequest{UserID: "alice", Action: "profile_check"})
	resp, err := http.Post(srv.URL+"/v1/runs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	var run models.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	resp.Body.Close()

	// Attach while the run is held mid-probe so events are observed live.
	select {
	case <-d.NavStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("run never started navigating")
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/runs/" + run.ID + "/events"
	conn, wsResp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if wsResp != nil {
		wsResp.Body.Close()
	}
	defer conn.Close()

	close(d.NavRelease)

	var states []models.RunState
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var ev models.RunEvent
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
		states = append(states, ev.State)
	}
	require.NotEmpty(t, states)
	assert.Equal(t, models.RunStateReleased, states[len(states)-1])
}

func TestOnboardOverHTTP(t *testing.T) {
	d := &browser.FakeDriver{
		Redirects: map[string]string{"https://www.linkedin.com/login": "https://www.linkedin.com/feed/"},
	}
	srv, _ := newTestServer(t, d)

	body, _ := json.Marshal(models.StartOnboardRequest{UserID: "alice", Platform: "linkedin"})
	resp, err := http.Post(srv.URL+"/v1/sessions", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/v1/sessions/alice/confirm", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info models.SessionInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "alice", info.UserID)
	assert.Equal(t, 0, d.OpenResources())
}

func TestConfirmWithoutOnboard(t *testing.T) {
	srv, _ := newTestServer(t, &browser.FakeDriver{})

	resp, err := http.Post(srv.URL+"/v1/sessions/ghost/confirm", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRateLimitRejectsAfterBurst(t *testing.T) {
	dir := t.TempDir()
	st := store.New(dir)
	require.NoError(t, st.EnsureReady())
	d := &browser.FakeDriver{}

	cfg := config.Config{SessionsDir: dir, HandleTTL: time.Minute, Headless: true}
	eng := engine.New(cfg, st, registry.New(cfg.HandleTTL), validator.New(d, time.Second, true), d)
	t.Cleanup(func() { eng.CloseAll() })

	router := NewHandler(eng).SetupRoutes(ratelimit.NewLimiter(1, 1), 1)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	statuses := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/sessions/alice?userId=alice", nil)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}
	assert.Equal(t, http.StatusNoContent, statuses[0])
	assert.Equal(t, http.StatusTooManyRequests, statuses[1])
}
