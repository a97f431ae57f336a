package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/sessionpilot/internal/engine"
	"github.com/shehryarbajwa/sessionpilot/internal/store"
	"github.com/shehryarbajwa/sessionpilot/pkg/models"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine *engine.Engine
}

// NewHandler creates a new HTTP handler.
func NewHandler(e *engine.Engine) *Handler {
	return &Handler{engine: e}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// StartOnboard handles POST /v1/sessions
func (h *Handler) StartOnboard(w http.ResponseWriter, r *http.Request) {
	var req models.StartOnboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.engine.StartOnboard(r.Context(), req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "onboarding_started",
		"message":  fmt.Sprintf("Browser opened for %s. Complete the login manually.", req.UserID),
		"nextStep": fmt.Sprintf("POST /v1/sessions/%s/confirm when the login is complete", req.UserID),
	})
}

// ConfirmOnboard handles POST /v1/sessions/{id}/confirm
func (h *Handler) ConfirmOnboard(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	info, err := h.engine.ConfirmOnboard(r.Context(), userID)
	if err != nil {
		if errors.Is(err, engine.ErrOnboardPending) {
			http.Error(w, "Login not completed yet; finish logging in and retry", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// ListSessions handles GET /v1/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	infos, err := h.engine.ListSessions()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": infos})
}

// GetSession handles GET /v1/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	info, err := h.engine.SessionInfo(userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, store.ErrCorrupt) {
			http.Error(w, "Session corrupt; re-onboard the user", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// DeleteSession handles DELETE /v1/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	if err := h.engine.DeleteSession(userID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartRun handles POST /v1/runs
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req models.StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	run, err := h.engine.StartRun(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusAccepted, run)
}

// GetRun handles GET /v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.engine.GetRun(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// Health handles GET /v1/healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"activeHandles": len(h.engine.ActiveHandles()),
	})
}
