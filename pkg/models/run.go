package models

import "time"

// RunState represents where an automation run currently is in its lifecycle.
type RunState string

const (
	RunStateIdle       RunState = "IDLE"
	RunStateAcquiring  RunState = "ACQUIRING"
	RunStateLoading    RunState = "LOADING"
	RunStateValidating RunState = "VALIDATING"
	RunStateExecuting  RunState = "EXECUTING"
	RunStatePersisting RunState = "PERSISTING"
	RunStateReleased   RunState = "RELEASED"
	RunStateFailed     RunState = "FAILED"
)

// Terminal reports whether the state is a final one.
func (s RunState) Terminal() bool {
	return s == RunStateReleased || s == RunStateFailed
}

// FailureReason is the closed set of reasons a run can fail with.
type FailureReason string

const (
	ReasonSessionBusy        FailureReason = "SESSION_BUSY"
	ReasonSessionNotFound    FailureReason = "SESSION_NOT_FOUND"
	ReasonSessionCorrupt     FailureReason = "SESSION_CORRUPT"
	ReasonSessionExpired     FailureReason = "SESSION_EXPIRED"
	ReasonProbeFailed        FailureReason = "PROBE_FAILED"
	ReasonActionFailed       FailureReason = "ACTION_FAILED"
	ReasonStorageUnavailable FailureReason = "STORAGE_UNAVAILABLE"
)

// RunResult is the typed outcome of one automation run. No error ever
// escapes the engine; failures always arrive here as a Reason.
type RunResult struct {
	Success bool          `json:"success"`
	Reason  FailureReason `json:"reason,omitempty"`
	// Cause carries diagnostic detail for ActionFailed and
	// StorageUnavailable; it is informational only.
	Cause   string            `json:"cause,omitempty"`
	Receipt map[string]string `json:"receipt,omitempty"`
}

// Run is the trackable record of one automation run.
type Run struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Action     string     `json:"action"`
	State      RunState   `json:"state"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Result     *RunResult `json:"result,omitempty"`
}

// RunEvent is a single state transition, streamed to run watchers.
type RunEvent struct {
	RunID  string        `json:"runId"`
	State  RunState      `json:"state"`
	Reason FailureReason `json:"reason,omitempty"`
	At     time.Time     `json:"at"`
}

// StartOnboardRequest is the payload for starting a guided login.
type StartOnboardRequest struct {
	UserID   string `json:"userId"`
	Platform string `json:"platform"`
	// LoginURL overrides the platform's default login page.
	LoginURL string `json:"loginUrl,omitempty"`
}

// StartRunRequest is the payload for starting an automation run.
type StartRunRequest struct {
	UserID string            `json:"userId"`
	Action string            `json:"action"`
	Params map[string]string `json:"params,omitempty"`
}
