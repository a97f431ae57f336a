package models

import (
	"encoding/json"
	"time"
)

// SessionArtifact is the persisted authenticated-browser state for one
// user on one platform. StorageState is opaque to everything except the
// browser driver that produced it.
type SessionArtifact struct {
	UserID          string          `json:"userId"`
	Platform        string          `json:"platform"`
	StorageState    json.RawMessage `json:"storageState"`
	CreatedAt       time.Time       `json:"createdAt"`
	LastValidatedAt time.Time       `json:"lastValidatedAt"`
	LastUsedAt      time.Time       `json:"lastUsedAt"`
}

// SessionInfo is the listable view of an artifact, without the storage state.
type SessionInfo struct {
	UserID          string    `json:"userId"`
	Platform        string    `json:"platform"`
	CreatedAt       time.Time `json:"createdAt"`
	LastValidatedAt time.Time `json:"lastValidatedAt"`
	LastUsedAt      time.Time `json:"lastUsedAt"`
}

// Info returns the artifact's listable view.
func (a *SessionArtifact) Info() SessionInfo {
	return SessionInfo{
		UserID:          a.UserID,
		Platform:        a.Platform,
		CreatedAt:       a.CreatedAt,
		LastValidatedAt: a.LastValidatedAt,
		LastUsedAt:      a.LastUsedAt,
	}
}
