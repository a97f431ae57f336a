package store

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/shehryarbajwa/sessionpilot/pkg/models"
)

var (
	// ErrNotFound is returned when no artifact exists for a user.
	ErrNotFound = errors.New("store: session not found")
	// ErrCorrupt is returned when an artifact is present but cannot be
	// deserialized or decrypted.
	ErrCorrupt = errors.New("store: session corrupt")
)

const artifactExt = ".json"

// Store persists session artifacts on disk, one JSON file per user.
// All writes are whole-artifact replacements committed via rename, so a
// crash mid-write never leaves a half-written artifact visible to Load.
// With a key file configured, artifact contents are sealed at rest so
// cookies never touch the disk in plaintext.
type Store struct {
	dir     string
	keyFile string
	aead    cipher.AEAD
}

// sealedArtifact is the on-disk envelope of an encrypted artifact.
type sealedArtifact struct {
	Sealed []byte `json:"sealed"`
}

// New creates a plaintext store rooted at dir. Call EnsureReady before
// use.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// NewEncrypted creates a store that seals artifacts with a key kept in
// keyFile. A missing key file is generated on EnsureReady.
func NewEncrypted(dir, keyFile string) *Store {
	return &Store{dir: dir, keyFile: keyFile}
}

// EnsureReady creates the backing directory if absent, verifies it is
// writable and, for encrypted stores, loads or generates the key. Safe
// to call repeatedly.
func (s *Store) EnsureReady() error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("store: create sessions directory: %w", err)
	}
	probe, err := os.CreateTemp(s.dir, ".ready-*")
	if err != nil {
		return fmt.Errorf("store: sessions directory not writable: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())

	if s.keyFile == "" || s.aead != nil {
		return nil
	}
	key, err := s.loadOrCreateKey()
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("store: init cipher: %w", err)
	}
	s.aead = aead
	return nil
}

func (s *Store) loadOrCreateKey() ([]byte, error) {
	key, err := os.ReadFile(s.keyFile)
	if err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("store: key file %s: want %d bytes, have %d", s.keyFile, chacha20poly1305.KeySize, len(key))
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("store: read key file: %w", err)
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("store: generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.keyFile), 0o750); err != nil {
		return nil, fmt.Errorf("store: create key directory: %w", err)
	}
	if err := os.WriteFile(s.keyFile, key, 0o600); err != nil {
		return nil, fmt.Errorf("store: write key file: %w", err)
	}
	return key, nil
}

// pathFor maps a user id to its artifact path, rejecting ids that could
// escape the sessions directory.
func (s *Store) pathFor(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("store: invalid user id (empty)")
	}
	if strings.ContainsAny(userID, "/\\") || userID == "." || userID == ".." {
		return "", fmt.Errorf("store: invalid user id %q", userID)
	}
	return filepath.Join(s.dir, userID+artifactExt), nil
}

// List re-enumerates storage and returns the user ids that currently
// have a persisted artifact. Order is unspecified.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}

	var users []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, artifactExt) {
			continue
		}
		users = append(users, strings.TrimSuffix(name, artifactExt))
	}
	return users, nil
}

// Exists reports whether an artifact is present for the user. A missing
// artifact is not an error; only storage-layer failures are.
func (s *Store) Exists(userID string) (bool, error) {
	path, err := s.pathFor(userID)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("store: stat %s: %w", path, err)
	}
	return true, nil
}

// Load reads the user's artifact. Returns ErrNotFound if absent and
// ErrCorrupt if present but undeserializable or undecryptable.
func (s *Store) Load(userID string) (*models.SessionArtifact, error) {
	path, err := s.pathFor(userID)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}

	if s.aead != nil {
		b, err = s.unseal(b)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
		}
	}

	var artifact models.SessionArtifact
	if err := json.Unmarshal(b, &artifact); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	if artifact.UserID == "" || len(artifact.StorageState) == 0 {
		return nil, fmt.Errorf("%w: %s: missing required fields", ErrCorrupt, path)
	}
	return &artifact, nil
}

// Save atomically replaces the user's artifact: the payload is written
// to a temporary file in the same directory and renamed into place.
func (s *Store) Save(userID string, artifact *models.SessionArtifact) error {
	path, err := s.pathFor(userID)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode artifact for %s: %w", userID, err)
	}
	if s.aead != nil {
		b, err = s.seal(b)
		if err != nil {
			return fmt.Errorf("store: seal artifact for %s: %w", userID, err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("store: commit %s: %w", path, err)
	}
	return nil
}

func (s *Store) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	envelope := sealedArtifact{Sealed: s.aead.Seal(nonce, nonce, plaintext, nil)}
	return json.MarshalIndent(envelope, "", "  ")
}

func (s *Store) unseal(b []byte) ([]byte, error) {
	var envelope sealedArtifact
	if err := json.Unmarshal(b, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Sealed) < s.aead.NonceSize() {
		return nil, fmt.Errorf("sealed payload too short")
	}
	nonce := envelope.Sealed[:s.aead.NonceSize()]
	return s.aead.Open(nil, nonce, envelope.Sealed[s.aead.NonceSize():], nil)
}

// Delete removes the user's artifact. Deleting a missing artifact is not
// an error.
func (s *Store) Delete(userID string) error {
	path, err := s.pathFor(userID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: delete %s: %w", path, err)
	}
	return nil
}
