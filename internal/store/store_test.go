package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/sessionpilot/pkg/models"
)

func testArtifact(userID string) *models.SessionArtifact {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &models.SessionArtifact{
		UserID:          userID,
		Platform:        "linkedin",
		StorageState:    json.RawMessage(`{"cookies":[{"name":"li_at","value":"tok"}],"origins":[]}`),
		CreatedAt:       now,
		LastValidatedAt: now,
		LastUsedAt:      now,
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir())
	require.NoError(t, s.EnsureReady())
	return s
}

func TestEnsureReadyIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "sessions")
	s := New(dir)

	require.NoError(t, s.EnsureReady())
	require.NoError(t, s.EnsureReady())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load("alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	in := testArtifact("alice")

	require.NoError(t, s.Save("alice", in))

	out, err := s.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, in.UserID, out.UserID)
	assert.Equal(t, in.Platform, out.Platform)
	assert.JSONEq(t, string(in.StorageState), string(out.StorageState))
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
}

func TestSaveReplacesWholeArtifact(t *testing.T) {
	s := newTestStore(t)

	first := testArtifact("alice")
	require.NoError(t, s.Save("alice", first))

	second := testArtifact("alice")
	second.StorageState = json.RawMessage(`{"cookies":[],"origins":[]}`)
	second.Platform = "custom"
	require.NoError(t, s.Save("alice", second))

	out, err := s.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, "custom", out.Platform)
	assert.JSONEq(t, `{"cookies":[],"origins":[]}`, string(out.StorageState))
}

func TestLoadCorruptArtifact(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.EnsureReady())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "alice.json"), []byte("{not json"), 0o600))

	_, err := s.Load("alice")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestInterruptedSaveNeverVisible(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.EnsureReady())

	require.NoError(t, s.Save("alice", testArtifact("alice")))

	// Simulate a crash mid-write: a half-written temp file next to the
	// committed artifact.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alice.json.tmp"), []byte(`{"userId":"al`), 0o600))

	out, err := s.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", out.UserID)

	// The orphaned temp file is not enumerated either.
	users, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, users)
}

func TestDeleteIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("alice", testArtifact("alice")))

	require.NoError(t, s.Delete("alice"))
	require.NoError(t, s.Delete("alice"))

	ok, err := s.Exists("alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExists(t *testing.T) {
	s := newTestStore(t)

	ok, err := s.Exists("alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save("alice", testArtifact("alice")))

	ok, err = s.Exists("alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListEnumeratesEachCall(t *testing.T) {
	s := newTestStore(t)

	users, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, users)

	require.NoError(t, s.Save("alice", testArtifact("alice")))
	require.NoError(t, s.Save("bob", testArtifact("bob")))

	users, err = s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, users)

	require.NoError(t, s.Delete("bob"))

	users, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, users)
}

func TestRejectsPathEscapingUserID(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"", "..", "a/b", `a\b`} {
		_, err := s.Load(id)
		assert.Error(t, err, "id %q", id)
		assert.NotErrorIs(t, err, ErrNotFound)
	}
}

func newEncryptedStore(t *testing.T) (*Store, string, string) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "sessions")
	keyFile := filepath.Join(root, "session.key")
	s := NewEncrypted(dir, keyFile)
	require.NoError(t, s.EnsureReady())
	return s, dir, keyFile
}

func TestEncryptedStoreSealsArtifactsAtRest(t *testing.T) {
	s, dir, keyFile := newEncryptedStore(t)
	in := testArtifact("alice")

	require.NoError(t, s.Save("alice", in))

	// The key file was bootstrapped and is private to the service user.
	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Nothing sensitive is readable off disk.
	raw, err := os.ReadFile(filepath.Join(dir, "alice.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "li_at")
	assert.NotContains(t, string(raw), "tok")
	assert.NotContains(t, string(raw), "alice")

	out, err := s.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, in.UserID, out.UserID)
	assert.JSONEq(t, string(in.StorageState), string(out.StorageState))
}

func TestEncryptedStoreReopensWithSameKey(t *testing.T) {
	s, dir, keyFile := newEncryptedStore(t)
	require.NoError(t, s.Save("alice", testArtifact("alice")))

	reopened := NewEncrypted(dir, keyFile)
	require.NoError(t, reopened.EnsureReady())

	out, err := reopened.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", out.UserID)
}

func TestEncryptedStoreTamperedArtifactIsCorrupt(t *testing.T) {
	s, dir, _ := newEncryptedStore(t)
	require.NoError(t, s.Save("alice", testArtifact("alice")))

	path := filepath.Join(dir, "alice.json")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)/2] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	_, err = s.Load("alice")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestEncryptedStoreRejectsPlaintextArtifact(t *testing.T) {
	s, dir, _ := newEncryptedStore(t)

	b, err := json.Marshal(testArtifact("alice"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alice.json"), b, 0o600))

	_, err = s.Load("alice")
	assert.ErrorIs(t, err, ErrCorrupt)
}
