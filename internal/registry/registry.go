// Package registry tracks which user sessions currently have a live
// browser open. Acquisition is exclusive per user and non-blocking; a
// background sweep force-releases handles whose owner never returned
// them, so a crashed run cannot permanently wedge a user.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned by TryAcquire when another operation already holds
// the user's handle.
var ErrBusy = errors.New("registry: session busy")

// Handle is an exclusive, time-bounded claim on a user's session.
type Handle struct {
	UserID     string    `json:"userId"`
	OpID       string    `json:"opId"`
	AcquiredAt time.Time `json:"acquiredAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Registry is the in-process handle table. It owns liveness bookkeeping
// only and never touches durable storage.
type Registry struct {
	mu      sync.Mutex
	slots   map[string]*semaphore.Weighted
	handles map[string]*Handle
	ttl     time.Duration
}

// New creates a registry whose handles expire after ttl.
func New(ttl time.Duration) *Registry {
	return &Registry{
		slots:   make(map[string]*semaphore.Weighted),
		handles: make(map[string]*Handle),
		ttl:     ttl,
	}
}

// TryAcquire claims the user's slot without blocking. It returns ErrBusy
// immediately if a handle for the user already exists.
func (r *Registry) TryAcquire(userID string) (*Handle, error) {
	if userID == "" {
		return nil, fmt.Errorf("registry: user id is required")
	}

	r.mu.Lock()
	sem, ok := r.slots[userID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		r.slots[userID] = sem
	}
	r.mu.Unlock()

	if !sem.TryAcquire(1) {
		return nil, ErrBusy
	}

	now := time.Now()
	h := &Handle{
		UserID:     userID,
		OpID:       uuid.New().String(),
		AcquiredAt: now,
		ExpiresAt:  now.Add(r.ttl),
	}

	r.mu.Lock()
	r.handles[userID] = h
	r.mu.Unlock()

	return h, nil
}

// Release returns the user's slot. Releasing a handle that is no longer
// registered (already released, or swept after expiry) is a no-op.
func (r *Registry) Release(h *Handle) {
	if h == nil {
		return
	}

	r.mu.Lock()
	current, ok := r.handles[h.UserID]
	if !ok || current.OpID != h.OpID {
		r.mu.Unlock()
		return
	}
	delete(r.handles, h.UserID)
	sem := r.slots[h.UserID]
	r.mu.Unlock()

	sem.Release(1)
}

// Holds reports whether the handle is still the registered claim for
// its user. A swept or released handle no longer holds.
func (r *Registry) Holds(h *Handle) bool {
	if h == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.handles[h.UserID]
	return ok && current.OpID == h.OpID
}

// Sweep force-releases every handle past its expiry and returns how many
// it released.
func (r *Registry) Sweep() int {
	now := time.Now()

	r.mu.Lock()
	var expired []*Handle
	for _, h := range r.handles {
		if now.After(h.ExpiresAt) {
			expired = append(expired, h)
		}
	}
	r.mu.Unlock()

	for _, h := range expired {
		log.Printf("[registry] force-releasing expired handle for %s (op %s)", h.UserID, h.OpID)
		r.Release(h)
	}
	return len(expired)
}

// Run sweeps at the given interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// ReleaseAll releases every live handle. Used at process shutdown.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	live := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		live = append(live, h)
	}
	r.mu.Unlock()

	for _, h := range live {
		r.Release(h)
	}
}

// Active returns a snapshot of the live handles.
func (r *Registry) Active() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, *h)
	}
	return out
}
