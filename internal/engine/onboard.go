package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shehryarbajwa/sessionpilot/internal/browser"
	"github.com/shehryarbajwa/sessionpilot/internal/platform"
	"github.com/shehryarbajwa/sessionpilot/internal/registry"
	"github.com/shehryarbajwa/sessionpilot/pkg/models"
)

// ErrOnboardPending is returned by ConfirmOnboard while the login page
// is still showing; the browser stays open so the user can finish.
var ErrOnboardPending = errors.New("engine: login not completed yet")

// ErrOnboardExpired is returned when the onboarding handle was swept
// before the login completed. The parked browser is closed and the user
// must start over.
var ErrOnboardExpired = errors.New("engine: onboarding expired, start again")

// pendingOnboard is a headed browser parked at a platform's login page,
// waiting for the user to authenticate. It holds the user's registry
// handle so no automation run can race the onboarding.
type pendingOnboard struct {
	userID    string
	plat      platform.Platform
	handle    *registry.Handle
	inst      browser.Instance
	bctx      browser.Context
	page      browser.Page
	startedAt time.Time
}

func (p *pendingOnboard) teardown() {
	if p.page != nil {
		p.page.Close()
	}
	if p.bctx != nil {
		p.bctx.Close()
	}
	if p.inst != nil {
		p.inst.Close()
	}
}

// StartOnboard opens a visible browser at the platform's login page and
// parks it until ConfirmOnboard or CancelOnboard. One onboard at a time
// per user, exclusive with automation runs.
func (e *Engine) StartOnboard(ctx context.Context, req models.StartOnboardRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("engine: userId is required")
	}
	plat, err := platform.Lookup(req.Platform)
	if err != nil {
		return err
	}
	loginURL := req.LoginURL
	if loginURL == "" {
		loginURL = plat.LoginURL
	}

	handle, err := e.registry.TryAcquire(req.UserID)
	if err != nil {
		return err
	}

	// Onboarding always runs headed: the whole point is a human
	// completing the login.
	inst, err := e.driver.Launch(ctx, browser.LaunchOptions{Headless: false})
	if err != nil {
		e.registry.Release(handle)
		return err
	}
	bctx, err := inst.NewContext(nil)
	if err != nil {
		inst.Close()
		e.registry.Release(handle)
		return err
	}
	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		inst.Close()
		e.registry.Release(handle)
		return err
	}
	if err := page.Goto(loginURL, e.cfg.NavTimeout); err != nil {
		page.Close()
		bctx.Close()
		inst.Close()
		e.registry.Release(handle)
		return err
	}

	p := &pendingOnboard{
		userID:    req.UserID,
		plat:      plat,
		handle:    handle,
		inst:      inst,
		bctx:      bctx,
		page:      page,
		startedAt: time.Now(),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		p.teardown()
		e.registry.Release(handle)
		return fmt.Errorf("engine: shutting down")
	}
	e.onboards[req.UserID] = p
	e.mu.Unlock()

	log.Printf("[engine] onboarding %s on %s: browser opened at %s, awaiting login", req.UserID, plat.Name, loginURL)
	return nil
}

// claimOnboard pops the user's pending onboard so no concurrent confirm
// or cancel can touch the same browser.
func (e *Engine) claimOnboard(userID string) (*pendingOnboard, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.onboards[userID]
	if ok {
		delete(e.onboards, userID)
	}
	return p, ok
}

// reparkOnboard puts a claimed onboard back for another attempt, unless
// the engine shut down in the meantime.
func (e *Engine) reparkOnboard(p *pendingOnboard) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		p.teardown()
		e.registry.Release(p.handle)
		return
	}
	e.onboards[p.userID] = p
	e.mu.Unlock()
}

// ConfirmOnboard checks that the parked browser left the login page,
// exports its session state and persists the artifact. On success the
// browser is closed and the handle released; on ErrOnboardPending
// everything stays open for another attempt. If the registry swept the
// handle during a slow login the onboard is dead: exclusivity is lost,
// so nothing is persisted and the browser is closed.
func (e *Engine) ConfirmOnboard(ctx context.Context, userID string) (models.SessionInfo, error) {
	p, ok := e.claimOnboard(userID)
	if !ok {
		return models.SessionInfo{}, fmt.Errorf("engine: no onboarding in progress for %s", userID)
	}

	if !e.registry.Holds(p.handle) {
		p.teardown()
		log.Printf("[engine] onboarding %s on %s: handle swept before login completed", userID, p.plat.Name)
		return models.SessionInfo{}, ErrOnboardExpired
	}

	if marker := p.plat.LoginPathMarker; marker != "" && strings.Contains(p.page.URL(), marker) {
		e.reparkOnboard(p)
		return models.SessionInfo{}, ErrOnboardPending
	}

	state, err := p.bctx.ExportStorageState()
	if err != nil {
		e.reparkOnboard(p)
		return models.SessionInfo{}, fmt.Errorf("engine: export session state: %w", err)
	}

	// Only the handle holder may write the artifact; a sweep during the
	// export means a rival run may be in flight.
	if !e.registry.Holds(p.handle) {
		p.teardown()
		return models.SessionInfo{}, ErrOnboardExpired
	}

	now := time.Now()
	artifact := &models.SessionArtifact{
		UserID:          userID,
		Platform:        p.plat.Name,
		StorageState:    state,
		CreatedAt:       now,
		LastValidatedAt: now,
		LastUsedAt:      now,
	}
	if err := e.store.Save(userID, artifact); err != nil {
		e.reparkOnboard(p)
		return models.SessionInfo{}, err
	}

	p.teardown()
	e.registry.Release(p.handle)

	log.Printf("[engine] onboarding %s on %s: session saved", userID, p.plat.Name)
	return artifact.Info(), nil
}

// CancelOnboard abandons a pending onboard, closing its browser without
// persisting anything.
func (e *Engine) CancelOnboard(userID string) error {
	p, ok := e.claimOnboard(userID)
	if !ok {
		return fmt.Errorf("engine: no onboarding in progress for %s", userID)
	}

	p.teardown()
	e.registry.Release(p.handle)
	log.Printf("[engine] onboarding %s cancelled", userID)
	return nil
}

// SweepOnboards closes parked onboarding browsers whose registry handle
// has been force-released. Without the handle the onboard can never be
// confirmed, so the browser would otherwise stay open forever.
func (e *Engine) SweepOnboards() int {
	e.mu.Lock()
	var dead []*pendingOnboard
	for userID, p := range e.onboards {
		if !e.registry.Holds(p.handle) {
			dead = append(dead, p)
			delete(e.onboards, userID)
		}
	}
	e.mu.Unlock()

	for _, p := range dead {
		log.Printf("[engine] closing abandoned onboarding browser for %s (parked since %s)", p.userID, p.startedAt.Format(time.RFC3339))
		p.teardown()
	}
	return len(dead)
}

// Run sweeps abandoned onboards at the given interval until ctx is
// cancelled. Pairs with the registry sweeper, which expires the handles.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.SweepOnboards()
		}
	}
}
