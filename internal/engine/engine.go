// Package engine orchestrates automation runs: acquire the user's
// session handle, load and validate the persisted artifact, execute one
// platform action in a working browser context, persist the rotated
// session state, and release everything regardless of outcome.
package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/shehryarbajwa/sessionpilot/internal/action"
	"github.com/shehryarbajwa/sessionpilot/internal/browser"
	"github.com/shehryarbajwa/sessionpilot/internal/config"
	"github.com/shehryarbajwa/sessionpilot/internal/platform"
	"github.com/shehryarbajwa/sessionpilot/internal/registry"
	"github.com/shehryarbajwa/sessionpilot/internal/store"
	"github.com/shehryarbajwa/sessionpilot/internal/validator"
	"github.com/shehryarbajwa/sessionpilot/pkg/models"
)

// Engine is the automation core. All errors are recovered at this
// boundary into typed results; no error escapes an automation run.
type Engine struct {
	cfg       config.Config
	store     *store.Store
	registry  *registry.Registry
	validator *validator.Validator
	driver    browser.Driver

	runCtx    context.Context
	runCancel context.CancelFunc
	runWG     sync.WaitGroup

	mu       sync.Mutex
	runs     map[string]*runState
	onboards map[string]*pendingOnboard
	closed   bool
}

// New wires an engine from its collaborators.
func New(cfg config.Config, st *store.Store, reg *registry.Registry, val *validator.Validator, drv browser.Driver) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:       cfg,
		store:     st,
		registry:  reg,
		validator: val,
		driver:    drv,
		runCtx:    ctx,
		runCancel: cancel,
		runs:      make(map[string]*runState),
		onboards:  make(map[string]*pendingOnboard),
	}
}

// emitFunc observes state transitions of one run.
type emitFunc func(state models.RunState, reason models.FailureReason)

func noEmit(models.RunState, models.FailureReason) {}

// Automate performs one automation run for the user and blocks until it
// terminates. The returned result is always typed; see StartRun for the
// asynchronous, trackable variant.
func (e *Engine) Automate(ctx context.Context, userID string, act action.Action) models.RunResult {
	return e.automate(ctx, userID, act, noEmit)
}

func (e *Engine) automate(ctx context.Context, userID string, act action.Action, emit emitFunc) models.RunResult {
	fail := func(reason models.FailureReason, cause string) models.RunResult {
		emit(models.RunStateFailed, reason)
		if cause != "" {
			log.Printf("[engine] run for %s failed: %s (%s)", userID, reason, cause)
		} else {
			log.Printf("[engine] run for %s failed: %s", userID, reason)
		}
		return models.RunResult{Success: false, Reason: reason, Cause: cause}
	}

	emit(models.RunStateAcquiring, "")
	handle, err := e.registry.TryAcquire(userID)
	if err != nil {
		if errors.Is(err, registry.ErrBusy) {
			return fail(models.ReasonSessionBusy, "")
		}
		return fail(models.ReasonActionFailed, err.Error())
	}
	// Release is idempotent; the defer guarantees the handle is never
	// left outstanding, whichever path exits first.
	defer e.registry.Release(handle)

	emit(models.RunStateLoading, "")
	artifact, err := e.store.Load(userID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return fail(models.ReasonSessionNotFound, "")
		case errors.Is(err, store.ErrCorrupt):
			return fail(models.ReasonSessionCorrupt, "")
		default:
			return fail(models.ReasonStorageUnavailable, err.Error())
		}
	}

	// Artifacts unused past the age cutoff are expired outright; no
	// point spending a browser probe on them.
	if e.cfg.SessionMaxAge > 0 {
		ref := artifact.LastUsedAt
		if ref.IsZero() {
			ref = artifact.CreatedAt
		}
		if !ref.IsZero() && time.Since(ref) > e.cfg.SessionMaxAge {
			return fail(models.ReasonSessionExpired, "")
		}
	}

	emit(models.RunStateValidating, "")
	verdict := e.validator.Validate(ctx, artifact)
	if !verdict.Valid {
		// The artifact is left untouched: the operator re-onboards
		// without losing audit history.
		return fail(verdict.Reason, "")
	}

	emit(models.RunStateExecuting, "")
	plat, err := platform.Lookup(artifact.Platform)
	if err != nil {
		return fail(models.ReasonActionFailed, err.Error())
	}

	inst, err := e.driver.Launch(ctx, browser.LaunchOptions{Headless: e.cfg.Headless})
	if err != nil {
		return fail(models.ReasonActionFailed, err.Error())
	}
	defer inst.Close()

	bctx, err := inst.NewContext(artifact.StorageState)
	if err != nil {
		return fail(models.ReasonActionFailed, err.Error())
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return fail(models.ReasonActionFailed, err.Error())
	}
	defer page.Close()

	receipt, err := act.Perform(ctx, page, plat, action.Options{
		NavTimeout:  e.cfg.NavTimeout,
		StepTimeout: e.cfg.ActionTimeout,
	})
	if err != nil {
		return fail(models.ReasonActionFailed, err.Error())
	}

	emit(models.RunStatePersisting, "")
	state, err := bctx.ExportStorageState()
	if err != nil {
		return fail(models.ReasonActionFailed, err.Error())
	}

	// Platforms commonly rotate session tokens on use; persist the
	// updated state so the next run starts from it.
	now := time.Now()
	artifact.StorageState = state
	artifact.LastValidatedAt = now
	artifact.LastUsedAt = now
	if err := e.store.Save(userID, artifact); err != nil {
		return fail(models.ReasonStorageUnavailable, err.Error())
	}

	e.registry.Release(handle)
	emit(models.RunStateReleased, "")
	log.Printf("[engine] run for %s completed: %s", userID, act.Name())
	return models.RunResult{Success: true, Receipt: receipt}
}

// ListSessions enumerates persisted sessions. Corrupt artifacts are
// skipped and logged; they remain on disk for re-onboarding.
func (e *Engine) ListSessions() ([]models.SessionInfo, error) {
	users, err := e.store.List()
	if err != nil {
		return nil, err
	}

	infos := make([]models.SessionInfo, 0, len(users))
	for _, userID := range users {
		artifact, err := e.store.Load(userID)
		if err != nil {
			log.Printf("[engine] skipping unreadable session for %s: %v", userID, err)
			continue
		}
		infos = append(infos, artifact.Info())
	}
	return infos, nil
}

// HasSession reports whether a persisted session exists for the user.
func (e *Engine) HasSession(userID string) (bool, error) {
	return e.store.Exists(userID)
}

// SessionInfo returns the listable view of one persisted session.
func (e *Engine) SessionInfo(userID string) (models.SessionInfo, error) {
	artifact, err := e.store.Load(userID)
	if err != nil {
		return models.SessionInfo{}, err
	}
	return artifact.Info(), nil
}

// DeleteSession removes the user's persisted artifact. Idempotent.
func (e *Engine) DeleteSession(userID string) error {
	return e.store.Delete(userID)
}

// ActiveHandles returns the live registry handles.
func (e *Engine) ActiveHandles() []registry.Handle {
	return e.registry.Active()
}

// CloseAll shuts the automation core down: cancels in-flight runs and
// waits for their teardown, abandons pending onboards, force-releases
// every handle and stops the browser runtime. Used at process shutdown.
func (e *Engine) CloseAll() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	pending := make([]*pendingOnboard, 0, len(e.onboards))
	for _, p := range e.onboards {
		pending = append(pending, p)
	}
	e.onboards = make(map[string]*pendingOnboard)
	e.mu.Unlock()

	e.runCancel()
	e.runWG.Wait()

	for _, p := range pending {
		p.teardown()
		e.registry.Release(p.handle)
	}

	e.registry.ReleaseAll()
	return e.driver.Close()
}
