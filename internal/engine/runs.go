package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shehryarbajwa/sessionpilot/internal/action"
	"github.com/shehryarbajwa/sessionpilot/pkg/models"
)

// eventBuffer bounds each subscriber's channel; slow watchers drop
// events rather than stalling the run.
const eventBuffer = 16

// runRetention bounds how long a finished run stays queryable before it
// is evicted from the tracker.
const runRetention = time.Hour

type runState struct {
	mu   sync.Mutex
	run  models.Run
	subs []chan models.RunEvent
	done bool
}

func (rs *runState) snapshot() models.Run {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.run
}

func (rs *runState) transition(state models.RunState, reason models.FailureReason) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.run.State = state
	ev := models.RunEvent{
		RunID:  rs.run.ID,
		State:  state,
		Reason: reason,
		At:     time.Now(),
	}
	for _, sub := range rs.subs {
		select {
		case sub <- ev:
		default:
		}
	}
}

func (rs *runState) finish(result models.RunResult) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	now := time.Now()
	rs.run.FinishedAt = &now
	rs.run.Result = &result
	rs.done = true
	for _, sub := range rs.subs {
		close(sub)
	}
	rs.subs = nil
}

func (rs *runState) finishedBefore(cutoff time.Time) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.done && rs.run.FinishedAt != nil && rs.run.FinishedAt.Before(cutoff)
}

func (rs *runState) subscribe() (<-chan models.RunEvent, func()) {
	ch := make(chan models.RunEvent, eventBuffer)

	rs.mu.Lock()
	if rs.done {
		// Terminal runs get a closed channel after a replay of the
		// final state.
		ch <- models.RunEvent{RunID: rs.run.ID, State: rs.run.State, At: time.Now()}
		close(ch)
		rs.mu.Unlock()
		return ch, func() {}
	}
	rs.subs = append(rs.subs, ch)
	rs.mu.Unlock()

	cancel := func() {
		rs.mu.Lock()
		defer rs.mu.Unlock()
		for i, sub := range rs.subs {
			if sub == ch {
				rs.subs = append(rs.subs[:i], rs.subs[i+1:]...)
				return
			}
		}
	}
	return ch, cancel
}

// StartRun begins an automation run in the background and returns its
// trackable record. The run itself never fails with an error; invalid
// requests do.
func (e *Engine) StartRun(req models.StartRunRequest) (models.Run, error) {
	if req.UserID == "" {
		return models.Run{}, fmt.Errorf("engine: userId is required")
	}
	act, err := action.New(req.Action, req.Params)
	if err != nil {
		return models.Run{}, err
	}

	rs := &runState{
		run: models.Run{
			ID:        uuid.New().String(),
			UserID:    req.UserID,
			Action:    req.Action,
			State:     models.RunStateIdle,
			StartedAt: time.Now(),
		},
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return models.Run{}, fmt.Errorf("engine: shutting down")
	}
	// Evict runs that finished long ago so the tracker cannot grow
	// without bound.
	cutoff := time.Now().Add(-runRetention)
	for id, old := range e.runs {
		if old.finishedBefore(cutoff) {
			delete(e.runs, id)
		}
	}
	e.runs[rs.run.ID] = rs
	e.runWG.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.runWG.Done()
		result := e.automate(e.runCtx, req.UserID, act, rs.transition)
		rs.finish(result)
	}()

	return rs.snapshot(), nil
}

// GetRun returns the current record of a tracked run.
func (e *Engine) GetRun(id string) (models.Run, error) {
	e.mu.Lock()
	rs, ok := e.runs[id]
	e.mu.Unlock()
	if !ok {
		return models.Run{}, fmt.Errorf("engine: run %s not found", id)
	}
	return rs.snapshot(), nil
}

// WatchRun subscribes to a run's state transitions. The channel closes
// when the run terminates; the cancel function detaches early.
func (e *Engine) WatchRun(id string) (<-chan models.RunEvent, func(), error) {
	e.mu.Lock()
	rs, ok := e.runs[id]
	e.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("engine: run %s not found", id)
	}
	ch, cancel := rs.subscribe()
	return ch, cancel, nil
}
