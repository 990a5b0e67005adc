package sync

import (
	gosync "sync"
	"time"
)

const stateEventBufferSize = 16

// Status is the coordinator's top-level condition.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusSyncing  Status = "syncing"
	StatusOffline  Status = "offline"
	StatusError    Status = "error"
	StatusConflict Status = "conflict"
)

// State is a point-in-time snapshot of the sync machinery, safe to hand to
// observers.
type State struct {
	Status          Status
	PendingCount    int
	LastSyncedAt    time.Time
	ActiveConflicts []string
	LastError       error
}

func (s State) clone() State {
	cp := s
	if s.ActiveConflicts != nil {
		cp.ActiveConflicts = make([]string, len(s.ActiveConflicts))
		copy(cp.ActiveConflicts, s.ActiveConflicts)
	}
	return cp
}

// StateTracker holds the current State and broadcasts snapshots to
// subscribers. Slow subscribers drop events rather than block the
// coordinator.
type StateTracker struct {
	mu    gosync.RWMutex
	state State

	subMu gosync.Mutex
	subs  []chan State
}

func NewStateTracker() *StateTracker {
	return &StateTracker{
		state: State{Status: StatusIdle},
	}
}

// Get returns a snapshot of the current state.
func (t *StateTracker) Get() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.clone()
}

// Update applies fn to the state under lock and broadcasts the result.
func (t *StateTracker) Update(fn func(s *State)) {
	t.mu.Lock()
	fn(&t.state)
	snapshot := t.state.clone()
	t.mu.Unlock()

	t.broadcast(snapshot)
}

// Subscribe returns a channel receiving state snapshots after each change.
func (t *StateTracker) Subscribe() <-chan State {
	t.subMu.Lock()
	defer t.subMu.Unlock()

	ch := make(chan State, stateEventBufferSize)
	t.subs = append(t.subs, ch)
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (t *StateTracker) Unsubscribe(ch <-chan State) {
	t.subMu.Lock()
	defer t.subMu.Unlock()

	for i, sub := range t.subs {
		if sub == ch {
			close(sub)
			t.subs = append(t.subs[:i], t.subs[i+1:]...)
			break
		}
	}
}

// Close tears down every subscription.
func (t *StateTracker) Close() {
	t.subMu.Lock()
	defer t.subMu.Unlock()

	for _, sub := range t.subs {
		close(sub)
	}
	t.subs = nil
}

func (t *StateTracker) broadcast(snapshot State) {
	t.subMu.Lock()
	defer t.subMu.Unlock()

	for _, sub := range t.subs {
		select {
		case sub <- snapshot:
		default:
			// subscriber is not keeping up, skip
		}
	}
}
