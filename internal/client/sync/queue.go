package sync

import (
	"fmt"
	"sort"
	gosync "sync"
	"time"

	"github.com/google/uuid"
)

// PendingQueue holds the uncommitted local changes for one workspace. Every
// mutation is written through to the Store before it is visible; a persist
// failure rolls the in-memory view back, so the two never diverge.
type PendingQueue struct {
	mu      gosync.Mutex
	entries map[string]*PendingChange // keyed by path
	nextSeq int64
	store   Store
}

// NewPendingQueue loads any previously persisted entries from the store.
func NewPendingQueue(store Store) (*PendingQueue, error) {
	changes, err := store.LoadQueue()
	if err != nil {
		return nil, fmt.Errorf("failed to restore pending queue: %w", err)
	}

	q := &PendingQueue{
		entries: make(map[string]*PendingChange, len(changes)),
		store:   store,
	}
	for _, c := range changes {
		q.entries[c.Path] = c
		if c.Seq >= q.nextSeq {
			q.nextSeq = c.Seq + 1
		}
	}
	return q, nil
}

// Enqueue records a local mutation, coalescing it with any live entry for
// the same path:
//
//	create + update -> create (payload replaced)
//	create + delete -> entry removed (net no-op)
//	update + delete -> delete
//	delete + create -> update (the path existed before the delete)
//	same action twice -> payload replaced
func (q *PendingQueue) Enqueue(path string, action ChangeAction, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	prev, hadPrev := q.entries[path]
	prevSeq := q.nextSeq

	if !hadPrev {
		q.entries[path] = newPendingChange(path, action, payload, q.nextSeq)
		q.nextSeq++
	} else {
		coalesced := coalesce(prev.Action, action)
		if coalesced == "" {
			delete(q.entries, path)
		} else {
			// A fresh id marks the entry as superseding any drained snapshot
			// of it, so a clear by snapshot ids leaves this mutation in place.
			next := prev.clone()
			next.ID = uuid.NewString()
			next.Timestamp = time.Now().UTC()
			next.Action = coalesced
			next.Payload = payload
			if coalesced == ChangeDelete {
				next.Payload = nil
			}
			q.entries[path] = next
		}
	}

	if err := q.persistLocked(); err != nil {
		// roll back so the durable and in-memory views stay aligned
		if hadPrev {
			q.entries[path] = prev
		} else {
			delete(q.entries, path)
		}
		q.nextSeq = prevSeq
		return fmt.Errorf("failed to persist change for %s: %w", path, err)
	}
	return nil
}

// coalesce returns the action a live entry takes after a new action lands on
// the same path. Empty string means the entry cancels out entirely.
func coalesce(prev, next ChangeAction) ChangeAction {
	switch {
	case prev == ChangeCreate && next == ChangeDelete:
		return ""
	case prev == ChangeCreate:
		return ChangeCreate
	case prev == ChangeDelete && next != ChangeDelete:
		// the path existed before the delete, so recreating it is an update
		return ChangeUpdate
	case prev == ChangeUpdate && next == ChangeCreate:
		return ChangeUpdate
	default:
		return next
	}
}

// Drain returns an insertion-ordered snapshot without clearing the queue.
// Entries are cleared only after the caller confirms a successful commit.
func (q *PendingQueue) Drain() []*PendingChange {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshot := make([]*PendingChange, 0, len(q.entries))
	for _, c := range q.entries {
		snapshot = append(snapshot, c.clone())
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Seq < snapshot[j].Seq })
	return snapshot
}

// Clear removes exactly the given entries by id. A path whose entry was
// coalesced after the snapshot was drained keeps its newer entry.
func (q *PendingQueue) Clear(ids []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	byID := make(map[string]bool, len(ids))
	for _, id := range ids {
		byID[id] = true
	}

	removed := make([]*PendingChange, 0, len(ids))
	for path, c := range q.entries {
		if byID[c.ID] {
			removed = append(removed, c)
			delete(q.entries, path)
		}
	}
	if len(removed) == 0 {
		return nil
	}

	if err := q.persistLocked(); err != nil {
		for _, c := range removed {
			q.entries[c.Path] = c
		}
		return fmt.Errorf("failed to persist queue clear: %w", err)
	}
	return nil
}

// Remove drops the live entry for a path, committed or not.
func (q *PendingQueue) Remove(path string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	prev, ok := q.entries[path]
	if !ok {
		return nil
	}
	delete(q.entries, path)

	if err := q.persistLocked(); err != nil {
		q.entries[path] = prev
		return fmt.Errorf("failed to persist queue removal: %w", err)
	}
	return nil
}

// Get returns a copy of the live entry for a path, if any.
func (q *PendingQueue) Get(path string) (*PendingChange, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	c, ok := q.entries[path]
	if !ok {
		return nil, false
	}
	return c.clone(), true
}

func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *PendingQueue) persistLocked() error {
	snapshot := make([]*PendingChange, 0, len(q.entries))
	for _, c := range q.entries {
		snapshot = append(snapshot, c)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Seq < snapshot[j].Seq })
	return q.store.SaveQueue(snapshot)
}
