package sync

import (
	"time"

	"github.com/google/uuid"
)

// ChangeAction is the kind of local mutation recorded for a path.
type ChangeAction string

const (
	ChangeCreate ChangeAction = "create"
	ChangeUpdate ChangeAction = "update"
	ChangeDelete ChangeAction = "delete"
)

// PendingChange is one uncommitted local mutation. At most one live entry
// exists per path; repeated edits to the same path coalesce into it.
type PendingChange struct {
	ID        string       `db:"id" json:"id"`
	Path      string       `db:"path" json:"path"`
	Action    ChangeAction `db:"action" json:"action"`
	Payload   []byte       `db:"payload" json:"payload,omitempty"`
	Timestamp time.Time    `db:"-" json:"timestamp"`

	// Seq preserves insertion order across coalescing and restarts.
	Seq int64 `db:"seq" json:"seq"`
}

func newPendingChange(path string, action ChangeAction, payload []byte, seq int64) *PendingChange {
	return &PendingChange{
		ID:        uuid.NewString(),
		Path:      path,
		Action:    action,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Seq:       seq,
	}
}

// clone returns a deep copy so drained snapshots cannot alias queue state.
func (c *PendingChange) clone() *PendingChange {
	cp := *c
	if c.Payload != nil {
		cp.Payload = make([]byte, len(c.Payload))
		copy(cp.Payload, c.Payload)
	}
	return &cp
}
