package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateTrackerInitial(t *testing.T) {
	tr := NewStateTracker()
	s := tr.Get()
	assert.Equal(t, StatusIdle, s.Status)
	assert.Zero(t, s.PendingCount)
	assert.Empty(t, s.ActiveConflicts)
}

func TestStateTrackerSubscribe(t *testing.T) {
	tr := NewStateTracker()
	ch := tr.Subscribe()

	tr.Update(func(s *State) {
		s.Status = StatusSyncing
		s.PendingCount = 2
	})

	select {
	case s := <-ch:
		assert.Equal(t, StatusSyncing, s.Status)
		assert.Equal(t, 2, s.PendingCount)
	case <-time.After(time.Second):
		t.Fatal("no state event received")
	}
}

func TestStateTrackerUnsubscribeCloses(t *testing.T) {
	tr := NewStateTracker()
	ch := tr.Subscribe()
	tr.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)

	// updates after unsubscribe do not panic
	tr.Update(func(s *State) { s.Status = StatusError })
}

func TestStateTrackerSlowSubscriberDropsEvents(t *testing.T) {
	tr := NewStateTracker()
	ch := tr.Subscribe()

	// overflow the buffer; Update must never block
	done := make(chan struct{})
	go func() {
		for i := 0; i < stateEventBufferSize*3; i++ {
			tr.Update(func(s *State) { s.PendingCount = i })
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("update blocked on a slow subscriber")
	}

	require.NotEmpty(t, ch)
}

func TestStateTrackerSnapshotIsolation(t *testing.T) {
	tr := NewStateTracker()
	tr.Update(func(s *State) { s.ActiveConflicts = []string{"a.md"} })

	snap := tr.Get()
	snap.ActiveConflicts[0] = "mutated"

	assert.Equal(t, []string{"a.md"}, tr.Get().ActiveConflicts)
}
