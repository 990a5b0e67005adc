package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *SyncJournal {
	t.Helper()
	j, err := NewSyncJournal(newTestDB(t))
	require.NoError(t, err)
	return j
}

func TestJournalRoundTrip(t *testing.T) {
	j := newTestJournal(t)

	got, err := j.Get("notes.md")
	require.NoError(t, err)
	assert.Nil(t, got, "unsynced path has no entry")

	syncedAt := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, j.Set(&JournalEntry{
		Path:     "notes.md",
		Revision: "rev-7",
		Base:     []byte("a\nb\n"),
		SyncedAt: syncedAt,
	}))

	got, err = j.Get("notes.md")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "rev-7", got.Revision)
	assert.Equal(t, "a\nb\n", string(got.Base))
	assert.True(t, got.SyncedAt.Equal(syncedAt))
}

func TestJournalSetReplaces(t *testing.T) {
	j := newTestJournal(t)

	require.NoError(t, j.Set(&JournalEntry{Path: "f", Revision: "rev-1", Base: []byte("old"), SyncedAt: time.Now()}))
	require.NoError(t, j.Set(&JournalEntry{Path: "f", Revision: "rev-2", Base: []byte("new"), SyncedAt: time.Now()}))

	got, err := j.Get("f")
	require.NoError(t, err)
	assert.Equal(t, "rev-2", got.Revision)
	assert.Equal(t, "new", string(got.Base))
}

func TestJournalDelete(t *testing.T) {
	j := newTestJournal(t)

	require.NoError(t, j.Set(&JournalEntry{Path: "f", Revision: "rev-1", Base: []byte("x"), SyncedAt: time.Now()}))
	require.NoError(t, j.Delete("f"))

	got, err := j.Get("f")
	require.NoError(t, err)
	assert.Nil(t, got)

	// deleting again is a no-op
	require.NoError(t, j.Delete("f"))
}

func TestJournalPaths(t *testing.T) {
	j := newTestJournal(t)

	paths, err := j.Paths()
	require.NoError(t, err)
	assert.Empty(t, paths)

	for _, p := range []string{"b.md", "a.md"} {
		require.NoError(t, j.Set(&JournalEntry{Path: p, Revision: "rev-1", Base: []byte{}, SyncedAt: time.Now()}))
	}

	paths, err = j.Paths()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.md"}, paths)
}
