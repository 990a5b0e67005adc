package sync

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedChange struct {
	path    string
	action  ChangeAction
	payload []byte
}

type changeRecorder struct {
	mu      gosync.Mutex
	changes []capturedChange
}

func (r *changeRecorder) record(path string, action ChangeAction, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, capturedChange{path: path, action: action, payload: payload})
}

func (r *changeRecorder) last() (capturedChange, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.changes) == 0 {
		return capturedChange{}, false
	}
	return r.changes[len(r.changes)-1], true
}

func newTestWatcher(t *testing.T) (string, *changeRecorder) {
	t.Helper()
	root := t.TempDir()
	rec := &changeRecorder{}

	relPath := func(abs string) (string, error) {
		return filepath.Rel(root, abs)
	}
	filter := func(path string) bool {
		return strings.Contains(path, ".data")
	}

	w := NewWatcher(root, relPath, filter, rec.record)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return root, rec
}

func waitForChange(t *testing.T, rec *changeRecorder, path string, action ChangeAction) capturedChange {
	t.Helper()
	var got capturedChange
	require.Eventually(t, func() bool {
		c, ok := rec.last()
		if !ok {
			return false
		}
		got = c
		return c.path == path && c.action == action
	}, 3*time.Second, 20*time.Millisecond, "expected %s %s", action, path)
	return got
}

func TestWatcherCreate(t *testing.T) {
	root, rec := newTestWatcher(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "new.md"), []byte("hello\n"), 0o644))

	got := waitForChange(t, rec, "new.md", ChangeCreate)
	assert.Equal(t, "hello\n", string(got.payload))
}

func TestWatcherUpdateAndDelete(t *testing.T) {
	root, rec := newTestWatcher(t)

	path := filepath.Join(root, "f.md")
	require.NoError(t, os.WriteFile(path, []byte("v1\n"), 0o644))
	waitForChange(t, rec, "f.md", ChangeCreate)

	require.NoError(t, os.WriteFile(path, []byte("v2\n"), 0o644))
	got := waitForChange(t, rec, "f.md", ChangeUpdate)
	assert.Equal(t, "v2\n", string(got.payload))

	require.NoError(t, os.Remove(path))
	waitForChange(t, rec, "f.md", ChangeDelete)
}

func TestWatcherFiltersIgnoredPaths(t *testing.T) {
	root, rec := newTestWatcher(t)

	require.NoError(t, os.MkdirAll(filepath.Join(root, ".data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".data", "state.db"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "seen.md"), []byte("y\n"), 0o644))

	got := waitForChange(t, rec, "seen.md", ChangeCreate)
	assert.Equal(t, "seen.md", got.path)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, c := range rec.changes {
		assert.NotContains(t, c.path, ".data")
	}
}
