package sync

import (
	"context"
	"log/slog"
	"os"
	gosync "sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	watchEventBufferSize = 64
	watchDebounce        = 100 * time.Millisecond
)

// FilterFunc reports whether a path should be ignored by the watcher.
type FilterFunc func(path string) bool

// EnqueueFunc receives classified local mutations. relPath is relative to
// the watched root.
type EnqueueFunc func(relPath string, action ChangeAction, payload []byte)

// Watcher turns filesystem events under the workspace root into pending
// changes. Rapid successive writes to the same path are debounced into one
// event.
type Watcher struct {
	root    string
	relPath func(abs string) (string, error)
	filter  FilterFunc
	enqueue EnqueueFunc

	rawEvents chan notify.EventInfo
	done      chan struct{}
	wg        gosync.WaitGroup

	debounceMu gosync.Mutex
	pending    map[string]notify.Event
	timers     map[string]*time.Timer
}

func NewWatcher(root string, relPath func(abs string) (string, error), filter FilterFunc, enqueue EnqueueFunc) *Watcher {
	return &Watcher{
		root:    root,
		relPath: relPath,
		filter:  filter,
		enqueue: enqueue,
		done:    make(chan struct{}),
		pending: make(map[string]notify.Event),
		timers:  make(map[string]*time.Timer),
	}
}

func (w *Watcher) Start(ctx context.Context) error {
	slog.Info("watcher start", "dir", w.root)

	w.rawEvents = make(chan notify.EventInfo, watchEventBufferSize)
	if err := notify.Watch(w.root+"/...", w.rawEvents, notify.Create|notify.Write|notify.Remove|notify.Rename); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

func (w *Watcher) Stop() {
	close(w.done)
	if w.rawEvents != nil {
		notify.Stop(w.rawEvents)
	}
	w.wg.Wait()
	slog.Info("watcher stopped")
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ei, ok := <-w.rawEvents:
			if !ok {
				return
			}
			w.observe(ei)
		}
	}
}

// observe folds an event into the per-path debounce window. Remove wins over
// any buffered write for the same path.
func (w *Watcher) observe(ei notify.EventInfo) {
	path := ei.Path()
	if w.filter != nil && w.filter(path) {
		return
	}

	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	prev := w.pending[path]
	w.pending[path] = prev | ei.Event()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(watchDebounce, func() {
		w.flush(path)
	})
}

func (w *Watcher) flush(path string) {
	w.debounceMu.Lock()
	event := w.pending[path]
	delete(w.pending, path)
	delete(w.timers, path)
	w.debounceMu.Unlock()

	rel, err := w.relPath(path)
	if err != nil {
		slog.Warn("watcher skipping path outside root", "path", path)
		return
	}

	info, statErr := os.Stat(path)
	switch {
	case statErr != nil:
		// gone by the time the window closed
		if event&(notify.Remove|notify.Rename|notify.Create|notify.Write) != 0 {
			w.enqueue(rel, ChangeDelete, nil)
		}
	case info.IsDir():
		return
	default:
		payload, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("watcher failed to read changed file", "path", path, "error", err)
			return
		}
		action := ChangeUpdate
		if event&notify.Create != 0 {
			action = ChangeCreate
		}
		w.enqueue(rel, action, payload)
	}
}
