package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/driftbox/driftbox/internal/diffmerge"
	"github.com/driftbox/driftbox/internal/remote"
)

// Coordinator drives the sync state machine for one workspace. All passes
// and conflict commits are serialized on muSync; a concurrent Sync call is
// rejected, never queued.
type Coordinator struct {
	gateway  remote.Gateway
	queue    *PendingQueue
	journal  *SyncJournal
	resolver *diffmerge.Resolver
	tracker  *StateTracker

	muSync gosync.Mutex

	mu            gosync.Mutex
	conflictPaths mapset.Set[string]
	conflictFiles map[string]diffmerge.ConflictFile
	conflictIDs   map[string]string // conflict path -> pending change id
}

func NewCoordinator(gateway remote.Gateway, queue *PendingQueue, journal *SyncJournal, tracker *StateTracker) *Coordinator {
	c := &Coordinator{
		gateway:       gateway,
		queue:         queue,
		journal:       journal,
		resolver:      diffmerge.NewResolver(),
		tracker:       tracker,
		conflictPaths: mapset.NewSet[string](),
		conflictFiles: make(map[string]diffmerge.ConflictFile),
		conflictIDs:   make(map[string]string),
	}
	tracker.Update(func(s *State) { s.PendingCount = queue.Len() })
	return c
}

// EnqueueChange records a local mutation. Changes enqueued while a sync pass
// is in flight are deferred to the next pass, never lost.
func (c *Coordinator) EnqueueChange(path string, action ChangeAction, payload []byte) error {
	if err := c.queue.Enqueue(path, action, payload); err != nil {
		return err
	}
	c.tracker.Update(func(s *State) { s.PendingCount = c.queue.Len() })
	return nil
}

// Sync runs one full pass: connectivity check, fetch, compare, merge, push.
// It returns ErrSyncAlreadyRunning if a pass is in flight and
// ErrConflictsPending while unresolved conflicts remain.
func (c *Coordinator) Sync(ctx context.Context) error {
	if !c.muSync.TryLock() {
		return ErrSyncAlreadyRunning
	}
	defer c.muSync.Unlock()

	if c.conflictCount() > 0 {
		return ErrConflictsPending
	}

	if !c.gateway.CheckConnectivity(ctx) {
		slog.Debug("sync skipped, remote unreachable")
		c.tracker.Update(func(s *State) {
			s.Status = StatusOffline
			s.PendingCount = c.queue.Len()
		})
		return nil
	}

	return c.runPass(ctx)
}

// outcome of comparing one drained change against the remote
type pushPlan struct {
	change  *PendingChange
	file    remote.CommitFile
	content []byte // journaled base after commit; nil for deletes
}

// skipPlan settles a change without a remote write: either both sides
// already deleted the path, or both converged on identical content.
type skipPlan struct {
	entry  *JournalEntry // record the observed remote state
	remove bool          // drop the journal entry instead
}

func (c *Coordinator) runPass(ctx context.Context) error {
	c.tracker.Update(func(s *State) {
		s.Status = StatusSyncing
		s.LastError = nil
	})

	snapshot := c.queue.Drain()
	if len(snapshot) == 0 {
		c.tracker.Update(func(s *State) {
			s.Status = StatusIdle
			s.PendingCount = 0
		})
		return nil
	}

	var (
		pushes      []pushPlan
		clearOnly   []string // ids resolved without a remote write
		conflicts   []diffmerge.ConflictFile
		conflictIDs = make(map[string]string)
	)

	for _, change := range snapshot {
		res, err := c.gateway.FetchLatest(ctx, change.Path)
		if err != nil {
			return c.fail(fmt.Errorf("fetch %s: %w", change.Path, err))
		}
		entry, err := c.journal.Get(change.Path)
		if err != nil {
			return c.fail(err)
		}

		plan, conflict, skip := c.compare(change, res, entry)
		switch {
		case conflict != nil:
			conflicts = append(conflicts, *conflict)
			conflictIDs[change.Path] = change.ID
		case skip != nil:
			if skip.remove {
				if err := c.journal.Delete(change.Path); err != nil {
					return c.fail(err)
				}
			} else if err := c.journal.Set(skip.entry); err != nil {
				return c.fail(err)
			}
			clearOnly = append(clearOnly, change.ID)
		default:
			pushes = append(pushes, *plan)
		}
	}

	if len(conflicts) > 0 {
		c.recordConflicts(conflicts, conflictIDs)
		return nil
	}

	committed := clearOnly
	if len(pushes) > 0 {
		files := make([]remote.CommitFile, 0, len(pushes))
		for _, p := range pushes {
			files = append(files, p.file)
		}
		rev, err := c.gateway.Commit(ctx, files, fmt.Sprintf("sync %d change(s)", len(files)))
		if err != nil {
			return c.fail(fmt.Errorf("commit: %w", err))
		}

		now := time.Now().UTC()
		for _, p := range pushes {
			if p.file.Action == remote.ActionDelete {
				if err := c.journal.Delete(p.change.Path); err != nil {
					return c.fail(err)
				}
			} else {
				err := c.journal.Set(&JournalEntry{
					Path:     p.change.Path,
					Revision: rev,
					Base:     p.content,
					SyncedAt: now,
				})
				if err != nil {
					return c.fail(err)
				}
			}
			committed = append(committed, p.change.ID)
		}
		slog.Info("sync pass pushed", "files", len(files), "revision", rev)
	}

	if err := c.queue.Clear(committed); err != nil {
		return c.fail(err)
	}

	c.tracker.Update(func(s *State) {
		s.Status = StatusIdle
		s.PendingCount = c.queue.Len()
		s.LastSyncedAt = time.Now().UTC()
	})
	return nil
}

// compare decides what a drained change becomes against the current remote
// state: a push, a conflict, or nothing at all.
func (c *Coordinator) compare(change *PendingChange, res *remote.FetchResult, entry *JournalEntry) (*pushPlan, *diffmerge.ConflictFile, *skipPlan) {
	remoteUnchanged := entry != nil && res.Exists && res.Revision == entry.Revision

	if change.Action == ChangeDelete {
		switch {
		case !res.Exists:
			// both sides deleted, nothing left to do
			return nil, nil, &skipPlan{remove: true}
		case remoteUnchanged:
			return &pushPlan{
				change: change,
				file:   remote.CommitFile{Path: change.Path, Action: remote.ActionDelete},
			}, nil, nil
		default:
			// we deleted, they changed it
			cf := &diffmerge.ConflictFile{
				Path:          change.Path,
				TheirsContent: string(res.Content),
				TheirsExists:  true,
			}
			if entry != nil {
				cf.BaseContent = string(entry.Base)
			}
			return nil, cf, nil
		}
	}

	ours := string(change.Payload)

	if !res.Exists {
		if entry == nil {
			// brand new file on both views
			return &pushPlan{
				change:  change,
				file:    remote.CommitFile{Path: change.Path, Content: change.Payload, Action: remote.ActionCreate},
				content: change.Payload,
			}, nil, nil
		}
		// we changed it, they deleted it
		return nil, &diffmerge.ConflictFile{
			Path:        change.Path,
			OursContent: ours,
			BaseContent: string(entry.Base),
			OursExists:  true,
		}, nil
	}

	if remoteUnchanged {
		return &pushPlan{
			change:  change,
			file:    remote.CommitFile{Path: change.Path, Content: change.Payload, Action: remote.ActionUpdate},
			content: change.Payload,
		}, nil, nil
	}

	theirs := string(res.Content)
	if theirs == ours {
		// both sides converged on the same content
		return nil, nil, &skipPlan{entry: &JournalEntry{
			Path:     change.Path,
			Revision: res.Revision,
			Base:     res.Content,
			SyncedAt: time.Now().UTC(),
		}}
	}

	if entry != nil {
		if merged, ok := diffmerge.Merge(string(entry.Base), ours, theirs); ok {
			body := []byte(merged)
			return &pushPlan{
				change:  change,
				file:    remote.CommitFile{Path: change.Path, Content: body, Action: remote.ActionUpdate},
				content: body,
			}, nil, nil
		}
	}

	// overlapping edits, or no common ancestor to merge from
	cf := &diffmerge.ConflictFile{
		Path:          change.Path,
		OursContent:   ours,
		TheirsContent: theirs,
		OursExists:    true,
		TheirsExists:  true,
	}
	if entry != nil {
		cf.BaseContent = string(entry.Base)
	}
	return nil, cf, nil
}

func (c *Coordinator) recordConflicts(conflicts []diffmerge.ConflictFile, ids map[string]string) {
	c.mu.Lock()
	for _, cf := range conflicts {
		c.conflictPaths.Add(cf.Path)
		c.conflictFiles[cf.Path] = cf
		c.conflictIDs[cf.Path] = ids[cf.Path]
	}
	paths := c.conflictPaths.ToSlice()
	c.mu.Unlock()

	slog.Warn("sync pass found conflicts", "paths", paths)
	c.tracker.Update(func(s *State) {
		s.Status = StatusConflict
		s.ActiveConflicts = paths
		s.PendingCount = c.queue.Len()
	})
}

func (c *Coordinator) conflictCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conflictPaths.Cardinality()
}

func (c *Coordinator) fail(err error) error {
	slog.Error("sync pass failed", "error", err)
	c.tracker.Update(func(s *State) {
		s.Status = StatusError
		s.LastError = err
		s.PendingCount = c.queue.Len()
	})
	return err
}

// OpenConflict starts a resolution session for an active conflict and
// returns its hunks. One-sided conflicts return no hunks.
func (c *Coordinator) OpenConflict(path string) ([]diffmerge.Hunk, error) {
	c.mu.Lock()
	cf, ok := c.conflictFiles[path]
	c.mu.Unlock()
	if !ok {
		return nil, ErrUnknownConflict
	}
	return c.resolver.Open(cf), nil
}

// ChooseSide records a per-hunk resolution for an open conflict session.
func (c *Coordinator) ChooseSide(path string, hunkID int, side diffmerge.Side) error {
	return c.resolver.ChooseSide(path, hunkID, side)
}

// AcceptAll resolves every changed hunk to one side.
func (c *Coordinator) AcceptAll(path string, side diffmerge.Side) error {
	return c.resolver.AcceptAll(path, side)
}

// EditResolved overrides the rebuilt content with hand-edited text.
func (c *Coordinator) EditResolved(path, text string) error {
	return c.resolver.EditResolved(path, text)
}

// KeepExisting resolves a one-sided conflict to the surviving side.
func (c *Coordinator) KeepExisting(path string) error {
	return c.resolver.KeepExisting(path)
}

// MarkDeleted resolves a one-sided conflict by deleting the file.
func (c *Coordinator) MarkDeleted(path string) error {
	return c.resolver.MarkDeleted(path)
}

// Resolved returns the current working content of an open session.
func (c *Coordinator) Resolved(path string) (string, error) {
	return c.resolver.Resolved(path)
}

// ResolveConflict commits the finalized resolution for one conflicted path
// and returns the committed outcome. When the last conflict clears, any
// entries still queued are synced in the same call.
func (c *Coordinator) ResolveConflict(ctx context.Context, path string) (diffmerge.Outcome, error) {
	if !c.muSync.TryLock() {
		return diffmerge.Outcome{}, ErrSyncAlreadyRunning
	}
	defer c.muSync.Unlock()

	c.mu.Lock()
	cf, ok := c.conflictFiles[path]
	changeID := c.conflictIDs[path]
	c.mu.Unlock()
	if !ok {
		return diffmerge.Outcome{}, ErrUnknownConflict
	}

	outcome, err := c.resolver.Finalize(path)
	if err != nil {
		return diffmerge.Outcome{}, err
	}

	file := remote.CommitFile{Path: path, Action: remote.ActionUpdate, Content: outcome.Content}
	switch {
	case outcome.Delete:
		file.Action = remote.ActionDelete
		file.Content = nil
	case !cf.TheirsExists:
		file.Action = remote.ActionCreate
	}

	rev, err := c.gateway.Commit(ctx, []remote.CommitFile{file}, "resolve conflict "+path)
	if err != nil {
		c.restoreSession(cf, outcome)
		return diffmerge.Outcome{}, c.fail(fmt.Errorf("commit resolution for %s: %w", path, err))
	}

	if outcome.Delete {
		if err := c.journal.Delete(path); err != nil {
			return outcome, c.fail(err)
		}
	} else {
		err := c.journal.Set(&JournalEntry{
			Path:     path,
			Revision: rev,
			Base:     outcome.Content,
			SyncedAt: time.Now().UTC(),
		})
		if err != nil {
			return outcome, c.fail(err)
		}
	}

	c.dropConflict(path)
	if changeID != "" {
		if err := c.queue.Clear([]string{changeID}); err != nil {
			return outcome, c.fail(err)
		}
	}

	if remaining := c.conflictCount(); remaining > 0 {
		c.mu.Lock()
		paths := c.conflictPaths.ToSlice()
		c.mu.Unlock()
		c.tracker.Update(func(s *State) {
			s.ActiveConflicts = paths
			s.PendingCount = c.queue.Len()
		})
		return outcome, nil
	}

	c.tracker.Update(func(s *State) {
		s.Status = StatusIdle
		s.ActiveConflicts = nil
		s.PendingCount = c.queue.Len()
		s.LastSyncedAt = time.Now().UTC()
	})

	if c.queue.Len() > 0 {
		return outcome, c.runPass(ctx)
	}
	return outcome, nil
}

// DiscardConflict drops the local pending change for a conflicted path
// without committing anything. This loses local edits; confirmation is the
// caller's job.
func (c *Coordinator) DiscardConflict(path string) error {
	c.mu.Lock()
	_, ok := c.conflictFiles[path]
	c.mu.Unlock()
	if !ok {
		return ErrUnknownConflict
	}

	c.resolver.Abandon(path)
	if err := c.queue.Remove(path); err != nil {
		return err
	}
	c.dropConflict(path)

	c.mu.Lock()
	paths := c.conflictPaths.ToSlice()
	c.mu.Unlock()

	c.tracker.Update(func(s *State) {
		if len(paths) == 0 {
			s.Status = StatusIdle
			s.ActiveConflicts = nil
		} else {
			s.ActiveConflicts = paths
		}
		s.PendingCount = c.queue.Len()
	})
	return nil
}

func (c *Coordinator) dropConflict(path string) {
	c.mu.Lock()
	c.conflictPaths.Remove(path)
	delete(c.conflictFiles, path)
	delete(c.conflictIDs, path)
	c.mu.Unlock()
}

// restoreSession re-opens a resolution session after a failed commit so the
// user's choices are not lost with it.
func (c *Coordinator) restoreSession(cf diffmerge.ConflictFile, outcome diffmerge.Outcome) {
	c.resolver.Open(cf)
	switch {
	case outcome.Delete:
		_ = c.resolver.MarkDeleted(cf.Path)
	case cf.OneSided():
		_ = c.resolver.KeepExisting(cf.Path)
	default:
		_ = c.resolver.EditResolved(cf.Path, string(outcome.Content))
	}
}

// State returns the current sync state snapshot.
func (c *Coordinator) State() State {
	return c.tracker.Get()
}

// Subscribe returns a channel of state snapshots.
func (c *Coordinator) Subscribe() <-chan State {
	return c.tracker.Subscribe()
}

// Unsubscribe removes a state subscription.
func (c *Coordinator) Unsubscribe(ch <-chan State) {
	c.tracker.Unsubscribe(ch)
}
