package diffmerge

import (
	"errors"
	"sync"
)

var (
	ErrNoSession     = errors.New("resolver: no open conflict for path")
	ErrHunkNotFound  = errors.New("resolver: unknown hunk id")
	ErrHunkUnchanged = errors.New("resolver: hunk is unchanged, nothing to resolve")
	ErrNotOneSided   = errors.New("resolver: conflict has both sides, resolve per hunk")
	ErrOneSided      = errors.New("resolver: conflict is one-sided, keep or delete it")
)

// ConflictFile is one divergent file handed over by the sync coordinator.
// When only one side exists the hunk machinery is skipped and the resolution
// is a binary keep-or-delete choice.
type ConflictFile struct {
	Path          string
	OursContent   string
	TheirsContent string
	BaseContent   string
	OursExists    bool
	TheirsExists  bool
}

// OneSided reports whether the file exists on only one side.
func (f *ConflictFile) OneSided() bool {
	return f.OursExists != f.TheirsExists
}

// Outcome is the final resolution for one file: either content to commit, or
// a deletion.
type Outcome struct {
	Path    string
	Content []byte
	Delete  bool
}

type session struct {
	file ConflictFile
	diff *Diff

	choices  map[int]Side
	resolved string
	// manual is set once the caller hand-edits the resolved content; from
	// then on per-hunk choices still record but the edited text wins.
	manual bool

	oneSided       bool
	removeOnCommit bool
}

// Resolver tracks open conflict-resolution sessions, one per path. Sessions
// are created by Open and destroyed by Finalize or Abandon.
type Resolver struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func NewResolver() *Resolver {
	return &Resolver{sessions: make(map[string]*session)}
}

// Open starts a resolution session for the file and returns its hunks. The
// working resolved content starts as the ours body. One-sided files yield no
// hunks; resolve them with KeepExisting or MarkDeleted.
func (r *Resolver) Open(file ConflictFile) []Hunk {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &session{
		file:    file,
		choices: make(map[int]Side),
	}

	if file.OneSided() {
		s.oneSided = true
		if file.OursExists {
			s.resolved = file.OursContent
		} else {
			s.resolved = file.TheirsContent
		}
		r.sessions[file.Path] = s
		return nil
	}

	s.diff = Compute(file.OursContent, file.TheirsContent)
	s.resolved = file.OursContent
	r.sessions[file.Path] = s

	return append([]Hunk(nil), s.diff.Hunks...)
}

// Hunks returns the hunks of an open session.
func (r *Resolver) Hunks(path string) ([]Hunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[path]
	if !ok {
		return nil, ErrNoSession
	}
	if s.oneSided {
		return nil, nil
	}
	return append([]Hunk(nil), s.diff.Hunks...), nil
}

// ChooseSide records the side to keep for one changed hunk and recomputes the
// resolved content, unless a manual edit has taken over.
func (r *Resolver) ChooseSide(path string, hunkID int, side Side) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[path]
	if !ok {
		return ErrNoSession
	}
	if s.oneSided {
		return ErrOneSided
	}
	if hunkID < 0 || hunkID >= len(s.diff.Hunks) {
		return ErrHunkNotFound
	}
	if s.diff.Hunks[hunkID].Kind == HunkUnchanged {
		return ErrHunkUnchanged
	}

	s.choices[hunkID] = side
	if !s.manual {
		s.resolved = s.diff.Rebuild(s.choices)
	}
	return nil
}

// AcceptAll resolves every changed hunk to one side in a single step. The
// resolved content is taken directly from that side's body, which also
// discards any prior manual edit; the bulk action restarts from a known
// source.
func (r *Resolver) AcceptAll(path string, side Side) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[path]
	if !ok {
		return ErrNoSession
	}
	if s.oneSided {
		return ErrOneSided
	}

	for _, h := range s.diff.Hunks {
		if h.Kind != HunkUnchanged {
			s.choices[h.ID] = side
		}
	}
	s.manual = false
	if side == SideTheirs {
		s.resolved = s.file.TheirsContent
	} else {
		s.resolved = s.file.OursContent
	}
	return nil
}

// EditResolved overrides the rebuilt content with hand-edited text. Manual
// edits win: later per-hunk choices still record but no longer rewrite the
// content.
func (r *Resolver) EditResolved(path, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[path]
	if !ok {
		return ErrNoSession
	}
	if s.oneSided {
		return ErrOneSided
	}

	s.resolved = text
	s.manual = true
	return nil
}

// KeepExisting resolves a one-sided conflict by keeping the surviving side's
// content.
func (r *Resolver) KeepExisting(path string) error {
	return r.setOneSided(path, false)
}

// MarkDeleted resolves a one-sided conflict by deleting the file on commit.
func (r *Resolver) MarkDeleted(path string) error {
	return r.setOneSided(path, true)
}

func (r *Resolver) setOneSided(path string, remove bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[path]
	if !ok {
		return ErrNoSession
	}
	if !s.oneSided {
		return ErrNotOneSided
	}

	s.removeOnCommit = remove
	return nil
}

// Resolved returns the current working resolved content.
func (r *Resolver) Resolved(path string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[path]
	if !ok {
		return "", ErrNoSession
	}
	return s.resolved, nil
}

// Finalize returns the outcome to commit and closes the session.
func (r *Resolver) Finalize(path string) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[path]
	if !ok {
		return Outcome{}, ErrNoSession
	}
	delete(r.sessions, path)

	if s.oneSided && s.removeOnCommit {
		return Outcome{Path: path, Delete: true}, nil
	}
	return Outcome{Path: path, Content: []byte(s.resolved)}, nil
}

// Abandon drops the session without producing an outcome.
func (r *Resolver) Abandon(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, path)
}
