package sync

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS sync_journal (
    path TEXT PRIMARY KEY,
    revision TEXT NOT NULL,
    base BLOB NOT NULL,
    synced_at TEXT NOT NULL -- RFC3339
);

CREATE INDEX IF NOT EXISTS idx_journal_revision ON sync_journal(revision);
`

// JournalEntry is the last remote state this client successfully synced for
// a path. Base is the content at that revision and serves as the common
// ancestor for three-way merges.
type JournalEntry struct {
	Path     string
	Revision string
	Base     []byte
	SyncedAt time.Time
}

type dbJournalEntry struct {
	Path     string `db:"path"`
	Revision string `db:"revision"`
	Base     []byte `db:"base"`
	SyncedAt string `db:"synced_at"`
}

// SyncJournal records, per path, the remote revision and content observed at
// the last successful sync.
type SyncJournal struct {
	db *sqlx.DB
}

func NewSyncJournal(db *sqlx.DB) (*SyncJournal, error) {
	if _, err := db.Exec(journalSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return &SyncJournal{db: db}, nil
}

// Get returns the entry for a path, or nil if the path was never synced.
func (j *SyncJournal) Get(path string) (*JournalEntry, error) {
	var row dbJournalEntry
	err := j.db.Get(&row, "SELECT path, revision, base, synced_at FROM sync_journal WHERE path = ?", path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query journal for %s: %w", path, err)
	}

	syncedAt, err := time.Parse(time.RFC3339Nano, row.SyncedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored timestamp for %s: %w", path, err)
	}
	return &JournalEntry{
		Path:     row.Path,
		Revision: row.Revision,
		Base:     row.Base,
		SyncedAt: syncedAt,
	}, nil
}

// Set inserts or replaces the entry for a path.
func (j *SyncJournal) Set(entry *JournalEntry) error {
	if entry == nil {
		return fmt.Errorf("cannot set nil journal entry")
	}

	row := dbJournalEntry{
		Path:     entry.Path,
		Revision: entry.Revision,
		Base:     entry.Base,
		SyncedAt: entry.SyncedAt.Format(time.RFC3339Nano),
	}
	query := `INSERT OR REPLACE INTO sync_journal (path, revision, base, synced_at)
	          VALUES (:path, :revision, :base, :synced_at)`
	if _, err := j.db.NamedExec(query, row); err != nil {
		return fmt.Errorf("failed to set journal entry for %s: %w", entry.Path, err)
	}
	return nil
}

// Delete removes the entry for a path. Deleting an absent path is a no-op.
func (j *SyncJournal) Delete(path string) error {
	if _, err := j.db.Exec("DELETE FROM sync_journal WHERE path = ?", path); err != nil {
		return fmt.Errorf("failed to delete journal entry for %s: %w", path, err)
	}
	return nil
}

// Paths lists every journaled path.
func (j *SyncJournal) Paths() ([]string, error) {
	var paths []string
	err := j.db.Select(&paths, "SELECT path FROM sync_journal ORDER BY path ASC")
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to list journal paths: %w", err)
	}
	return paths, nil
}
