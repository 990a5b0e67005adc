package sync

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const queueSchema = `
CREATE TABLE IF NOT EXISTS pending_changes (
    id TEXT PRIMARY KEY,
    path TEXT NOT NULL UNIQUE,
    action TEXT NOT NULL,
    payload BLOB,
    timestamp TEXT NOT NULL, -- RFC3339
    seq INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pending_seq ON pending_changes(seq);
`

// Store is the durable home of the pending queue. SaveQueue replaces the
// stored snapshot wholesale; the round-trip only needs to be faithful.
type Store interface {
	LoadQueue() ([]*PendingChange, error)
	SaveQueue(changes []*PendingChange) error
}

// dbPendingChange is the scan target; time is stored as TEXT.
type dbPendingChange struct {
	ID        string `db:"id"`
	Path      string `db:"path"`
	Action    string `db:"action"`
	Payload   []byte `db:"payload"`
	Timestamp string `db:"timestamp"`
	Seq       int64  `db:"seq"`
}

// SqliteStore persists the queue in the workspace database.
type SqliteStore struct {
	db *sqlx.DB
}

var _ Store = (*SqliteStore)(nil)

func NewSqliteStore(db *sqlx.DB) (*SqliteStore, error) {
	if _, err := db.Exec(queueSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize queue schema: %w", err)
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) LoadQueue() ([]*PendingChange, error) {
	var rows []dbPendingChange
	err := s.db.Select(&rows, "SELECT id, path, action, payload, timestamp, seq FROM pending_changes ORDER BY seq ASC")
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}

	changes := make([]*PendingChange, 0, len(rows))
	for _, row := range rows {
		ts, err := time.Parse(time.RFC3339Nano, row.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored timestamp for %s: %w", row.Path, err)
		}
		changes = append(changes, &PendingChange{
			ID:        row.ID,
			Path:      row.Path,
			Action:    ChangeAction(row.Action),
			Payload:   row.Payload,
			Timestamp: ts,
			Seq:       row.Seq,
		})
	}
	return changes, nil
}

func (s *SqliteStore) SaveQueue(changes []*PendingChange) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin queue save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM pending_changes"); err != nil {
		return fmt.Errorf("failed to reset queue: %w", err)
	}

	query := `INSERT INTO pending_changes (id, path, action, payload, timestamp, seq)
	          VALUES (:id, :path, :action, :payload, :timestamp, :seq)`
	for _, c := range changes {
		row := dbPendingChange{
			ID:        c.ID,
			Path:      c.Path,
			Action:    string(c.Action),
			Payload:   c.Payload,
			Timestamp: c.Timestamp.Format(time.RFC3339Nano),
			Seq:       c.Seq,
		}
		if _, err := tx.NamedExec(query, row); err != nil {
			return fmt.Errorf("failed to save change %s: %w", c.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit queue save: %w", err)
	}
	return nil
}
