// Package history implements a small completed-download ledger backed by
// modernc.org/sqlite, supplementing the spec's core with the kind of
// "what have I downloaded" index the teacher's DownloadService.History
// method (internal/core/interface.go) exposes to its own out-of-scope UI
// layer. This is not a resume mechanism — internal/state's bitfield file
// remains the sole authority for in-flight resume — it only records
// finished tasks for later lookup.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one completed-download record.
type Entry struct {
	TaskID      string
	PlaylistURL string
	OutputPath  string
	Bytes       int64
	FinishedAt  time.Time
}

// Store wraps a sqlite-backed history ledger.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS completed_downloads (
	task_id      TEXT PRIMARY KEY,
	playlist_url TEXT NOT NULL,
	output_path  TEXT NOT NULL,
	bytes        INTEGER NOT NULL,
	finished_at  INTEGER NOT NULL
);
`

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts or replaces a completed-download entry.
func (s *Store) Record(e Entry) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO completed_downloads (task_id, playlist_url, output_path, bytes, finished_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.TaskID, e.PlaylistURL, e.OutputPath, e.Bytes, e.FinishedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("history: recording %s: %w", e.TaskID, err)
	}
	return nil
}

// Recent returns the most recently completed downloads, newest first,
// bounded by limit.
func (s *Store) Recent(limit int) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT task_id, playlist_url, output_path, bytes, finished_at
		 FROM completed_downloads ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: querying recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var finishedAt int64
		if err := rows.Scan(&e.TaskID, &e.PlaylistURL, &e.OutputPath, &e.Bytes, &finishedAt); err != nil {
			return nil, fmt.Errorf("history: scanning row: %w", err)
		}
		e.FinishedAt = time.Unix(finishedAt, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}
