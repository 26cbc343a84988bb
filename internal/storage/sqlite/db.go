package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"opinionbot/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the history store and creates its schema. An in-memory path
// is pinned to one connection because every new sqlite3 connection to
// ":memory:" gets its own empty database.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id          TEXT PRIMARY KEY,
		genre       TEXT DEFAULT '',
		last_active DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active);

	CREATE TABLE IF NOT EXISTS history_entries (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id     TEXT NOT NULL,
		content        TEXT DEFAULT '',
		genre          TEXT DEFAULT '',
		bias_score     REAL NOT NULL,
		strength_score REAL NOT NULL,
		comment        TEXT DEFAULT '',
		created_at     DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_session ON history_entries(session_id, id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// TouchSession records activity for a session, creating its row on first use.
func TouchSession(db *sql.DB, sessionID, genre string, at time.Time) error {
	_, err := db.Exec(
		`INSERT INTO sessions (id, genre, last_active) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET genre = excluded.genre, last_active = excluded.last_active`,
		sessionID, genre, at.UTC(),
	)
	return err
}

// AppendHistoryEntry validates the scores and appends one entry at the end of
// the session's history. The stored ID is returned.
func AppendHistoryEntry(db *sql.DB, e domain.HistoryEntry) (int64, error) {
	if e.SessionID == "" {
		return 0, fmt.Errorf("append history: empty session id")
	}
	if err := domain.ValidateScores(e.BiasScore, e.StrengthScore); err != nil {
		return 0, fmt.Errorf("append history: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO sessions (id, genre, last_active) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET last_active = excluded.last_active`,
		e.SessionID, e.Genre, e.CreatedAt.UTC(),
	); err != nil {
		return 0, err
	}
	res, err := tx.Exec(
		`INSERT INTO history_entries (session_id, content, genre, bias_score, strength_score, comment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Content, e.Genre, e.BiasScore, e.StrengthScore, e.Comment, e.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// ListHistory returns a session's entries in insertion order.
func ListHistory(db *sql.DB, sessionID string) ([]domain.HistoryEntry, error) {
	rows, err := db.Query(
		`SELECT id, session_id, content, genre, bias_score, strength_score, comment, created_at
		 FROM history_entries WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.Content, &e.Genre,
			&e.BiasScore, &e.StrengthScore, &e.Comment, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func CountHistory(db *sql.DB, sessionID string) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM history_entries WHERE session_id = ?", sessionID).Scan(&count)
	return count, err
}

// DeleteSession removes a session and all of its history.
func DeleteSession(db *sql.DB, sessionID string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM history_entries WHERE session_id = ?", sessionID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM sessions WHERE id = ?", sessionID); err != nil {
		return err
	}
	return tx.Commit()
}

func DeleteHistoryEntry(db *sql.DB, id int64) error {
	_, err := db.Exec("DELETE FROM history_entries WHERE id = ?", id)
	return err
}

// PurgeIdleSessions deletes every session whose last activity is before the
// cutoff, along with its history, and returns the purged IDs. Sessions for
// which keep reports true are left alone; keep may be nil.
func PurgeIdleSessions(db *sql.DB, cutoff time.Time, keep func(id string) bool) ([]string, error) {
	rows, err := db.Query("SELECT id FROM sessions WHERE last_active < ? ORDER BY id", cutoff.UTC())
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		if keep != nil && keep(id) {
			continue
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, id := range ids {
		if err := DeleteSession(db, id); err != nil {
			return nil, fmt.Errorf("purge session %s: %w", id, err)
		}
	}
	return ids, nil
}
