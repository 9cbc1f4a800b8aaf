package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/spbui00/mockr/pkg/trial"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteArchive implements Archive over a SQLite database.
type SQLiteArchive struct {
	db *sql.DB
}

// NewSQLiteArchive opens (or creates) the archive database at dsn.
func NewSQLiteArchive(dsn string) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	a := &SQLiteArchive{db: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive database: %w", err)
	}
	return a, nil
}

func (a *SQLiteArchive) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			jurisdiction TEXT,
			legal_areas TEXT,
			case_context TEXT,
			created_at DATETIME NOT NULL,
			archived_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			session_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			role TEXT,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (session_id, message_id),
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
	}
	for _, m := range migrations {
		if _, err := a.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Save upserts the session row and replaces its archived transcript.
func (a *SQLiteArchive) Save(ctx context.Context, snap Snapshot) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	areas, _ := json.Marshal(snap.LegalAreas)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, status, jurisdiction, legal_areas, case_context, created_at, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			status = excluded.status,
			archived_at = excluded.archived_at`,
		snap.SessionID, string(snap.Status), snap.Jurisdiction, string(areas), snap.CaseContext, snap.CreatedAt, snap.ArchivedAt)
	if err != nil {
		return fmt.Errorf("archive session %s: %w", snap.SessionID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, snap.SessionID); err != nil {
		return fmt.Errorf("clear archived messages for %s: %w", snap.SessionID, err)
	}
	for _, e := range snap.Entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, message_id, kind, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			snap.SessionID, e.ID, string(e.Kind), string(e.Role), e.Content, e.Timestamp)
		if err != nil {
			return fmt.Errorf("archive message %s/%s: %w", snap.SessionID, e.ID, err)
		}
	}
	return tx.Commit()
}

// Transcript returns the archived entries for a session in append order.
func (a *SQLiteArchive) Transcript(ctx context.Context, sessionID string) ([]trial.Entry, error) {
	var exists int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions WHERE session_id = ?`, sessionID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT message_id, kind, role, content, created_at FROM messages WHERE session_id = ? ORDER BY rowid`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trial.Entry
	for rows.Next() {
		var e trial.Entry
		var kind, role string
		if err := rows.Scan(&e.ID, &kind, &role, &e.Content, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Kind = trial.SpeakerKind(kind)
		e.Role = trial.Role(role)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}
