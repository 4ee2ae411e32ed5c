package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Local is the sqlite sidecar: evaluation-run checkpoints, run metadata and
// hashed API tokens. It lives next to the service so checkpoint writes
// survive a crash even when Mongo is remote.
type Local struct {
	db *sql.DB
}

func OpenLocal(dbPath string) (*Local, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	l := &Local{db: db}
	if err := l.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return l, nil
}

func (l *Local) Close() error {
	return l.db.Close()
}

func (l *Local) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS run_checkpoints (
		run_id TEXT NOT NULL,
		student_filename TEXT NOT NULL,
		evaluated_at DATETIME NOT NULL,
		PRIMARY KEY (run_id, student_filename)
	);

	CREATE TABLE IF NOT EXISTS run_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS api_tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		token_hash TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);
	`
	_, err := l.db.Exec(schema)
	return err
}

// SetMeta upserts a key-value pair in run_metadata.
func (l *Local) SetMeta(key, value string) error {
	_, err := l.db.Exec(
		`INSERT INTO run_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMeta returns the value for a metadata key, empty string when missing.
func (l *Local) GetMeta(key string) (string, error) {
	var value string
	err := l.db.QueryRow(`SELECT value FROM run_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}
