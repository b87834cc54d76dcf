// Package sqlite implements the snippet repository on SQLite via the
// CGo-free modernc.org/sqlite driver.
//
// Layout: one snippets table for the durable fields, one changesets table
// holding the append-only revision history, one snippet_tags table keeping
// tag display order, and one counters table backing the id allocator. The
// compound index on (updated_at DESC, id DESC) lets the keyset traversal
// walk the index instead of sorting at query time.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the connection pool and implements repository.SnippetRepository.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" for a throwaway in-memory database in tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent readers while a write is in flight; foreign
	// keys are off by default and must be enabled for the ON DELETE
	// CASCADE cleanup of changesets and tags to fire.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the backing store is reachable. Used by the health check.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

func (db *DB) migrate() error {
	// Timestamps are stored as unix seconds so the compound ordering on
	// (updated_at, id) is a plain integer comparison.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS snippets (
			id         INTEGER PRIMARY KEY,
			title      TEXT,
			syntax     TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snippets_updated_at_id
			ON snippets(updated_at DESC, id DESC);
		CREATE INDEX IF NOT EXISTS idx_snippets_title ON snippets(title);
		CREATE INDEX IF NOT EXISTS idx_snippets_syntax ON snippets(syntax);
	`)
	if err != nil {
		return fmt.Errorf("creating snippets table: %w", err)
	}

	// Revision history: append-only, ordered by seq per snippet.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS changesets (
			snippet_id INTEGER NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
			seq        INTEGER NOT NULL,
			content    TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (snippet_id, seq)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating changesets table: %w", err)
	}

	// Tags: position preserves display order, the tag index serves the
	// membership filter.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS snippet_tags (
			snippet_id INTEGER NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
			position   INTEGER NOT NULL,
			tag        TEXT NOT NULL,
			PRIMARY KEY (snippet_id, position)
		);
		CREATE INDEX IF NOT EXISTS idx_snippet_tags_tag ON snippet_tags(tag);
	`)
	if err != nil {
		return fmt.Errorf("creating snippet_tags table: %w", err)
	}

	// Durable autoincrement counters, one row per collection.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS counters (
			name TEXT PRIMARY KEY,
			next INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating counters table: %w", err)
	}

	return nil
}
