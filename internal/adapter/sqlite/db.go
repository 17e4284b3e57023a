package sqlite

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id         TEXT PRIMARY KEY,
    url        TEXT NOT NULL,
    title      TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL,
    info       TEXT NOT NULL DEFAULT '',
    files      TEXT NOT NULL DEFAULT '[]',
    local_uri  TEXT NOT NULL DEFAULT '',
    triggered  INTEGER NOT NULL DEFAULT 0,
    generation INTEGER NOT NULL DEFAULT 0,
    position   INTEGER NOT NULL,
    created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS portals (
    id       TEXT PRIMARY KEY,
    name     TEXT NOT NULL,
    domains  TEXT NOT NULL DEFAULT '[]',
    example  TEXT NOT NULL DEFAULT '',
    added_at DATETIME NOT NULL
);
`

// DB wraps the SQLite handle shared by the snapshot and portal repositories.
type DB struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at path and initializes
// the schema.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}
