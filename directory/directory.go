// Package directory implements the centralized-tier name store on SQLite.
package directory

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mnslabs/mns-backend/interfaces"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	address TEXT NOT NULL,
	version TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_users_name ON users (name);
`

// Store is a SQLite-backed directory of name bindings.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (creating if necessary) the directory database at path. Use
// ":memory:" for an ephemeral store in tests.
func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening directory database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing directory schema: %w", err)
	}
	log.Info("directory database ready", "path", path)
	return &Store{db: db, log: log}, nil
}

// Upsert stores or replaces the binding for rec.Name.
func (s *Store) Upsert(rec interfaces.Record) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO users (name, address, version, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		rec.Name, rec.Address, rec.Version)
	if err != nil {
		return fmt.Errorf("storing binding for %q: %w", rec.Name, err)
	}
	s.log.Debug("binding stored in directory", "name", rec.Name, "address", rec.Address)
	return nil
}

// Lookup returns the binding for name, or interfaces.ErrNotFound.
func (s *Store) Lookup(name string) (interfaces.Record, error) {
	var rec interfaces.Record
	err := s.db.QueryRow(
		`SELECT name, address, version FROM users WHERE name = ?`, name).
		Scan(&rec.Name, &rec.Address, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return interfaces.Record{}, fmt.Errorf("%w: %q", interfaces.ErrNotFound, name)
	}
	if err != nil {
		return interfaces.Record{}, fmt.Errorf("looking up %q: %w", name, err)
	}
	return rec, nil
}

// List returns all bindings ordered by name.
func (s *Store) List() ([]interfaces.Record, error) {
	rows, err := s.db.Query(`SELECT name, address, version FROM users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing directory: %w", err)
	}
	defer rows.Close()

	var recs []interfaces.Record
	for rows.Next() {
		var rec interfaces.Record
		if err := rows.Scan(&rec.Name, &rec.Address, &rec.Version); err != nil {
			return nil, fmt.Errorf("scanning directory row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ interfaces.Directory = (*Store)(nil)
