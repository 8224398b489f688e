// Package sqlite implements the repository contracts on an embedded SQLite
// database. It backs local development and the test suite; production runs
// the postgres package against the same contracts.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"stocklane.io/stocklane/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id                  TEXT PRIMARY KEY,
	reference_id        TEXT NOT NULL,
	is_refdata_facility INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_nodes_reference ON nodes(reference_id);

CREATE TABLE IF NOT EXISTS valid_assignments (
	id               TEXT PRIMARY KEY,
	program_id       TEXT NOT NULL,
	facility_type_id TEXT NOT NULL,
	node_id          TEXT NOT NULL REFERENCES nodes(id),
	direction        TEXT NOT NULL CHECK (direction IN ('SOURCE', 'DESTINATION'))
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_valid_assignments_key
	ON valid_assignments(program_id, facility_type_id, node_id, direction);

CREATE TABLE IF NOT EXISTS stock_cards (
	id           TEXT PRIMARY KEY,
	facility_id  TEXT NOT NULL,
	orderable_id TEXT NOT NULL,
	sublot_id    TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_stock_cards_key
	ON stock_cards(facility_id, orderable_id, sublot_id);

CREATE TABLE IF NOT EXISTS stock_events (
	sequence       INTEGER PRIMARY KEY AUTOINCREMENT,
	id             TEXT NOT NULL UNIQUE,
	stock_card_id  TEXT NOT NULL REFERENCES stock_cards(id),
	occurred_date  TEXT NOT NULL,
	quantity_delta INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_stock_events_card_date
	ON stock_events(stock_card_id, occurred_date, sequence);

CREATE TABLE IF NOT EXISTS calculated_stocks_on_hand (
	id             TEXT PRIMARY KEY,
	stock_card_id  TEXT NOT NULL REFERENCES stock_cards(id),
	stock_on_hand  INTEGER NOT NULL,
	occurred_date  TEXT NOT NULL,
	processed_date TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_csoh_card_date
	ON calculated_stocks_on_hand(stock_card_id, occurred_date);
`

// Store owns the SQLite handle and hands out repositories bound to it.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "stocklane.db"
	}
	return open(path)
}

// OpenMemory opens a fresh in-memory database. Each call returns an
// isolated store; used by tests and throwaway local runs.
func OpenMemory() (*Store, error) {
	return open(":memory:")
}

func open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// database/sql pools connections; an in-memory database exists per
	// connection, and file databases still want single-writer semantics.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for integration test hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Stores returns the repository bundle backed by this store.
func (s *Store) Stores() repository.Stores {
	return repository.Stores{
		Nodes:       &NodeRepository{db: s.db},
		Assignments: &AssignmentRepository{db: s.db},
		StockCards:  &StockCardRepository{db: s.db},
		Events:      &EventRepository{db: s.db},
		Entries:     &EntryRepository{db: s.db},
	}
}

// Date and timestamp encodings. ISO-8601 strings compare correctly with
// SQLite's default BINARY collation, so range queries on occurred_date work.
const (
	dateLayout      = "2006-01-02"
	timestampLayout = time.RFC3339Nano
)

func encodeDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func decodeDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

func encodeTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func decodeTimestamp(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

// isUniqueViolation reports whether err is a SQLite uniqueness failure.
func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
