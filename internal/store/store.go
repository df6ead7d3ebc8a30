// Package store implements the single-file embedded library store.
// All persistent state lives here: the games catalog, labels, news,
// update history, jobs, settings, and the popularity cache tier.
//
// Guarantees: per-statement atomicity, concurrent readers with a single
// serialized writer (WAL mode, one connection), and idempotent additive
// schema migrations on startup.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gamehoard/internal/logging"

	_ "github.com/mattn/go-sqlite3"
)

// LibraryStore owns the SQLite database file.
type LibraryStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the SQLite database at the given path, creating the
// schema and running migrations.
func Open(path string) (*LibraryStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.Open")
	defer timer.Stop()

	logging.Store("Opening library store at %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer connection; readers share it. Long transactions are
	// forbidden by convention so this never starves.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set journal_mode=WAL: %v", err)
	}
	// NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set synchronous=NORMAL: %v", err)
	}
	// Depot updates and label rows cascade on game deletion.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable foreign_keys: %v", err)
	}

	s := &LibraryStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("Library store ready")
	return s, nil
}

// initialize creates tables, applies column migrations, then builds indexes.
func (s *LibraryStore) initialize() error {
	if err := s.createTables(); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if err := RunMigrations(s.db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := s.createIndexes(); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *LibraryStore) Close() error {
	logging.Store("Closing library store")
	return s.db.Close()
}

// DB returns the underlying SQL database connection.
func (s *LibraryStore) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *LibraryStore) Path() string {
	return s.dbPath
}
