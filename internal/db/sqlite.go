// Package db opens the SQLite database that stores controller session history.
package db

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

var (
	db   *sql.DB
	once sync.Once
)

// migrations are applied in order; PRAGMA user_version records how many ran.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS controller_sessions (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		slot INTEGER NOT NULL,
		remote_addr TEXT,
		status TEXT NOT NULL DEFAULT 'connected',
		driver_ok INTEGER NOT NULL DEFAULT 0,
		inputs INTEGER NOT NULL DEFAULT 0,
		connected_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		disconnected_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_controller_sessions_client_id ON controller_sessions(client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_controller_sessions_status ON controller_sessions(status)`,
	`CREATE INDEX IF NOT EXISTS idx_controller_sessions_connected_at ON controller_sessions(connected_at)`,
}

// InitDB opens the process-wide database at dbPath, switches it to WAL and
// brings the schema up to date. Later calls return the same handle.
func InitDB(dbPath string) (*sql.DB, error) {
	var initErr error
	once.Do(func() {
		var err error
		db, err = sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
		if err != nil {
			initErr = fmt.Errorf("failed to open database: %w", err)
			return
		}

		if err := db.Ping(); err != nil {
			initErr = fmt.Errorf("failed to open database: %w", err)
			return
		}

		if err := migrate(db); err != nil {
			initErr = fmt.Errorf("failed to run migrations: %w", err)
			return
		}
	})

	if initErr != nil {
		return nil, initErr
	}
	return db, nil
}

// SchemaVersion returns the number of migrations applied to conn.
func SchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func migrate(conn *sql.DB) error {
	version, err := SchemaVersion(conn)
	if err != nil {
		return err
	}

	for i := version; i < len(migrations); i++ {
		tx, err := conn.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}

// CloseDB closes the database connection.
func CloseDB() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

// NewTestDB creates a fresh in-memory database with the full schema.
func NewTestDB() (*sql.DB, error) {
	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}

	// Every pooled connection to :memory: is a separate database.
	testDB.SetMaxOpenConns(1)

	if err := migrate(testDB); err != nil {
		testDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return testDB, nil
}
