// Package storage persists the merged graph, per-file records, and run
// metadata in a SQLite database under the project data directory. Node name,
// path, and summary columns are mirrored into an FTS5 index for search.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"codegraph/internal/config"
	"codegraph/internal/logging"
)

// DB wraps the SQLite connection with transaction helpers.
type DB struct {
	conn   *sql.DB
	logger *logging.Logger
	dbPath string
}

// Open opens or creates the database at <repoRoot>/.codegraph/codegraph.db
// and brings the schema up to date.
func Open(repoRoot string, logger *logging.Logger) (*DB, error) {
	dataDir := filepath.Join(repoRoot, config.DataDirName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dataDir, err)
	}

	dbPath := filepath.Join(dataDir, "codegraph.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	db := &DB{
		conn:   conn,
		logger: logger.WithComponent("storage"),
		dbPath: dbPath,
	}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying sql.DB.
func (db *DB) Conn() *sql.DB { return db.conn }

// Path returns the database file location.
func (db *DB) Path() string { return db.dbPath }

// WithTx runs fn inside a transaction, rolling back on error or panic.
func (db *DB) WithTx(fn func(*sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("failed to rollback transaction", logging.Fields{
				"error":          err.Error(),
				"rollback_error": rbErr.Error(),
			})
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
