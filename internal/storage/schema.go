package storage

import "fmt"

const schemaVersion = 1

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS nodes (
		id INTEGER PRIMARY KEY,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		line INTEGER NOT NULL DEFAULT 0,
		col INTEGER NOT NULL DEFAULT 0,
		language TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		importance REAL NOT NULL DEFAULT 0,
		weight REAL NOT NULL DEFAULT 0,
		tags TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_path ON nodes(path)`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(kind)`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_importance ON nodes(importance DESC)`,

	`CREATE TABLE IF NOT EXISTS edges (
		source_id INTEGER NOT NULL,
		target_id INTEGER NOT NULL,
		target_ref TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 1.0,
		created_at TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id)`,

	`CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL,
		language TEXT NOT NULL DEFAULT '',
		last_indexed_at TEXT NOT NULL,
		node_ids TEXT NOT NULL DEFAULT '[]'
	)`,

	`CREATE TABLE IF NOT EXISTS index_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	// FTS over node names, paths and summaries, kept in sync by triggers on
	// the nodes table.
	`CREATE VIRTUAL TABLE IF NOT EXISTS nodes_fts USING fts5(
		name,
		path,
		summary,
		content='nodes',
		content_rowid='id'
	)`,
	`CREATE TRIGGER IF NOT EXISTS nodes_fts_ai AFTER INSERT ON nodes BEGIN
		INSERT INTO nodes_fts(rowid, name, path, summary)
		VALUES (new.id, new.name, new.path, new.summary);
	END`,
	`CREATE TRIGGER IF NOT EXISTS nodes_fts_au AFTER UPDATE ON nodes BEGIN
		INSERT INTO nodes_fts(nodes_fts, rowid, name, path, summary)
		VALUES ('delete', old.id, old.name, old.path, old.summary);
		INSERT INTO nodes_fts(rowid, name, path, summary)
		VALUES (new.id, new.name, new.path, new.summary);
	END`,
	`CREATE TRIGGER IF NOT EXISTS nodes_fts_ad AFTER DELETE ON nodes BEGIN
		INSERT INTO nodes_fts(nodes_fts, rowid, name, path, summary)
		VALUES ('delete', old.id, old.name, old.path, old.summary);
	END`,
}

func (db *DB) initSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	var version int
	err := db.conn.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		// Fresh database.
		_, err = db.conn.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion)
		return err
	}
	if version != schemaVersion {
		return fmt.Errorf("unsupported schema version %d (want %d)", version, schemaVersion)
	}
	return nil
}
