package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"codegraph/internal/logging"
	"codegraph/internal/model"
)

// Index lifecycle states persisted in index_meta.
const (
	StateUnindexed = "UNINDEXED"
	StateIndexing  = "INDEXING"
	StateReady     = "READY"
	StateFailed    = "FAILED"
)

// Metadata keys.
const (
	metaNextNodeID = "next_node_id"
	metaState      = "index_state"
	metaStateID    = "graph_state_id"
	metaLastRunAt  = "last_run_at"
)

// Store reads and writes graph state.
type Store struct {
	db     *DB
	logger *logging.Logger
}

func NewStore(db *DB, logger *logging.Logger) *Store {
	return &Store{db: db, logger: logger.WithComponent("store")}
}

// CommitInput is everything one successful run persists atomically.
type CommitInput struct {
	Graph        *model.Graph
	DirtyRecords []model.FileRecord
	DeletedPaths []string
	NextNodeID   int64
	StateID      string
}

// CommitRun persists a finished run in a single transaction: retired file
// nodes go away, new nodes come in, every surviving node gets its fresh
// importance, and the edge set is replaced wholesale since cross-file edges
// are re-resolved on every merge. A failure leaves the previous state fully
// intact.
func (s *Store) CommitRun(in CommitInput) error {
	now := time.Now().UTC().Format(time.RFC3339)

	return s.db.WithTx(func(tx *sql.Tx) error {
		retired := make(map[string]bool)
		for _, rec := range in.DirtyRecords {
			retired[rec.Path] = true
		}
		for _, path := range in.DeletedPaths {
			retired[path] = true
		}
		for path := range retired {
			if _, err := tx.Exec("DELETE FROM nodes WHERE path = ?", path); err != nil {
				return fmt.Errorf("retire %s: %w", path, err)
			}
		}

		insertNode, err := tx.Prepare(`
			INSERT INTO nodes (id, kind, name, path, line, col, language, summary, importance, weight, tags, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer insertNode.Close()

		updateNode, err := tx.Prepare(
			"UPDATE nodes SET importance = ?, weight = ?, tags = ? WHERE id = ?")
		if err != nil {
			return err
		}
		defer updateNode.Close()

		for _, id := range in.Graph.SortedNodeIDs() {
			n := in.Graph.Nodes[id]
			tags, err := json.Marshal(n.Tags)
			if err != nil {
				return err
			}
			if retired[n.Path] {
				_, err = insertNode.Exec(n.ID, string(n.Kind), n.Name, n.Path, n.Line,
					n.Column, n.Language, n.Summary, n.Importance, n.Weight, string(tags), now)
			} else {
				_, err = updateNode.Exec(n.Importance, n.Weight, string(tags), n.ID)
			}
			if err != nil {
				return fmt.Errorf("persist node %d: %w", n.ID, err)
			}
		}

		if _, err := tx.Exec("DELETE FROM edges"); err != nil {
			return err
		}
		insertEdge, err := tx.Prepare(
			"INSERT INTO edges (source_id, target_id, target_ref, kind, weight, created_at) VALUES (?, ?, ?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer insertEdge.Close()
		for _, e := range in.Graph.Edges {
			if _, err := insertEdge.Exec(e.SourceID, e.TargetID, e.TargetRef, string(e.Kind), e.Weight, now); err != nil {
				return err
			}
		}

		for _, path := range in.DeletedPaths {
			if _, err := tx.Exec("DELETE FROM files WHERE path = ?", path); err != nil {
				return err
			}
		}
		for _, rec := range in.DirtyRecords {
			ids, err := json.Marshal(rec.NodeIDs)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(`
				INSERT INTO files (path, content_hash, language, last_indexed_at, node_ids)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(path) DO UPDATE SET
					content_hash = excluded.content_hash,
					language = excluded.language,
					last_indexed_at = excluded.last_indexed_at,
					node_ids = excluded.node_ids`,
				rec.Path, rec.ContentHash, rec.Language, now, string(ids)); err != nil {
				return fmt.Errorf("record file %s: %w", rec.Path, err)
			}
		}

		meta := map[string]string{
			metaNextNodeID: strconv.FormatInt(in.NextNodeID, 10),
			metaState:      StateReady,
			metaStateID:    in.StateID,
			metaLastRunAt:  now,
		}
		for key, value := range meta {
			if err := setMetaTx(tx, key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadFileRecords returns the tracked state of every indexed file.
func (s *Store) LoadFileRecords() (map[string]model.FileRecord, error) {
	rows, err := s.db.conn.Query(
		"SELECT path, content_hash, language, last_indexed_at, node_ids FROM files")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make(map[string]model.FileRecord)
	for rows.Next() {
		var rec model.FileRecord
		var indexedAt, ids string
		if err := rows.Scan(&rec.Path, &rec.ContentHash, &rec.Language, &indexedAt, &ids); err != nil {
			return nil, err
		}
		rec.LastIndexedAt, _ = time.Parse(time.RFC3339, indexedAt)
		if err := json.Unmarshal([]byte(ids), &rec.NodeIDs); err != nil {
			return nil, fmt.Errorf("corrupt node_ids for %s: %w", rec.Path, err)
		}
		records[rec.Path] = rec
	}
	return records, rows.Err()
}

// LoadGraph reads the full persisted graph.
func (s *Store) LoadGraph() (*model.Graph, error) {
	g := model.NewGraph()

	rows, err := s.db.conn.Query(`
		SELECT id, kind, name, path, line, col, language, summary, importance, weight, tags
		FROM nodes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		g.AddNode(n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edgeRows, err := s.db.conn.Query(
		"SELECT source_id, target_id, target_ref, kind, weight FROM edges")
	if err != nil {
		return nil, err
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var e model.CodeEdge
		var kind string
		if err := edgeRows.Scan(&e.SourceID, &e.TargetID, &e.TargetRef, &kind, &e.Weight); err != nil {
			return nil, err
		}
		e.Kind = model.EdgeKind(kind)
		g.Edges = append(g.Edges, e)
	}
	return g, edgeRows.Err()
}

// NodesForFile returns the persisted nodes owned by one file, ordered by id.
func (s *Store) NodesForFile(path string) ([]*model.CodeNode, error) {
	rows, err := s.db.conn.Query(`
		SELECT id, kind, name, path, line, col, language, summary, importance, weight, tags
		FROM nodes WHERE path = ? ORDER BY id`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*model.CodeNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// QueryImportant returns the top nodes by importance, optionally filtered to
// one kind. Ties break by ascending id so results are stable.
func (s *Store) QueryImportant(limit int, kind string) ([]*model.CodeNode, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, kind, name, path, line, col, language, summary, importance, weight, tags
		FROM nodes`
	args := []any{}
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY importance DESC, id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*model.CodeNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// Stats summarizes the persisted index.
type Stats struct {
	Nodes     int       `json:"nodes"`
	Edges     int       `json:"edges"`
	Files     int       `json:"files"`
	State     string    `json:"state"`
	StateID   string    `json:"stateId,omitempty"`
	LastRunAt time.Time `json:"lastRunAt,omitempty"`
}

func (s *Store) Stats() (*Stats, error) {
	st := &Stats{}
	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM nodes", &st.Nodes},
		{"SELECT COUNT(*) FROM edges", &st.Edges},
		{"SELECT COUNT(*) FROM files", &st.Files},
	}
	for _, c := range counts {
		if err := s.db.conn.QueryRow(c.query).Scan(c.dst); err != nil {
			return nil, err
		}
	}
	st.State = s.State()
	st.StateID, _ = s.GetMeta(metaStateID)
	if raw, ok := s.GetMeta(metaLastRunAt); ok {
		st.LastRunAt, _ = time.Parse(time.RFC3339, raw)
	}
	return st, nil
}

// NextNodeID returns the persisted id watermark, 1 for a fresh index.
func (s *Store) NextNodeID() int64 {
	raw, ok := s.GetMeta(metaNextNodeID)
	if !ok {
		return 1
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 1
	}
	return id
}

// State returns the index lifecycle state.
func (s *Store) State() string {
	state, ok := s.GetMeta(metaState)
	if !ok {
		return StateUnindexed
	}
	return state
}

// SetState transitions the index lifecycle state.
func (s *Store) SetState(state string) error {
	return s.SetMeta(metaState, state)
}

// StateID returns the identifier of the currently committed graph state.
// Query caches key their entries by it, so a new commit invalidates them.
func (s *Store) StateID() string {
	id, _ := s.GetMeta(metaStateID)
	return id
}

// GetMeta reads one metadata value.
func (s *Store) GetMeta(key string) (string, bool) {
	var value string
	err := s.db.conn.QueryRow("SELECT value FROM index_meta WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// SetMeta writes one metadata value.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.conn.Exec(`
		INSERT INTO index_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Reset drops all graph state, returning the index to UNINDEXED. Used for
// recovery from a FAILED state via full reindex.
func (s *Store) Reset() error {
	return s.db.WithTx(func(tx *sql.Tx) error {
		for _, stmt := range []string{
			"DELETE FROM nodes",
			"DELETE FROM edges",
			"DELETE FROM files",
			"DELETE FROM index_meta",
		} {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return setMetaTx(tx, metaState, StateUnindexed)
	})
}

func setMetaTx(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(`
		INSERT INTO index_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func scanNode(rows *sql.Rows) (*model.CodeNode, error) {
	n := &model.CodeNode{}
	var kind, tags string
	if err := rows.Scan(&n.ID, &kind, &n.Name, &n.Path, &n.Line, &n.Column,
		&n.Language, &n.Summary, &n.Importance, &n.Weight, &tags); err != nil {
		return nil, err
	}
	n.Kind = model.NodeKind(kind)
	if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
		return nil, fmt.Errorf("corrupt tags for node %d: %w", n.ID, err)
	}
	return n, nil
}
