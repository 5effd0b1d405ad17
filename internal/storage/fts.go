package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"codegraph/internal/logging"
)

// MatchMode selects how multi-term queries combine.
type MatchMode string

const (
	// MatchAny returns nodes matching at least one term.
	MatchAny MatchMode = "any"
	// MatchAll returns nodes matching every term.
	MatchAll MatchMode = "all"
)

// SearchResult is one node hit with its ranking score.
type SearchResult struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Kind       string  `json:"kind"`
	Path       string  `json:"path"`
	Line       int     `json:"line"`
	Importance float64 `json:"importance"`
	Rank       float64 `json:"rank"`
	MatchType  string  `json:"matchType"`
}

// Search runs a full-text query over node names, paths and summaries. Terms
// are prefix matched; when the FTS query yields nothing (or the query only
// contains characters FTS rejects) it falls back to LIKE substring matching.
func (s *Store) Search(query string, mode MatchMode, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	if mode != MatchAll {
		mode = MatchAny
	}

	results, err := s.searchFTS(query, mode, limit)
	if err != nil {
		s.logger.Debug("fts query failed, using substring fallback", logging.Fields{
			"query": query,
			"error": err.Error(),
		})
	}
	if len(results) > 0 {
		return results, nil
	}
	return s.searchLike(query, limit)
}

func (s *Store) searchFTS(query string, mode MatchMode, limit int) ([]SearchResult, error) {
	ftsQuery := buildFTSQuery(query, mode)
	if ftsQuery == "" {
		return nil, nil
	}

	rows, err := s.db.conn.Query(`
		SELECT n.id, n.name, n.kind, n.path, n.line, n.importance,
			bm25(nodes_fts, 2.0, 0.5, 1.0) AS rank
		FROM nodes_fts f
		JOIN nodes n ON f.rowid = n.id
		WHERE nodes_fts MATCH ?
		ORDER BY rank, n.id
		LIMIT ?`, ftsQuery, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectResults(rows, "fts")
}

func (s *Store) searchLike(query string, limit int) ([]SearchResult, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.conn.Query(`
		SELECT id, name, kind, path, line, importance, 0.0 AS rank
		FROM nodes
		WHERE name LIKE ? OR path LIKE ? OR summary LIKE ?
		ORDER BY importance DESC, id
		LIMIT ?`, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectResults(rows, "substring")
}

func collectResults(rows *sql.Rows, matchType string) ([]SearchResult, error) {
	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Name, &r.Kind, &r.Path, &r.Line, &r.Importance, &r.Rank); err != nil {
			return nil, err
		}
		r.MatchType = matchType
		results = append(results, r)
	}
	return results, rows.Err()
}

// buildFTSQuery turns free text into an FTS5 expression: each term becomes a
// quoted prefix match, joined by OR or AND. Terms with no searchable
// characters are dropped; an empty result signals the caller to fall back.
func buildFTSQuery(query string, mode MatchMode) string {
	join := " OR "
	if mode == MatchAll {
		join = " AND "
	}

	var parts []string
	for _, term := range strings.Fields(query) {
		term = sanitizeFTSTerm(term)
		if term == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf(`"%s"*`, term))
	}
	return strings.Join(parts, join)
}

// sanitizeFTSTerm strips characters that carry FTS5 query syntax.
func sanitizeFTSTerm(term string) string {
	var b strings.Builder
	for _, r := range term {
		switch r {
		case '"', '*', '(', ')', ':', '^', '-':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
