// Package model defines the core graph data types shared by the indexing
// pipeline: nodes, edges, parsed fragments and per-file tracking records.
package model

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"
)

// NodeKind classifies a graph node.
type NodeKind string

const (
	KindFile      NodeKind = "file"
	KindClass     NodeKind = "class"
	KindFunction  NodeKind = "function"
	KindMethod    NodeKind = "method"
	KindInterface NodeKind = "interface"
	KindImport    NodeKind = "import"
	KindVariable  NodeKind = "variable"
)

// EdgeKind classifies a graph edge.
type EdgeKind string

const (
	EdgeContains   EdgeKind = "contains"
	EdgeImports    EdgeKind = "imports"
	EdgeCalls      EdgeKind = "calls"
	EdgeInherits   EdgeKind = "inherits"
	EdgeReferences EdgeKind = "references"
)

// CodeNode is one node in the project graph. IDs are allocated by the merger
// and stay stable across incremental runs for unchanged files.
type CodeNode struct {
	ID         int64    `json:"id"`
	Kind       NodeKind `json:"kind"`
	Name       string   `json:"name"`
	Path       string   `json:"path"`
	Line       int      `json:"line"`
	Column     int      `json:"column"`
	Language   string   `json:"language"`
	Summary    string   `json:"summary,omitempty"`
	Importance float64  `json:"importance"`
	Weight     float64  `json:"weight"`
	Tags       []string `json:"tags,omitempty"`
}

// HasTag reports whether the node carries the given tag.
func (n *CodeNode) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag adds a tag if not already present, keeping the set sorted so that
// serialized nodes are byte-stable across runs.
func (n *CodeNode) AddTag(tag string) {
	if n.HasTag(tag) {
		return
	}
	n.Tags = append(n.Tags, tag)
	sort.Strings(n.Tags)
}

// FallbackName synthesizes a non-empty name for a node a parser returned
// without one. Name is always non-empty in a persisted graph.
func FallbackName(kind NodeKind, id int64, path string) string {
	return fmt.Sprintf("%s_%d_in_%s", kind, id, filepath.Base(path))
}

// CodeEdge is a directed edge between two nodes of the same project graph.
// Both endpoints must exist; dangling edges are dropped before persistence.
type CodeEdge struct {
	SourceID int64    `json:"sourceId"`
	TargetID int64    `json:"targetId"`
	Kind     EdgeKind `json:"kind"`
	Weight   float64  `json:"weight"`

	// TargetRef carries the symbolic reference the edge was resolved from,
	// so a later merge can re-resolve it after the target file changed.
	// Empty for edges whose endpoints live in the same file.
	TargetRef string `json:"targetRef,omitempty"`
}

// FileRecord tracks the indexed state of one source file.
type FileRecord struct {
	Path          string    `json:"path"`
	ContentHash   string    `json:"contentHash"`
	Language      string    `json:"language"`
	LastIndexedAt time.Time `json:"lastIndexedAt"`
	NodeIDs       []int64   `json:"nodeIds,omitempty"`
}

// FragmentNode is a node as produced by a parser, with a file-local id.
// Global id assignment happens in the merger.
type FragmentNode struct {
	LocalID int      `json:"localId"`
	Kind    NodeKind `json:"kind"`
	Name    string   `json:"name"`
	Line    int      `json:"line"`
	Column  int      `json:"column"`
	Summary string   `json:"summary,omitempty"`
}

// FragmentEdge is an edge with file-local endpoints. TargetRef, when set,
// names a symbol that may live in another file and takes precedence over
// TargetLocal during resolution.
type FragmentEdge struct {
	SourceLocal int      `json:"sourceLocal"`
	TargetLocal int      `json:"targetLocal"`
	TargetRef   string   `json:"targetRef,omitempty"`
	Kind        EdgeKind `json:"kind"`
	Weight      float64  `json:"weight"`
}

// Fragment is the node/edge set produced by parsing one file, before merge.
type Fragment struct {
	Path     string         `json:"path"`
	Hash     string         `json:"hash"`
	Language string         `json:"language"`
	Nodes    []FragmentNode `json:"nodes"`
	Edges    []FragmentEdge `json:"edges"`
	Errors   []string       `json:"errors,omitempty"`
}

// Graph is a fully merged project graph, the unit the scorer operates on and
// the store persists.
type Graph struct {
	Nodes  map[int64]*CodeNode
	Edges  []CodeEdge
	ByFile map[string][]int64
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes:  make(map[int64]*CodeNode),
		ByFile: make(map[string][]int64),
	}
}

// AddNode inserts a node and records file ownership.
func (g *Graph) AddNode(n *CodeNode) {
	g.Nodes[n.ID] = n
	g.ByFile[n.Path] = append(g.ByFile[n.Path], n.ID)
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.Nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.Edges) }

// SortedNodeIDs returns all node ids in ascending order, for deterministic
// iteration during scoring and persistence.
func (g *Graph) SortedNodeIDs() []int64 {
	ids := make([]int64, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RefKey builds the symbolic reference key for a node, used by the merger's
// cross-file resolution index.
func RefKey(path, name string) string {
	return path + "#" + name
}
