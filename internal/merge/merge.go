// Package merge folds file fragments into the global graph. It owns global
// id allocation and the re-resolution of symbolic edge references, so node
// ids stay stable for unchanged files while cross-file edges always point at
// the current graph.
package merge

import (
	"fmt"
	"sort"
	"strings"

	"codegraph/internal/logging"
	"codegraph/internal/model"
	"codegraph/internal/parser"
)

// Input is one merge batch: the surviving graph from reusable files, the
// fragments parsed from dirty files, and the id watermark carried over from
// the previous run.
type Input struct {
	Base      *model.Graph
	Fragments []*model.Fragment
	NextID    int64
}

// Output is the merged graph plus bookkeeping for the store: the new id
// watermark and the node ids now owned by each dirty file.
type Output struct {
	Graph     *model.Graph
	NextID    int64
	FileNodes map[string][]int64
	Warnings  []string
}

// Merger assembles fragments into a single graph.
type Merger struct {
	logger *logging.Logger
}

func New(logger *logging.Logger) *Merger {
	return &Merger{logger: logger.WithComponent("merge")}
}

// Merge allocates global ids for fragment nodes, carries base nodes over
// untouched, and re-resolves every symbolic edge reference against the
// combined node set. Ids are assigned in fragment order, node order, so the
// same input always yields the same graph. Edges whose reference resolves to
// nothing are dropped with a warning rather than left dangling.
func (m *Merger) Merge(in Input) *Output {
	out := &Output{
		Graph:     model.NewGraph(),
		NextID:    in.NextID,
		FileNodes: make(map[string][]int64),
	}
	if out.NextID < 1 {
		out.NextID = 1
	}

	var symbolic []model.CodeEdge

	if in.Base != nil {
		for _, id := range in.Base.SortedNodeIDs() {
			out.Graph.AddNode(in.Base.Nodes[id])
		}
		for _, e := range in.Base.Edges {
			if e.TargetRef != "" {
				symbolic = append(symbolic, e)
				continue
			}
			out.Graph.Edges = append(out.Graph.Edges, e)
		}
	}

	for _, frag := range in.Fragments {
		locals := make(map[int]int64, len(frag.Nodes))
		for _, n := range frag.Nodes {
			id := out.NextID
			out.NextID++
			locals[n.LocalID] = id

			name := n.Name
			if name == "" {
				name = model.FallbackName(n.Kind, id, frag.Path)
			}
			out.Graph.AddNode(&model.CodeNode{
				ID:       id,
				Kind:     n.Kind,
				Name:     name,
				Path:     frag.Path,
				Line:     n.Line,
				Column:   n.Column,
				Language: frag.Language,
			})
			out.FileNodes[frag.Path] = append(out.FileNodes[frag.Path], id)
		}

		for _, e := range frag.Edges {
			src, ok := locals[e.SourceLocal]
			if !ok {
				out.Warnings = append(out.Warnings,
					fmt.Sprintf("%s: edge source local id %d unknown", frag.Path, e.SourceLocal))
				continue
			}
			if e.TargetRef != "" {
				symbolic = append(symbolic, model.CodeEdge{
					SourceID:  src,
					TargetRef: e.TargetRef,
					Kind:      e.Kind,
					Weight:    e.Weight,
				})
				continue
			}
			dst, ok := locals[e.TargetLocal]
			if !ok {
				out.Warnings = append(out.Warnings,
					fmt.Sprintf("%s: edge target local id %d unknown", frag.Path, e.TargetLocal))
				continue
			}
			out.Graph.Edges = append(out.Graph.Edges, model.CodeEdge{
				SourceID: src,
				TargetID: dst,
				Kind:     e.Kind,
				Weight:   e.Weight,
			})
		}
	}

	m.resolve(out, symbolic)

	if len(out.Warnings) > 0 {
		m.logger.Debug("merge produced warnings", logging.Fields{"count": len(out.Warnings)})
	}
	return out
}

// refIndex resolves symbolic references against the merged node set.
type refIndex struct {
	exact  map[string]int64 // "path#name" -> id
	byName map[string]int64 // bare name -> lowest id bearing it
	files  []*model.CodeNode
}

func buildRefIndex(g *model.Graph) *refIndex {
	idx := &refIndex{
		exact:  make(map[string]int64),
		byName: make(map[string]int64),
	}
	for _, id := range g.SortedNodeIDs() {
		n := g.Nodes[id]
		key := model.RefKey(n.Path, n.Name)
		if _, ok := idx.exact[key]; !ok {
			idx.exact[key] = n.ID
		}
		if _, ok := idx.byName[n.Name]; !ok {
			idx.byName[n.Name] = n.ID
		}
		if n.Kind == model.KindFile {
			idx.files = append(idx.files, n)
		}
	}
	sort.Slice(idx.files, func(i, j int) bool { return idx.files[i].ID < idx.files[j].ID })
	return idx
}

// lookup resolves a reference. "module:" references match file nodes by path
// suffix; "path#name" references are exact; bare names fall back to the
// lowest node id bearing that name.
func (idx *refIndex) lookup(ref string) (int64, bool) {
	if module, ok := strings.CutPrefix(ref, parser.ModuleRefPrefix); ok {
		return idx.lookupModule(module)
	}
	if id, ok := idx.exact[ref]; ok {
		return id, true
	}
	id, ok := idx.byName[ref]
	return id, ok
}

func (idx *refIndex) lookupModule(module string) (int64, bool) {
	// Strip a relative prefix so "./db" matches "db.ts" and friends.
	module = strings.TrimPrefix(module, "./")
	if module == "" {
		return 0, false
	}
	for _, f := range idx.files {
		p := strings.TrimSuffix(f.Path, pathExt(f.Path))
		if p == module || strings.HasSuffix(p, "/"+module) {
			return f.ID, true
		}
	}
	return 0, false
}

func pathExt(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 && !strings.Contains(path[i:], "/") {
		return path[i:]
	}
	return ""
}

// resolve rewrites symbolic edges into concrete ones. Self-edges produced by
// a name resolving back to its own source are dropped quietly; unresolved
// references are dropped with a warning.
func (m *Merger) resolve(out *Output, symbolic []model.CodeEdge) {
	if len(symbolic) == 0 {
		return
	}
	idx := buildRefIndex(out.Graph)

	for _, e := range symbolic {
		dst, ok := idx.lookup(e.TargetRef)
		if !ok {
			src := out.Graph.Nodes[e.SourceID]
			where := e.TargetRef
			if src != nil {
				where = fmt.Sprintf("%s -> %s", src.Path, e.TargetRef)
			}
			out.Warnings = append(out.Warnings, fmt.Sprintf("unresolved %s reference: %s", e.Kind, where))
			continue
		}
		if dst == e.SourceID {
			continue
		}
		out.Graph.Edges = append(out.Graph.Edges, model.CodeEdge{
			SourceID:  e.SourceID,
			TargetID:  dst,
			TargetRef: e.TargetRef,
			Kind:      e.Kind,
			Weight:    e.Weight,
		})
	}
}
