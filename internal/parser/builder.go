package parser

import (
	"path/filepath"

	"codegraph/internal/model"
)

// ModuleRefPrefix marks a symbolic edge target naming an imported module
// rather than a symbol. The merger resolves these against file nodes.
const ModuleRefPrefix = "module:"

// fragmentBuilder accumulates nodes and edges for one file. Local id 0 is
// always the file node.
type fragmentBuilder struct {
	frag *model.Fragment
	next int
}

func newFragmentBuilder(path, language string) *fragmentBuilder {
	b := &fragmentBuilder{
		frag: &model.Fragment{Path: path, Language: language},
	}
	b.addNode(model.KindFile, filepath.Base(path), 1, 1)
	return b
}

// addNode appends a node and returns its local id.
func (b *fragmentBuilder) addNode(kind model.NodeKind, name string, line, column int) int {
	id := b.next
	b.next++
	b.frag.Nodes = append(b.frag.Nodes, model.FragmentNode{
		LocalID: id,
		Kind:    kind,
		Name:    name,
		Line:    line,
		Column:  column,
	})
	return id
}

// addEdge appends an edge between two local nodes.
func (b *fragmentBuilder) addEdge(src, dst int, kind model.EdgeKind, weight float64) {
	b.frag.Edges = append(b.frag.Edges, model.FragmentEdge{
		SourceLocal: src,
		TargetLocal: dst,
		Kind:        kind,
		Weight:      weight,
	})
}

// addRefEdge appends an edge whose target is a symbolic reference resolved
// at merge time. TargetLocal is ignored when TargetRef is set.
func (b *fragmentBuilder) addRefEdge(src int, ref string, kind model.EdgeKind, weight float64) {
	b.frag.Edges = append(b.frag.Edges, model.FragmentEdge{
		SourceLocal: src,
		TargetRef:   ref,
		Kind:        kind,
		Weight:      weight,
	})
}

func (b *fragmentBuilder) addError(msg string) {
	b.frag.Errors = append(b.frag.Errors, msg)
}

func (b *fragmentBuilder) build() *model.Fragment {
	return b.frag
}
