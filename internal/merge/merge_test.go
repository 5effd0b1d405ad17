package merge

import (
	"strings"
	"testing"

	"codegraph/internal/logging"
	"codegraph/internal/model"
	"codegraph/internal/parser"
)

func newTestMerger() *Merger {
	return New(logging.Discard())
}

func frag(path string, nodes []model.FragmentNode, edges []model.FragmentEdge) *model.Fragment {
	return &model.Fragment{
		Path:     path,
		Hash:     "h-" + path,
		Language: "go",
		Nodes:    nodes,
		Edges:    edges,
	}
}

func fileFrag(path string, names ...string) *model.Fragment {
	nodes := []model.FragmentNode{{LocalID: 0, Kind: model.KindFile, Name: path, Line: 1}}
	var edges []model.FragmentEdge
	for i, name := range names {
		nodes = append(nodes, model.FragmentNode{
			LocalID: i + 1, Kind: model.KindFunction, Name: name, Line: i + 2,
		})
		edges = append(edges, model.FragmentEdge{
			SourceLocal: 0, TargetLocal: i + 1, Kind: model.EdgeContains, Weight: 1.0,
		})
	}
	return frag(path, nodes, edges)
}

func TestMergeAllocatesSequentialIDs(t *testing.T) {
	m := newTestMerger()

	out := m.Merge(Input{
		NextID: 1,
		Fragments: []*model.Fragment{
			fileFrag("a.go", "Alpha", "Beta"),
			fileFrag("b.go", "Gamma"),
		},
	})

	if out.Graph.NodeCount() != 5 {
		t.Fatalf("expected 5 nodes, got %d", out.Graph.NodeCount())
	}
	if out.NextID != 6 {
		t.Errorf("expected watermark 6, got %d", out.NextID)
	}
	if got := out.FileNodes["a.go"]; len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("a.go node ids = %v", got)
	}
	if got := out.FileNodes["b.go"]; len(got) != 2 || got[0] != 4 {
		t.Errorf("b.go node ids = %v", got)
	}
	if out.Graph.EdgeCount() != 3 {
		t.Errorf("expected 3 contains edges, got %d", out.Graph.EdgeCount())
	}
}

func TestMergeIsDeterministic(t *testing.T) {
	m := newTestMerger()
	in := Input{
		NextID: 10,
		Fragments: []*model.Fragment{
			fileFrag("a.go", "Alpha"),
			fileFrag("b.go", "Beta"),
		},
	}

	first := m.Merge(in)
	second := m.Merge(in)

	if first.NextID != second.NextID {
		t.Fatal("watermark must be deterministic")
	}
	for _, id := range first.Graph.SortedNodeIDs() {
		a, b := first.Graph.Nodes[id], second.Graph.Nodes[id]
		if a.Name != b.Name || a.Path != b.Path {
			t.Errorf("node %d differs between identical merges", id)
		}
	}
}

func TestMergeKeepsBaseNodesUntouched(t *testing.T) {
	m := newTestMerger()

	base := model.NewGraph()
	base.AddNode(&model.CodeNode{ID: 7, Kind: model.KindFunction, Name: "Old", Path: "keep.go"})
	base.Edges = append(base.Edges, model.CodeEdge{SourceID: 7, TargetID: 7, Kind: model.EdgeContains})

	out := m.Merge(Input{
		Base:      base,
		NextID:    8,
		Fragments: []*model.Fragment{fileFrag("new.go", "Fresh")},
	})

	if out.Graph.Nodes[7] == nil || out.Graph.Nodes[7].Name != "Old" {
		t.Error("base node must survive the merge with its id")
	}
	if out.FileNodes["new.go"][0] != 8 {
		t.Errorf("new ids must start at the watermark, got %v", out.FileNodes["new.go"])
	}
}

func TestMergeFallbackNames(t *testing.T) {
	m := newTestMerger()

	out := m.Merge(Input{
		NextID: 1,
		Fragments: []*model.Fragment{
			frag("pkg/anon.go", []model.FragmentNode{
				{LocalID: 0, Kind: model.KindFile, Name: "anon.go", Line: 1},
				{LocalID: 1, Kind: model.KindFunction, Name: "", Line: 5},
			}, nil),
		},
	})

	n := out.Graph.Nodes[2]
	if n == nil {
		t.Fatal("anonymous node missing")
	}
	if n.Name != "function_2_in_anon.go" {
		t.Errorf("fallback name = %q", n.Name)
	}
}

func TestMergeResolvesCrossFileReferences(t *testing.T) {
	m := newTestMerger()

	caller := fileFrag("caller.go", "Run")
	caller.Edges = append(caller.Edges, model.FragmentEdge{
		SourceLocal: 1, TargetRef: "Helper", Kind: model.EdgeCalls, Weight: 1.0,
	})
	callee := fileFrag("callee.go", "Helper")

	out := m.Merge(Input{
		NextID:    1,
		Fragments: []*model.Fragment{caller, callee},
	})

	var resolved *model.CodeEdge
	for i := range out.Graph.Edges {
		if out.Graph.Edges[i].Kind == model.EdgeCalls {
			resolved = &out.Graph.Edges[i]
		}
	}
	if resolved == nil {
		t.Fatal("calls edge was not resolved")
	}
	if out.Graph.Nodes[resolved.TargetID].Name != "Helper" {
		t.Errorf("calls edge points at %q", out.Graph.Nodes[resolved.TargetID].Name)
	}
	if resolved.TargetRef != "Helper" {
		t.Error("resolved edge must keep its symbolic reference for later runs")
	}
	if len(out.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", out.Warnings)
	}
}

func TestMergeExactReferenceWinsOverBareName(t *testing.T) {
	m := newTestMerger()

	a := fileFrag("a.go", "Dup")
	b := fileFrag("b.go", "Dup")
	c := fileFrag("c.go", "Use")
	c.Edges = append(c.Edges, model.FragmentEdge{
		SourceLocal: 1, TargetRef: model.RefKey("b.go", "Dup"), Kind: model.EdgeReferences, Weight: 1.0,
	})

	out := m.Merge(Input{NextID: 1, Fragments: []*model.Fragment{a, b, c}})

	var ref *model.CodeEdge
	for i := range out.Graph.Edges {
		if out.Graph.Edges[i].Kind == model.EdgeReferences {
			ref = &out.Graph.Edges[i]
		}
	}
	if ref == nil {
		t.Fatal("references edge missing")
	}
	if got := out.Graph.Nodes[ref.TargetID]; got.Path != "b.go" {
		t.Errorf("exact reference resolved into %s", got.Path)
	}
}

func TestMergeBareNameResolvesToLowestID(t *testing.T) {
	m := newTestMerger()

	a := fileFrag("a.go", "Dup")
	b := fileFrag("b.go", "Dup")
	c := fileFrag("c.go", "Use")
	c.Edges = append(c.Edges, model.FragmentEdge{
		SourceLocal: 1, TargetRef: "Dup", Kind: model.EdgeCalls, Weight: 1.0,
	})

	out := m.Merge(Input{NextID: 1, Fragments: []*model.Fragment{a, b, c}})

	for _, e := range out.Graph.Edges {
		if e.Kind == model.EdgeCalls {
			if got := out.Graph.Nodes[e.TargetID]; got.Path != "a.go" {
				t.Errorf("ambiguous name should resolve to the lowest id, got %s", got.Path)
			}
		}
	}
}

func TestMergeModuleReference(t *testing.T) {
	m := newTestMerger()

	app := fileFrag("src/app.ts", "boot")
	app.Edges = append(app.Edges, model.FragmentEdge{
		SourceLocal: 0, TargetRef: parser.ModuleRefPrefix + "./db", Kind: model.EdgeImports, Weight: 0.5,
	})
	db := fileFrag("src/db.ts", "connect")

	out := m.Merge(Input{NextID: 1, Fragments: []*model.Fragment{app, db}})

	var imp *model.CodeEdge
	for i := range out.Graph.Edges {
		if out.Graph.Edges[i].Kind == model.EdgeImports {
			imp = &out.Graph.Edges[i]
		}
	}
	if imp == nil {
		t.Fatal("imports edge missing")
	}
	target := out.Graph.Nodes[imp.TargetID]
	if target.Kind != model.KindFile || target.Path != "src/db.ts" {
		t.Errorf("module reference resolved into %+v", target)
	}
}

func TestMergeDropsDanglingEdgesWithWarning(t *testing.T) {
	m := newTestMerger()

	a := fileFrag("a.go", "Run")
	a.Edges = append(a.Edges, model.FragmentEdge{
		SourceLocal: 1, TargetRef: "NoSuchSymbol", Kind: model.EdgeCalls, Weight: 1.0,
	})

	out := m.Merge(Input{NextID: 1, Fragments: []*model.Fragment{a}})

	for _, e := range out.Graph.Edges {
		if out.Graph.Nodes[e.TargetID] == nil || out.Graph.Nodes[e.SourceID] == nil {
			t.Fatal("merged graph contains a dangling edge")
		}
	}
	var warned bool
	for _, w := range out.Warnings {
		if strings.Contains(w, "NoSuchSymbol") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("expected a warning naming the unresolved symbol, got %v", out.Warnings)
	}
}

func TestMergeReresolvesBaseSymbolicEdges(t *testing.T) {
	m := newTestMerger()

	// Previous run: util.go#Helper had id 2, caller.go kept a calls edge to it.
	base := model.NewGraph()
	base.AddNode(&model.CodeNode{ID: 1, Kind: model.KindFunction, Name: "Run", Path: "caller.go"})
	base.Edges = append(base.Edges, model.CodeEdge{
		SourceID: 1, TargetID: 2, TargetRef: "Helper", Kind: model.EdgeCalls, Weight: 1.0,
	})

	// util.go was re-parsed; Helper now gets a new id.
	out := m.Merge(Input{
		Base:      base,
		NextID:    10,
		Fragments: []*model.Fragment{fileFrag("util.go", "Helper")},
	})

	var calls *model.CodeEdge
	for i := range out.Graph.Edges {
		if out.Graph.Edges[i].Kind == model.EdgeCalls {
			calls = &out.Graph.Edges[i]
		}
	}
	if calls == nil {
		t.Fatal("calls edge missing after re-resolution")
	}
	if got := out.Graph.Nodes[calls.TargetID]; got == nil || got.Name != "Helper" || got.ID < 10 {
		t.Errorf("edge must re-resolve to the new Helper node, got %+v", got)
	}
}
