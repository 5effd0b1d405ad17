package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"codegraph/internal/config"
	"codegraph/internal/logging"
	"codegraph/internal/model"
	"codegraph/internal/storage"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestEngine(t *testing.T, root string) *Engine {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RepoRoot = root
	cfg.Index.Workers = 2
	e, err := New(root, cfg, logging.Discard())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func seedRepo(t *testing.T, root string) {
	writeFile(t, root, "a.go", `package a

func A1() {}

func A2() {}
`)
	writeFile(t, root, "b.go", `package b

func B1() {}
`)
	writeFile(t, root, "c.py", `class C:
    def run(self):
        pass
`)
}

func TestIndexFreshRepo(t *testing.T) {
	root := t.TempDir()
	seedRepo(t, root)
	e := newTestEngine(t, root)

	sum, err := e.Index(context.Background())
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	if sum.FilesScanned != 3 || sum.FilesParsed != 3 || sum.FilesReused != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if e.State() != storage.StateReady {
		t.Errorf("state = %s", e.State())
	}
	// a.go: file + 2 funcs; b.go: file + 1 func; c.py: file + class + method.
	if sum.Nodes != 8 {
		t.Errorf("expected 8 nodes, got %d", sum.Nodes)
	}

	g, err := e.Graph()
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range g.Nodes {
		if n.Name == "" {
			t.Error("committed node with empty name")
		}
	}
	for _, edge := range g.Edges {
		if g.Nodes[edge.SourceID] == nil || g.Nodes[edge.TargetID] == nil {
			t.Error("committed graph contains a dangling edge")
		}
	}
}

func TestIndexIsIdempotent(t *testing.T) {
	root := t.TempDir()
	seedRepo(t, root)
	e := newTestEngine(t, root)

	first, err := e.Index(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	firstGraph, _ := e.Graph()

	second, err := e.Index(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !second.Unchanged {
		t.Errorf("second run should be a no-op: %+v", second)
	}
	if second.Nodes != first.Nodes {
		t.Errorf("node count drifted: %d vs %d", second.Nodes, first.Nodes)
	}

	secondGraph, _ := e.Graph()
	for id, n := range firstGraph.Nodes {
		m := secondGraph.Nodes[id]
		if m == nil || m.Name != n.Name || m.Importance != n.Importance {
			t.Errorf("node %d changed across a no-op run", id)
		}
	}
}

func TestIncrementalRunReplacesOnlyChangedFile(t *testing.T) {
	root := t.TempDir()
	seedRepo(t, root)
	e := newTestEngine(t, root)

	if _, err := e.Index(context.Background()); err != nil {
		t.Fatal(err)
	}

	before, _ := e.Graph()
	beforeA := append([]int64(nil), before.ByFile["a.go"]...)
	beforeB := append([]int64(nil), before.ByFile["b.go"]...)

	// b.go grows a function; a.go and c.py stay put.
	writeFile(t, root, "b.go", `package b

func B1() {}

func B2() {}
`)

	sum, err := e.Index(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.FilesReused != 2 {
		t.Errorf("expected 2 reused files, got %d", sum.FilesReused)
	}
	// Only b.go reprocessed: cache may serve it, but it is the only dirty one.
	if sum.FilesParsed+sum.CacheHits != 1 {
		t.Errorf("expected 1 dirty file processed, got parsed=%d hits=%d", sum.FilesParsed, sum.CacheHits)
	}

	after, _ := e.Graph()

	// Unchanged files keep their ids exactly.
	afterA := after.ByFile["a.go"]
	if len(afterA) != len(beforeA) {
		t.Fatalf("a.go node set changed: %v vs %v", afterA, beforeA)
	}
	for i := range beforeA {
		if afterA[i] != beforeA[i] {
			t.Errorf("a.go ids changed: %v vs %v", afterA, beforeA)
		}
	}

	// b.go got fresh ids above the old watermark.
	afterB := after.ByFile["b.go"]
	if len(afterB) != 3 {
		t.Fatalf("b.go should have 3 nodes, got %d", len(afterB))
	}
	oldB := make(map[int64]bool)
	for _, id := range beforeB {
		oldB[id] = true
	}
	for _, id := range afterB {
		if oldB[id] {
			t.Errorf("retired id %d was reused", id)
		}
	}
	if after.NodeCount() != before.NodeCount()+1 {
		t.Errorf("node count %d, want %d", after.NodeCount(), before.NodeCount()+1)
	}
}

func TestDeletedFileCascade(t *testing.T) {
	root := t.TempDir()
	seedRepo(t, root)
	e := newTestEngine(t, root)

	if _, err := e.Index(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(root, "b.go")); err != nil {
		t.Fatal(err)
	}

	sum, err := e.Index(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.FilesDeleted != 1 {
		t.Errorf("expected 1 deleted file, got %d", sum.FilesDeleted)
	}

	g, _ := e.Graph()
	if len(g.ByFile["b.go"]) != 0 {
		t.Error("deleted file still owns nodes")
	}
	for _, edge := range g.Edges {
		if g.Nodes[edge.SourceID] == nil || g.Nodes[edge.TargetID] == nil {
			t.Error("dangling edge survived the deletion cascade")
		}
	}
}

func TestCancelledRunLeavesGraphIntact(t *testing.T) {
	root := t.TempDir()
	seedRepo(t, root)
	e := newTestEngine(t, root)

	if _, err := e.Index(context.Background()); err != nil {
		t.Fatal(err)
	}
	before, _ := e.Graph()

	writeFile(t, root, "a.go", "package a\n\nfunc Changed() {}\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Index(ctx); err == nil {
		t.Fatal("expected cancellation error")
	}

	// State rolled back, committed graph untouched.
	if e.State() != storage.StateReady {
		t.Errorf("state after cancel = %s", e.State())
	}
	after, _ := e.Graph()
	if after.NodeCount() != before.NodeCount() {
		t.Errorf("cancelled run changed the graph: %d vs %d nodes", after.NodeCount(), before.NodeCount())
	}
}

func TestQueriesRequireIndex(t *testing.T) {
	root := t.TempDir()
	seedRepo(t, root)
	e := newTestEngine(t, root)

	if _, err := e.Search("anything", storage.MatchAny, 10); err == nil {
		t.Error("search before indexing should fail")
	}
	if _, err := e.Important(10, ""); err == nil {
		t.Error("importance query before indexing should fail")
	}
}

func TestSearchAfterIndex(t *testing.T) {
	root := t.TempDir()
	seedRepo(t, root)
	e := newTestEngine(t, root)

	if _, err := e.Index(context.Background()); err != nil {
		t.Fatal(err)
	}

	results, err := e.Search("A1", storage.MatchAny, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected a hit for A1")
	}
	if results[0].Path != "a.go" {
		t.Errorf("hit = %+v", results[0])
	}

	// Second identical query is served from the result cache.
	cached, err := e.Search("A1", storage.MatchAny, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(cached) != len(results) {
		t.Error("cached result differs")
	}
}

func TestSearchCacheInvalidatedByCommit(t *testing.T) {
	root := t.TempDir()
	seedRepo(t, root)
	e := newTestEngine(t, root)

	if _, err := e.Index(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Search("B1", storage.MatchAny, 10); err != nil {
		t.Fatal(err)
	}

	// Remove B1; after the next run the cached hit must not come back.
	writeFile(t, root, "b.go", "package b\n\nfunc Replaced() {}\n")
	if _, err := e.Index(context.Background()); err != nil {
		t.Fatal(err)
	}

	results, err := e.Search("B1", storage.MatchAny, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("stale search result after commit: %+v", results)
	}
}

func TestFailedStateRecoversWithFullReindex(t *testing.T) {
	root := t.TempDir()
	seedRepo(t, root)
	e := newTestEngine(t, root)

	if _, err := e.Index(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Force the FAILED state as a crashed run would leave it.
	if err := e.store.SetState(storage.StateFailed); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Important(10, ""); err == nil {
		t.Error("queries must be refused while FAILED")
	}

	sum, err := e.Index(context.Background())
	if err != nil {
		t.Fatalf("recovery run failed: %v", err)
	}
	if e.State() != storage.StateReady {
		t.Errorf("state after recovery = %s", e.State())
	}
	if sum.Nodes != 8 {
		t.Errorf("recovered graph has %d nodes", sum.Nodes)
	}
	if sum.FilesReused != 0 {
		t.Errorf("recovery must be a full reindex, reused %d", sum.FilesReused)
	}
}

func TestForceReindexRebuildsEverything(t *testing.T) {
	root := t.TempDir()
	seedRepo(t, root)
	e := newTestEngine(t, root)

	if _, err := e.Index(context.Background()); err != nil {
		t.Fatal(err)
	}

	sum, err := e.Reindex(context.Background())
	if err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}
	if sum.FilesReused != 0 {
		t.Errorf("forced rebuild reused %d files", sum.FilesReused)
	}
	// Unchanged content still serves from the fragment cache.
	if sum.FilesParsed+sum.CacheHits != 3 {
		t.Errorf("expected 3 files processed, got parsed=%d hits=%d", sum.FilesParsed, sum.CacheHits)
	}
	if sum.Nodes != 8 {
		t.Errorf("rebuilt graph has %d nodes", sum.Nodes)
	}
	if e.State() != storage.StateReady {
		t.Errorf("state = %s", e.State())
	}
}

func TestStatusReportsCounts(t *testing.T) {
	root := t.TempDir()
	seedRepo(t, root)
	e := newTestEngine(t, root)

	if _, err := e.Index(context.Background()); err != nil {
		t.Fatal(err)
	}

	st, err := e.Status()
	if err != nil {
		t.Fatal(err)
	}
	if st.Index.Files != 3 || st.Index.Nodes != 8 {
		t.Errorf("status = %+v", st.Index)
	}
	if st.Index.State != storage.StateReady {
		t.Errorf("state = %s", st.Index.State)
	}
	if st.Disk == 0 {
		t.Error("disk cache should hold the parsed fragments")
	}
}

func TestImportantRanksContainersAboveLeaves(t *testing.T) {
	root := t.TempDir()
	seedRepo(t, root)
	e := newTestEngine(t, root)

	if _, err := e.Index(context.Background()); err != nil {
		t.Fatal(err)
	}

	top, err := e.Important(3, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 3 {
		t.Fatalf("expected 3 results, got %d", len(top))
	}
	for i := 1; i < len(top); i++ {
		if top[i-1].Importance < top[i].Importance {
			t.Error("importance ordering broken")
		}
	}

	files, err := e.Important(10, string(model.KindFile))
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range files {
		if n.Kind != model.KindFile {
			t.Errorf("kind filter leaked %s", n.Kind)
		}
	}
}
