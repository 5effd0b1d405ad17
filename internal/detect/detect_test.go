package detect

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codegraph/internal/config"
	"codegraph/internal/logging"
	"codegraph/internal/model"
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

func newTestDetector(root string, cfg config.IndexConfig) *Detector {
	return New(root, cfg, logging.Discard())
}

func TestScanFindsSupportedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "lib/util.py", "def x(): pass\n")
	writeFile(t, root, "web/app.ts", "export const a = 1;\n")
	writeFile(t, root, "README.md", "# readme\n")
	writeFile(t, root, "node_modules/dep/index.js", "module.exports = {}\n")
	writeFile(t, root, ".git/config", "[core]\n")

	d := newTestDetector(root, config.IndexConfig{})
	files, err := d.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d: %+v", len(files), files)
	}
	// Sorted by path.
	wantPaths := []string{"lib/util.py", "main.go", "web/app.ts"}
	for i, want := range wantPaths {
		if files[i].Path != want {
			t.Errorf("files[%d].Path = %q, want %q", i, files[i].Path, want)
		}
	}
	if files[1].Language != "go" || files[0].Language != "python" {
		t.Errorf("language detection wrong: %+v", files)
	}
	for _, f := range files {
		if len(f.Hash) != 64 {
			t.Errorf("%s: expected 64-char hex fingerprint, got %q", f.Path, f.Hash)
		}
	}
}

func TestScanSkipsTestFilesByDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "util.go", "package util\n")
	writeFile(t, root, "util_test.go", "package util\n")
	writeFile(t, root, "app.spec.ts", "describe()\n")

	d := newTestDetector(root, config.IndexConfig{})
	files, err := d.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Path != "util.go" {
		t.Errorf("expected only util.go, got %+v", files)
	}

	d = newTestDetector(root, config.IndexConfig{IncludeTests: true})
	files, err = d.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Errorf("expected 3 files with tests included, got %d", len(files))
	}
}

func TestScanHonorsExcludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "generated/api.go", "package generated\n")
	writeFile(t, root, "scratch.go", "package main\n")

	d := newTestDetector(root, config.IndexConfig{
		Excludes: []string{"generated", "scratch.go"},
	})
	files, err := d.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Path != "main.go" {
		t.Errorf("excludes not applied: %+v", files)
	}
}

func TestScanCancellation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newTestDetector(root, config.IndexConfig{})
	if _, err := d.Scan(ctx); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestHashStableAcrossScans(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")

	d := newTestDetector(root, config.IndexConfig{})
	first, err := d.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := d.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first[0].Hash != second[0].Hash {
		t.Error("hash must be stable for unchanged content")
	}
	if first[0].Hash != HashBytes([]byte("package main\n")) {
		t.Error("file hash must match HashBytes of the same content")
	}
}

func TestPartition(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	writeFile(t, root, "b.go", "package b\n")
	writeFile(t, root, "c.go", "package c\n")

	d := newTestDetector(root, config.IndexConfig{})
	files, err := d.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	records := map[string]model.FileRecord{
		// a.go unchanged.
		"a.go": {Path: "a.go", ContentHash: files[0].Hash, NodeIDs: []int64{1, 2}, LastIndexedAt: time.Now()},
		// b.go has a stale hash.
		"b.go": {Path: "b.go", ContentHash: "stale", NodeIDs: []int64{3}},
		// gone.go no longer exists on disk.
		"gone.go": {Path: "gone.go", ContentHash: "whatever", NodeIDs: []int64{4, 5}},
	}

	res := d.Partition(files, records)

	if len(res.Reusable) != 1 || res.Reusable[0].Path != "a.go" {
		t.Errorf("reusable = %+v", res.Reusable)
	}
	// b.go changed, c.go is new.
	if len(res.Dirty) != 2 || res.Dirty[0].Path != "b.go" || res.Dirty[1].Path != "c.go" {
		t.Errorf("dirty = %+v", res.Dirty)
	}
	if len(res.Deleted) != 1 || res.Deleted[0].Path != "gone.go" {
		t.Errorf("deleted = %+v", res.Deleted)
	}
	if len(res.Deleted[0].NodeIDs) != 2 {
		t.Error("deleted record must keep its node ids for retirement")
	}
}

func TestPartitionEmptyRecordsMarksAllDirty(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	writeFile(t, root, "b.go", "package b\n")

	d := newTestDetector(root, config.IndexConfig{})
	files, _ := d.Scan(context.Background())

	res := d.Partition(files, nil)
	if len(res.Dirty) != 2 || len(res.Reusable) != 0 || len(res.Deleted) != 0 {
		t.Errorf("first run must mark everything dirty: %+v", res)
	}
}
