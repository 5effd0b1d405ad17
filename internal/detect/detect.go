// Package detect walks the repository and partitions files into dirty,
// reusable, and deleted sets by comparing content fingerprints against the
// records of the previous run.
package detect

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"codegraph/internal/config"
	"codegraph/internal/logging"
	"codegraph/internal/model"
	"codegraph/internal/parser"
)

// Directories never worth scanning, independent of configured excludes.
var skipDirs = map[string]bool{
	".git":             true,
	config.DataDirName: true,
	"vendor":           true,
	"node_modules":     true,
	"__pycache__":      true,
	"dist":             true,
	"build":            true,
	".cache":           true,
}

// FileInfo describes one source file found in the repository.
type FileInfo struct {
	Path     string // relative to the repo root, forward slashes
	AbsPath  string
	Hash     string
	Language string
	Size     int64
}

// Result partitions the repository against the previous run's records.
type Result struct {
	Dirty    []FileInfo         // new files and files whose content changed
	Reusable []FileInfo         // unchanged files whose nodes carry over
	Deleted  []model.FileRecord // indexed files no longer on disk
}

// Detector scans a repository root for supported source files.
type Detector struct {
	repoRoot     string
	excludes     []string
	includeTests bool
	logger       *logging.Logger
}

func New(repoRoot string, cfg config.IndexConfig, logger *logging.Logger) *Detector {
	return &Detector{
		repoRoot:     repoRoot,
		excludes:     cfg.Excludes,
		includeTests: cfg.IncludeTests,
		logger:       logger.WithComponent("detect"),
	}
}

// Scan walks the repository and fingerprints every supported source file.
// Unreadable files are skipped with a warning rather than failing the scan.
// Results are sorted by path so downstream work is deterministic.
func (d *Detector) Scan(ctx context.Context) ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.Walk(d.repoRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if info.IsDir() {
			base := filepath.Base(path)
			if skipDirs[base] || (path != d.repoRoot && strings.HasPrefix(base, ".")) {
				return filepath.SkipDir
			}
			rel, _ := filepath.Rel(d.repoRoot, path)
			if rel != "." && d.isExcluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(d.repoRoot, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		lang, ok := parser.LanguageForPath(rel)
		if !ok {
			return nil
		}
		if !d.includeTests && isTestFile(rel) {
			return nil
		}
		if d.isExcluded(rel) {
			return nil
		}

		hash, hashErr := hashFile(path)
		if hashErr != nil {
			d.logger.Warn("skipping unreadable file", logging.Fields{
				"path":  rel,
				"error": hashErr.Error(),
			})
			return nil
		}

		files = append(files, FileInfo{
			Path:     rel,
			AbsPath:  path,
			Hash:     hash,
			Language: lang,
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", d.repoRoot, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Partition compares a scan against the previous run's file records. A file
// is dirty when it is new or its hash differs; unchanged files are reusable
// and keep their node ids; records with no file on disk are deleted.
func (d *Detector) Partition(current []FileInfo, records map[string]model.FileRecord) Result {
	var res Result
	seen := make(map[string]bool, len(current))

	for _, f := range current {
		seen[f.Path] = true
		prev, ok := records[f.Path]
		if !ok || prev.ContentHash != f.Hash {
			res.Dirty = append(res.Dirty, f)
		} else {
			res.Reusable = append(res.Reusable, f)
		}
	}

	deletedPaths := make([]string, 0)
	for path := range records {
		if !seen[path] {
			deletedPaths = append(deletedPaths, path)
		}
	}
	sort.Strings(deletedPaths)
	for _, path := range deletedPaths {
		res.Deleted = append(res.Deleted, records[path])
	}

	d.logger.Debug("partitioned scan", logging.Fields{
		"dirty":    len(res.Dirty),
		"reusable": len(res.Reusable),
		"deleted":  len(res.Deleted),
	})
	return res
}

// isExcluded matches a relative path against configured exclude patterns.
// Patterns are glob matched and also treated as directory prefixes, so
// "generated" excludes "generated/api.go".
func (d *Detector) isExcluded(path string) bool {
	normalized := filepath.ToSlash(path)
	for _, pattern := range d.excludes {
		p := filepath.ToSlash(pattern)
		if matched, _ := filepath.Match(p, normalized); matched {
			return true
		}
		dir := strings.TrimSuffix(p, "/") + "/"
		if strings.HasPrefix(normalized, dir) {
			return true
		}
		if normalized == strings.TrimSuffix(p, "/") {
			return true
		}
	}
	return false
}

func isTestFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, "_test.go") ||
		strings.HasPrefix(base, "test_") ||
		strings.HasSuffix(base, ".test.js") ||
		strings.HasSuffix(base, ".test.ts") ||
		strings.HasSuffix(base, ".spec.js") ||
		strings.HasSuffix(base, ".spec.ts")
}

// hashFile fingerprints file content with BLAKE2b-256.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes fingerprints in-memory content the same way hashFile does.
func HashBytes(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}
