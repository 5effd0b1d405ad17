// Package pool runs per-file parse jobs across a bounded set of workers.
// Each job consults the memory cache, then the disk cache, and only parses
// when both miss. Results for all files are collected before the caller
// merges, so a failed file never blocks the others.
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"codegraph/internal/cache"
	"codegraph/internal/detect"
	"codegraph/internal/logging"
	"codegraph/internal/model"
	"codegraph/internal/parser"
)

// Result carries everything a batch of parse jobs produced. FailedPaths
// lists files that could not be parsed; the run proceeds without them.
type Result struct {
	Fragments   []*model.Fragment
	FailedPaths []string
	Warnings    []string
	CacheHits   int
	Parsed      int
}

// Pool fans parse jobs out over a fixed number of workers.
type Pool struct {
	workers  int
	registry *parser.Registry
	memory   *cache.Memory
	disk     *cache.Disk
	logger   *logging.Logger
}

// New builds a pool. workers <= 0 selects GOMAXPROCS. The disk cache may be
// nil when persistence is disabled.
func New(workers int, registry *parser.Registry, memory *cache.Memory, disk *cache.Disk, logger *logging.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		workers:  workers,
		registry: registry,
		memory:   memory,
		disk:     disk,
		logger:   logger.WithComponent("pool"),
	}
}

// Process parses every dirty file and returns the collected fragments. The
// context cancels between files: jobs already running finish, queued jobs
// are abandoned. Per-file parse failures are recorded, not returned as an
// error; only cancellation fails the whole batch.
func (p *Pool) Process(ctx context.Context, files []detect.FileInfo) (*Result, error) {
	res := &Result{}
	if len(files) == 0 {
		return res, nil
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, p.workers)

	for _, f := range files {
		f := f
		if err := ctx.Err(); err != nil {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if err := ctx.Err(); err != nil {
			break
		}

		g.Go(func() error {
			defer func() { <-sem }()

			frag, fromCache, err := p.processFile(f)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.FailedPaths = append(res.FailedPaths, f.Path)
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", f.Path, err))
				p.logger.Warn("parse failed", logging.Fields{"path": f.Path, "error": err.Error()})
				return nil
			}
			if fromCache {
				res.CacheHits++
			} else {
				res.Parsed++
			}
			for _, msg := range frag.Errors {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %s", f.Path, msg))
			}
			res.Fragments = append(res.Fragments, frag)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Workers finish in arbitrary order; merging expects path order.
	sort.Slice(res.Fragments, func(i, j int) bool {
		return res.Fragments[i].Path < res.Fragments[j].Path
	})
	sort.Strings(res.FailedPaths)
	sort.Strings(res.Warnings)
	return res, nil
}

// processFile resolves one file through the cache tiers. Disk hits are
// promoted into the memory tier; parses populate both.
func (p *Pool) processFile(f detect.FileInfo) (*model.Fragment, bool, error) {
	key := cache.Key(f.Hash, cache.CategoryFragment)

	if p.memory != nil {
		if raw, ok := p.memory.Get(key); ok {
			var frag model.Fragment
			if err := json.Unmarshal(raw, &frag); err == nil && frag.Hash == f.Hash {
				return &frag, true, nil
			}
			p.memory.Delete(key)
		}
	}

	if p.disk != nil {
		if frag, ok := p.disk.Get(f.Path, f.Hash); ok {
			p.cacheInMemory(key, frag)
			return frag, true, nil
		}
	}

	frag, err := p.parse(f)
	if err != nil {
		return nil, false, err
	}

	p.cacheInMemory(key, frag)
	if p.disk != nil {
		if err := p.disk.Put(f.Path, f.Hash, frag); err != nil {
			p.logger.Warn("disk cache write failed", logging.Fields{"path": f.Path, "error": err.Error()})
		}
	}
	return frag, false, nil
}

func (p *Pool) parse(f detect.FileInfo) (*model.Fragment, error) {
	port, ok := p.registry.ForPath(f.Path)
	if !ok {
		return nil, fmt.Errorf("no parser for %s", f.Path)
	}
	content, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	frag, err := port.Parse(f.Path, content)
	if err != nil {
		return nil, err
	}
	frag.Hash = f.Hash
	return frag, nil
}

func (p *Pool) cacheInMemory(key string, frag *model.Fragment) {
	if p.memory == nil {
		return
	}
	raw, err := json.Marshal(frag)
	if err != nil {
		return
	}
	p.memory.Put(key, raw, cache.CategoryFragment)
}
