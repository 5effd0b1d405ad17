// Package engine wires the indexing pipeline together: scan, partition,
// parse through the cache tiers, merge, score, commit. It owns the index
// lifecycle state machine and the query surface over the committed graph.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"codegraph/internal/cache"
	"codegraph/internal/config"
	"codegraph/internal/detect"
	"codegraph/internal/logging"
	"codegraph/internal/merge"
	"codegraph/internal/model"
	"codegraph/internal/parser"
	"codegraph/internal/pool"
	"codegraph/internal/score"
	"codegraph/internal/storage"
)

// RunSummary reports what one indexing run did.
type RunSummary struct {
	RunID        string        `json:"runId"`
	FilesScanned int           `json:"filesScanned"`
	FilesParsed  int           `json:"filesParsed"`
	FilesReused  int           `json:"filesReused"`
	FilesFailed  int           `json:"filesFailed"`
	FilesDeleted int           `json:"filesDeleted"`
	CacheHits    int           `json:"cacheHits"`
	Nodes        int           `json:"nodes"`
	Edges        int           `json:"edges"`
	FullReindex  bool          `json:"fullReindex"`
	Unchanged    bool          `json:"unchanged"`
	Duration     time.Duration `json:"duration"`
	Warnings     []string      `json:"warnings,omitempty"`
}

// Engine coordinates the indexing pipeline over one repository.
type Engine struct {
	cfg      *config.Config
	repoRoot string

	db       *storage.DB
	store    *storage.Store
	detector *detect.Detector
	pool     *pool.Pool
	merger   *merge.Merger
	scorer   *score.Scorer
	memory   *cache.Memory
	disk     *cache.Disk
	logger   *logging.Logger
}

// New builds an engine for the repository, opening the database and both
// cache tiers under <repoRoot>/.codegraph. The memory tier's background
// sweep starts immediately; Close stops it.
func New(repoRoot string, cfg *config.Config, logger *logging.Logger) (*Engine, error) {
	db, err := storage.Open(repoRoot, logger)
	if err != nil {
		return nil, err
	}

	memory := cache.NewMemory(memoryConfig(cfg), logger)
	memory.Start()

	var disk *cache.Disk
	if cfg.Cache.DiskEnabled {
		disk, err = cache.NewDisk(filepath.Join(repoRoot, config.DataDirName, "fragments"), logger)
		if err != nil {
			memory.Stop()
			db.Close()
			return nil, err
		}
	}

	registry := parser.NewRegistry()
	e := &Engine{
		cfg:      cfg,
		repoRoot: repoRoot,
		db:       db,
		store:    storage.NewStore(db, logger),
		detector: detect.New(repoRoot, cfg.Index, logger),
		pool:     pool.New(cfg.Index.Workers, registry, memory, disk, logger),
		merger:   merge.New(logger),
		scorer:   score.New(cfg.Scoring, logger),
		memory:   memory,
		disk:     disk,
		logger:   logger.WithComponent("engine"),
	}
	return e, nil
}

// Close releases the engine's resources.
func (e *Engine) Close() error {
	e.memory.Stop()
	if e.disk != nil {
		e.disk.Close()
	}
	return e.db.Close()
}

// memoryConfig translates the configured category policy table into the
// memory tier's form.
func memoryConfig(cfg *config.Config) cache.MemoryConfig {
	policies := make(map[cache.Category]cache.Policy, len(cfg.Cache.Categories))
	for name, p := range cfg.Cache.Categories {
		policies[cache.Category(name)] = cache.Policy{
			MaxEntryBytes:   p.MaxEntryBytes,
			TTL:             time.Duration(p.TTLSeconds) * time.Second,
			RefreshOnAccess: p.RefreshOnAccess,
		}
	}
	return cache.MemoryConfig{
		MaxBytes:      cfg.Cache.MemoryBudgetBytes,
		SweepInterval: time.Duration(cfg.Cache.SweepIntervalSeconds) * time.Second,
		Policies:      policies,
		DefaultPolicy: cache.Policy{MaxEntryBytes: 1 << 20, TTL: 24 * time.Hour},
	}
}

// Index runs one incremental indexing pass. A FAILED index is recovered by
// resetting to a full reindex first. Cancellation or failure before commit
// leaves the previously committed graph untouched.
func (e *Engine) Index(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	runID := uuid.NewString()

	prevState := e.store.State()
	if prevState == storage.StateFailed {
		e.logger.Warn("index is in FAILED state, forcing full reindex", nil)
		if err := e.store.Reset(); err != nil {
			return nil, fmt.Errorf("reset failed index: %w", err)
		}
		prevState = storage.StateUnindexed
	}

	if err := e.store.SetState(storage.StateIndexing); err != nil {
		return nil, err
	}
	// Until commit, any exit must put the lifecycle state back.
	committed := false
	defer func() {
		if !committed {
			e.store.SetState(prevState)
		}
	}()

	records, err := e.store.LoadFileRecords()
	if err != nil {
		return nil, err
	}

	files, err := e.detector.Scan(ctx)
	if err != nil {
		return nil, err
	}

	part := e.detector.Partition(files, records)
	summary := &RunSummary{
		RunID:        runID,
		FilesScanned: len(files),
		FilesReused:  len(part.Reusable),
		FilesDeleted: len(part.Deleted),
	}

	if len(part.Dirty) == 0 && len(part.Deleted) == 0 && prevState == storage.StateReady {
		summary.Unchanged = true
		summary.Duration = time.Since(start)
		st, statErr := e.store.Stats()
		if statErr == nil {
			summary.Nodes, summary.Edges = st.Nodes, st.Edges
		}
		e.store.SetState(storage.StateReady)
		committed = true
		return summary, nil
	}

	if len(files) > 0 {
		dirtyPct := len(part.Dirty) * 100 / len(files)
		summary.FullReindex = dirtyPct >= e.cfg.Index.IncrementalThreshold
	}

	poolRes, err := e.pool.Process(ctx, part.Dirty)
	if err != nil {
		return nil, err
	}
	summary.FilesParsed = poolRes.Parsed
	summary.CacheHits = poolRes.CacheHits
	summary.FilesFailed = len(poolRes.FailedPaths)
	summary.Warnings = append(summary.Warnings, poolRes.Warnings...)

	// Files that failed to parse keep their previous nodes and records; the
	// stale hash retries them next run.
	retire := make(map[string]bool, len(poolRes.Fragments)+len(part.Deleted))
	for _, frag := range poolRes.Fragments {
		retire[frag.Path] = true
	}
	deletedPaths := make([]string, 0, len(part.Deleted))
	for _, rec := range part.Deleted {
		retire[rec.Path] = true
		deletedPaths = append(deletedPaths, rec.Path)
	}

	prev, err := e.store.LoadGraph()
	if err != nil {
		return nil, err
	}
	base := pruneGraph(prev, retire)

	merged := e.merger.Merge(merge.Input{
		Base:      base,
		Fragments: poolRes.Fragments,
		NextID:    e.store.NextNodeID(),
	})
	summary.Warnings = append(summary.Warnings, merged.Warnings...)

	e.scorer.Score(merged.Graph)

	dirtyRecords := make([]model.FileRecord, 0, len(poolRes.Fragments))
	hashes := make(map[string]detect.FileInfo, len(part.Dirty))
	for _, f := range part.Dirty {
		hashes[f.Path] = f
	}
	for _, frag := range poolRes.Fragments {
		f := hashes[frag.Path]
		dirtyRecords = append(dirtyRecords, model.FileRecord{
			Path:        frag.Path,
			ContentHash: f.Hash,
			Language:    frag.Language,
			NodeIDs:     merged.FileNodes[frag.Path],
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = e.store.CommitRun(storage.CommitInput{
		Graph:        merged.Graph,
		DirtyRecords: dirtyRecords,
		DeletedPaths: deletedPaths,
		NextNodeID:   merged.NextID,
		StateID:      runID,
	})
	if err != nil {
		e.store.SetState(storage.StateFailed)
		committed = true // state is deliberately FAILED, not prevState
		return nil, fmt.Errorf("commit run: %w", err)
	}
	committed = true

	// Committed state changed: cached query results are stale, and deleted
	// files have no business keeping disk cache entries.
	e.memory.InvalidateCategory(cache.CategorySearchResult)
	if e.disk != nil {
		for _, path := range deletedPaths {
			if err := e.disk.Invalidate(path); err != nil {
				e.logger.Warn("disk cache invalidation failed", logging.Fields{
					"path":  path,
					"error": err.Error(),
				})
			}
		}
	}

	summary.Nodes = merged.Graph.NodeCount()
	summary.Edges = merged.Graph.EdgeCount()
	summary.Duration = time.Since(start)

	e.logger.Info("indexing run complete", logging.Fields{
		"run_id":   runID,
		"scanned":  summary.FilesScanned,
		"parsed":   summary.FilesParsed,
		"reused":   summary.FilesReused,
		"deleted":  summary.FilesDeleted,
		"failed":   summary.FilesFailed,
		"nodes":    summary.Nodes,
		"edges":    summary.Edges,
		"duration": summary.Duration.String(),
	})
	return summary, nil
}

// Reindex discards the committed graph and rebuilds it from scratch. Cached
// fragments keyed by content hash stay valid and still serve the rebuild.
func (e *Engine) Reindex(ctx context.Context) (*RunSummary, error) {
	if err := e.store.Reset(); err != nil {
		return nil, fmt.Errorf("reset index: %w", err)
	}
	return e.Index(ctx)
}

// pruneGraph returns the subgraph excluding nodes owned by retired paths.
// Edges are kept when their concrete endpoints survive; symbolic edges from
// surviving sources are kept for re-resolution.
func pruneGraph(g *model.Graph, retire map[string]bool) *model.Graph {
	base := model.NewGraph()
	for _, id := range g.SortedNodeIDs() {
		n := g.Nodes[id]
		if retire[n.Path] {
			continue
		}
		base.AddNode(n)
	}
	for _, e := range g.Edges {
		if base.Nodes[e.SourceID] == nil {
			continue
		}
		if e.TargetRef == "" && base.Nodes[e.TargetID] == nil {
			continue
		}
		base.Edges = append(base.Edges, e)
	}
	return base
}

// State returns the current index lifecycle state.
func (e *Engine) State() string { return e.store.State() }

// Status combines store statistics with live cache counters.
type Status struct {
	Index storage.Stats `json:"index"`
	Cache cache.Stats   `json:"cache"`
	Disk  int           `json:"diskEntries"`
}

func (e *Engine) Status() (*Status, error) {
	st, err := e.store.Stats()
	if err != nil {
		return nil, err
	}
	status := &Status{Index: *st, Cache: e.memory.Stats()}
	if e.disk != nil {
		status.Disk = e.disk.EntryCount()
	}
	return status, nil
}

// Search queries the committed graph. Results are cached in the memory tier
// keyed by the graph state id, so they expire naturally and never survive a
// commit.
func (e *Engine) Search(query string, mode storage.MatchMode, limit int) ([]storage.SearchResult, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}

	key := e.queryCacheKey("search", string(mode), fmt.Sprint(limit), query)
	if raw, ok := e.memory.Get(key); ok {
		var results []storage.SearchResult
		if err := json.Unmarshal(raw, &results); err == nil {
			return results, nil
		}
	}

	results, err := e.store.Search(query, mode, limit)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(results); err == nil {
		e.memory.Put(key, raw, cache.CategorySearchResult)
	}
	return results, nil
}

// Important returns the highest-importance nodes, optionally filtered by kind.
func (e *Engine) Important(limit int, kind string) ([]*model.CodeNode, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}
	return e.store.QueryImportant(limit, kind)
}

// FileNodes returns the committed nodes of one file.
func (e *Engine) FileNodes(path string) ([]*model.CodeNode, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}
	return e.store.NodesForFile(path)
}

// Graph loads the full committed graph, for export.
func (e *Engine) Graph() (*model.Graph, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}
	return e.store.LoadGraph()
}

func (e *Engine) requireReady() error {
	switch state := e.store.State(); state {
	case storage.StateReady:
		return nil
	case storage.StateUnindexed:
		return fmt.Errorf("repository is not indexed yet, run index first")
	default:
		return fmt.Errorf("index is %s, queries unavailable", state)
	}
}

func (e *Engine) queryCacheKey(parts ...string) string {
	h := detect.HashBytes([]byte(e.store.StateID() + "\x00" + joinParts(parts)))
	return cache.Key(h, cache.CategorySearchResult)
}

func joinParts(parts []string) string {
	out := ""
	for _, p := range parts {
		out += p + "\x00"
	}
	return out
}
