// Package score ranks graph nodes by structural importance. The core is a
// PageRank power iteration over the merged graph with a uniform teleport
// vector, adjusted by container and in-degree bonuses and normalized into
// [0,1]. Scoring a graph twice always produces identical values.
package score

import (
	"sort"
	"strings"

	"codegraph/internal/config"
	"codegraph/internal/logging"
	"codegraph/internal/model"
)

// Node tags assigned during scoring.
const (
	TagStructural = "structural"
	TagHighlyUsed = "highly-used"
	TagComplex    = "complex"
	TagEntrypoint = "entrypoint"
	TagTest       = "test"
	TagIsolated   = "isolated"
)

type edgeEntry struct {
	target int
	weight float64
}

// Scorer computes importance scores in place on a merged graph.
type Scorer struct {
	cfg    config.ScoringConfig
	logger *logging.Logger
}

func New(cfg config.ScoringConfig, logger *logging.Logger) *Scorer {
	if cfg.Damping <= 0 || cfg.Damping >= 1 {
		cfg.Damping = config.DefaultConfig().Scoring.Damping
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = config.DefaultConfig().Scoring.Iterations
	}
	if cfg.HighUseThreshold <= 0 {
		cfg.HighUseThreshold = config.DefaultConfig().Scoring.HighUseThreshold
	}
	return &Scorer{cfg: cfg, logger: logger.WithComponent("score")}
}

// Score ranks every node and writes Importance and Tags onto the graph's
// nodes. Node iteration follows sorted ids, so repeated runs over the same
// graph are bit-identical.
func (s *Scorer) Score(g *model.Graph) {
	if g == nil || g.NodeCount() == 0 {
		return
	}

	ids := g.SortedNodeIDs()
	idx := make(map[int64]int, len(ids))
	for i, id := range ids {
		idx[id] = i
	}

	n := len(ids)
	out := make([][]edgeEntry, n)
	inDegree := make([]int, n)
	containedCount := make([]int, n)

	for _, e := range g.Edges {
		si, ok1 := idx[e.SourceID]
		ti, ok2 := idx[e.TargetID]
		if !ok1 || !ok2 {
			continue
		}
		w := e.Weight
		if w <= 0 {
			w = 1.0
		}
		out[si] = append(out[si], edgeEntry{target: ti, weight: w})
		inDegree[ti]++
		if e.Kind == model.EdgeContains {
			containedCount[si]++
		}
	}

	scores := s.pagerank(out, n)

	// Structural and usage bonuses on top of the raw rank.
	for i, id := range ids {
		node := g.Nodes[id]
		if containedCount[i] > 0 && isContainer(node.Kind) {
			scores[i] += s.cfg.ContainerBonus
		}
		if inDegree[i] >= s.cfg.HighUseThreshold {
			scores[i] += s.cfg.InDegreeBonus
		}
	}

	normalize(scores)

	for i, id := range ids {
		node := g.Nodes[id]
		node.Importance = scores[i]
		s.tag(node, inDegree[i], containedCount[i], len(out[i]))
	}

	s.logger.Debug("scored graph", logging.Fields{"nodes": n, "edges": g.EdgeCount()})
}

// pagerank runs a fixed number of power iterations with a uniform teleport
// vector. Dangling mass is redistributed uniformly so scores still sum to 1.
func (s *Scorer) pagerank(out [][]edgeEntry, n int) []float64 {
	teleport := 1.0 / float64(n)

	outWeight := make([]float64, n)
	for i, edges := range out {
		for _, e := range edges {
			outWeight[i] += e.weight
		}
	}

	scores := make([]float64, n)
	for i := range scores {
		scores[i] = teleport
	}

	next := make([]float64, n)
	for iter := 0; iter < s.cfg.Iterations; iter++ {
		dangling := 0.0
		for i := range next {
			next[i] = 0
		}
		for i, edges := range out {
			if outWeight[i] == 0 {
				dangling += scores[i]
				continue
			}
			contrib := scores[i] / outWeight[i]
			for _, e := range edges {
				next[e.target] += contrib * e.weight
			}
		}
		share := dangling / float64(n)
		for i := range next {
			next[i] = s.cfg.Damping*(next[i]+share) + (1-s.cfg.Damping)*teleport
		}
		scores, next = next, scores
	}
	return scores
}

// tag classifies the node from its topology and path. Tags are sorted by
// AddTag so serialized output stays stable.
func (s *Scorer) tag(node *model.CodeNode, inDeg, contained, outDeg int) {
	node.Tags = nil

	if isContainer(node.Kind) && contained > 0 {
		node.AddTag(TagStructural)
	}
	if inDeg >= s.cfg.HighUseThreshold {
		node.AddTag(TagHighlyUsed)
	}
	if outDeg >= 2*s.cfg.HighUseThreshold &&
		(node.Kind == model.KindFunction || node.Kind == model.KindMethod) {
		node.AddTag(TagComplex)
	}
	if isEntrypoint(node) {
		node.AddTag(TagEntrypoint)
	}
	if isTestPath(node.Path) {
		node.AddTag(TagTest)
	}
	if inDeg == 0 && outDeg == 0 && node.Kind != model.KindFile {
		node.AddTag(TagIsolated)
	}
}

func isContainer(kind model.NodeKind) bool {
	switch kind {
	case model.KindFile, model.KindClass, model.KindInterface:
		return true
	}
	return false
}

func isEntrypoint(node *model.CodeNode) bool {
	if node.Kind != model.KindFunction && node.Kind != model.KindFile {
		return false
	}
	switch node.Name {
	case "main", "Main", "__main__", "index.js", "index.ts", "main.go", "main.py", "app.py":
		return true
	}
	return false
}

func isTestPath(path string) bool {
	base := path[strings.LastIndex(path, "/")+1:]
	return strings.HasSuffix(base, "_test.go") ||
		strings.HasPrefix(base, "test_") ||
		strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.") ||
		strings.HasPrefix(path, "tests/")
}

// normalize min-max scales scores into [0,1]. A flat graph where every node
// scores the same maps everything to 1.
func normalize(scores []float64) {
	if len(scores) == 0 {
		return
	}
	min, max := scores[0], scores[0]
	for _, v := range scores[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max == min {
		for i := range scores {
			scores[i] = 1.0
		}
		return
	}
	span := max - min
	for i := range scores {
		scores[i] = (scores[i] - min) / span
	}
}

// Top returns the n highest-importance nodes of a scored graph, ties broken
// by ascending id.
func Top(g *model.Graph, n int) []*model.CodeNode {
	nodes := make([]*model.CodeNode, 0, g.NodeCount())
	for _, id := range g.SortedNodeIDs() {
		nodes = append(nodes, g.Nodes[id])
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Importance != nodes[j].Importance {
			return nodes[i].Importance > nodes[j].Importance
		}
		return nodes[i].ID < nodes[j].ID
	})
	if n > 0 && len(nodes) > n {
		nodes = nodes[:n]
	}
	return nodes
}
