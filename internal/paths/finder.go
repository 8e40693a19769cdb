// Package paths discovers and ranks significant multi-hop connections
// between two entities in a graph snapshot.
package paths

import (
	"log/slog"
	"sort"
	"time"

	"github.com/graphintel/insight-engine/internal/graph"
)

const (
	maxResults = 5

	// DefaultMaxFanout bounds per-node expansion on dense graphs.
	DefaultMaxFanout = 20

	significanceHigh   = 0.5
	significanceMedium = 0.2
)

// Result is one discovered path. PathStrength is the product of the edge
// weights along the path, so it never increases as hops are added.
type Result struct {
	SourceID     string    `json:"source_id"`
	TargetID     string    `json:"target_id"`
	Path         []string  `json:"path"`
	EdgeWeights  []float64 `json:"edge_weights"`
	PathStrength float64   `json:"path_strength"`
	Significance string    `json:"significance"`
}

// Finder enumerates simple paths between entities with bounded fan-out.
type Finder struct {
	maxFanout int
	logger    *slog.Logger
}

// NewFinder creates a new path finder
func NewFinder(maxFanout int, logger *slog.Logger) *Finder {
	if maxFanout <= 0 {
		maxFanout = DefaultMaxFanout
	}
	return &Finder{
		maxFanout: maxFanout,
		logger:    logger,
	}
}

// FindPaths returns up to 5 simple paths from source to target within
// maxHops edges, ordered by path strength descending. Unknown entity ids
// surface as *graph.EntityNotFoundError; an exhausted search returns an
// empty list.
func (f *Finder) FindPaths(snapshot *graph.Snapshot, sourceID, targetID string, maxHops int) ([]*Result, error) {
	startTime := time.Now()

	source, ok := snapshot.Index(sourceID)
	if !ok {
		return nil, &graph.EntityNotFoundError{
			Op:              "find_paths",
			EntityID:        sourceID,
			SnapshotVersion: snapshot.Version,
		}
	}
	target, ok := snapshot.Index(targetID)
	if !ok {
		return nil, &graph.EntityNotFoundError{
			Op:              "find_paths",
			EntityID:        targetID,
			SnapshotVersion: snapshot.Version,
		}
	}

	results := []*Result{}
	if source == target || maxHops < 1 {
		return results, nil
	}

	type partial struct {
		nodes    []int
		weights  []float64
		strength float64
		visited  map[int]bool
	}

	frontier := []*partial{{
		nodes:    []int{source},
		strength: 1.0,
		visited:  map[int]bool{source: true},
	}}

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		next := make([]*partial, 0, len(frontier))

		for _, p := range frontier {
			last := p.nodes[len(p.nodes)-1]
			for _, neighbor := range f.strongestNeighbors(snapshot, last) {
				if p.visited[neighbor] {
					continue
				}

				weight := snapshot.Weight(last, neighbor)
				extended := &partial{
					nodes:    append(append([]int{}, p.nodes...), neighbor),
					weights:  append(append([]float64{}, p.weights...), weight),
					strength: p.strength * weight,
				}

				if neighbor == target {
					results = append(results, f.toResult(snapshot, extended.nodes, extended.weights, extended.strength))
					continue
				}

				extended.visited = make(map[int]bool, len(p.visited)+1)
				for node := range p.visited {
					extended.visited[node] = true
				}
				extended.visited[neighbor] = true
				next = append(next, extended)
			}
		}

		frontier = next
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].PathStrength > results[j].PathStrength
	})
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	f.logger.Info("Path search completed",
		"source_id", sourceID,
		"target_id", targetID,
		"max_hops", maxHops,
		"paths_found", len(results),
		"duration_ms", time.Since(startTime).Milliseconds())

	return results, nil
}

// strongestNeighbors returns a node's neighbors ordered by edge weight
// descending, capped at the configured fan-out.
func (f *Finder) strongestNeighbors(snapshot *graph.Snapshot, node int) []int {
	neighbors := snapshot.Neighbors(node)
	sort.SliceStable(neighbors, func(i, j int) bool {
		return snapshot.Weight(node, neighbors[i]) > snapshot.Weight(node, neighbors[j])
	})
	if len(neighbors) > f.maxFanout {
		neighbors = neighbors[:f.maxFanout]
	}
	return neighbors
}

func (f *Finder) toResult(snapshot *graph.Snapshot, nodes []int, weights []float64, strength float64) *Result {
	path := make([]string, len(nodes))
	for i, node := range nodes {
		path[i] = snapshot.Entity(node).ID
	}

	return &Result{
		SourceID:     path[0],
		TargetID:     path[len(path)-1],
		Path:         path,
		EdgeWeights:  weights,
		PathStrength: strength,
		Significance: Significance(strength),
	}
}

// Significance buckets a path strength. Lower bounds are inclusive.
func Significance(strength float64) string {
	switch {
	case strength >= significanceHigh:
		return "high"
	case strength >= significanceMedium:
		return "medium"
	default:
		return "low"
	}
}
