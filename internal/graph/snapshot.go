package graph

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Snapshot is an immutable in-memory copy of the graph used for one
// analysis batch. The adjacency matrix is symmetric with zero diagonal
// and weights in [0,1]. Snapshots are never mutated after construction;
// the version counter doubles as a cache key for derived results.
type Snapshot struct {
	Version       int64
	Entities      []*Entity
	Relationships []*Relationship
	LoadedAt      time.Time

	index     map[string]int
	adjacency [][]float64
}

// Size returns the number of entities in the snapshot.
func (s *Snapshot) Size() int {
	return len(s.Entities)
}

// Index returns the adjacency row index for an entity id.
func (s *Snapshot) Index(id string) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}

// Entity returns the entity at a row index.
func (s *Snapshot) Entity(i int) *Entity {
	return s.Entities[i]
}

// Weight returns the edge weight between two row indices, zero when no
// relationship exists.
func (s *Snapshot) Weight(i, j int) float64 {
	return s.adjacency[i][j]
}

// Adjacency returns the weighted adjacency matrix. Callers must treat it
// as read-only.
func (s *Snapshot) Adjacency() [][]float64 {
	return s.adjacency
}

// Neighbors returns the row indices adjacent to i.
func (s *Snapshot) Neighbors(i int) []int {
	var out []int
	for j, w := range s.adjacency[i] {
		if w > 0 {
			out = append(out, j)
		}
	}
	return out
}

// Degree returns the weighted degree of row i.
func (s *Snapshot) Degree(i int) float64 {
	total := 0.0
	for _, w := range s.adjacency[i] {
		total += w
	}
	return total
}

// EdgeCount returns the number of distinct undirected edges.
func (s *Snapshot) EdgeCount() int {
	count := 0
	n := len(s.adjacency)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if s.adjacency[i][j] > 0 {
				count++
			}
		}
	}
	return count
}

// Loader builds immutable snapshots from the external graph repository.
type Loader struct {
	repo    Repository
	weights *WeightModel
	logger  *slog.Logger
	version atomic.Int64
}

// NewLoader creates a new snapshot loader
func NewLoader(repo Repository, weights *WeightModel, logger *slog.Logger) *Loader {
	return &Loader{
		repo:    repo,
		weights: weights,
		logger:  logger,
	}
}

// LoadSnapshot reads all entities and relationships and assembles a
// versioned snapshot. Relationships referencing a missing entity are
// dropped with a warning. A repository failure surfaces as
// *DataAccessError with no internal retries.
func (l *Loader) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	startTime := time.Now()

	entities, err := l.repo.GetEntities(ctx)
	if err != nil {
		return nil, &DataAccessError{Op: "load_snapshot", Err: err}
	}

	relationships, err := l.repo.GetRelationships(ctx)
	if err != nil {
		return nil, &DataAccessError{Op: "load_snapshot", Err: err}
	}

	snapshot := l.Build(entities, relationships)

	l.logger.Info("Snapshot loaded",
		"version", snapshot.Version,
		"entities", len(snapshot.Entities),
		"relationships", len(snapshot.Relationships),
		"duration_ms", time.Since(startTime).Milliseconds())

	return snapshot, nil
}

// Build assembles a snapshot from already-fetched entities and
// relationships, assigning the next version number.
func (l *Loader) Build(entities []*Entity, relationships []*Relationship) *Snapshot {
	index := make(map[string]int, len(entities))
	for i, entity := range entities {
		index[entity.ID] = i
	}

	n := len(entities)
	adjacency := make([][]float64, n)
	for i := range adjacency {
		adjacency[i] = make([]float64, n)
	}

	kept := make([]*Relationship, 0, len(relationships))
	for _, rel := range relationships {
		src, srcOK := index[rel.SourceID]
		dst, dstOK := index[rel.TargetID]
		if !srcOK || !dstOK {
			l.logger.Warn("Dropping relationship with unknown endpoint",
				"relationship_id", rel.ID,
				"source_id", rel.SourceID,
				"target_id", rel.TargetID)
			continue
		}
		if src == dst {
			continue
		}

		w := l.weights.Weight(rel)
		if w > adjacency[src][dst] {
			adjacency[src][dst] = w
			adjacency[dst][src] = w
		}
		kept = append(kept, rel)
	}

	return &Snapshot{
		Version:       l.version.Add(1),
		Entities:      entities,
		Relationships: kept,
		LoadedAt:      time.Now(),
		index:         index,
		adjacency:     adjacency,
	}
}
