package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphintel/insight-engine/internal/config"
	"github.com/graphintel/insight-engine/internal/database"
	"github.com/graphintel/insight-engine/internal/graph"
	"github.com/graphintel/insight-engine/internal/kafka"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		MinCommunitySize:      3,
		MaxCommunities:        20,
		MaxHopDepth:           4,
		MaxFanout:             20,
		PageRankAlpha:         0.85,
		CacheTTL:              time.Hour,
		TrendWindowDays:       30,
		MinTopicCoverage:      3,
		MaxConcurrentAnalyses: 2,
	}
}

type fakeRepository struct {
	mu            sync.Mutex
	entities      []*graph.Entity
	relationships []*graph.Relationship
	err           error
	loads         int
}

func (r *fakeRepository) GetEntities(ctx context.Context) ([]*graph.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	if r.err != nil {
		return nil, r.err
	}
	return r.entities, nil
}

func (r *fakeRepository) GetRelationships(ctx context.Context) ([]*graph.Relationship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.relationships, nil
}

type fakeJobStore struct {
	mu        sync.Mutex
	created   []*database.AnalysisJob
	completed []*database.AnalysisJob
}

func (s *fakeJobStore) CreateAnalysisJob(ctx context.Context, job *database.AnalysisJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, job)
	return nil
}

func (s *fakeJobStore) CompleteAnalysisJob(ctx context.Context, job *database.AnalysisJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, job)
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	completed []*kafka.AnalysisCompletedEvent
	generated []*kafka.InsightsGeneratedEvent
}

func (p *fakePublisher) PublishAnalysisCompleted(ctx context.Context, event *kafka.AnalysisCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, event)
	return nil
}

func (p *fakePublisher) PublishInsightsGenerated(ctx context.Context, event *kafka.InsightsGeneratedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generated = append(p.generated, event)
	return nil
}

func testEntities(ids ...string) []*graph.Entity {
	entities := make([]*graph.Entity, 0, len(ids))
	for _, id := range ids {
		entities = append(entities, &graph.Entity{ID: id, Name: id, CreatedAt: time.Now()})
	}
	return entities
}

func testRelationship(id, source, target string) *graph.Relationship {
	return &graph.Relationship{
		ID:         id,
		SourceID:   source,
		TargetID:   target,
		Type:       "cites",
		Confidence: 1.0,
		CreatedAt:  time.Now(),
	}
}

func newTestEngine(repo *fakeRepository, jobs JobStore, publisher Publisher) *Engine {
	loader := graph.NewLoader(repo, graph.NewWeightModel(), testLogger())
	return New(loader, testEngineConfig(), jobs, publisher, nil, nil, testLogger())
}

func TestSnapshotReuse(t *testing.T) {
	repo := &fakeRepository{
		entities: testEntities("a", "b", "c"),
		relationships: []*graph.Relationship{
			testRelationship("r1", "a", "b"),
			testRelationship("r2", "b", "c"),
		},
	}
	engine := newTestEngine(repo, nil, nil)
	ctx := context.Background()

	first, err := engine.Snapshot(ctx)
	require.NoError(t, err)
	second, err := engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, repo.loads)

	engine.InvalidateSnapshot()
	third, err := engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Greater(t, third.Version, first.Version)
}

func TestSnapshotLoadFailure(t *testing.T) {
	repo := &fakeRepository{err: errors.New("neo4j unavailable")}
	engine := newTestEngine(repo, nil, nil)

	_, err := engine.ScoreInfluence(context.Background())
	require.Error(t, err)

	var dataErr *graph.DataAccessError
	assert.ErrorAs(t, err, &dataErr)
}

func TestScoreInfluenceCached(t *testing.T) {
	repo := &fakeRepository{
		entities: testEntities("a", "b", "c"),
		relationships: []*graph.Relationship{
			testRelationship("r1", "a", "b"),
			testRelationship("r2", "b", "c"),
		},
	}
	engine := newTestEngine(repo, nil, nil)
	ctx := context.Background()

	first, err := engine.ScoreInfluence(ctx)
	require.NoError(t, err)
	second, err := engine.ScoreInfluence(ctx)
	require.NoError(t, err)

	// Second call is served from the cache for the same snapshot version.
	assert.Same(t, first, second)

	// A refreshed snapshot misses the cache because the version changed.
	_, err = engine.RefreshSnapshot(ctx)
	require.NoError(t, err)
	third, err := engine.ScoreInfluence(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.NotEqual(t, first.SnapshotVersion, third.SnapshotVersion)
}

func TestDetectCommunitiesReportsComputedVersion(t *testing.T) {
	repo := &fakeRepository{
		entities: testEntities("a", "b", "c"),
		relationships: []*graph.Relationship{
			testRelationship("r1", "a", "b"),
			testRelationship("r2", "b", "c"),
			testRelationship("r3", "a", "c"),
		},
	}
	engine := newTestEngine(repo, nil, nil)
	ctx := context.Background()

	snapshot, err := engine.Snapshot(ctx)
	require.NoError(t, err)

	_, version, err := engine.DetectCommunities(ctx)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Version, version)

	// An invalidation between detection and the response must not leak
	// the newer snapshot's version into an already computed result.
	engine.InvalidateSnapshot()
	refreshed, err := engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, version, refreshed.Version)

	_, version, err = engine.DetectCommunities(ctx)
	require.NoError(t, err)
	assert.Equal(t, refreshed.Version, version)
}

func TestTracePathsUsesConfiguredHopDepth(t *testing.T) {
	// A five-hop chain: reachable only beyond the configured depth of 4.
	repo := &fakeRepository{
		entities: testEntities("a", "b", "c", "d", "e", "f"),
		relationships: []*graph.Relationship{
			testRelationship("r1", "a", "b"),
			testRelationship("r2", "b", "c"),
			testRelationship("r3", "c", "d"),
			testRelationship("r4", "d", "e"),
			testRelationship("r5", "e", "f"),
		},
	}
	engine := newTestEngine(repo, nil, nil)
	ctx := context.Background()

	// maxHops 0 falls back to the configured depth of 4: f is 5 hops out.
	results, err := engine.TracePaths(ctx, "a", "f", 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	// e is exactly 4 hops out.
	results, err = engine.TracePaths(ctx, "a", "e", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, results[0].Path)

	// Requests above the configured depth are clamped to it.
	results, err = engine.TracePaths(ctx, "a", "f", 99)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTracePathsUnknownEntity(t *testing.T) {
	repo := &fakeRepository{entities: testEntities("a", "b")}
	engine := newTestEngine(repo, nil, nil)

	_, err := engine.TracePaths(context.Background(), "a", "ghost", 2)
	require.Error(t, err)

	var notFound *graph.EntityNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestAnalyzeGraph(t *testing.T) {
	repo := &fakeRepository{
		entities: testEntities("a", "b", "c", "d"),
		relationships: []*graph.Relationship{
			testRelationship("r1", "a", "b"),
			testRelationship("r2", "b", "c"),
			testRelationship("r3", "c", "d"),
			testRelationship("r4", "d", "a"),
		},
	}
	jobs := &fakeJobStore{}
	publisher := &fakePublisher{}
	engine := newTestEngine(repo, jobs, publisher)

	report, err := engine.AnalyzeGraph(context.Background(), []string{"quantum computing"})
	require.NoError(t, err)

	assert.NotEmpty(t, report.JobID)
	assert.Equal(t, 4, report.EntityCount)
	assert.Equal(t, 4, report.RelationshipCount)
	assert.InDelta(t, 4.0/6.0, report.Density, 1e-9)
	assert.NotNil(t, report.Influence)
	assert.NotNil(t, report.Communities)
	assert.Empty(t, report.Warnings)

	// No entity matches the target topic, so a coverage gap is reported.
	require.NotEmpty(t, report.Insights)

	require.Len(t, jobs.created, 1)
	require.Len(t, jobs.completed, 1)
	assert.Equal(t, database.JobStatusProcessing, jobs.created[0].Status)
	assert.Equal(t, database.JobStatusCompleted, jobs.completed[0].Status)
	assert.Equal(t, report.JobID, jobs.completed[0].ID)
	assert.Equal(t, len(report.Insights), jobs.completed[0].InsightCount)

	require.Len(t, publisher.completed, 1)
	assert.Equal(t, report.JobID, publisher.completed[0].JobID)
	require.Len(t, publisher.generated, 1)
	assert.Len(t, publisher.generated[0].Insights, len(report.Insights))
}

func TestAnalyzeGraphWithoutOptionalDependencies(t *testing.T) {
	repo := &fakeRepository{
		entities: testEntities("a", "b", "c"),
		relationships: []*graph.Relationship{
			testRelationship("r1", "a", "b"),
			testRelationship("r2", "b", "c"),
		},
	}
	engine := newTestEngine(repo, nil, nil)

	report, err := engine.AnalyzeGraph(context.Background(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, report.JobID)
}

func TestAnalyzeGraphAbortsOnLoadFailure(t *testing.T) {
	repo := &fakeRepository{err: errors.New("neo4j unavailable")}
	jobs := &fakeJobStore{}
	engine := newTestEngine(repo, jobs, nil)

	_, err := engine.AnalyzeGraph(context.Background(), nil)
	require.Error(t, err)
	assert.Empty(t, jobs.created)
}

func TestAnalyzeGraphHonorsContextCancellation(t *testing.T) {
	repo := &fakeRepository{entities: testEntities("a")}
	engine := newTestEngine(repo, nil, nil)

	// Fill the semaphore so the next run has to wait.
	engine.analysisSemaphore <- struct{}{}
	engine.analysisSemaphore <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.AnalyzeGraph(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunScheduledAnalysis(t *testing.T) {
	repo := &fakeRepository{
		entities: testEntities("a", "b", "c"),
		relationships: []*graph.Relationship{
			testRelationship("r1", "a", "b"),
			testRelationship("r2", "b", "c"),
		},
	}
	jobs := &fakeJobStore{}
	engine := newTestEngine(repo, jobs, nil)

	require.NoError(t, engine.RunScheduledAnalysis(context.Background()))
	assert.Len(t, jobs.completed, 1)
}
